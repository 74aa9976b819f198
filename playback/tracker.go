// Package playback infers logical plays from the stream of range requests
// clients send for a scene and keeps the usage statistics.
package playback

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/erikbos/stashfin/database/model"
	"github.com/erikbos/stashfin/logging"
	"github.com/erikbos/stashfin/metrics"
)

const (
	// staleAfter is the age at which an active stream is treated as gone.
	staleAfter = 30 * time.Minute
	// resumeAfter is the gap in segment requests reported as a pause.
	resumeAfter = 90 * time.Second
	// stopGrace suppresses trailing requests racing a stop notification.
	stopGrace = 5 * time.Second
	// alwaysNewAfter is the gap after which any request counts as a new stream.
	alwaysNewAfter = 30 * time.Minute
	// seekBackGap is the gap after which a request near the start counts as a new stream.
	seekBackGap = 5 * time.Minute
	// startFraction is the leading part of a file considered "the start".
	startFraction = 0.05
	// cooldownBuffer is added to the scene duration to get the play count cooldown.
	cooldownBuffer = 30 * time.Minute
	// positionRetention bounds how long position history is kept.
	positionRetention = 24 * time.Hour

	defaultFlushInterval = time.Minute
)

// Outcome is the result of observing one stream segment.
type Outcome int

const (
	// Continued is ordinary playback of an active stream.
	Continued Outcome = iota
	// Resumed is an active stream picked up again after a pause.
	Resumed
	// Started is a new active stream.
	Started
	// ResumedAfterRestart is a mid-file request without history, most likely
	// a client continuing playback across a gateway restart.
	ResumedAfterRestart
	// Suppressed is a trailing request that arrived just after a stop.
	Suppressed
)

func (o Outcome) String() string {
	switch o {
	case Continued:
		return "continued"
	case Resumed:
		return "resumed"
	case Started:
		return "started"
	case ResumedAfterRestart:
		return "resumed_after_restart"
	case Suppressed:
		return "suppressed"
	}
	return "unknown"
}

// Segment is one stream request as seen by the proxy.
type Segment struct {
	SceneID  string
	ClientIP string
	// Client identifies the client application or device.
	Client string
	User   string
	// Offset is the first requested byte.
	Offset int64
	// FileSize is the total size of the file, zero when unknown.
	FileSize int64
	Time     time.Time
}

// SceneInfo is the scene metadata the tracker keeps with a stream.
type SceneInfo struct {
	Title      string
	Performers string
	Duration   time.Duration
}

// InfoFunc looks up scene metadata, it must not fail.
type InfoFunc func(ctx context.Context, sceneID string) SceneInfo

// Store persists statistics.
type Store interface {
	LoadStats(ctx context.Context) (model.Stats, error)
	SaveStats(ctx context.Context, stats model.Stats) error
}

// Stream is an active stream.
type Stream struct {
	SceneID    string        `json:"sceneId"`
	Title      string        `json:"title"`
	Performers string        `json:"performers"`
	ClientIP   string        `json:"clientIp"`
	Client     string        `json:"client"`
	User       string        `json:"user"`
	Started    time.Time     `json:"started"`
	LastSeen   time.Time     `json:"lastSeen"`
	Offset     int64         `json:"offset"`
	FileSize   int64         `json:"fileSize"`
	Duration   time.Duration `json:"duration"`

	clientKey string
	// lastSegment is the time of the last segment request. LastSeen also
	// moves on progress reports, which a paused client keeps sending.
	lastSegment time.Time
}

// Position estimates the playback position from the byte offset.
func (s Stream) Position() time.Duration {
	if s.FileSize <= 0 || s.Duration <= 0 {
		return 0
	}
	return time.Duration(float64(s.Duration) * float64(s.Offset) / float64(s.FileSize))
}

type position struct {
	offset   int64
	fileSize int64
	at       time.Time
}

type cooldown struct {
	at     time.Time
	window time.Duration
}

// Options configures a Tracker.
type Options struct {
	Store         Store
	Info          InfoFunc
	FlushInterval time.Duration
}

// Tracker is the playback session tracker. All state is guarded by a single mutex.
type Tracker struct {
	mu        sync.Mutex
	active    map[string]*Stream
	byClient  map[string]string
	positions map[string]position
	cooldowns map[string]cooldown
	stopped   map[string]time.Time
	stats     model.Stats
	dirty     bool

	store         Store
	info          InfoFunc
	flushInterval time.Duration
	now           func() time.Time
	log           zerolog.Logger
}

// New returns a tracker with empty state, call Load to restore statistics.
func New(o Options) *Tracker {
	t := &Tracker{
		active:        make(map[string]*Stream),
		byClient:      make(map[string]string),
		positions:     make(map[string]position),
		cooldowns:     make(map[string]cooldown),
		stopped:       make(map[string]time.Time),
		stats:         model.Stats{Plays: make(map[string]model.ScenePlays)},
		store:         o.Store,
		info:          o.Info,
		flushInterval: o.FlushInterval,
		now:           time.Now,
		log:           logging.WithComponent("playback"),
	}
	if t.flushInterval <= 0 {
		t.flushInterval = defaultFlushInterval
	}
	if t.info == nil {
		t.info = func(context.Context, string) SceneInfo { return SceneInfo{} }
	}
	return t
}

// Observe classifies a stream segment request and updates state and statistics.
func (t *Tracker) Observe(ctx context.Context, seg Segment) Outcome {
	if seg.Time.IsZero() {
		seg.Time = t.now()
	}
	var info SceneInfo
	if t.needsInfo(seg) {
		info = t.info(ctx, seg.SceneID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover(seg.Time)
	countNew, trailing := t.shouldCountAsNewStream(seg)
	if countNew {
		t.stats.TotalStreams++
		t.stats.TodayStreams++
		t.dirty = true
	}
	t.addTodayIP(seg.ClientIP)

	s, ok := t.active[seg.SceneID]
	if ok && seg.Time.Sub(s.LastSeen) >= staleAfter {
		t.remove(seg.SceneID)
		ok = false
	}

	var outcome Outcome
	switch {
	case !ok:
		if at, stopped := t.stopped[seg.SceneID]; stopped && seg.Time.Sub(at) < stopGrace {
			outcome = Suppressed
			break
		}
		s = t.start(seg, info)
		if trailing {
			outcome = ResumedAfterRestart
			t.streamLog(zerolog.InfoLevel, s).Int64("offset", seg.Offset).Msg("resuming")
			break
		}
		delete(t.stopped, seg.SceneID)
		t.recordPlay(seg, info)
		outcome = Started
		t.streamLog(zerolog.InfoLevel, s).Bool("counted", countNew).Msg("started")
	case seg.Time.Sub(s.lastSegment) > resumeAfter:
		outcome = Resumed
		t.streamLog(zerolog.InfoLevel, s).Dur("paused", seg.Time.Sub(s.lastSegment)).Msg("resumed after pause")
		t.bump(s, seg)
	default:
		outcome = Continued
		t.bump(s, seg)
	}

	metrics.StreamEvents.WithLabelValues(outcome.String()).Inc()
	metrics.ActiveStreams.Set(float64(len(t.active)))
	return outcome
}

// needsInfo reports whether seg may open a new active entry.
func (t *Tracker) needsInfo(seg Segment) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.active[seg.SceneID]
	return !ok || seg.Time.Sub(s.LastSeen) >= staleAfter
}

// shouldCountAsNewStream decides whether seg starts a new logical stream for
// statistics. trailing is set for a first observation that is not at the start.
func (t *Tracker) shouldCountAsNewStream(seg Segment) (countNew, trailing bool) {
	key := seg.SceneID + "|" + seg.ClientIP
	prev, seen := t.positions[key]
	t.positions[key] = position{offset: seg.Offset, fileSize: seg.FileSize, at: seg.Time}

	start := atStart(seg.Offset, seg.FileSize)
	if !seen {
		return start, !start
	}
	elapsed := seg.Time.Sub(prev.at)
	if elapsed >= alwaysNewAfter {
		return true, false
	}
	return start && elapsed >= seekBackGap, false
}

func atStart(offset, fileSize int64) bool {
	if fileSize <= 0 {
		return offset == 0
	}
	return float64(offset) <= float64(fileSize)*startFraction
}

// start opens an active entry, closing any other stream of the same client.
func (t *Tracker) start(seg Segment, info SceneInfo) *Stream {
	key := seg.ClientIP + "|" + seg.Client
	if prev, ok := t.byClient[key]; ok && prev != seg.SceneID {
		if old, ok := t.active[prev]; ok && old.clientKey == key {
			t.streamLog(zerolog.InfoLevel, old).Str("next", seg.SceneID).Msg("cancelled")
			t.remove(prev)
		}
	}
	s := &Stream{
		SceneID:    seg.SceneID,
		Title:      info.Title,
		Performers: info.Performers,
		ClientIP:   seg.ClientIP,
		Client:     seg.Client,
		User:       seg.User,
		Started:    seg.Time,
		LastSeen:   seg.Time,
		Offset:     seg.Offset,
		FileSize:   seg.FileSize,
		Duration:   info.Duration,
		clientKey:  key,

		lastSegment: seg.Time,
	}
	t.active[seg.SceneID] = s
	t.byClient[key] = seg.SceneID
	return s
}

func (t *Tracker) bump(s *Stream, seg Segment) {
	s.LastSeen = seg.Time
	s.lastSegment = seg.Time
	s.Offset = seg.Offset
	if seg.FileSize > 0 {
		s.FileSize = seg.FileSize
	}
}

func (t *Tracker) remove(sceneID string) {
	s, ok := t.active[sceneID]
	if !ok {
		return
	}
	delete(t.active, sceneID)
	if t.byClient[s.clientKey] == sceneID {
		delete(t.byClient, s.clientKey)
	}
}

// recordPlay increments the play count of a scene unless the same address
// played it within its cooldown.
func (t *Tracker) recordPlay(seg Segment, info SceneInfo) {
	key := seg.SceneID + "|" + seg.ClientIP
	if cd, ok := t.cooldowns[key]; ok && seg.Time.Sub(cd.at) < cd.window {
		return
	}
	t.cooldowns[key] = cooldown{at: seg.Time, window: info.Duration + cooldownBuffer}

	p := t.stats.Plays[seg.SceneID]
	p.PlayCount++
	if info.Title != "" {
		p.Title = info.Title
	}
	p.Performers = info.Performers
	p.LastPlayed = seg.Time
	t.stats.Plays[seg.SceneID] = p
	t.dirty = true
}

// Progress keeps an active stream alive on client progress reports. It does
// not count as a segment request, so a pause is still detected.
func (t *Tracker) Progress(sceneID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.active[sceneID]; ok {
		s.LastSeen = t.now()
	}
}

// Stop handles a stop notification for a scene.
func (t *Tracker) Stop(ctx context.Context, sceneID string) {
	t.mu.Lock()
	s, ok := t.active[sceneID]
	var title string
	if ok {
		title = s.Title
	}
	t.mu.Unlock()

	if title == "" {
		title = t.info(ctx, sceneID).Title
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.remove(sceneID)
	t.stopped[sceneID] = t.now()
	metrics.ActiveStreams.Set(float64(len(t.active)))
	t.log.Info().Str("scene", sceneID).Str("title", title).Bool("active", ok).Msg("stopped")
}

// RecordAuth counts an authentication attempt.
func (t *Tracker) RecordAuth(success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if success {
		t.stats.AuthSuccess++
	} else {
		t.stats.AuthFailure++
	}
	t.dirty = true
}

// Streams returns the active streams, oldest first.
func (t *Tracker) Streams() []Stream {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	streams := make([]Stream, 0, len(t.active))
	for _, s := range t.active {
		if now.Sub(s.LastSeen) >= staleAfter {
			continue
		}
		streams = append(streams, *s)
	}
	sort.Slice(streams, func(i, j int) bool {
		return streams[i].Started.Before(streams[j].Started)
	})
	return streams
}

// Stats returns a copy of the statistics.
func (t *Tracker) Stats() model.Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover(t.now())
	return copyStats(t.stats)
}

// ResetStats clears all statistics.
func (t *Tracker) ResetStats() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats = model.Stats{
		TodayDate: dateOf(t.now()),
		Plays:     make(map[string]model.ScenePlays),
	}
	t.cooldowns = make(map[string]cooldown)
	t.dirty = true
	t.log.Info().Msg("statistics reset")
}

func (t *Tracker) rollover(now time.Time) {
	today := dateOf(now)
	if t.stats.TodayDate == today {
		return
	}
	t.stats.TodayDate = today
	t.stats.TodayStreams = 0
	t.stats.TodayIPs = nil
	t.dirty = true
}

func (t *Tracker) addTodayIP(ip string) {
	if ip == "" {
		return
	}
	for _, seen := range t.stats.TodayIPs {
		if seen == ip {
			return
		}
	}
	t.stats.TodayIPs = append(t.stats.TodayIPs, ip)
	t.dirty = true
}

func (t *Tracker) streamLog(level zerolog.Level, s *Stream) *zerolog.Event {
	return t.log.WithLevel(level).
		Str("scene", s.SceneID).
		Str("title", s.Title).
		Str("client", s.Client).
		Str("ip", s.ClientIP)
}

func dateOf(t time.Time) string {
	return t.Local().Format(time.DateOnly)
}

func copyStats(s model.Stats) model.Stats {
	c := s
	c.TodayIPs = append([]string(nil), s.TodayIPs...)
	c.Plays = make(map[string]model.ScenePlays, len(s.Plays))
	for k, v := range s.Plays {
		c.Plays[k] = v
	}
	return c
}
