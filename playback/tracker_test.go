package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erikbos/stashfin/database/model"
)

const fileSize = 1_000_000

var t0 = time.Date(2026, 5, 4, 20, 0, 0, 0, time.Local)

type memStore struct {
	mu    sync.Mutex
	stats model.Stats
	saves int
	err   error
}

func (m *memStore) LoadStats(context.Context) (model.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats, m.err
}

func (m *memStore) SaveStats(_ context.Context, s model.Stats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.stats = s
	m.saves++
	return nil
}

func newTestTracker(now *time.Time) *Tracker {
	tr := New(Options{
		Info: func(_ context.Context, id string) SceneInfo {
			return SceneInfo{Title: "Scene " + id, Performers: "Ann", Duration: 20 * time.Minute}
		},
	})
	tr.now = func() time.Time { return *now }
	return tr
}

func seg(scene string, offset int64, at time.Time) Segment {
	return Segment{
		SceneID:  scene,
		ClientIP: "10.0.0.5",
		Client:   "Infuse",
		Offset:   offset,
		FileSize: fileSize,
		Time:     at,
	}
}

func TestShouldCountAsNewStream(t *testing.T) {
	now := t0
	tr := newTestTracker(&now)

	countNew, trailing := tr.shouldCountAsNewStream(seg("1", 0, t0))
	assert.True(t, countNew)
	assert.False(t, trailing)

	countNew, trailing = tr.shouldCountAsNewStream(seg("2", 500_000, t0))
	assert.False(t, countNew, "mid-file first observation")
	assert.True(t, trailing)

	countNew, _ = tr.shouldCountAsNewStream(seg("1", 0, t0.Add(31*time.Minute)))
	assert.True(t, countNew, "gap beyond cooldown")

	countNew, trailing = tr.shouldCountAsNewStream(seg("1", 900_000, t0.Add(33*time.Minute)))
	assert.False(t, countNew, "mid-file seek")
	assert.False(t, trailing)

	countNew, _ = tr.shouldCountAsNewStream(seg("1", 10_000, t0.Add(35*time.Minute)))
	assert.False(t, countNew, "seek to start without a meaningful gap")

	countNew, _ = tr.shouldCountAsNewStream(seg("1", 10_000, t0.Add(41*time.Minute)))
	assert.True(t, countNew, "seek back to the start after a gap")
}

func TestShouldCountUnknownFileSize(t *testing.T) {
	now := t0
	tr := newTestTracker(&now)

	s := seg("1", 1, t0)
	s.FileSize = 0
	countNew, trailing := tr.shouldCountAsNewStream(s)
	assert.False(t, countNew)
	assert.True(t, trailing)

	s = seg("3", 0, t0)
	s.FileSize = 0
	countNew, trailing = tr.shouldCountAsNewStream(s)
	assert.True(t, countNew)
	assert.False(t, trailing)
}

func TestObserveLifecycle(t *testing.T) {
	now := t0
	tr := newTestTracker(&now)
	ctx := context.Background()

	assert.Equal(t, Started, tr.Observe(ctx, seg("1", 0, t0)))
	assert.Equal(t, Continued, tr.Observe(ctx, seg("1", 100_000, t0.Add(10*time.Second))))
	assert.Equal(t, Resumed, tr.Observe(ctx, seg("1", 200_000, t0.Add(3*time.Minute))))

	now = t0.Add(3 * time.Minute)
	streams := tr.Streams()
	require.Len(t, streams, 1)
	assert.Equal(t, "Scene 1", streams[0].Title)
	assert.Equal(t, int64(200_000), streams[0].Offset)

	// Stale entries are treated as absent and open a new stream.
	assert.Equal(t, Started, tr.Observe(ctx, seg("1", 0, t0.Add(40*time.Minute))))

	stats := tr.Stats()
	assert.Equal(t, int64(2), stats.TotalStreams)
	assert.Equal(t, int64(2), stats.TodayStreams)
	assert.Equal(t, []string{"10.0.0.5"}, stats.TodayIPs)
}

func TestProgressDuringPauseStillResumes(t *testing.T) {
	now := t0
	tr := newTestTracker(&now)
	ctx := context.Background()

	assert.Equal(t, Started, tr.Observe(ctx, seg("1", 0, t0)))
	for _, at := range []time.Duration{time.Minute, 2 * time.Minute} {
		now = t0.Add(at)
		tr.Progress("1")
	}

	streams := tr.Streams()
	require.Len(t, streams, 1)
	assert.Equal(t, t0.Add(2*time.Minute), streams[0].LastSeen)

	assert.Equal(t, Resumed, tr.Observe(ctx, seg("1", 100_000, t0.Add(150*time.Second))))
	assert.Equal(t, Continued, tr.Observe(ctx, seg("1", 150_000, t0.Add(160*time.Second))))
}

func TestObserveTrailingAfterRestart(t *testing.T) {
	now := t0
	tr := newTestTracker(&now)
	ctx := context.Background()

	assert.Equal(t, ResumedAfterRestart, tr.Observe(ctx, seg("1", 500_000, t0)))
	require.Len(t, tr.Streams(), 1)

	stats := tr.Stats()
	assert.Zero(t, stats.TotalStreams)
	assert.Empty(t, stats.Plays)
}

func TestSingleStreamPerClient(t *testing.T) {
	now := t0
	tr := newTestTracker(&now)
	ctx := context.Background()

	require.Equal(t, Started, tr.Observe(ctx, seg("A", 0, t0)))
	require.Equal(t, Started, tr.Observe(ctx, seg("B", 0, t0.Add(time.Minute))))

	now = t0.Add(time.Minute)
	streams := tr.Streams()
	require.Len(t, streams, 1)
	assert.Equal(t, "B", streams[0].SceneID)

	// Another client on the same address keeps its own stream.
	other := seg("C", 0, t0.Add(time.Minute))
	other.Client = "Jellyfin Web"
	require.Equal(t, Started, tr.Observe(ctx, other))
	assert.Len(t, tr.Streams(), 2)
}

func TestSingleStreamConcurrent(t *testing.T) {
	now := t0
	tr := newTestTracker(&now)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan Outcome, 20)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- tr.Observe(ctx, seg("A", 0, t0))
		}()
	}
	wg.Wait()
	close(results)

	started := 0
	for o := range results {
		if o == Started {
			started++
		}
	}
	assert.Equal(t, 1, started)
	assert.Equal(t, int64(1), tr.Stats().TotalStreams)
	assert.Equal(t, int64(1), tr.Stats().Plays["A"].PlayCount)
}

func TestPlayCountCooldown(t *testing.T) {
	now := t0
	tr := newTestTracker(&now)
	ctx := context.Background()

	// duration 20m, so the cooldown is 50m.
	tr.Observe(ctx, seg("1", 0, t0))
	tr.Stop(ctx, "1")

	tr.Observe(ctx, seg("1", 0, t0.Add(45*time.Minute)))
	tr.Stop(ctx, "1")
	assert.Equal(t, int64(1), tr.Stats().Plays["1"].PlayCount)

	tr.Observe(ctx, seg("1", 0, t0.Add(51*time.Minute)))
	plays := tr.Stats().Plays["1"]
	assert.Equal(t, int64(2), plays.PlayCount)
	assert.Equal(t, "Scene 1", plays.Title)
	assert.Equal(t, "Ann", plays.Performers)
}

func TestStopGrace(t *testing.T) {
	now := t0
	tr := newTestTracker(&now)
	ctx := context.Background()

	tr.Observe(ctx, seg("1", 0, t0))
	now = t0.Add(10 * time.Second)
	tr.Stop(ctx, "1")
	assert.Empty(t, tr.Streams())

	assert.Equal(t, Suppressed, tr.Observe(ctx, seg("1", 600_000, t0.Add(12*time.Second))))
	assert.Empty(t, tr.Streams())

	assert.Equal(t, Started, tr.Observe(ctx, seg("1", 600_000, t0.Add(20*time.Second))))
}

func TestStopUnknownSceneUsesInfo(t *testing.T) {
	now := t0
	looked := ""
	tr := New(Options{Info: func(_ context.Context, id string) SceneInfo {
		looked = id
		return SceneInfo{}
	}})
	tr.now = func() time.Time { return now }

	tr.Stop(context.Background(), "77")
	assert.Equal(t, "77", looked)
}

func TestDailyRollover(t *testing.T) {
	now := t0
	tr := newTestTracker(&now)
	ctx := context.Background()

	tr.Observe(ctx, seg("1", 0, t0))
	now = t0.Add(24 * time.Hour)
	next := seg("2", 0, now)
	next.ClientIP = "10.0.0.6"
	tr.Observe(ctx, next)

	stats := tr.Stats()
	assert.Equal(t, int64(2), stats.TotalStreams)
	assert.Equal(t, int64(1), stats.TodayStreams)
	assert.Equal(t, []string{"10.0.0.6"}, stats.TodayIPs)
	assert.Equal(t, now.Format(time.DateOnly), stats.TodayDate)
}

func TestRecordAuthAndReset(t *testing.T) {
	now := t0
	tr := newTestTracker(&now)

	tr.RecordAuth(true)
	tr.RecordAuth(false)
	tr.RecordAuth(false)
	stats := tr.Stats()
	assert.Equal(t, int64(1), stats.AuthSuccess)
	assert.Equal(t, int64(2), stats.AuthFailure)

	tr.ResetStats()
	stats = tr.Stats()
	assert.Zero(t, stats.AuthFailure)
	assert.Empty(t, stats.Plays)
}

func TestFlushAndLoad(t *testing.T) {
	now := t0
	store := &memStore{}
	tr := New(Options{Store: store})
	tr.now = func() time.Time { return now }
	ctx := context.Background()

	tr.Observe(ctx, seg("1", 0, t0))
	require.NoError(t, tr.Flush(ctx))
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, int64(1), store.stats.TotalStreams)

	// Nothing changed, nothing written.
	require.NoError(t, tr.Flush(ctx))
	assert.Equal(t, 1, store.saves)

	restored := New(Options{Store: store})
	restored.now = func() time.Time { return now }
	require.NoError(t, restored.Load(ctx))
	assert.Equal(t, int64(1), restored.Stats().Plays["1"].PlayCount)
}

func TestFlushErrorKeepsDirty(t *testing.T) {
	now := t0
	store := &memStore{err: errors.New("disk full")}
	tr := New(Options{Store: store})
	tr.now = func() time.Time { return now }
	ctx := context.Background()

	tr.RecordAuth(true)
	require.Error(t, tr.Flush(ctx))

	store.err = nil
	require.NoError(t, tr.Flush(ctx))
	assert.Equal(t, int64(1), store.stats.AuthSuccess)
}

func TestPrune(t *testing.T) {
	now := t0
	tr := newTestTracker(&now)
	ctx := context.Background()

	tr.Observe(ctx, seg("1", 0, t0))
	tr.prune(t0.Add(31 * time.Minute))

	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Empty(t, tr.active)
	assert.Empty(t, tr.byClient)
	assert.Len(t, tr.positions, 1)
}
