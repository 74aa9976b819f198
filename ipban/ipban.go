// Package ipban tracks authentication failures per client address and keeps
// the persisted set of banned addresses.
package ipban

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/erikbos/stashfin/database/model"
	"github.com/erikbos/stashfin/logging"
	"github.com/erikbos/stashfin/metrics"
)

const maxHistories = 4096

// Store persists bans.
type Store interface {
	LoadBans(ctx context.Context) ([]model.Ban, error)
	SaveBan(ctx context.Context, ban model.Ban) error
	DeleteBan(ctx context.Context, ip string) error
}

// Options configures a Manager.
type Options struct {
	Store Store
	// Threshold is the number of failures within Window that bans an address.
	Threshold int
	Window    time.Duration
}

type history struct {
	failures []time.Time
	// limiter allows one counted failure per second.
	limiter *rate.Limiter
}

// Manager is the ban state of the gateway.
type Manager struct {
	mu        sync.Mutex
	bans      map[string]model.Ban
	unsaved   map[string]bool
	histories map[string]*history
	threshold int
	window    time.Duration
	store     Store
	now       func() time.Time
	log       zerolog.Logger
}

// New returns a manager without bans, call Load to restore persisted bans.
func New(o Options) *Manager {
	m := &Manager{
		bans:      make(map[string]model.Ban),
		unsaved:   make(map[string]bool),
		histories: make(map[string]*history),
		store:     o.Store,
		now:       time.Now,
		log:       logging.WithComponent("ipban"),
	}
	m.Reconfigure(o.Threshold, o.Window)
	return m
}

// Load restores the persisted ban set.
func (m *Manager) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	bans, err := m.store.LoadBans(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range bans {
		m.bans[b.IP] = b
	}
	metrics.Bans.Set(float64(len(m.bans)))
	return nil
}

// Reconfigure changes threshold and window, non-positive values are ignored.
func (m *Manager) Reconfigure(threshold int, window time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if threshold > 0 {
		m.threshold = threshold
	} else if m.threshold == 0 {
		m.threshold = 10
	}
	if window > 0 {
		m.window = window
	} else if m.window == 0 {
		m.window = 15 * time.Minute
	}
}

// IsBanned reports whether ip is banned.
func (m *Manager) IsBanned(ip string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.bans[ip]
	return ok
}

// RecordFailure records an authentication failure of ip and reports whether
// the address is banned afterwards.
func (m *Manager) RecordFailure(ctx context.Context, ip, reason string) bool {
	if ip == "" {
		return false
	}
	now := m.now()

	m.mu.Lock()
	if _, ok := m.bans[ip]; ok {
		m.mu.Unlock()
		return true
	}
	h, ok := m.histories[ip]
	if !ok {
		if len(m.histories) >= maxHistories {
			m.sweep(now)
		}
		h = &history{limiter: rate.NewLimiter(rate.Every(time.Second), 1)}
		m.histories[ip] = h
	}
	h.failures = prune(h.failures, now.Add(-m.window))
	if !h.limiter.AllowN(now, 1) {
		m.mu.Unlock()
		return false
	}
	h.failures = append(h.failures, now)
	if len(h.failures) < m.threshold {
		m.mu.Unlock()
		return false
	}

	ban := model.Ban{
		IP:       ip,
		Reason:   reason,
		Failures: len(h.failures),
		Created:  now.UTC(),
	}
	m.bans[ip] = ban
	m.unsaved[ip] = true
	delete(m.histories, ip)
	metrics.Bans.Set(float64(len(m.bans)))
	m.mu.Unlock()

	m.log.Warn().Str("ip", ip).Int("failures", ban.Failures).Str("reason", reason).Msg("address banned")
	m.save(ctx, ban)
	return true
}

// Unban lifts the ban on ip.
func (m *Manager) Unban(ctx context.Context, ip string) error {
	m.mu.Lock()
	_, ok := m.bans[ip]
	delete(m.bans, ip)
	delete(m.unsaved, ip)
	delete(m.histories, ip)
	metrics.Bans.Set(float64(len(m.bans)))
	m.mu.Unlock()

	if m.store != nil {
		err := m.store.DeleteBan(ctx, ip)
		if err == nil || (ok && errors.Is(err, model.ErrNotFound)) {
			m.log.Info().Str("ip", ip).Msg("address unbanned")
			return nil
		}
		return err
	}
	if !ok {
		return model.ErrNotFound
	}
	return nil
}

// List returns all bans, oldest first.
func (m *Manager) List() []model.Ban {
	m.mu.Lock()
	defer m.mu.Unlock()
	bans := make([]model.Ban, 0, len(m.bans))
	for _, b := range m.bans {
		bans = append(bans, b)
	}
	sort.Slice(bans, func(i, j int) bool {
		if bans[i].Created.Equal(bans[j].Created) {
			return bans[i].IP < bans[j].IP
		}
		return bans[i].Created.Before(bans[j].Created)
	})
	return bans
}

// Failures returns the number of failures of ip within the window.
func (m *Manager) Failures(ip string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.histories[ip]
	if !ok {
		return 0
	}
	h.failures = prune(h.failures, m.now().Add(-m.window))
	return len(h.failures)
}

// Flush writes bans that could not be stored earlier.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	var pending []model.Ban
	for ip := range m.unsaved {
		if b, ok := m.bans[ip]; ok {
			pending = append(pending, b)
		}
	}
	m.mu.Unlock()

	for _, b := range pending {
		if err := m.save(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) save(ctx context.Context, ban model.Ban) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.SaveBan(ctx, ban); err != nil {
		m.log.Warn().Err(err).Str("ip", ban.IP).Msg("error writing ban to db")
		return err
	}
	m.mu.Lock()
	delete(m.unsaved, ban.IP)
	m.mu.Unlock()
	return nil
}

// sweep drops failure histories that fell out of the window.
func (m *Manager) sweep(now time.Time) {
	cutoff := now.Add(-m.window)
	for ip, h := range m.histories {
		h.failures = prune(h.failures, cutoff)
		if len(h.failures) == 0 {
			delete(m.histories, ip)
		}
	}
}

// prune drops timestamps before cutoff, failures is in ascending order.
func prune(failures []time.Time, cutoff time.Time) []time.Time {
	i := sort.Search(len(failures), func(i int) bool {
		return !failures[i].Before(cutoff)
	})
	return failures[i:]
}
