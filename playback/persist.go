package playback

import (
	"context"
	"time"

	"github.com/erikbos/stashfin/metrics"
)

// Load restores persisted statistics.
func (t *Tracker) Load(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	stats, err := t.store.LoadStats(ctx)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats = copyStats(stats)
	t.dirty = false
	t.rollover(t.now())
	return nil
}

// Flush writes the statistics to the store if they changed since the last flush.
func (t *Tracker) Flush(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	t.mu.Lock()
	if !t.dirty {
		t.mu.Unlock()
		return nil
	}
	stats := copyStats(t.stats)
	t.dirty = false
	t.mu.Unlock()

	if err := t.store.SaveStats(ctx, stats); err != nil {
		t.mu.Lock()
		t.dirty = true
		t.mu.Unlock()
		return err
	}
	return nil
}

// Run periodically flushes statistics and prunes expired state until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.prune(t.now())
			if err := t.Flush(ctx); err != nil {
				t.log.Warn().Err(err).Msg("error writing statistics to db")
			}
		}
	}
}

func (t *Tracker) prune(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, s := range t.active {
		if now.Sub(s.LastSeen) >= staleAfter {
			t.remove(id)
		}
	}
	metrics.ActiveStreams.Set(float64(len(t.active)))
	for id, at := range t.stopped {
		if now.Sub(at) >= stopGrace {
			delete(t.stopped, id)
		}
	}
	for key, cd := range t.cooldowns {
		if now.Sub(cd.at) >= cd.window {
			delete(t.cooldowns, key)
		}
	}
	for key, p := range t.positions {
		if now.Sub(p.at) >= positionRetention {
			delete(t.positions, key)
		}
	}
}
