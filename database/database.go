// Package database gives access to the persisted gateway state.
package database

import (
	"context"
	"fmt"

	"github.com/erikbos/stashfin/database/model"
	"github.com/erikbos/stashfin/database/sqlite"
)

type (
	Options struct {
		Filename string
	}

	// Repository is the complete durable store.
	Repository interface {
		AccessTokenRepo
		StatsRepo
		BanRepo
		// StartBackgroundJobs starts syncing in-memory caches to storage.
		StartBackgroundJobs(ctx context.Context)
		// Close writes pending changes and closes the store.
		Close() error
	}

	AccessTokenRepo interface {
		// CreateAccessToken stores a new token and returns it.
		CreateAccessToken(ctx context.Context, t model.AccessToken) (string, error)
		// GetAccessToken returns token details, model.ErrNotFound if unknown.
		GetAccessToken(ctx context.Context, token string) (*model.AccessToken, error)
		// DeleteAccessToken revokes a token.
		DeleteAccessToken(ctx context.Context, token string) error
	}

	// StatsRepo persists usage statistics and per-scene plays.
	StatsRepo interface {
		LoadStats(ctx context.Context) (model.Stats, error)
		SaveStats(ctx context.Context, stats model.Stats) error
	}

	// BanRepo persists the ban set.
	BanRepo interface {
		LoadBans(ctx context.Context) ([]model.Ban, error)
		SaveBan(ctx context.Context, ban model.Ban) error
		DeleteBan(ctx context.Context, ip string) error
	}
)

// New opens the sqlite store at o.Filename, creating the schema if necessary.
func New(o *Options) (Repository, error) {
	if o == nil || o.Filename == "" {
		return nil, fmt.Errorf("database filename not set")
	}
	repo, err := sqlite.New(&sqlite.ConfigFile{Filename: o.Filename})
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", o.Filename, err)
	}
	return repo, nil
}
