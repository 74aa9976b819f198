package sqlite

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/erikbos/stashfin/database/model"
	"github.com/erikbos/stashfin/logging"
)

type SqliteRepo struct {
	// Read db handle
	dbReadHandle *sqlx.DB
	// Handle specfically for writes
	dbWriteHandle *sqlx.DB
	// in-memory access token store, last use dates are written to the database periodically.
	accessTokenCache map[string]*model.AccessToken
	// last time the access token cache was synced to the database
	accessTokenCacheSyncTime time.Time
	// mutex to protect access to in-memory stores
	mu  sync.Mutex
	log zerolog.Logger
}

// ConfigFile holds configuration options
type ConfigFile struct {
	Filename string `yaml:"filename"`
}

// New initializes a sqlite database and creates schema if necssary.
func New(o *ConfigFile) (*SqliteRepo, error) {
	if o == nil || o.Filename == "" {
		return nil, fmt.Errorf("database filename not set")
	}

	dbHandle, err := sqlx.Connect("sqlite3", o.Filename)
	if err != nil {
		return nil, err
	}
	dbHandle.SetMaxOpenConns(max(4, runtime.NumCPU()))

	writeDB, err := sqlx.Connect("sqlite3", o.Filename)
	if err != nil {
		dbHandle.Close()
		return nil, err
	}
	// sqlite needs to have a single writer
	writeDB.SetMaxOpenConns(1)

	s := &SqliteRepo{
		dbReadHandle:             dbHandle,
		dbWriteHandle:            writeDB,
		accessTokenCache:         make(map[string]*model.AccessToken),
		accessTokenCacheSyncTime: time.Now().UTC(),
		log:                      logging.WithComponent("database"),
	}
	if err := s.dbInitSchema(writeDB); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close writes pending access token changes and closes the database.
func (s *SqliteRepo) Close() error {
	if err := s.writeChangedAccessTokensToDB(context.Background()); err != nil {
		s.log.Warn().Err(err).Msg("error writing access tokens to db")
	}
	err := s.dbWriteHandle.Close()
	if rerr := s.dbReadHandle.Close(); err == nil {
		err = rerr
	}
	return err
}

// StartBackgroundJobs starts background jobs for the database repository.
// these jobs handle periodic syncing of in-memory caches to the database.
func (s *SqliteRepo) StartBackgroundJobs(ctx context.Context) {
	syncInterval := 10 * time.Second

	go s.accessTokenBackgroundJob(ctx, syncInterval)
}
