package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"time"

	"github.com/erikbos/stashfin/database/model"
)

// CreateAccessToken creates new token.
func (s *SqliteRepo) CreateAccessToken(ctx context.Context, t model.AccessToken) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	t.Token = rand.Text()
	t.Created = now
	t.LastUsed = now

	// Store accesstoken in database
	if err := s.storeToken(ctx, t); err != nil {
		return "", err
	}
	// Store accesstoken in memory
	s.accessTokenCache[t.Token] = &t

	return t.Token, nil
}

// GetAccessToken returns accesstoken details based upon tokenid.
func (s *SqliteRepo) GetAccessToken(ctx context.Context, token string) (*model.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Try our in-memory store first
	if at, ok := s.accessTokenCache[token]; ok {
		// Update token timestamp so we can keep track of in-use tokens
		at.LastUsed = time.Now().UTC()
		t := *at
		return &t, nil
	}

	// try database
	var t model.AccessToken
	err := s.dbReadHandle.GetContext(ctx, &t, `SELECT userid, token,
		COALESCE(deviceid, '') AS deviceid, COALESCE(devicename, '') AS devicename,
		COALESCE(applicationname, '') AS applicationname, COALESCE(applicationversion, '') AS applicationversion,
		COALESCE(remoteaddress, '') AS remoteaddress, created, lastused
		FROM accesstokens WHERE token=? LIMIT 1`, token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.LastUsed = time.Now().UTC()
	// Store accesstoken in memory
	cached := t
	s.accessTokenCache[token] = &cached
	return &t, nil
}

// DeleteAccessToken removes a token, used at logout.
func (s *SqliteRepo) DeleteAccessToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.accessTokenCache, token)
	_, err := s.dbWriteHandle.ExecContext(ctx, `DELETE FROM accesstokens WHERE token=?`, token)
	return err
}

// accessTokenBackgroundJob writes changed accesstokens to database.
func (s *SqliteRepo) accessTokenBackgroundJob(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.writeChangedAccessTokensToDB(ctx); err != nil {
				s.log.Warn().Err(err).Msg("error writing access tokens to db")
			}
		}
	}
}

// writeChangedAccessTokensToDB writes updated access tokens to db to persist last use date.
func (s *SqliteRepo) writeChangedAccessTokensToDB(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, value := range s.accessTokenCache {
		if value.LastUsed.After(s.accessTokenCacheSyncTime) {
			if err := s.storeToken(ctx, *value); err != nil {
				return err
			}
		}
	}
	s.accessTokenCacheSyncTime = time.Now().UTC()
	return nil
}

// storeToken stores an access token in the database
func (s *SqliteRepo) storeToken(ctx context.Context, t model.AccessToken) error {
	if s.dbWriteHandle == nil {
		return model.ErrNoDbHandle
	}
	tx, err := s.dbWriteHandle.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `INSERT OR REPLACE INTO accesstokens
		(userid, token, deviceid, devicename, applicationname, applicationversion, remoteaddress, created, lastused)
		VALUES (:userid, :token, :deviceid, :devicename, :applicationname, :applicationversion, :remoteaddress, :created, :lastused)`, t)
	if err != nil {
		return err
	}
	return tx.Commit()
}
