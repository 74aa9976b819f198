package main

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erikbos/stashfin/catalog"
	"github.com/erikbos/stashfin/config"
	"github.com/erikbos/stashfin/ipban"
	"github.com/erikbos/stashfin/stash"
)

func TestCatalogSettingsFromConfig(t *testing.T) {
	c := config.Default()
	c.Library.Collections = []string{"scenes", "performers"}
	c.Library.TagGroups = []string{"VR"}
	c.Library.Filters = []string{"scenes"}

	s := catalogSettings(c)
	assert.Equal(t, []catalog.Collection{catalog.Scenes, catalog.Performers}, s.Collections)
	assert.Equal(t, []string{"VR"}, s.TagGroups)
	assert.Equal(t, []string{"scenes"}, s.Latest)
	assert.Equal(t, []catalog.Collection{catalog.Scenes}, s.FilterModes)
}

// sceneBackend serves single scenes; other backend calls are not used.
type sceneBackend struct {
	catalog.Backend
	scenes map[string]stash.Scene
}

func (b sceneBackend) FindScene(ctx context.Context, id string) (*stash.Scene, error) {
	s, ok := b.scenes[id]
	if !ok {
		return nil, stash.ErrNotFound
	}
	return &s, nil
}

func TestSceneInfoTitles(t *testing.T) {
	browser := catalog.New(sceneBackend{scenes: map[string]stash.Scene{
		"1": {ID: "1", Title: "Beach", Performers: []stash.Performer{{Name: "Ann"}, {Name: "Bo"}},
			Files: []stash.VideoFile{{Path: "/media/beach.mp4", Duration: 90}}},
		"2": {ID: "2", Code: "ABC-123", Files: []stash.VideoFile{{Path: "/media/clip.mp4"}}},
		"3": {ID: "3", Files: []stash.VideoFile{{Path: "/media/clip.mp4"}}},
	}}, catalogSettings(config.Default()))
	info := sceneInfo(browser)
	ctx := context.Background()

	first := info(ctx, "1")
	assert.Equal(t, "Beach", first.Title)
	assert.Equal(t, "Ann, Bo", first.Performers)
	assert.Equal(t, 90*time.Second, first.Duration)

	assert.Equal(t, "ABC-123", info(ctx, "2").Title)
	assert.Equal(t, "clip", info(ctx, "3").Title)
	assert.Equal(t, "Item 4", info(ctx, "4").Title)
}

func TestHttpLogKeepsResponseWriterFeatures(t *testing.T) {
	var flushed bool
	h := HttpLog(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte("chunk"))
		flushed = http.NewResponseController(w).Flush() == nil
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/Videos/scene-1/stream", nil))
	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.True(t, flushed)
	assert.True(t, rec.Flushed)
}

func TestHttpLogHijack(t *testing.T) {
	srv := httptest.NewServer(HttpLog(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, err := http.NewResponseController(w).Hijack()
		if err == nil {
			_ = conn.Close()
		}
	})))
	defer srv.Close()

	_, err := http.Get(srv.URL)
	require.Error(t, err)
}

func TestTrustedProxiesRewriteOnlyTrustedPeers(t *testing.T) {
	proxies, err := newTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	var seen string
	h := proxies.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.RemoteAddr
	}))

	tests := []struct {
		name   string
		remote string
		header string
		value  string
		want   string
	}{
		{"untrusted forwarded for", "192.0.2.1:4321", "X-Forwarded-For", "10.0.0.9", "192.0.2.1:4321"},
		{"untrusted real ip", "192.0.2.1:4321", "X-Real-IP", "10.0.0.9", "192.0.2.1:4321"},
		{"trusted forwarded for", "10.1.2.3:4321", "X-Forwarded-For", "198.51.100.9", "198.51.100.9"},
		{"trusted real ip", "10.1.2.3:4321", "X-Real-IP", "198.51.100.9", "198.51.100.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/System/Info", nil)
			req.RemoteAddr = tt.remote
			req.Header.Set(tt.header, tt.value)
			h.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, seen)
		})
	}
}

func TestSpoofedForwardedForCannotEscapeBan(t *testing.T) {
	proxies, err := newTrustedProxies(nil)
	require.NoError(t, err)

	bans := ipban.New(ipban.Options{Threshold: 1, Window: time.Minute})
	h := proxies.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if bans.IsBanned(host) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		bans.RecordFailure(r.Context(), host, "bad token")
		w.WriteHeader(http.StatusUnauthorized)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/Items", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.True(t, bans.IsBanned("192.0.2.1"))

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("GET", "/Items", nil)
		req.Header.Set("X-Forwarded-For", "10.0.0."+strconv.Itoa(i))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.False(t, bans.IsBanned("10.0.0."+strconv.Itoa(i)))
	}
}

func TestTrustedProxiesRejectsInvalidNetwork(t *testing.T) {
	_, err := newTrustedProxies([]string{"10.0.0.1"})
	assert.Error(t, err)
}
