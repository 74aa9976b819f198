package jellyfin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erikbos/stashfin/catalog"
	"github.com/erikbos/stashfin/database/model"
	"github.com/erikbos/stashfin/ipban"
	"github.com/erikbos/stashfin/playback"
)

const testToken = "valid-token"

type fakeCatalog struct {
	views    []catalog.FolderSummary
	children map[string]catalog.Listing
	scenes   map[string]catalog.MediaItem
	latest   []catalog.Entry
	search   catalog.Listing

	lastPage catalog.Page
}

func (f *fakeCatalog) Views(ctx context.Context) []catalog.FolderSummary { return f.views }

func (f *fakeCatalog) ListChildren(ctx context.Context, node catalog.Node, page catalog.Page, sort catalog.Sort) (catalog.Listing, error) {
	f.lastPage = page
	l, ok := f.children[node.String()]
	if !ok {
		return catalog.Listing{}, catalog.ErrNotFound
	}
	return l, nil
}

func (f *fakeCatalog) Latest(ctx context.Context, node catalog.Node, limit int) []catalog.Entry {
	return f.latest
}

func (f *fakeCatalog) Search(ctx context.Context, term string, people bool, page catalog.Page, sort catalog.Sort) catalog.Listing {
	if people {
		return catalog.Listing{}
	}
	return f.search
}

func (f *fakeCatalog) ScenesWith(ctx context.Context, entity catalog.Node, page catalog.Page, sort catalog.Sort) catalog.Listing {
	return f.search
}

func (f *fakeCatalog) Lookup(ctx context.Context, node catalog.Node) (catalog.Entry, error) {
	switch node.Kind {
	case catalog.NodeScene:
		m, err := f.Scene(ctx, node.ID)
		if err != nil {
			return catalog.Entry{}, err
		}
		return catalog.Entry{Media: m}, nil
	case catalog.NodeRoot:
		return catalog.Entry{Folder: &catalog.FolderSummary{Node: node, Name: "Media Folders"}}, nil
	case catalog.NodeCollection:
		return catalog.Entry{Folder: &catalog.FolderSummary{Node: node, Kind: catalog.FolderCollection, Name: node.Collection.DisplayName()}}, nil
	}
	return catalog.Entry{}, catalog.ErrNotFound
}

func (f *fakeCatalog) Scene(ctx context.Context, id string) (*catalog.MediaItem, error) {
	m, ok := f.scenes[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &m, nil
}

func (f *fakeCatalog) LookupMany(ctx context.Context, nodes []catalog.Node) []catalog.Entry {
	var entries []catalog.Entry
	for _, n := range nodes {
		if e, err := f.Lookup(ctx, n); err == nil {
			entries = append(entries, e)
		}
	}
	return entries
}

type fakeUpstream struct {
	mu       sync.Mutex
	handler  http.HandlerFunc
	requests []*http.Request
}

func (f *fakeUpstream) do(method, path string, hdr http.Header) (*http.Response, error) {
	if f.handler == nil {
		return nil, errors.New("backend down")
	}
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header[k] = v
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	rec := httptest.NewRecorder()
	f.handler(rec, req)
	return rec.Result(), nil
}

func (f *fakeUpstream) Get(ctx context.Context, path string, hdr http.Header) (*http.Response, error) {
	return f.do(http.MethodGet, path, hdr)
}

func (f *fakeUpstream) Head(ctx context.Context, path string, hdr http.Header) (*http.Response, error) {
	return f.do(http.MethodHead, path, hdr)
}

type fakeTokens struct {
	mu     sync.Mutex
	tokens map[string]model.AccessToken
}

func (f *fakeTokens) CreateAccessToken(ctx context.Context, t model.AccessToken) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.Token = "token-" + t.DeviceId
	f.tokens[t.Token] = t
	return t.Token, nil
}

func (f *fakeTokens) GetAccessToken(ctx context.Context, token string) (*model.AccessToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[token]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &t, nil
}

func (f *fakeTokens) DeleteAccessToken(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tokens, token)
	return nil
}

type testServer struct {
	j        *Jellyfin
	handler  http.Handler
	catalog  *fakeCatalog
	upstream *fakeUpstream
	tokens   *fakeTokens
	tracker  *playback.Tracker
	bans     *ipban.Manager
}

func newTestServer(t *testing.T, banThreshold int) *testServer {
	t.Helper()
	ts := &testServer{
		catalog: &fakeCatalog{
			children: make(map[string]catalog.Listing),
			scenes:   make(map[string]catalog.MediaItem),
		},
		upstream: &fakeUpstream{},
		tokens: &fakeTokens{tokens: map[string]model.AccessToken{
			testToken: {Token: testToken, ApplicationName: "Infuse", DeviceName: "tv"},
		}},
		tracker: playback.New(playback.Options{}),
		bans:    ipban.New(ipban.Options{Threshold: banThreshold}),
	}
	j, err := New(&Options{
		Catalog:    ts.catalog,
		Upstream:   ts.upstream,
		Tokens:     ts.tokens,
		Tracker:    ts.tracker,
		Bans:       ts.bans,
		ServerName: "test",
		Username:   "admin",
		Password:   "secret",
		PadImages:  true,
	})
	require.NoError(t, err)
	ts.j = j
	router := mux.NewRouter()
	j.RegisterHandlers(router)
	ts.handler = j.BanGate(router)
	return ts
}

func (ts *testServer) do(t *testing.T, method, target string, body io.Reader, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) get(t *testing.T, target string) *httptest.ResponseRecorder {
	return ts.do(t, http.MethodGet, target, nil, map[string]string{"X-Emby-Token": testToken})
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestAuthTokenSources(t *testing.T) {
	ts := newTestServer(t, 100)

	tests := []struct {
		name   string
		header map[string]string
		target string
		status int
	}{
		{"none", nil, "/System/Info", http.StatusUnauthorized},
		{"emby token", map[string]string{"X-Emby-Token": testToken}, "/System/Info", http.StatusOK},
		{"mediabrowser token", map[string]string{"X-MediaBrowser-Token": testToken}, "/System/Info", http.StatusOK},
		{"bearer", map[string]string{"Authorization": "Bearer " + testToken}, "/System/Info", http.StatusOK},
		{"auth header", map[string]string{"Authorization": `MediaBrowser Client="x", Device="y", DeviceId="z", Token="` + testToken + `"`}, "/System/Info", http.StatusOK},
		{"emby auth header", map[string]string{"X-Emby-Authorization": `MediaBrowser Token="` + testToken + `"`}, "/System/Info", http.StatusOK},
		{"query", nil, "/System/Info?api_key=" + testToken, http.StatusOK},
		{"invalid", map[string]string{"X-Emby-Token": "nope"}, "/System/Info", http.StatusUnauthorized},
		{"public", nil, "/System/Info/Public", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, tt.target, nil, tt.header)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusUnauthorized {
				body := decode[HTTPError](t, rec)
				assert.Equal(t, http.StatusUnauthorized, body.Status)
				assert.Equal(t, "https://tools.ietf.org/html/rfc9110#section-15.5.2", body.Type)
				assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestRequestTokenPriority(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/Items?api_key=query", nil)
	req.Header.Set("Authorization", `MediaBrowser Token="structured"`)
	assert.Equal(t, "structured", requestToken(req))

	req.Header.Set("Authorization", "Bearer bearer")
	assert.Equal(t, "bearer", requestToken(req))

	req.Header.Set("X-MediaBrowser-Token", "old")
	assert.Equal(t, "old", requestToken(req))

	req.Header.Set("X-Emby-Token", "emby")
	assert.Equal(t, "emby", requestToken(req))
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t, 100)

	body := `{"Username":"Admin","Pw":"secret"}`
	rec := ts.do(t, http.MethodPost, "/Users/AuthenticateByName", strings.NewReader(body), map[string]string{
		"Authorization": `MediaBrowser Client="Infuse", Device="tv", DeviceId="dev1", Version="8.0"`,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	response := decode[JFAuthenticateByNameResponse](t, rec)
	assert.Equal(t, "token-dev1", response.AccessToken)
	assert.Equal(t, "admin", response.User.Name)
	assert.Equal(t, ts.j.serverID, response.ServerId)
	assert.EqualValues(t, 1, ts.tracker.Stats().AuthSuccess)

	rec = ts.do(t, http.MethodGet, "/Users/Me", nil, map[string]string{"X-Emby-Token": response.AccessToken})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/Users/AuthenticateByName", strings.NewReader(`{"Username":"admin","Pw":"wrong"}`), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.EqualValues(t, 1, ts.tracker.Stats().AuthFailure)
	assert.Equal(t, 1, ts.bans.Failures("192.0.2.1"))
}

func TestBannedAddressIsDropped(t *testing.T) {
	ts := newTestServer(t, 1)
	srv := httptest.NewServer(ts.handler)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/System/Info", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.True(t, ts.bans.IsBanned("127.0.0.1"))

	// No response at all, not even for public endpoints.
	_, err = srv.Client().Get(srv.URL + "/System/Info/Public")
	assert.Error(t, err)
}

func TestUnknownRouteReturnsEmptyCollection(t *testing.T) {
	ts := newTestServer(t, 100)
	rec := ts.get(t, "/Some/Unknown/Endpoint")
	assert.Equal(t, http.StatusOK, rec.Code)
	response := decode[UserItemsResponse](t, rec)
	assert.Empty(t, response.Items)
	assert.NotNil(t, response.Items)
	assert.Zero(t, response.TotalRecordCount)
}

func TestItemsByParent(t *testing.T) {
	ts := newTestServer(t, 100)
	ts.catalog.children["root-scenes"] = catalog.Listing{
		Entries: []catalog.Entry{
			{Folder: &catalog.FolderSummary{Node: catalog.FilterList(catalog.Scenes), Kind: catalog.FolderFilterList, Name: "FILTERS", ChildCount: 2}},
			{Media: &catalog.MediaItem{ID: "7", Title: "Seven", Duration: 60}},
		},
		Total: 51,
	}

	rec := ts.get(t, "/Items?parentId=root-scenes&startIndex=0&limit=2&sortBy=SortName")
	require.Equal(t, http.StatusOK, rec.Code)
	response := decode[UserItemsResponse](t, rec)
	assert.Equal(t, 51, response.TotalRecordCount)
	require.Len(t, response.Items, 2)
	assert.Equal(t, "filters-scenes", response.Items[0].ID)
	assert.True(t, response.Items[0].IsFolder)
	assert.Equal(t, "scene-7", response.Items[1].ID)
	assert.Equal(t, "root-scenes", response.Items[1].ParentID)
	assert.Equal(t, int64(600_000_000), response.Items[1].RunTimeTicks)
	assert.Equal(t, catalog.Page{Offset: 0, Limit: 2}, ts.catalog.lastPage)

	// unknown folders are empty, not errors
	rec = ts.get(t, "/Users/abc/Items?parentId=studio-99")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[UserItemsResponse](t, rec).Items)
}

func TestItemsByIDs(t *testing.T) {
	ts := newTestServer(t, 100)
	ts.catalog.scenes["1"] = catalog.MediaItem{ID: "1", Title: "One"}
	ts.catalog.scenes["2"] = catalog.MediaItem{ID: "2", Title: "Two"}

	rec := ts.get(t, "/Items?ids=scene-2,bogus,scene-1")
	response := decode[UserItemsResponse](t, rec)
	require.Len(t, response.Items, 2)
	assert.Equal(t, "Two", response.Items[0].Name)
	assert.Equal(t, "One", response.Items[1].Name)
}

func TestItemDetail(t *testing.T) {
	ts := newTestServer(t, 100)
	ts.catalog.scenes["482"] = catalog.MediaItem{ID: "482", Title: "Scene"}

	rec := ts.get(t, "/Items/scene-482")
	require.Equal(t, http.StatusOK, rec.Code)
	item := decode[JFItem](t, rec)
	assert.Equal(t, "scene-482", item.ID)
	assert.Equal(t, "root-scenes", item.ParentID)

	rec = ts.get(t, "/Users/u/Items/scene-1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, decode[HTTPError](t, rec).Status)

	rec = ts.get(t, "/Items/not-an-id")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestViews(t *testing.T) {
	ts := newTestServer(t, 100)
	ts.catalog.views = []catalog.FolderSummary{
		{Node: catalog.CollectionRoot(catalog.Scenes), Kind: catalog.FolderCollection, Name: "Scenes", ChildCount: 10},
		{Node: catalog.TagGroup("VR"), Kind: catalog.FolderTagGroup, Name: "VR", ChildCount: 3},
	}

	rec := ts.get(t, "/UserViews")
	response := decode[UserItemsResponse](t, rec)
	require.Len(t, response.Items, 2)
	assert.Equal(t, "root-scenes", response.Items[0].ID)
	assert.Equal(t, itemTypeCollectionFolder, response.Items[0].Type)
	assert.Equal(t, "taggroup-vr", response.Items[1].ID)
	assert.Equal(t, 3, response.Items[1].ChildCount)
	require.NotNil(t, response.Items[0].ImageTags)
}

func TestLatest(t *testing.T) {
	ts := newTestServer(t, 100)
	ts.catalog.latest = []catalog.Entry{{Media: &catalog.MediaItem{ID: "3"}}}

	rec := ts.get(t, "/Items/Latest?parentId=root-scenes")
	items := decode[[]JFItem](t, rec)
	require.Len(t, items, 1)
	assert.Equal(t, "Item 3", items[0].Name)

	rec = ts.get(t, "/Items/Latest")
	assert.Empty(t, decode[[]JFItem](t, rec))
}

func TestAncestors(t *testing.T) {
	ts := newTestServer(t, 100)
	rec := ts.get(t, "/Items/scene-5/Ancestors")
	items := decode[[]JFItem](t, rec)
	require.Len(t, items, 2)
	assert.Equal(t, "root-scenes", items[0].ID)
	assert.Equal(t, "root", items[1].ID)
}

func TestPlaybackInfo(t *testing.T) {
	ts := newTestServer(t, 100)
	ts.catalog.scenes["9"] = catalog.MediaItem{ID: "9", Container: "mp4", VideoCodec: "h264", AudioCodec: "aac", Size: 1000}

	rec := ts.do(t, http.MethodPost, "/Items/scene-9/PlaybackInfo", nil, map[string]string{"X-Emby-Token": testToken})
	require.Equal(t, http.StatusOK, rec.Code)
	response := decode[JFPlaybackInfoResponse](t, rec)
	require.Len(t, response.MediaSources, 1)
	assert.True(t, response.MediaSources[0].SupportsDirectPlay)
	assert.False(t, response.MediaSources[0].SupportsTranscoding)
	assert.Len(t, response.PlaySessionID, 32)
}

func TestVideoStreamProxy(t *testing.T) {
	ts := newTestServer(t, 100)
	ts.upstream.handler = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/scene/12/stream", r.URL.Path)
		assert.Equal(t, "bytes=0-", r.Header.Get("Range"))
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Range", "bytes 0-9/1000")
		w.Header().Set("Accept-Ranges", "bytes")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("0123456789"))
	}

	rec := ts.do(t, http.MethodGet, "/Videos/scene-12/stream?static=true", nil, map[string]string{
		"X-Emby-Token": testToken,
		"Range":        "bytes=0-",
	})
	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "0123456789", rec.Body.String())
	assert.Equal(t, "bytes 0-9/1000", rec.Header().Get("Content-Range"))
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Header().Get("Content-Encoding"))

	streams := ts.tracker.Streams()
	require.Len(t, streams, 1)
	assert.Equal(t, "12", streams[0].SceneID)
	assert.Equal(t, int64(1000), streams[0].FileSize)
	assert.Equal(t, "Infuse tv", streams[0].Client)
	assert.EqualValues(t, 1, ts.tracker.Stats().TotalStreams)

	// HEAD is proxied but not observed
	rec = ts.do(t, http.MethodHead, "/Videos/scene-12/stream", nil, map[string]string{
		"X-Emby-Token": testToken,
		"Range":        "bytes=0-",
	})
	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Len(t, ts.tracker.Streams(), 1)
	assert.EqualValues(t, 1, ts.tracker.Stats().TotalStreams)
}

func TestVideoStreamBackendDown(t *testing.T) {
	ts := newTestServer(t, 100)
	rec := ts.get(t, "/Videos/scene-12/stream")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Empty(t, ts.tracker.Streams())
}

func TestRangeStartAndFileSize(t *testing.T) {
	assert.Equal(t, int64(0), rangeStart(""))
	assert.Equal(t, int64(500), rangeStart("bytes=500-"))
	assert.Equal(t, int64(500), rangeStart("bytes=500-999"))
	assert.Equal(t, int64(0), rangeStart("bytes=-500"))

	resp := &http.Response{StatusCode: http.StatusPartialContent, Header: http.Header{}}
	resp.Header.Set("Content-Range", "bytes 500-999/4000")
	assert.Equal(t, int64(4000), fileSize(resp))

	resp.Header.Set("Content-Range", "bytes 500-999/*")
	assert.Equal(t, int64(0), fileSize(resp))

	resp = &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, ContentLength: 1234}
	assert.Equal(t, int64(1234), fileSize(resp))
}

func TestSubtitleProxy(t *testing.T) {
	ts := newTestServer(t, 100)
	ts.catalog.scenes["4"] = catalog.MediaItem{ID: "4", AudioCodec: "aac", Captions: []catalog.Caption{
		{Language: "en", Format: "srt"},
		{Language: "de", Format: "vtt"},
	}}
	ts.upstream.handler = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/scene/4/caption", r.URL.Path)
		assert.Equal(t, "de", r.URL.Query().Get("lang"))
		assert.Equal(t, "vtt", r.URL.Query().Get("type"))
		w.Write([]byte("WEBVTT\n"))
	}

	rec := ts.get(t, "/Videos/scene-4/scene-4/Subtitles/3/Stream.vtt")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "WEBVTT\n", rec.Body.String())

	rec = ts.get(t, "/Videos/scene-4/scene-4/Subtitles/9/Stream.vtt")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImageFallsBackToPlaceholder(t *testing.T) {
	ts := newTestServer(t, 100)
	ts.catalog.scenes["5"] = catalog.MediaItem{ID: "5", Title: "Five", ScreenshotPath: "/scene/5/screenshot"}

	// no token needed, backend down
	rec := ts.do(t, http.MethodGet, "/Items/scene-5/Images/Primary?maxWidth=160", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.Equal(t, "max-age=3600", rec.Header().Get("cache-control"))

	rec = ts.do(t, http.MethodGet, "/Items/scene-5/Images/Primary?maxWidth=160", nil, map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusNotModified, rec.Code)

	rec = ts.do(t, http.MethodGet, "/Items/root-studios/Images/Primary", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
}

func TestSessionsLifecycle(t *testing.T) {
	ts := newTestServer(t, 100)
	ts.upstream.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
	ts.get(t, "/Videos/scene-21/stream")

	rec := ts.get(t, "/Sessions")
	sessions := decode[[]JFSessionInfo](t, rec)
	require.Len(t, sessions, 1)
	require.NotNil(t, sessions[0].NowPlayingItem)
	assert.Equal(t, "scene-21", sessions[0].NowPlayingItem.ID)

	rec = ts.do(t, http.MethodPost, "/Sessions/Playing/Stopped", strings.NewReader(`{"ItemId":"scene-21"}`),
		map[string]string{"X-Emby-Token": testToken})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, ts.tracker.Streams())
}
