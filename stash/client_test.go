package stash

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Options{
		URL:           srv.URL,
		ApiKey:        "key",
		Timeout:       time.Second,
		MaxRetries:    2,
		RetryInterval: time.Millisecond,
	})
	require.NoError(t, err)
	return c, srv
}

func TestExecuteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("ApiKey"))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"data":{"version":{"version":"v0.27.2"}}}`))
	})

	v, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v0.27.2", v)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExecuteDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	})

	_, err := c.Version(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClient)
	assert.Equal(t, int32(1), calls.Load())

	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnprocessableEntity, se.Status)
	assert.Equal(t, 1, se.Attempts)
}

func TestExecuteGraphQLErrorIsTerminal(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"errors":[{"message":"Cannot query field"}],"data":null}`))
	})

	_, err := c.FindScenes(context.Background(), FindFilter{Page: 1, PerPage: 5}, nil, nil)
	assert.ErrorIs(t, err, ErrClient)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExecuteExhaustsRetriesOnTimeout(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-r.Context().Done()
	})
	c.timeout = 20 * time.Millisecond

	_, err := c.Version(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFindScenesSendsVariables(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req graphqlRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "FindScenes", req.OperationName)

		filter := req.Variables["filter"].(map[string]any)
		assert.Equal(t, float64(2), filter["page"])
		assert.Equal(t, float64(50), filter["per_page"])
		assert.Equal(t, "created_at", filter["sort"])

		sceneFilter := req.Variables["scene_filter"].(map[string]any)
		assert.Contains(t, sceneFilter, "studios")

		w.Write([]byte(`{"data":{"findScenes":{"count":51,"scenes":[
			{"id":"7","title":"","files":[{"path":"/media/a.mp4","size":"1024","duration":12.5}]}]}}}`))
	})

	r, err := c.FindScenes(context.Background(),
		FindFilter{Page: 2, PerPage: 50, Sort: "created_at", Direction: SortDesc},
		map[string]any{"studios": map[string]any{"value": []string{"3"}, "modifier": "INCLUDES"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 51, r.Count)
	require.Len(t, r.Scenes, 1)
	assert.Equal(t, Int64(1024), r.Scenes[0].Files[0].Size)
}

func TestFindSceneNull(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"findScene":null}}`))
	})

	_, err := c.FindScene(context.Background(), "999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveRejectsForeignHosts(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	u, err := c.Resolve("/scene/1/stream")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/scene/1/stream", u)

	_, err = c.Resolve("http://elsewhere.example/image.jpg")
	assert.Error(t, err)
}

func TestHasImage(t *testing.T) {
	assert.True(t, HasImage("http://stash/performer/1/image?t=123"))
	assert.False(t, HasImage("http://stash/performer/1/image?default=true"))
	assert.False(t, HasImage(""))
}
