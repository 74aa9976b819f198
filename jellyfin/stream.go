package jellyfin

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/erikbos/stashfin/catalog"
	"github.com/erikbos/stashfin/playback"
	"github.com/erikbos/stashfin/stash"
)

const streamBufferSize = 256 * 1024

// forwardedRequestHeaders are passed from client to backend.
var forwardedRequestHeaders = []string{"Range", "If-Range"}

// relayedResponseHeaders are passed from backend to client.
var relayedResponseHeaders = []string{
	"Accept-Ranges",
	"Content-Length",
	"Content-Range",
	"Content-Type",
	"Content-Disposition",
	"Last-Modified",
	"ETag",
}

// /Videos/{item}/stream
// /Videos/{item}/stream.{container}
//
// videoStreamHandler proxies the scene file from the backend. Range
// requests are forwarded as is, each GET is observed by the tracker.
func (j *Jellyfin) videoStreamHandler(w http.ResponseWriter, r *http.Request) {
	node, ok := parseNode(w, mux.Vars(r)["item"])
	if !ok {
		return
	}
	if node.Kind != catalog.NodeScene {
		apierror(w, "item is not playable", http.StatusNotFound)
		return
	}

	hdr := http.Header{}
	for _, h := range forwardedRequestHeaders {
		if v := r.Header.Get(h); v != "" {
			hdr.Set(h, v)
		}
	}

	fetch := j.upstream.Get
	if r.Method == http.MethodHead {
		fetch = j.upstream.Head
	}
	resp, err := fetch(r.Context(), stash.StreamPath(node.ID), hdr)
	if err != nil {
		if !isClientGone(r.Context(), err) {
			j.log.Warn().Err(err).Str("scene", node.ID).Msg("cannot open backend stream")
			apierror(w, "stream unavailable", http.StatusBadGateway)
		}
		return
	}
	defer resp.Body.Close()

	if r.Method == http.MethodGet && resp.StatusCode < http.StatusMultipleChoices {
		j.observe(r, node.ID, resp)
	}

	for _, h := range relayedResponseHeaders {
		if v := resp.Header.Get(h); v != "" {
			w.Header().Set(h, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if r.Method == http.MethodHead {
		return
	}

	if err := copyStream(w, resp.Body); err != nil && !isClientGone(r.Context(), err) {
		j.log.Warn().Err(err).Str("scene", node.ID).Msg("stream copy failed")
	}
}

// observe reports a stream request to the playback tracker.
func (j *Jellyfin) observe(r *http.Request, sceneID string, resp *http.Response) {
	seg := playback.Segment{
		SceneID:  sceneID,
		ClientIP: clientIP(r),
		Offset:   rangeStart(r.Header.Get("Range")),
		FileSize: fileSize(resp),
		Time:     time.Now(),
	}
	if details := getAccessTokenDetails(r); details != nil {
		seg.Client = details.ApplicationName
		if details.DeviceName != "" {
			seg.Client += " " + details.DeviceName
		}
		seg.User = j.username
	}
	if seg.Client == "" {
		seg.Client = r.UserAgent()
	}
	j.tracker.Observe(r.Context(), seg)
}

// rangeStart returns the first byte of a "bytes=N-" range, zero otherwise.
func rangeStart(header string) int64 {
	spec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok {
		return 0
	}
	start, _, _ := strings.Cut(spec, "-")
	n, err := strconv.ParseInt(strings.TrimSpace(start), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// fileSize derives the full file size from a backend response: the total
// of Content-Range, or the length of a complete response. Zero when unknown.
func fileSize(resp *http.Response) int64 {
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		if _, total, ok := strings.Cut(cr, "/"); ok {
			if n, err := strconv.ParseInt(strings.TrimSpace(total), 10, 64); err == nil && n > 0 {
				return n
			}
		}
		return 0
	}
	if resp.StatusCode == http.StatusOK && resp.ContentLength > 0 {
		return resp.ContentLength
	}
	return 0
}

// copyStream copies body to the client, flushing after every chunk.
func copyStream(w http.ResponseWriter, body io.Reader) error {
	rc := http.NewResponseController(w)
	buf := make([]byte, streamBufferSize)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return err
			}
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return err
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

// isClientGone reports whether err is caused by the client going away.
func isClientGone(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}

// /Videos/{item}/{source}/Subtitles/{index}/Stream.{format}
//
// subtitleStreamHandler proxies a caption file of a scene
func (j *Jellyfin) subtitleStreamHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	node, ok := parseNode(w, vars["item"])
	if !ok {
		return
	}
	index, err := strconv.Atoi(vars["index"])
	if node.Kind != catalog.NodeScene || err != nil {
		apierror(w, "subtitle not found", http.StatusNotFound)
		return
	}
	m, err := j.catalog.Scene(r.Context(), node.ID)
	if err != nil {
		j.lookupFailed(w, node, err)
		return
	}
	i := index - subtitleBase(*m)
	if i < 0 || i >= len(m.Captions) {
		apierror(w, "subtitle not found", http.StatusNotFound)
		return
	}
	caption := m.Captions[i]

	resp, err := j.upstream.Get(r.Context(), stash.CaptionPath(node.ID, caption.Language, caption.Format), nil)
	if err != nil {
		j.log.Warn().Err(err).Str("scene", node.ID).Msg("cannot fetch caption")
		apierror(w, "subtitle unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		apierror(w, "subtitle not found", http.StatusNotFound)
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = "text/vtt; charset=utf-8"
		if subtitleFormat(vars["format"]) == subtitleFormatSrt {
			contentType = "application/x-subrip; charset=utf-8"
		}
	}
	w.Header().Set("Content-Type", contentType)
	j.cache1h(w)
	_, _ = io.Copy(w, resp.Body)
}
