package jellyfin

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/erikbos/stashfin/catalog"
	"github.com/erikbos/stashfin/idhash"
	"github.com/erikbos/stashfin/imageresize"
)

const maxImageSize = 32 << 20

// imageSource describes where the image of an item comes from.
type imageSource struct {
	// path is the backend image, empty for a generated icon.
	path  string
	label string
	// aspect is the ratio the image is padded to, zero for none.
	aspect float64
	// width and height are the default placeholder dimensions.
	width  int
	height int
}

// /Items/{item}/Images/{type}
// /Items/{item}/Images/{type}/{index}
//
// itemsImagesHandler serves the image of an item. Scenes use their
// screenshot, studios, performers, groups and tags their backend image,
// other folders a generated icon. Any failure results in a placeholder.
func (j *Jellyfin) itemsImagesHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	itemID := vars["item"]
	params := imageresize.Params{
		Width:     queryInt(r, "width", 0),
		Height:    queryInt(r, "height", 0),
		MaxWidth:  firstPositive(queryInt(r, "maxWidth", 0), queryInt(r, "fillWidth", 0)),
		MaxHeight: firstPositive(queryInt(r, "maxHeight", 0), queryInt(r, "fillHeight", 0)),
		Quality:   queryInt(r, "quality", 0),
	}

	node, err := catalog.ParseNode(itemID)
	if err != nil {
		j.serveImage(w, r, imageresize.Placeholder(itemID, params.MaxWidth, params.MaxHeight), "image/png")
		return
	}
	src := j.imageSourceOf(r, node)
	if src.aspect > 0 && j.pad() {
		params.Aspect = src.aspect
	}

	if src.path != "" {
		if blob, contentType, ok := j.fetchImage(r, src.path, params); ok {
			j.serveImage(w, r, blob, contentType)
			return
		}
	}
	width := firstPositive(params.Width, params.MaxWidth, src.width)
	height := firstPositive(params.Height, params.MaxHeight)
	if height == 0 {
		height = width * src.height / src.width
	}
	j.serveImage(w, r, imageresize.Placeholder(src.label, width, height), "image/png")
}

// imageSourceOf resolves the image of a node.
func (j *Jellyfin) imageSourceOf(r *http.Request, node catalog.Node) imageSource {
	ctx := r.Context()
	switch node.Kind {
	case catalog.NodeScene:
		src := imageSource{label: node.String(), aspect: 16.0 / 9.0, width: 640, height: 360}
		if m, err := j.catalog.Scene(ctx, node.ID); err == nil {
			src.path = m.ScreenshotPath
			src.label = m.DisplayTitle()
		}
		return src

	case catalog.NodeEntity:
		src := imageSource{label: node.String(), width: 400, height: 400}
		if node.Collection == catalog.Performers {
			src.aspect = 2.0 / 3.0
			src.width, src.height = 400, 600
		}
		if e, err := j.catalog.Lookup(ctx, node); err == nil && e.Folder != nil {
			src.path = e.Folder.ImagePath
			src.label = e.Folder.Name
		}
		return src
	}

	src := imageSource{label: node.String(), width: 400, height: 400}
	if e, err := j.catalog.Lookup(ctx, node); err == nil && e.Folder != nil {
		src.label = e.Folder.Name
	}
	return src
}

// fetchImage gets an image from the backend and resizes it.
func (j *Jellyfin) fetchImage(r *http.Request, path string, params imageresize.Params) ([]byte, string, bool) {
	resp, err := j.upstream.Get(r.Context(), path, nil)
	if err != nil {
		j.log.Debug().Err(err).Str("path", path).Msg("cannot fetch image")
		return nil, "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		j.log.Debug().Int("status", resp.StatusCode).Str("path", path).Msg("cannot fetch image")
		return nil, "", false
	}
	src, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize))
	if err != nil {
		return nil, "", false
	}
	blob, contentType, err := j.imageresizer.Process(path, src, params)
	if err != nil {
		j.log.Debug().Err(err).Str("path", path).Msg("cannot process image")
		return nil, "", false
	}
	return blob, contentType, true
}

func (j *Jellyfin) serveImage(w http.ResponseWriter, r *http.Request, blob []byte, contentType string) {
	etag := `"` + idhash.HashBytes(blob) + `"`
	w.Header().Set("ETag", etag)
	j.cache1h(w)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(blob)))
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(blob)
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
