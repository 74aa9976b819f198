// Package imageresize pads, scales and re-encodes backend images and
// generates placeholder icons.
package imageresize

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/disintegration/imaging"

	_ "image/gif"
)

const defaultQuality = 90

// Options configures a Resizer.
type Options struct {
	// Quality is the JPEG quality used when a request does not set one.
	Quality int
	// CacheBytes bounds the processed image cache, zero disables caching.
	CacheBytes int64
}

// Params describe the wanted output image.
type Params struct {
	MaxWidth  int
	MaxHeight int
	Width     int
	Height    int
	Quality   int
	// Aspect pads the image to width/height ratio Aspect, zero keeps it as is.
	Aspect float64
}

func (p Params) key() string {
	return fmt.Sprintf("%dx%d:%dx%d:q%d:a%.3f", p.MaxWidth, p.MaxHeight, p.Width, p.Height, p.Quality, p.Aspect)
}

type Resizer struct {
	quality            int
	cache              *ristretto.Cache[string, []byte]
	resizeMutexMap     map[string]*sync.Mutex
	resizeMutexMapLock sync.Mutex
}

func New(o Options) (*Resizer, error) {
	r := &Resizer{
		quality:        o.Quality,
		resizeMutexMap: make(map[string]*sync.Mutex),
	}
	if r.quality <= 0 || r.quality > 100 {
		r.quality = defaultQuality
	}
	if o.CacheBytes > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
			NumCounters: 10_000,
			MaxCost:     o.CacheBytes,
			BufferItems: 64,
		})
		if err != nil {
			return nil, err
		}
		r.cache = cache
	}
	return r, nil
}

// Process converts src, an image identified by key, according to p. It
// returns the encoded image and its content type.
func (r *Resizer) Process(key string, src []byte, p Params) ([]byte, string, error) {
	cacheKey := key + "|" + p.key()
	if r.cache != nil {
		if blob, ok := r.cache.Get(cacheKey); ok {
			return blob, http.DetectContentType(blob), nil
		}
	}

	// only one conversion per source image at a time.
	r.resizeMutexMapLock.Lock()
	m, ok := r.resizeMutexMap[key]
	if !ok {
		m = &sync.Mutex{}
		r.resizeMutexMap[key] = m
	}
	r.resizeMutexMapLock.Unlock()
	m.Lock()
	defer m.Unlock()

	img, format, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, "", err
	}
	if img.Bounds().Dx() == 0 || img.Bounds().Dy() == 0 {
		return nil, "", errors.New("empty image")
	}

	changed := false
	if p.Aspect > 0 {
		if padded := Pad(img, p.Aspect); padded != img {
			img = padded
			changed = true
		}
	}
	if w, h := targetSize(img.Bounds().Dx(), img.Bounds().Dy(), p); w != img.Bounds().Dx() || h != img.Bounds().Dy() {
		img = imaging.Resize(img, w, h, imaging.Lanczos)
		changed = true
	}
	if !changed && p.Quality == 0 && (format == "jpeg" || format == "png") {
		return src, "image/" + format, nil
	}

	blob, contentType, err := r.encode(img, format, p.Quality)
	if err != nil {
		return nil, "", err
	}
	if r.cache != nil {
		r.cache.Set(cacheKey, blob, int64(len(blob)))
	}
	return blob, contentType, nil
}

func (r *Resizer) encode(img image.Image, format string, quality int) ([]byte, string, error) {
	var buf bytes.Buffer
	if format == "png" {
		if err := png.Encode(&buf, img); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "image/png", nil
	}
	if quality <= 0 || quality > 100 {
		quality = r.quality
	}
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "image/jpeg", nil
}

// targetSize computes the output dimensions for an ow x oh image. Explicit
// width or height win, the other side follows the aspect ratio; the max
// bounds then clip while keeping the ratio. Images are never enlarged
// beyond an explicit size.
func targetSize(ow, oh int, p Params) (int, int) {
	ar := float64(ow) / float64(oh)
	w, h := float64(p.Width), float64(p.Height)

	switch {
	case w == 0 && h == 0:
		w, h = float64(ow), float64(oh)
	case w == 0:
		w = h * ar
	case h == 0:
		h = w / ar
	}

	mw, mh := float64(p.MaxWidth), float64(p.MaxHeight)
	if mw > 0 && w > mw {
		h = h * mw / w
		w = mw
	}
	if mh > 0 && h > mh {
		w = w * mh / h
		h = mh
	}
	return max(1, int(w+0.5)), max(1, int(h+0.5))
}

// Pad centers img on a black canvas with the given width/height ratio.
// Images already at that ratio are returned unchanged.
func Pad(img image.Image, aspect float64) image.Image {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	current := float64(w) / float64(h)
	const tolerance = 0.01
	switch {
	case current > aspect*(1+tolerance):
		h = int(float64(w)/aspect + 0.5)
	case current < aspect*(1-tolerance):
		w = int(float64(h)*aspect + 0.5)
	default:
		return img
	}
	canvas := imaging.New(w, h, color.Black)
	return imaging.PasteCenter(canvas, img)
}
