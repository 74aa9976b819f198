package imageresize

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, imaging.New(w, h, color.White)))
	return buf.Bytes()
}

func decode(t *testing.T, blob []byte) image.Image {
	t.Helper()
	img, _, err := image.Decode(bytes.NewReader(blob))
	require.NoError(t, err)
	return img
}

func TestTargetSize(t *testing.T) {
	tests := []struct {
		name   string
		p      Params
		ww, wh int
	}{
		{"unchanged", Params{}, 1000, 500},
		{"width only", Params{Width: 500}, 500, 250},
		{"height only", Params{Height: 100}, 200, 100},
		{"max width", Params{MaxWidth: 400}, 400, 200},
		{"max height", Params{MaxHeight: 100}, 200, 100},
		{"explicit clipped", Params{Width: 800, MaxWidth: 400}, 400, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := targetSize(1000, 500, tt.p)
			assert.Equal(t, tt.ww, w)
			assert.Equal(t, tt.wh, h)
		})
	}
}

func TestPad(t *testing.T) {
	padded := Pad(imaging.New(300, 300, color.White), 2.0/3.0)
	assert.Equal(t, 300, padded.Bounds().Dx())
	assert.Equal(t, 450, padded.Bounds().Dy())

	wide := Pad(imaging.New(400, 100, color.White), 16.0/9.0)
	assert.Equal(t, 400, wide.Bounds().Dx())
	assert.Equal(t, 225, wide.Bounds().Dy())

	same := imaging.New(160, 90, color.White)
	assert.Equal(t, image.Image(same), Pad(same, 16.0/9.0))
}

func TestProcess(t *testing.T) {
	r, err := New(Options{Quality: 80, CacheBytes: 1 << 20})
	require.NoError(t, err)
	src := testPNG(t, 200, 100)

	blob, contentType, err := r.Process("scene-1", src, Params{MaxWidth: 100})
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)
	img := decode(t, blob)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())

	blob, _, err = r.Process("performer-1", src, Params{Aspect: 2.0 / 3.0})
	require.NoError(t, err)
	img = decode(t, blob)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 300, img.Bounds().Dy())

	blob, contentType, err = r.Process("scene-2", src, Params{})
	require.NoError(t, err)
	assert.Equal(t, src, blob)
	assert.Equal(t, "image/png", contentType)
}

func TestProcessInvalidImage(t *testing.T) {
	r, err := New(Options{})
	require.NoError(t, err)
	_, _, err = r.Process("x", []byte("not an image"), Params{})
	assert.Error(t, err)
}

func TestPlaceholder(t *testing.T) {
	blob := Placeholder("Scenes", 300, 450)
	require.NotEmpty(t, blob)
	img := decode(t, blob)
	assert.Equal(t, 300, img.Bounds().Dx())
	assert.Equal(t, 450, img.Bounds().Dy())
}
