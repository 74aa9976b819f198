package imageresize

import (
	"bytes"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var palette = []color.NRGBA{
	{0x2e, 0x3b, 0x55, 0xff},
	{0x3f, 0x5e, 0x5a, 0xff},
	{0x5c, 0x3d, 0x5e, 0xff},
	{0x6b, 0x4f, 0x2a, 0xff},
	{0x2d, 0x55, 0x6b, 0xff},
	{0x4a, 0x4a, 0x4a, 0xff},
}

// Placeholder renders a w x h PNG icon showing label on a background
// color derived from the label.
func Placeholder(label string, w, h int) []byte {
	if w <= 0 {
		w = 400
	}
	if h <= 0 {
		h = 600
	}
	hash := fnv.New32a()
	hash.Write([]byte(label))
	bg := palette[int(hash.Sum32()%uint32(len(palette)))]

	// Text is drawn on a small canvas and scaled up, basicfont is 7x13.
	const cellW, cellH = 7, 13
	label = strings.ToUpper(strings.TrimSpace(label))
	if len(label) > 24 {
		label = label[:24]
	}
	smallW := max(w/8, len(label)*cellW+8)
	smallH := max(h/8, cellH*3)

	small := imaging.New(smallW, smallH, bg)
	d := &font.Drawer{
		Dst:  small,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
	}
	textW := d.MeasureString(label).Ceil()
	d.Dot = fixed.P((smallW-textW)/2, (smallH+cellH)/2-2)
	d.DrawString(label)

	img := imaging.Resize(small, w, h, imaging.NearestNeighbor)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}
