package agentmock

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"
)

var (
	pngOnce  sync.Once
	pngBytes []byte
)

// placeholderPNG returns a small solid PNG used when no live browser is
// attached.
func placeholderPNG() []byte {
	pngOnce.Do(func() {
		img := image.NewRGBA(image.Rect(0, 0, 64, 48))
		fill := color.RGBA{R: 0x1f, G: 0x24, B: 0x30, A: 0xff}
		for y := 0; y < 48; y++ {
			for x := 0; x < 64; x++ {
				img.Set(x, y, fill)
			}
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err == nil {
			pngBytes = buf.Bytes()
		}
	})
	return pngBytes
}
