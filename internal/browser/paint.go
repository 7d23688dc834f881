package browser

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

// paintPNG decodes a screenshot and draws it over the whole of dst. A
// screenshot of a different size (device scale, window chrome) is
// resampled with Catmull-Rom.
func paintPNG(dst draw.Image, data []byte) error {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("browser: decode screenshot: %w", err)
	}
	scaleInto(dst, src)
	return nil
}

func scaleInto(dst draw.Image, src image.Image) {
	db, sb := dst.Bounds(), src.Bounds()
	if db.Size() == sb.Size() {
		draw.Draw(dst, db, src, sb.Min, draw.Src)
		return
	}
	draw.CatmullRom.Scale(dst, db, src, sb, draw.Src, nil)
}
