// Package preview renders the thumbnail sent back for every appended page.
package preview

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/imaging"
	"golang.org/x/image/draw"
)

const (
	Width   = 64
	Height  = 90
	Quality = 75
)

// Generate decodes raw and returns a Width×Height JPEG thumbnail. The
// aspect ratio is not preserved.
func Generate(raw []byte) ([]byte, error) {
	src, _, err := imaging.Decode(raw)
	if err != nil {
		return nil, err
	}
	return Render(src)
}

// Render produces the thumbnail from an already decoded image: a fast
// nearest-neighbour reduction followed by a bilinear pass onto an opaque
// black canvas.
func Render(src image.Image) ([]byte, error) {
	bounds := image.Rect(0, 0, Width, Height)

	reduced := image.NewNRGBA(bounds)
	draw.NearestNeighbor.Scale(reduced, bounds, src, src.Bounds(), draw.Src, nil)

	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, image.Black, image.Point{}, draw.Src)
	draw.BiLinear.Scale(canvas, bounds, reduced, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: Quality}); err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	return buf.Bytes(), nil
}
