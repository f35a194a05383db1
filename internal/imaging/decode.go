// Package imaging decodes page payloads into images.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/fault"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var ErrEmptyImage = errors.New("image has no pixels")

// Decode decodes an encoded image of any registered format.
func Decode(raw []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fault.Wrap(fault.KindDecode, "decode image", err)
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, "", fault.Wrap(fault.KindDecode, "decode image", ErrEmptyImage)
	}
	return img, format, nil
}

// DecodeBase64 turns a client payload into raw image bytes. A data URL
// prefix ("data:image/png;base64,") is accepted.
func DecodeBase64(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		if _, rest, ok := strings.Cut(payload, ","); ok {
			payload = rest
		}
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fault.Wrap(fault.KindDecode, "decode base64", err)
	}
	if len(raw) == 0 {
		return nil, fault.Wrap(fault.KindDecode, "decode base64", ErrEmptyImage)
	}
	return raw, nil
}

// ToNRGBA copies img into an 8-bit non-premultiplied buffer anchored at
// the origin.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
