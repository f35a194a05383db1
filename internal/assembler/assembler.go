// Package assembler builds one PDF out of an ordered list of page images.
package assembler

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"strconv"

	"github.com/go-pdf/fpdf"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/fault"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/imaging"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/logger"
)

var ErrNoPages = errors.New("no pages to assemble")

var pngOptions = fpdf.ImageOptions{ImageType: "PNG"}

// Page is one decoded-ready page payload in final document order.
type Page struct {
	Name string
	Data []byte
}

type Assembler struct {
	// Creator is written into the document info dictionary.
	Creator string
}

func New(creator string) *Assembler {
	return &Assembler{Creator: creator}
}

// Assemble renders each page on its own PDF page of exactly the image's
// pixel size (one pixel per point) and returns the serialized document.
// Images are re-encoded as 8-bit PNG so embedding is lossless.
func (a *Assembler) Assemble(pages []Page) ([]byte, error) {
	if len(pages) == 0 {
		return nil, fault.Wrap(fault.KindStagingNotFound, "assemble", ErrNoPages)
	}

	var pdf *fpdf.Fpdf
	for i, page := range pages {
		img, _, err := imaging.Decode(page.Data)
		if err != nil {
			return nil, fmt.Errorf("page %d (%s): %w", i, page.Name, err)
		}
		nrgba := imaging.ToNRGBA(img)

		var encoded bytes.Buffer
		if err := png.Encode(&encoded, nrgba); err != nil {
			return nil, fmt.Errorf("page %d (%s): re-encode: %w", i, page.Name, err)
		}

		size := fpdf.SizeType{Wd: float64(nrgba.Rect.Dx()), Ht: float64(nrgba.Rect.Dy())}
		if pdf == nil {
			pdf = a.newDocument(size)
		}
		pdf.AddPageFormat("P", size)

		name := "page-" + strconv.Itoa(i)
		pdf.RegisterImageOptionsReader(name, pngOptions, &encoded)
		pdf.ImageOptions(name, 0, 0, size.Wd, size.Ht, false, pngOptions, 0, "")
		if err := pdf.Error(); err != nil {
			return nil, fmt.Errorf("page %d (%s): embed: %w", i, page.Name, err)
		}
		logger.DebugF("Fill pdf page %d with %gx%g image", i, size.Wd, size.Ht)
	}

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, fmt.Errorf("serialize pdf: %w", err)
	}
	return out.Bytes(), nil
}

func (a *Assembler) newDocument(first fpdf.SizeType) *fpdf.Fpdf {
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           first,
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	if a.Creator != "" {
		pdf.SetCreator(a.Creator, true)
	}
	return pdf
}
