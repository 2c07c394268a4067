package label

import (
	"bytes"
	"context"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// Label is one cell on a sheet.
type Label struct {
	// Content is the text encoded into the code.
	Content string
	// Caption is printed under the code.
	Caption string
	// Subcaption is printed under the caption in a smaller font.
	Subcaption string
}

// Layout describes an A4 label grid in millimetres.
type Layout struct {
	Cols       int
	Rows       int
	MarginTop  float64
	MarginLeft float64
	GapX       float64
	GapY       float64
}

// DefaultLayout is a 3×7 grid.
var DefaultLayout = Layout{Cols: 3, Rows: 7, MarginTop: 10, MarginLeft: 8, GapX: 4, GapY: 3}

const pageW, pageH = 210.0, 297.0

// Sheet renders labels onto as many A4 pages as needed. An empty label set
// yields a single blank page.
func Sheet(ctx context.Context, enc Encoder, labels []Label, layout Layout) ([]byte, error) {
	if layout.Cols <= 0 || layout.Rows <= 0 {
		layout = DefaultLayout
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetTitle("Asset labels", true)

	availW := pageW - layout.MarginLeft*2
	availH := pageH - layout.MarginTop*2
	labelW := (availW - float64(layout.Cols-1)*layout.GapX) / float64(layout.Cols)
	labelH := (availH - float64(layout.Rows-1)*layout.GapY) / float64(layout.Rows)
	perPage := layout.Cols * layout.Rows

	if len(labels) == 0 {
		pdf.AddPage()
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	for i, l := range labels {
		if i%perPage == 0 {
			pdf.AddPage()
		}
		png, err := enc.Encode(ctx, l.Content)
		if err != nil {
			return nil, err
		}
		idx := i % perPage
		x := layout.MarginLeft + float64(idx%layout.Cols)*(labelW+layout.GapX)
		y := layout.MarginTop + float64(idx/layout.Cols)*(labelH+layout.GapY)

		name := fmt.Sprintf("code_%d", i)
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(png))

		qr := labelH * 0.7
		if qr > labelW {
			qr = labelW * 0.9
		}
		pdf.ImageOptions(name, x+(labelW-qr)/2, y+1, qr, qr, false, opts, 0, "")

		pdf.SetXY(x, y+qr+1)
		pdf.SetFontSize(9)
		pdf.CellFormat(labelW, 4, tr(l.Caption), "", 0, "C", false, 0, "")
		if l.Subcaption != "" {
			pdf.SetXY(x, y+qr+5)
			pdf.SetFontSize(7)
			pdf.CellFormat(labelW, 3, tr(l.Subcaption), "", 0, "C", false, 0, "")
		}
	}
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return buf.Bytes(), nil
}
