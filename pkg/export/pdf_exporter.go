package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders a Dataset as a single-table PDF, used for printable
// work order reports.
type PDFExporter struct{}

// NewPDFExporter builds the exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render draws the title (when given) and one bordered table. Columns
// share the printable width evenly.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf export needs at least one column")
	}

	doc := gofpdf.New("L", "mm", "A4", "")
	doc.SetMargins(12, 14, 12)
	doc.AddPage()

	if title != "" {
		doc.SetFont("Helvetica", "B", 13)
		doc.CellFormat(0, 9, title, "", 1, "L", false, 0, "")
		doc.Ln(3)
	}

	pageWidth, _ := doc.GetPageSize()
	left, _, right, _ := doc.GetMargins()
	colWidth := (pageWidth - left - right) / float64(len(data.Headers))

	doc.SetFont("Helvetica", "B", 9)
	doc.SetFillColor(235, 235, 235)
	for _, header := range data.Headers {
		doc.CellFormat(colWidth, 7, header, "1", 0, "C", true, 0, "")
	}
	doc.Ln(-1)

	doc.SetFont("Helvetica", "", 8)
	for _, row := range data.Rows {
		for _, header := range data.Headers {
			doc.CellFormat(colWidth, 6, row[header], "1", 0, "L", false, 0, "")
		}
		doc.Ln(-1)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf output: %w", err)
	}
	return buf.Bytes(), nil
}
