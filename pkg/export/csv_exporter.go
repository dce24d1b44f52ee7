package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Dataset is column-ordered tabular report content. Rows are keyed by
// header name; missing cells render empty.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// CSVExporter renders a Dataset as RFC 4180 CSV.
type CSVExporter struct{}

// NewCSVExporter builds the exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render encodes the dataset, headers first, preserving header order in
// every row.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv export needs at least one column")
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("csv header row: %w", err)
	}
	record := make([]string, len(data.Headers))
	for i, row := range data.Rows {
		for j, header := range data.Headers {
			record[j] = row[header]
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("csv row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csv flush: %w", err)
	}
	return buf.Bytes(), nil
}
