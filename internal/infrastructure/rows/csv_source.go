package rows

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/finvolv/case-intake-service/internal/core/domain"
)

// CSVSource streams upload rows from a comma-delimited file. The header
// is consumed and validated when the source is opened; afterwards each
// Next call yields one data row numbered from 1.
type CSVSource struct {
	file    io.Closer
	reader  *csv.Reader
	columns columnIndex
	rowNum  int
}

// OpenCSV opens a CSV file and validates its header.
func OpenCSV(filePath string) (*CSVSource, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}

	src, err := NewCSVSource(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	src.file = file
	return src, nil
}

// NewCSVSource reads the header from r and returns a source over its
// data rows.
func NewCSVSource(r io.Reader) (*CSVSource, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1 // short rows map to empty trailing values

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	for _, name := range header {
		if !utf8.ValidString(name) {
			return nil, fmt.Errorf("header contains invalid UTF-8")
		}
	}

	columns, err := buildColumnIndex(header)
	if err != nil {
		return nil, err
	}

	return &CSVSource{
		reader:  reader,
		columns: columns,
	}, nil
}

// Next returns the next data row, or io.EOF after the last one. A read
// failure mid-stream is fatal for the batch and is returned as-is.
func (s *CSVSource) Next() (*domain.UploadRow, error) {
	record, err := s.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV row %d: %w", s.rowNum+1, err)
	}

	for _, cell := range record {
		if !utf8.ValidString(cell) {
			return nil, fmt.Errorf("row %d contains invalid UTF-8", s.rowNum+1)
		}
	}

	s.rowNum++
	return s.columns.toUploadRow(s.rowNum, record), nil
}

// Close releases the underlying file, if any.
func (s *CSVSource) Close() error {
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}
