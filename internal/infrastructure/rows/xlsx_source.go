package rows

import (
	"fmt"
	"io"

	"github.com/finvolv/case-intake-service/internal/core/domain"
	"github.com/xuri/excelize/v2"
)

// XLSXSource streams upload rows from the first sheet of an Excel
// workbook, applying the same header contract as the CSV source.
type XLSXSource struct {
	file    *excelize.File
	rows    *excelize.Rows
	columns columnIndex
	rowNum  int
}

// OpenXLSX opens an .xlsx workbook and validates the header row of its
// first sheet.
func OpenXLSX(filePath string) (*XLSXSource, error) {
	file, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open XLSX file: %w", err)
	}

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		file.Close()
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := file.Rows(sheets[0])
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to iterate sheet %q: %w", sheets[0], err)
	}

	if !rows.Next() {
		rows.Close()
		file.Close()
		return nil, fmt.Errorf("failed to read XLSX header: sheet is empty")
	}
	header, err := rows.Columns()
	if err != nil {
		rows.Close()
		file.Close()
		return nil, fmt.Errorf("failed to read XLSX header: %w", err)
	}

	columns, err := buildColumnIndex(header)
	if err != nil {
		rows.Close()
		file.Close()
		return nil, err
	}

	return &XLSXSource{
		file:    file,
		rows:    rows,
		columns: columns,
	}, nil
}

// Next returns the next data row, or io.EOF after the last one.
func (s *XLSXSource) Next() (*domain.UploadRow, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return nil, fmt.Errorf("failed to read XLSX row %d: %w", s.rowNum+1, err)
		}
		return nil, io.EOF
	}

	record, err := s.rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read XLSX row %d: %w", s.rowNum+1, err)
	}

	s.rowNum++
	return s.columns.toUploadRow(s.rowNum, record), nil
}

// Close releases the row iterator and the workbook.
func (s *XLSXSource) Close() error {
	s.rows.Close()
	return s.file.Close()
}
