package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/finvolv/case-intake-service/internal/core/domain"
	"github.com/finvolv/case-intake-service/internal/infrastructure/rows"
	"github.com/xuri/excelize/v2"
)

// Extra columns appended to the upload template in failure exports.
var errorColumns = []string{"rowNumber", "errorType", "errorMessage"}

// header returns the export header: the upload template columns plus
// the error columns, so a corrected file can be rebuilt from the export
// and re-submitted against the same batch.
func header() []string {
	return append(rows.TemplateColumns(), errorColumns...)
}

// record renders one ledger entry as an export row. Only identifier
// columns can be reconstituted from the ledger; the remaining template
// cells stay blank for the operator to fill from the source file.
func record(entry domain.BatchError) []string {
	row := make([]string, len(rows.TemplateColumns()))
	row[0] = entry.ExternalCaseID
	return append(row,
		strconv.Itoa(entry.RowNumber),
		string(entry.ErrorType),
		entry.Message,
	)
}

// FailedRowsCSV renders the error ledger of a batch as CSV bytes, one
// line per ledger entry.
func FailedRowsCSV(entries []domain.BatchError) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(header()); err != nil {
		return nil, fmt.Errorf("failed to write export header: %w", err)
	}
	for _, entry := range entries {
		if err := w.Write(record(entry)); err != nil {
			return nil, fmt.Errorf("failed to write export row %d: %w", entry.RowNumber, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush export: %w", err)
	}

	return buf.Bytes(), nil
}

// FailedRowsXLSX renders the error ledger of a batch as an Excel
// workbook with a single "Failed Rows" sheet.
func FailedRowsXLSX(entries []domain.BatchError) ([]byte, error) {
	const sheet = "Failed Rows"

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}

	writeRow := func(rowIdx int, values []string) error {
		cell, err := excelize.CoordinatesToCellName(1, rowIdx)
		if err != nil {
			return err
		}
		row := make([]interface{}, len(values))
		for i, v := range values {
			row[i] = v
		}
		return f.SetSheetRow(sheet, cell, &row)
	}

	if err := writeRow(1, header()); err != nil {
		return nil, fmt.Errorf("failed to write export header: %w", err)
	}
	for i, entry := range entries {
		if err := writeRow(i+2, record(entry)); err != nil {
			return nil, fmt.Errorf("failed to write export row %d: %w", entry.RowNumber, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}

	return buf.Bytes(), nil
}
