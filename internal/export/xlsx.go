package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// XLSXWriter writes sheets as an Office Open XML workbook.
type XLSXWriter struct {
	// ColumnWidth is applied to every used column. Zero keeps the default.
	ColumnWidth float64
}

var _ Writer = XLSXWriter{}

// Write renders one worksheet per sheet, header row first.
func (x XLSXWriter) Write(w io.Writer, sheets []Sheet) error {
	if len(sheets) == 0 {
		return fmt.Errorf("no sheets to write")
	}

	f := excelize.NewFile()
	defer f.Close()

	defaultSheet := f.GetSheetName(0)
	for i, sh := range sheets {
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, sh.Name); err != nil {
				return fmt.Errorf("rename sheet %q: %w", sh.Name, err)
			}
		} else if _, err := f.NewSheet(sh.Name); err != nil {
			return fmt.Errorf("add sheet %q: %w", sh.Name, err)
		}
		if err := writeSheet(f, sh, x.ColumnWidth); err != nil {
			return fmt.Errorf("sheet %q: %w", sh.Name, err)
		}
	}
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sh Sheet, width float64) error {
	header := make([]any, len(sh.Columns))
	for i, c := range sh.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sh.Name, "A1", &header); err != nil {
		return err
	}
	for i, row := range sh.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sh.Name, cell, &row); err != nil {
			return err
		}
	}
	if width > 0 && len(sh.Columns) > 0 {
		last, err := excelize.ColumnNumberToName(len(sh.Columns))
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sh.Name, "A", last, width); err != nil {
			return err
		}
	}
	return nil
}
