package panelio

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"MacroPanel/internal/domain/models"
	"MacroPanel/pkg/util"
)

const sheetName = "panel"

// WriteXLSX writes a long panel to a single-sheet workbook; missing values stay blank.
func WriteXLSX(w io.Writer, p models.Panel) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := []interface{}{ColCrossSection, ColCategory, ColDate, ColValue}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, o := range p {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{o.CrossSection, o.Category, util.FormatDate(o.Date), finite(o.Value)}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// ReadXLSX reads the first sheet written by WriteXLSX.
func ReadXLSX(r io.Reader) (models.Panel, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0), excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: workbook is empty", models.ErrDataShape)
	}

	out := make(models.Panel, 0, len(rows)-1)
	for i, row := range rows[1:] {
		for len(row) < 4 {
			row = append(row, "")
		}
		d, err := util.ParseDate(row[2])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", models.ErrDataShape, i+2, err)
		}
		v, err := parseValue(row[3])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", models.ErrDataShape, i+2, err)
		}
		out = append(out, models.Observation{CrossSection: row[0], Category: row[1], Date: d, Value: v})
	}
	return out, nil
}
