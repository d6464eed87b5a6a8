// Package export renders consultation lists as spreadsheets for the
// admin dashboard.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/as950118/customer-service-coaching/internal/models"
)

var columns = []string{"ID", "Title", "File", "Type", "Status", "Created At", "Completed At"}

// ConsultationsXLSX writes an xlsx workbook with one row per
// consultation to w.
func ConsultationsXLSX(consultations []models.Consultation, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Consultations"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	for i, col := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, col); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	for row, c := range consultations {
		completed := ""
		if c.CompletedAt != nil {
			completed = c.CompletedAt.Format("2006-01-02 15:04:05")
		}
		values := []any{
			c.ID.String(),
			c.Title,
			c.FileName,
			string(c.FileType),
			string(c.Status),
			c.CreatedAt.Format("2006-01-02 15:04:05"),
			completed,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("write row %d: %w", row+1, err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
