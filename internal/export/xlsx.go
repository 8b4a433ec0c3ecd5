package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/localnerve/reportdesk/internal/models"
	"github.com/xuri/excelize/v2"
)

const reportsSheet = "Reports"

var reportHeaders = []string{
	"Report Number",
	"File Name",
	"Site",
	"Status",
	"Domains",
	"Approved",
	"Rejected",
	"Pending",
	"Uploaded By",
	"Uploaded At",
	"Reviewed At",
}

var reportColumnWidths = []float64{22, 36, 24, 14, 10, 10, 10, 10, 30, 20, 20}

// ReportsFileName is the download name of the report list workbook
func ReportsFileName(now time.Time) string {
	return "reports-" + now.Format("2006-01-02") + ".xlsx"
}

func reportRow(r models.Report, sites []models.Site) []interface{} {
	site := models.UnknownSite
	if r.SiteID != nil {
		site = models.SiteName(*r.SiteID, sites)
	}
	uploader := r.UploadedBy
	if r.UploadedByUser != nil {
		uploader = r.UploadedByUser.Email
	}
	var reviewed interface{}
	if r.ReviewedAt != nil {
		reviewed = r.ReviewedAt.UTC().Format("2006-01-02 15:04:05")
	}
	approved, rejected, pending := r.DomainCounts()

	return []interface{}{
		r.ReportNumber,
		r.Filename,
		site,
		string(r.Status),
		len(r.Domains),
		approved,
		rejected,
		pending,
		uploader,
		r.UploadedAt.UTC().Format("2006-01-02 15:04:05"),
		reviewed,
	}
}

// ReportsXLSX writes the report list as a single-sheet workbook with a frozen header row
func ReportsXLSX(reports []models.Report, sites []models.Site) ([]byte, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(reportsSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E5E7EB"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range reportHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(reportsSheet, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(reportsSheet, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}

		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(reportsSheet, name, name, reportColumnWidths[col]); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, r := range reports {
		row := i + 2
		for col, value := range reportRow(r, sites) {
			if value == nil {
				continue
			}
			if err := setCellValue(f, reportsSheet, col+1, row, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell value at row %d, col %d: %w", row, col+1, err)
			}
		}
	}

	if err := f.SetPanes(reportsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

func setCellValue(f *excelize.File, sheet string, col, row int, value interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheet, cell, value)
}
