package handlers

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/wolfman30/hmpv-lab-platform/internal/labtests"
)

const appointmentsSheet = "Appointments"

var appointmentExportHeader = []string{
	"Tracking ID",
	"Appointment ID",
	"Test",
	"Patient",
	"Email",
	"Collection Time (UTC)",
	"Address",
	"Status",
	"Assigned To",
	"Report ID",
	"Booked At (UTC)",
}

var appointmentExportWidths = []float64{14, 24, 32, 22, 28, 22, 36, 18, 20, 24, 22}

// exportAppointments renders appointments as an xlsx workbook.
func exportAppointments(appts []labtests.Appointment) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(appointmentsSheet)
	if err != nil {
		return nil, fmt.Errorf("export: create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("export: delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("export: header style: %w", err)
	}

	for col, header := range appointmentExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("export: header cell: %w", err)
		}
		if err := f.SetCellValue(appointmentsSheet, cell, header); err != nil {
			return nil, fmt.Errorf("export: set header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(appointmentsSheet, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("export: style header %s: %w", cell, err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return nil, fmt.Errorf("export: column name: %w", err)
		}
		if err := f.SetColWidth(appointmentsSheet, name, name, appointmentExportWidths[col]); err != nil {
			return nil, fmt.Errorf("export: column width: %w", err)
		}
	}

	for i, a := range appts {
		row := []any{
			a.TrackingID,
			a.ID,
			a.TestName,
			a.PatientName,
			a.PatientEmail,
			formatCellTime(a.DateTime),
			a.Address,
			a.Status.Label(),
			a.AssignedTo,
			a.ReportID,
			formatCellTime(a.CreatedAt),
		}
		start, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("export: row cell: %w", err)
		}
		if err := f.SetSheetRow(appointmentsSheet, start, &row); err != nil {
			return nil, fmt.Errorf("export: write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(appointmentsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("export: freeze header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("export: write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func formatCellTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}
