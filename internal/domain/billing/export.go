package billing

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	exportSheet = "Billings"
	// MaxExportRows bounds one workbook.
	MaxExportRows = 10000
)

var exportColumns = []struct {
	header string
	width  float64
	value  func(b *Billing) interface{}
}{
	{"Billing ID", 38, func(b *Billing) interface{} { return b.ID.String() }},
	{"Created", 20, func(b *Billing) interface{} { return b.CreatedAt.Format(time.RFC3339) }},
	{"Appointment ID", 38, func(b *Billing) interface{} { return b.AppointmentID.String() }},
	{"Patient", 25, func(b *Billing) interface{} { return b.PatientName }},
	{"Doctor", 25, func(b *Billing) interface{} { return b.DoctorName }},
	{"Method", 14, func(b *Billing) interface{} { return string(b.PaymentMethod) }},
	{"Currency", 10, func(b *Billing) interface{} { return b.Currency }},
	{"Amount", 12, func(b *Billing) interface{} { return b.Amount }},
	{"Coverage", 12, func(b *Billing) interface{} { return b.CoverageAmount }},
	{"Copay", 12, func(b *Billing) interface{} { return b.CopayAmount }},
	{"Paid", 12, func(b *Billing) interface{} { return b.PaidAmount }},
	{"Balance", 12, func(b *Billing) interface{} { return b.Balance() }},
	{"Status", 14, func(b *Billing) interface{} { return string(b.Status) }},
	{"Paid At", 20, func(b *Billing) interface{} {
		if b.PaidAt == nil {
			return ""
		}
		return b.PaidAt.Format(time.RFC3339)
	}},
}

// ExportBillings renders the billings matching f as an XLSX workbook. Paging
// in f is ignored; at most MaxExportRows rows are written.
func (s *Service) ExportBillings(ctx context.Context, tenantID string, f Filter) ([]byte, error) {
	f.Skip, f.Take = 0, MaxExportRows
	items, _, err := s.SearchBillings(ctx, tenantID, f)
	if err != nil {
		return nil, err
	}
	return writeWorkbook(items)
}

func writeWorkbook(items []*Billing) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for i, col := range exportColumns {
		if err := setCell(f, i+1, 1, col.header); err != nil {
			return nil, err
		}
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, fmt.Errorf("column name: %w", err)
		}
		if err := f.SetColWidth(exportSheet, name, name, col.width); err != nil {
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}
	last, err := excelize.CoordinatesToCellName(len(exportColumns), 1)
	if err != nil {
		return nil, fmt.Errorf("header range: %w", err)
	}
	if err := f.SetCellStyle(exportSheet, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("set header style: %w", err)
	}

	for r, b := range items {
		for c, col := range exportColumns {
			if err := setCell(f, c+1, r+2, col.value(b)); err != nil {
				return nil, err
			}
		}
	}

	if err := f.SetPanes(exportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func setCell(f *excelize.File, col, row int, value interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetCellValue(exportSheet, cell, value); err != nil {
		return fmt.Errorf("set cell %s: %w", cell, err)
	}
	return nil
}
