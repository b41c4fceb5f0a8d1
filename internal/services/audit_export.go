package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/diewo77/bloodboard/gate"
	"github.com/diewo77/bloodboard/internal/models"
	"github.com/diewo77/bloodboard/internal/policy"
)

const auditSheet = "Audit Log"

var auditExportHeader = []string{"Timestamp", "Action", "Table", "Center", "District", "User", "IP Address", "Old Data", "New Data"}

// ExportAuditLogs renders the same entries as ListAuditLogs into an xlsx workbook.
func (s *AuditService) ExportAuditLogs(ctx context.Context, f models.AuditFilters) ([]byte, error) {
	if _, err := authorize(ctx, s.gate, gate.ActionExport, policy.ResourceAudit, nil, sameDenial(MsgOnlyAdminsAudit)); err != nil {
		return nil, err
	}
	logs, err := s.query(ctx, f)
	if err != nil {
		return nil, err
	}
	b, err := auditWorkbook(logs)
	if err != nil {
		return nil, storeError("Failed to export audit logs", err)
	}
	return b, nil
}

func auditWorkbook(logs []models.AuditLog) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(auditSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FDE2E2"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	if err := f.SetSheetRow(auditSheet, "A1", &auditExportHeader); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(auditExportHeader), 1)
	if err := f.SetCellStyle(auditSheet, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to style header: %w", err)
	}

	for i, l := range logs {
		var center, district string
		if l.Center != nil {
			center, district = l.Center.Name, l.Center.District
		}
		row := []any{
			l.Timestamp.UTC().Format(time.RFC3339),
			string(l.Action),
			l.Table,
			center,
			district,
			models.Deref(l.UserID),
			models.Deref(l.IPAddress),
			jsonCell(l.OldData),
			jsonCell(l.NewData),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(auditSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	for col, width := range []float64{22, 10, 14, 28, 16, 38, 16, 60, 60} {
		name, _ := excelize.ColumnNumberToName(col + 1)
		_ = f.SetColWidth(auditSheet, name, name, width)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func jsonCell(m map[string]any) string {
	if m == nil {
		return ""
	}
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}
