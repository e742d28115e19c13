package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/refund-approval/internal/domain/entity"
)

// SheetName is the worksheet holding the journal rows
const SheetName = "Journal"

var journalHeader = []interface{}{
	"Time", "Order", "Kind", "Step", "Outcome", "Actor", "Amount", "Detail", "Message", "Entry ID",
}

// JournalExporter writes journal entries as an xlsx workbook
type JournalExporter struct {
	location *time.Location
	logger   *zap.Logger
}

// NewJournalExporter creates a new exporter rendering times in loc
func NewJournalExporter(loc *time.Location, logger *zap.Logger) *JournalExporter {
	if loc == nil {
		loc = time.UTC
	}
	return &JournalExporter{
		location: loc,
		logger:   logger,
	}
}

// Write renders entries, one row each, and writes the workbook to w
func (e *JournalExporter) Write(w io.Writer, entries []*entity.JournalEntry) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := f.SetSheetRow(SheetName, "A1", &journalHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(journalHeader))
	if err := f.SetCellStyle(SheetName, "A1", lastCol+"1", bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, entry := range entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			entry.CreatedAt.In(e.location).Format("2006-01-02 15:04:05"),
			entry.OrderNumber,
			entry.Kind,
			entry.Step,
			entry.Outcome,
			entry.Actor,
			amountCell(entry.AmountCents),
			entry.Detail,
			entry.MessageRef,
			entry.ID,
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 20)
	_ = f.SetColWidth(SheetName, "H", "H", 60)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("Journal exported", zap.Int("rows", len(entries)))
	return nil
}

// amountCell leaves the cell empty when no money moved
func amountCell(cents int64) interface{} {
	if cents == 0 {
		return ""
	}
	return entity.Money(cents).Decimal()
}
