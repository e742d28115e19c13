package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/refund-approval/internal/domain/entity"
)

func TestJournalExporter_Write(t *testing.T) {
	entries := []*entity.JournalEntry{
		{
			ID:          "e1",
			Kind:        entity.JournalKindStep,
			OrderNumber: "1001",
			Step:        "refund",
			Outcome:     "approved",
			Actor:       "U1",
			AmountCents: 1900,
			Detail:      "» Refund decision: Issued $19.00 refund by <U1>",
			CreatedAt:   time.Date(2025, 9, 15, 18, 0, 0, 0, time.UTC),
		},
		{
			ID:          "e2",
			Kind:        entity.JournalKindDenied,
			OrderNumber: "1002",
			Outcome:     "denied",
			CreatedAt:   time.Date(2025, 9, 15, 19, 30, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, NewJournalExporter(time.UTC, zap.NewNop()).Write(&buf, entries))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "Time", rows[0][0])
	assert.Equal(t, "2025-09-15 18:00:00", rows[1][0])
	assert.Equal(t, "1001", rows[1][1])
	assert.Equal(t, "19.00", rows[1][6])
	assert.Equal(t, "e1", rows[1][9])
	assert.Equal(t, "", rows[2][6])
	assert.Equal(t, "DENIED", rows[2][2])
}

func TestJournalExporter_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJournalExporter(nil, zap.NewNop()).Write(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
