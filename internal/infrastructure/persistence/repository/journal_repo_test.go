package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/refund-approval/internal/domain/entity"
	"github.com/garyjia/refund-approval/migrations"
	"github.com/garyjia/refund-approval/pkg/database"
)

func setupJournal(t *testing.T) *JournalRepository {
	t.Helper()

	db, err := database.New(database.Config{Path: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = database.NewMigrator(db, zap.NewNop()).Run(context.Background(), migrations.FS)
	require.NoError(t, err)

	return NewJournalRepository(db.DB, zap.NewNop()).(*JournalRepository)
}

func TestJournalRepository_AppendAndList(t *testing.T) {
	repo := setupJournal(t)
	ctx := context.Background()
	base := time.Date(2025, 9, 15, 18, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Append(ctx, &entity.JournalEntry{
			ID:          fmt.Sprintf("e%d", i),
			Kind:        entity.JournalKindStep,
			OrderNumber: "1001",
			Step:        "refund",
			Outcome:     "approved",
			Actor:       "U1",
			AmountCents: 1900,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, repo.Append(ctx, &entity.JournalEntry{
		ID: "other", Kind: entity.JournalKindSubmitted, OrderNumber: "2002", Outcome: "started", CreatedAt: base,
	}))

	entries, err := repo.ListByOrder(ctx, "1001", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "e2", entries[0].ID)
	assert.Equal(t, "e1", entries[1].ID)
	assert.Equal(t, int64(1900), entries[0].AmountCents)
	assert.True(t, entries[0].CreatedAt.Equal(base.Add(2*time.Minute)))
}

func TestJournalRepository_DuplicateID(t *testing.T) {
	repo := setupJournal(t)
	ctx := context.Background()

	entry := &entity.JournalEntry{ID: "dup", Kind: entity.JournalKindDenied, OrderNumber: "1001", Outcome: "denied"}
	require.NoError(t, repo.Append(ctx, entry))
	assert.Error(t, repo.Append(ctx, entry))
}

func TestJournalRepository_BetweenAndPrune(t *testing.T) {
	repo := setupJournal(t)
	ctx := context.Background()
	base := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Append(ctx, &entity.JournalEntry{
			ID:          fmt.Sprintf("d%d", i),
			Kind:        entity.JournalKindSubmitted,
			OrderNumber: "1001",
			Outcome:     "started",
			CreatedAt:   base.AddDate(0, 0, i),
		}))
	}

	entries, err := repo.ListBetween(ctx, base.AddDate(0, 0, 1), base.AddDate(0, 0, 3))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "d1", entries[0].ID)
	assert.Equal(t, "d2", entries[1].ID)

	n, err := repo.DeleteBefore(ctx, base.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	remaining, err := repo.ListByOrder(ctx, "1001", 10)
	require.NoError(t, err)
	assert.Len(t, remaining, 3)
}
