package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/refund-approval/internal/application/port"
	"github.com/garyjia/refund-approval/internal/domain/entity"
)

// JournalRepository implements port.JournalRepository
type JournalRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewJournalRepository creates a new journal repository
func NewJournalRepository(db *sql.DB, logger *zap.Logger) port.JournalRepository {
	return &JournalRepository{
		db:     db,
		logger: logger,
	}
}

const journalColumns = `id, kind, order_number, order_id, message_ref, step,
	outcome, actor, amount_cents, detail, created_at`

// Append inserts one entry. Entries are never updated. Times are stored as
// unix milliseconds so range queries compare numerically.
func (r *JournalRepository) Append(ctx context.Context, entry *entity.JournalEntry) error {
	query := `INSERT INTO action_journal (` + journalColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.Kind,
		entry.OrderNumber,
		entry.OrderID,
		entry.MessageRef,
		entry.Step,
		entry.Outcome,
		entry.Actor,
		entry.AmountCents,
		entry.Detail,
		entry.CreatedAt.UnixMilli(),
	)
	if err != nil {
		r.logger.Error("Failed to append journal entry",
			zap.String("order_number", entry.OrderNumber),
			zap.Error(err))
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return nil
}

// ListByOrder returns an order's newest entries first
func (r *JournalRepository) ListByOrder(ctx context.Context, orderNumber string, limit int) ([]*entity.JournalEntry, error) {
	query := `SELECT ` + journalColumns + `
		FROM action_journal
		WHERE order_number = ?
		ORDER BY created_at DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, orderNumber, limit)
	if err != nil {
		r.logger.Error("Failed to list journal entries",
			zap.String("order_number", orderNumber),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}
	return scanEntries(rows)
}

// ListBetween returns entries created in [from, to), oldest first
func (r *JournalRepository) ListBetween(ctx context.Context, from, to time.Time) ([]*entity.JournalEntry, error) {
	query := `SELECT ` + journalColumns + `
		FROM action_journal
		WHERE created_at >= ? AND created_at < ?
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		r.logger.Error("Failed to list journal entries", zap.Error(err))
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}
	return scanEntries(rows)
}

// DeleteBefore removes entries created before cutoff
func (r *JournalRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM action_journal WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}
	return result.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]*entity.JournalEntry, error) {
	defer rows.Close()

	var entries []*entity.JournalEntry
	for rows.Next() {
		var (
			e         entity.JournalEntry
			createdAt int64
		)
		if err := rows.Scan(
			&e.ID,
			&e.Kind,
			&e.OrderNumber,
			&e.OrderID,
			&e.MessageRef,
			&e.Step,
			&e.Outcome,
			&e.Actor,
			&e.AmountCents,
			&e.Detail,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Verify interface compliance
var _ port.JournalRepository = (*JournalRepository)(nil)
