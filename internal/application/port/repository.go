package port

import (
	"context"
	"time"

	"github.com/garyjia/refund-approval/internal/domain/entity"
)

// JournalRepository persists the append-only action journal
type JournalRepository interface {
	Append(ctx context.Context, entry *entity.JournalEntry) error
	ListByOrder(ctx context.Context, orderNumber string, limit int) ([]*entity.JournalEntry, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]*entity.JournalEntry, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ArchiveStore keeps exported journal files. Save never replaces an
// existing file.
type ArchiveStore interface {
	Save(ctx context.Context, path string, content []byte) error
}
