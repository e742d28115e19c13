package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// JournalPruner deletes journal entries past retention
type JournalPruner interface {
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

// Sweeper drops expired entries from an in-memory cache
type Sweeper interface {
	Sweep()
	Len() int
}

// NewJournalPruneWorker prunes the journal every interval
func NewJournalPruneWorker(pruner JournalPruner, retention, interval time.Duration, logger *zap.Logger) *PeriodicWorker {
	return NewPeriodicWorker("JournalPruner", interval, func(ctx context.Context) error {
		_, err := pruner.Prune(ctx, retention)
		return err
	}, logger)
}

// NewDedupSweepWorker sweeps the submission dedup cache every interval so
// idle entries do not wait for the next submission to be dropped
func NewDedupSweepWorker(cache Sweeper, interval time.Duration, logger *zap.Logger) *PeriodicWorker {
	return NewPeriodicWorker("DedupSweeper", interval, func(ctx context.Context) error {
		cache.Sweep()
		logger.Debug("Dedup cache swept", zap.Int("entries", cache.Len()))
		return nil
	}, logger)
}
