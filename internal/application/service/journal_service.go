package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/refund-approval/internal/application/dispatcher"
	"github.com/garyjia/refund-approval/internal/application/port"
	"github.com/garyjia/refund-approval/internal/domain/entity"
	"github.com/garyjia/refund-approval/internal/domain/event"
)

// DefaultJournalLimit caps per-order listings
const DefaultJournalLimit = 100

// JournalService records workflow events as an audit trail. Entries are
// never read back to decide workflow state; the status message is the only
// source of truth.
type JournalService struct {
	repo    port.JournalRepository
	writer  JournalWriter
	archive port.ArchiveStore
	logger  Logger
	now     func() time.Time
}

// JournalWriter renders entries as a file
type JournalWriter interface {
	Write(w io.Writer, entries []*entity.JournalEntry) error
}

// NewJournalService creates a new JournalService
func NewJournalService(repo port.JournalRepository, logger Logger) *JournalService {
	return &JournalService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// WithArchive makes Prune save expiring entries before deleting them
func (s *JournalService) WithArchive(writer JournalWriter, store port.ArchiveStore) *JournalService {
	s.writer = writer
	s.archive = store
	return s
}

// Register subscribes the journal to every workflow event
func (s *JournalService) Register(d dispatcher.Dispatcher) {
	for _, t := range []event.Type{
		event.TypeRequestSubmitted,
		event.TypeRequestCorrected,
		event.TypeStepResolved,
		event.TypeRequestDenied,
	} {
		d.Subscribe(t, "journal", s.Record)
	}
}

// Record appends one entry for a dispatched event
func (s *JournalService) Record(ctx context.Context, evt *event.Event) error {
	entry := entryFromEvent(evt)
	entry.ID = uuid.NewString()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	if err := s.repo.Append(ctx, entry); err != nil {
		s.logger.Error("Failed to append journal entry", "error", err, "order_number", entry.OrderNumber, "kind", entry.Kind)
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

// List returns the newest entries for an order
func (s *JournalService) List(ctx context.Context, orderNumber string, limit int) ([]*entity.JournalEntry, error) {
	orderNumber = entity.NormalizeOrderNumber(orderNumber)
	if orderNumber == "" {
		return nil, fmt.Errorf("%w: order number is required", entity.ErrValidation)
	}
	if limit <= 0 || limit > DefaultJournalLimit {
		limit = DefaultJournalLimit
	}
	return s.repo.ListByOrder(ctx, orderNumber, limit)
}

// Between returns entries created in [from, to)
func (s *JournalService) Between(ctx context.Context, from, to time.Time) ([]*entity.JournalEntry, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: empty time range", entity.ErrValidation)
	}
	return s.repo.ListBetween(ctx, from, to)
}

// Prune deletes entries older than the retention window
func (s *JournalService) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-retention)
	if s.archive != nil {
		if err := s.archiveBefore(ctx, cutoff); err != nil {
			return 0, fmt.Errorf("archive journal: %w", err)
		}
	}

	n, err := s.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	if n > 0 {
		s.logger.Info("Pruned journal entries", "deleted", n, "cutoff", cutoff)
	}
	return n, nil
}

func (s *JournalService) archiveBefore(ctx context.Context, cutoff time.Time) error {
	entries, err := s.repo.ListBetween(ctx, time.UnixMilli(0), cutoff)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	var buf bytes.Buffer
	if err := s.writer.Write(&buf, entries); err != nil {
		return err
	}

	name := fmt.Sprintf("journal_before_%s.xlsx", cutoff.UTC().Format("20060102T150405Z"))
	if err := s.archive.Save(ctx, name, buf.Bytes()); err != nil {
		return err
	}
	s.logger.Info("Archived journal entries", "count", len(entries), "file", name)
	return nil
}

func entryFromEvent(evt *event.Event) *entity.JournalEntry {
	entry := &entity.JournalEntry{
		OrderNumber: evt.OrderNumber,
		OrderID:     evt.GetPayloadString(event.KeyOrderID),
		MessageRef:  evt.MessageRef,
		Actor:       evt.GetPayloadString(event.KeyActor),
		CreatedAt:   evt.Timestamp,
	}

	switch evt.Type {
	case event.TypeStepResolved:
		entry.Kind = entity.JournalKindStep
		entry.Step = evt.GetPayloadString(event.KeyStep)
		entry.Outcome = evt.GetPayloadString(event.KeyOutcome)
		entry.AmountCents = evt.GetPayloadInt(event.KeyAmountCents)
		entry.Detail = evt.GetPayloadString(event.KeyDetail)
	case event.TypeRequestDenied:
		entry.Kind = entity.JournalKindDenied
		entry.Outcome = "denied"
		entry.Detail = evt.GetPayloadString(event.KeyEmail)
	case event.TypeRequestCorrected:
		entry.Kind = entity.JournalKindCorrection
		entry.Outcome = outcomeForReason(evt.GetPayloadString(event.KeyReason))
		entry.Detail = evt.GetPayloadString(event.KeyReason)
	default:
		entry.Kind = entity.JournalKindSubmitted
		entry.Outcome = outcomeForReason(evt.GetPayloadString(event.KeyReason))
		entry.Detail = strings.TrimSpace(evt.GetPayloadString(event.KeyEmail) + " " + evt.GetPayloadString(event.KeyReason))
	}
	return entry
}

func outcomeForReason(reason string) string {
	if reason == "" {
		return "started"
	}
	return "needs_correction"
}
