package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/garyjia/refund-approval/internal/application/port"
	"github.com/garyjia/refund-approval/internal/domain/entity"
	"github.com/garyjia/refund-approval/internal/infrastructure/retry"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// DefaultLookupConcurrency bounds parallel directory calls
const DefaultLookupConcurrency = 8

// IdentityService resolves requester emails to chat users
type IdentityService struct {
	directory   port.IdentityDirectory
	policy      retry.Policy
	concurrency int
	logger      Logger
}

// NewIdentityService creates a new IdentityService
func NewIdentityService(directory port.IdentityDirectory, policy retry.Policy, concurrency int, logger Logger) *IdentityService {
	if concurrency <= 0 {
		concurrency = DefaultLookupConcurrency
	}
	return &IdentityService{
		directory:   directory,
		policy:      policy,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Lookup resolves one email, retrying transient failures. An unknown email
// is entity.ErrNotFound and is not retried.
func (s *IdentityService) Lookup(ctx context.Context, email string) (*entity.Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("%w: empty email", entity.ErrValidation)
	}

	var identity *entity.Identity
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		var err error
		identity, err = s.directory.LookupByEmail(ctx, email)
		return err
	}, func(err error) bool {
		return !errors.Is(err, entity.ErrNotFound)
	})
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", email, err)
	}
	return identity, nil
}

// LookupMany resolves emails concurrently. The result holds only the emails
// that resolved; order carries no meaning. Per-email failures are logged.
func (s *IdentityService) LookupMany(ctx context.Context, emails []string) (map[string]entity.Identity, error) {
	var (
		mu     sync.Mutex
		result = make(map[string]entity.Identity, len(emails))
		seen   = make(map[string]bool, len(emails))
	)

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)

	for _, raw := range emails {
		email := strings.ToLower(strings.TrimSpace(raw))
		if email == "" || seen[email] {
			continue
		}
		seen[email] = true

		g.Go(func() error {
			identity, err := s.Lookup(ctx, email)
			if err != nil {
				if !errors.Is(err, entity.ErrNotFound) {
					s.logger.Error("Identity lookup failed", "email", email, "error", err)
				}
				return nil
			}
			mu.Lock()
			result[email] = *identity
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return result, err
	}

	s.logger.Info("Identity lookup finished", "requested", len(seen), "resolved", len(result))
	return result, nil
}
