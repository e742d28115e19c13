package entity

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the workflow and its adapters. Callers classify
// with errors.Is; adapters wrap these with operation context.
var (
	// Input
	ErrValidation          = errors.New("validation failed")
	ErrDuplicateSubmission = errors.New("duplicate submission")

	// Lookups
	ErrNotFound = errors.New("not found")

	// Conflicts with existing data
	ErrConflict        = errors.New("conflict")
	ErrEmailMismatch   = fmt.Errorf("%w: requester email does not match order", ErrConflict)
	ErrDuplicateRefund = fmt.Errorf("%w: order already has refunds", ErrConflict)

	// Upstream systems
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrRejected            = errors.New("rejected by upstream")
)
