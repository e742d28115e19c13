package workflow

import "context"

// StateMachine tracks the state of one workflow step and validates decisions
// against it
type StateMachine interface {
	// State returns the current state
	State() State

	// Fire executes the trigger, moving to the configured target state
	Fire(ctx context.Context, trigger Trigger) error
}
