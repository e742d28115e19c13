package workflow

// State is the outcome of a single workflow step
type State string

const (
	StatePending      State = "PENDING"
	StateCanceled     State = "CANCELED"
	StateNotCanceled  State = "NOT_CANCELED"
	StateRefunded     State = "REFUNDED"
	StateNotRefunded  State = "NOT_REFUNDED"
	StateRestocked    State = "RESTOCKED"
	StateNotRestocked State = "NOT_RESTOCKED"
)

var validStates = map[State]bool{
	StatePending:      true,
	StateCanceled:     true,
	StateNotCanceled:  true,
	StateRefunded:     true,
	StateNotRefunded:  true,
	StateRestocked:    true,
	StateNotRestocked: true,
}

// IsTerminal returns true once a step has been decided. A decided step is
// never altered again.
func (s State) IsTerminal() bool {
	return s != StatePending && validStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid step state
func (s State) IsValid() bool {
	return validStates[s]
}

// Step identifies one of the three ordered workflow decisions
type Step string

const (
	StepOrder     Step = "order"
	StepRefund    Step = "refund"
	StepInventory Step = "inventory"
)

// Steps lists the steps in workflow order
var Steps = []Step{StepOrder, StepRefund, StepInventory}

// String returns the string representation of the step
func (s Step) String() string {
	return string(s)
}

// Index returns the position of the step in workflow order, or -1
func (s Step) Index() int {
	for i, step := range Steps {
		if step == s {
			return i
		}
	}
	return -1
}

// Previous returns the step that must be decided before s
func (s Step) Previous() (Step, bool) {
	i := s.Index()
	if i <= 0 {
		return "", false
	}
	return Steps[i-1], true
}
