package workflow

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/garyjia/refund-approval/internal/domain/entity"
)

// Line markers. A status line belongs to a step only when it starts with the
// step's marker; text elsewhere in the message never matches.
const (
	MarkerOrder     = "» Order decision: "
	MarkerRefund    = "» Refund decision: "
	MarkerInventory = "» Inventory decision: "
	MarkerDenial    = "» Request denied by "

	// AnchorLine precedes the step lines in a freshly posted message
	AnchorLine = "» Workflow"

	unknownActor = "unknown"
)

// slots are the marker-bearing lines in canonical document order
var slots = []string{MarkerOrder, MarkerRefund, MarkerInventory, MarkerDenial}

var (
	actorPattern = `<([^<>\n]+)>`

	orderLineRe      = regexp.MustCompile(`^(Canceled|Not canceled) by ` + actorPattern + `$`)
	refundIssuedRe   = regexp.MustCompile(`^Issued \$(-?[0-9,]+\.[0-9]{2}) (refund|credit) by ` + actorPattern + `$`)
	refundSkippedRe  = regexp.MustCompile(`^Not refunded by ` + actorPattern + `$`)
	restockedRe      = regexp.MustCompile(`^Restocked (.*) \[([^\[\]\n]+)\] by ` + actorPattern + `$`)
	restockSkippedRe = regexp.MustCompile(`^Not restocked by ` + actorPattern + `$`)
	denialRe         = regexp.MustCompile(`^` + actorPattern + `$`)
)

// Marker returns the line marker of step
func (s Step) Marker() string {
	switch s {
	case StepOrder:
		return MarkerOrder
	case StepRefund:
		return MarkerRefund
	case StepInventory:
		return MarkerInventory
	}
	return ""
}

// Parse reads the workflow state out of a status message. Steps without a
// marker line are pending. A marker line whose outcome can't be read is an
// error rather than a silent Pending.
func Parse(text string) (WorkflowState, error) {
	state := NewWorkflowState()
	seen := make(map[string]string, len(slots))

	for _, line := range strings.Split(text, "\n") {
		marker, tail, ok := matchSlot(strings.TrimRight(line, "\r"))
		if !ok {
			continue
		}
		if prev, dup := seen[marker]; dup {
			if prev != tail {
				return WorkflowState{}, fmt.Errorf("%w: conflicting lines for %q", ErrMalformedStatus, strings.TrimSpace(marker))
			}
			continue
		}
		seen[marker] = tail

		var err error
		switch marker {
		case MarkerOrder:
			state.Order, err = parseOrder(tail)
		case MarkerRefund:
			state.Refund, err = parseRefund(tail)
		case MarkerInventory:
			state.Inventory, err = parseInventory(tail)
		case MarkerDenial:
			state.Denial, err = parseDenial(tail)
		}
		if err != nil {
			return WorkflowState{}, err
		}
	}

	return state, nil
}

// Render writes d into text. The step's line is replaced in place, or
// inserted at its canonical position if absent; every other line passes
// through unchanged and in order. Rendering a Pending decision removes the
// step's line. Render does not check whether the step was already decided.
func Render(text string, d StepDecision) string {
	line, keep := formatDecision(d)
	return renderSlot(text, d.Step().Index(), line, keep)
}

// RenderDenial writes the deny line into text. A nil denial removes it.
func RenderDenial(text string, denial *Denial) string {
	if denial == nil {
		return renderSlot(text, len(slots)-1, "", false)
	}
	return renderSlot(text, len(slots)-1, MarkerDenial+"<"+sanitizeActor(denial.Actor)+">", true)
}

// RenderState writes every decided step and the denial into text
func RenderState(text string, state WorkflowState) string {
	for _, step := range Steps {
		text = Render(text, state.Decision(step))
	}
	return RenderDenial(text, state.Denial)
}

// FormatLine returns the status line for d, or "" for a pending decision
func FormatLine(d StepDecision) string {
	line, _ := formatDecision(d)
	return line
}

func renderSlot(text string, slot int, line string, keep bool) string {
	marker := slots[slot]
	if text == "" {
		if keep {
			return line
		}
		return text
	}

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines)+1)
	placed := false
	for _, l := range lines {
		if strings.HasPrefix(l, marker) {
			if keep && !placed {
				out = append(out, line)
				placed = true
			}
			continue
		}
		out = append(out, l)
	}

	if keep && !placed {
		at := insertionIndex(out, slot)
		out = append(out, "")
		copy(out[at+1:], out[at:])
		out[at] = line
	}

	return strings.Join(out, "\n")
}

// insertionIndex finds where a missing slot line goes: after the closest
// earlier slot, else before the closest later slot, else after the anchor,
// else at the end (before a trailing newline).
func insertionIndex(lines []string, slot int) int {
	for s := slot - 1; s >= 0; s-- {
		if i := indexOfPrefix(lines, slots[s]); i >= 0 {
			return i + 1
		}
	}
	for s := slot + 1; s < len(slots); s++ {
		if i := indexOfPrefix(lines, slots[s]); i >= 0 {
			return i
		}
	}
	for i, l := range lines {
		if l == AnchorLine {
			return i + 1
		}
	}
	if n := len(lines); n > 0 && lines[n-1] == "" {
		return n - 1
	}
	return len(lines)
}

// HasAnchor reports whether text carries the workflow anchor line, i.e. it
// is a main workflow message rather than a correction notice
func HasAnchor(text string) bool {
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimRight(l, "\r") == AnchorLine {
			return true
		}
	}
	return false
}

func indexOfPrefix(lines []string, prefix string) int {
	for i, l := range lines {
		if strings.HasPrefix(l, prefix) {
			return i
		}
	}
	return -1
}

func matchSlot(line string) (marker, tail string, ok bool) {
	for _, m := range slots {
		if strings.HasPrefix(line, m) {
			return m, strings.TrimPrefix(line, m), true
		}
	}
	return "", "", false
}

func formatDecision(d StepDecision) (string, bool) {
	actor := "<" + sanitizeActor(d.ActorID()) + ">"

	switch v := d.(type) {
	case OrderDecision:
		switch v.Outcome() {
		case StateCanceled:
			return MarkerOrder + "Canceled by " + actor, true
		case StateNotCanceled:
			return MarkerOrder + "Not canceled by " + actor, true
		}
	case RefundDecision:
		switch v.Outcome() {
		case StateRefunded:
			return MarkerRefund + "Issued " + v.Amount.String() + " " + string(v.Kind) + " by " + actor, true
		case StateNotRefunded:
			return MarkerRefund + "Not refunded by " + actor, true
		}
	case InventoryDecision:
		switch v.Outcome() {
		case StateRestocked:
			return MarkerInventory + "Restocked " + sanitizeText(v.VariantTitle) +
				" [" + sanitizeVariantID(v.VariantID) + "] by " + actor, true
		case StateNotRestocked:
			return MarkerInventory + "Not restocked by " + actor, true
		}
	}

	return "", false
}

func parseOrder(tail string) (OrderDecision, error) {
	m := orderLineRe.FindStringSubmatch(tail)
	if m == nil {
		return OrderDecision{}, fmt.Errorf("%w: order decision %q", ErrMalformedStatus, tail)
	}
	if m[1] == "Canceled" {
		return Canceled(m[2]), nil
	}
	return NotCanceled(m[2]), nil
}

func parseRefund(tail string) (RefundDecision, error) {
	if m := refundSkippedRe.FindStringSubmatch(tail); m != nil {
		return NotRefunded(m[1]), nil
	}
	m := refundIssuedRe.FindStringSubmatch(tail)
	if m == nil {
		return RefundDecision{}, fmt.Errorf("%w: refund decision %q", ErrMalformedStatus, tail)
	}
	amount, err := entity.ParseMoney(m[1])
	if err != nil {
		return RefundDecision{}, fmt.Errorf("%w: refund amount: %v", ErrMalformedStatus, err)
	}
	return Refunded(amount, entity.RefundKind(m[2]), m[3]), nil
}

func parseInventory(tail string) (InventoryDecision, error) {
	if m := restockSkippedRe.FindStringSubmatch(tail); m != nil {
		return NotRestocked(m[1]), nil
	}
	m := restockedRe.FindStringSubmatch(tail)
	if m == nil {
		return InventoryDecision{}, fmt.Errorf("%w: inventory decision %q", ErrMalformedStatus, tail)
	}
	return Restocked(m[2], m[1], m[3]), nil
}

func parseDenial(tail string) (*Denial, error) {
	m := denialRe.FindStringSubmatch(tail)
	if m == nil {
		return nil, fmt.Errorf("%w: denial %q", ErrMalformedStatus, tail)
	}
	return &Denial{Actor: m[1]}, nil
}

// ValidActor reports whether actor survives a render and parse unchanged.
// Actors are opaque chat user IDs; anything else would be rewritten.
func ValidActor(actor string) bool {
	return actor != "" && sanitizeActor(actor) == actor
}

var actorReplacer = strings.NewReplacer("<", "", ">", "", "\n", " ", "\r", "")

func sanitizeActor(actor string) string {
	a := strings.TrimSpace(actorReplacer.Replace(actor))
	if a == "" {
		return unknownActor
	}
	return a
}

func sanitizeText(s string) string {
	return strings.TrimSpace(strings.NewReplacer("\n", " ", "\r", "").Replace(s))
}

func sanitizeVariantID(id string) string {
	return strings.TrimSpace(strings.NewReplacer("[", "", "]", "", "\n", "", "\r", "").Replace(id))
}

// NeutralizeMarkers rewrites free text (customer notes, titles) so that none
// of its lines can be mistaken for a status line.
func NeutralizeMarkers(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if strings.HasPrefix(strings.TrimLeft(l, " \t"), "»") {
			lines[i] = strings.Replace(l, "»", "›", 1)
		}
	}
	return strings.Join(lines, "\n")
}
