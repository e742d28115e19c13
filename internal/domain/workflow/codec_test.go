package workflow

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/refund-approval/internal/domain/entity"
)

const baseMessage = "*Refund request* for order #40192\n" +
	"Requested by: Jo Park (jo@example.com)\n" +
	"Notes: please cancel, the order decision was a mistake\n" +
	AnchorLine + "\n" +
	"Submitted 2025-10-01"

func allDecisions(actor string) []StepDecision {
	return []StepDecision{
		OrderDecision{State: StatePending},
		Canceled(actor),
		NotCanceled(actor),
		RefundDecision{State: StatePending},
		Refunded(1900, entity.RefundKindRefund, actor),
		Refunded(2000, entity.RefundKindCredit, actor),
		NotRefunded(actor),
		InventoryDecision{State: StatePending},
		Restocked("gid://Variant/88", "Veteran [Early] Tier", actor),
		NotRestocked(actor),
	}
}

func startingTexts() []string {
	withAll := RenderState(baseMessage, WorkflowState{
		Order:     Canceled("U9"),
		Refund:    NotRefunded("U9"),
		Inventory: NotRestocked("U9"),
	})
	return []string{
		"",
		"no markers at all",
		baseMessage,
		baseMessage + "\n",
		Render(baseMessage, NotCanceled("U1")),
		Render(baseMessage, NotRestocked("U3")),
		withAll,
		RenderDenial(baseMessage, &Denial{Actor: "U4"}),
	}
}

func countPrefix(text, prefix string) int {
	n := 0
	for _, l := range strings.Split(text, "\n") {
		if strings.HasPrefix(l, prefix) {
			n++
		}
	}
	return n
}

func TestRender_RoundTripsEveryDecision(t *testing.T) {
	for _, text := range startingTexts() {
		for _, d := range allDecisions("U2") {
			rendered := Render(text, d)

			state, err := Parse(rendered)
			require.NoError(t, err, "text=%q decision=%+v", text, d)

			got := state.Decision(d.Step())
			assert.Equal(t, d.Outcome(), got.Outcome(), "text=%q", text)
			if d.Outcome().IsTerminal() {
				assert.Equal(t, "U2", got.ActorID())
			}
			assert.Equal(t, d, got)
		}
	}
}

func TestRender_RoundTripsOpaqueActors(t *testing.T) {
	for _, actor := range []string{"ou_7f3a9c", "U-1.2_x", "Jo Park", "on_\u00e9t\u00e9"} {
		require.True(t, ValidActor(actor), actor)
		for _, d := range allDecisions(actor) {
			if !d.Outcome().IsTerminal() {
				continue
			}
			state, err := Parse(Render(baseMessage, d))
			require.NoError(t, err, "actor=%q", actor)
			assert.Equal(t, actor, state.Decision(d.Step()).ActorID())
		}
	}
}

func TestValidActor_RejectsActorsThatWouldBeRewritten(t *testing.T) {
	for _, actor := range []string{"", " U1 ", "Jo <jo@x>", "U1\nU2", "U1\r", "<>"} {
		assert.False(t, ValidActor(actor), "%q", actor)
	}
}

func TestParse_AcceptsCRLFLines(t *testing.T) {
	text := strings.ReplaceAll(Render(Render(baseMessage, NotCanceled("U1")), NotRefunded("U2")), "\n", "\r\n") + "\r\n"

	state, err := Parse(text)
	require.NoError(t, err)
	assert.Equal(t, NotCanceled("U1"), state.Order)
	assert.Equal(t, NotRefunded("U2"), state.Refund)
	assert.Equal(t, StatePending, state.Inventory.Outcome())
}

func TestRender_NeverDuplicatesMarkers(t *testing.T) {
	for _, text := range startingTexts() {
		for _, first := range allDecisions("U1") {
			for _, second := range allDecisions("U2") {
				rendered := Render(Render(text, first), second)
				for _, step := range Steps {
					assert.LessOrEqual(t, countPrefix(rendered, step.Marker()), 1)
				}
			}
		}
	}
}

func TestRender_CollapsesExistingDuplicates(t *testing.T) {
	text := baseMessage + "\n" + MarkerOrder + "Canceled by <U1>\n" + MarkerOrder + "Canceled by <U1>"

	rendered := Render(text, NotCanceled("U2"))

	assert.Equal(t, 1, countPrefix(rendered, MarkerOrder))
}

func TestRender_OnlyTouchesTargetLine(t *testing.T) {
	text := Render(baseMessage, NotCanceled("U1"))
	before := strings.Split(text, "\n")

	updated := Render(text, Refunded(1900, entity.RefundKindRefund, "U2"))
	after := strings.Split(updated, "\n")

	require.Len(t, after, len(before)+1)
	orderIdx := indexOfPrefix(after, MarkerOrder)
	require.GreaterOrEqual(t, orderIdx, 0)
	assert.Equal(t, before[indexOfPrefix(before, MarkerOrder)], after[orderIdx])
	assert.Equal(t, MarkerRefund+"Issued $19.00 refund by <U2>", after[orderIdx+1])
	assert.Equal(t, -1, indexOfPrefix(after, MarkerInventory))

	// every other line is carried over untouched and in order
	var rest []string
	for _, l := range after {
		if !strings.HasPrefix(l, MarkerRefund) {
			rest = append(rest, l)
		}
	}
	assert.Equal(t, before, rest)

	state, err := Parse(updated)
	require.NoError(t, err)
	assert.Equal(t, NotCanceled("U1"), state.Order)
	assert.Equal(t, Refunded(1900, entity.RefundKindRefund, "U2"), state.Refund)
	assert.Equal(t, StatePending, state.Inventory.Outcome())
}

func TestRender_InsertsAtCanonicalPosition(t *testing.T) {
	text := Render(baseMessage, NotRestocked("U3"))
	text = Render(text, Canceled("U1"))
	text = Render(text, NotRefunded("U2"))

	lines := strings.Split(text, "\n")
	anchor := -1
	for i, l := range lines {
		if l == AnchorLine {
			anchor = i
		}
	}
	require.GreaterOrEqual(t, anchor, 0)
	assert.Equal(t, anchor+1, indexOfPrefix(lines, MarkerOrder))
	assert.Equal(t, anchor+2, indexOfPrefix(lines, MarkerRefund))
	assert.Equal(t, anchor+3, indexOfPrefix(lines, MarkerInventory))
	assert.Equal(t, "Submitted 2025-10-01", lines[len(lines)-1])
}

func TestRender_PreservesTrailingNewline(t *testing.T) {
	rendered := Render("header line\n", Canceled("U1"))
	assert.Equal(t, "header line\n"+MarkerOrder+"Canceled by <U1>\n", rendered)
}

func TestParse_IgnoresMarkerWordsOutsideMarkerLines(t *testing.T) {
	text := "Notes: Order decision: Canceled by <U7>\n" +
		" " + MarkerRefund + "Not refunded by <U7>\n" +
		"Inventory decision: Restocked thing [v1] by <U7>"

	state, err := Parse(text)
	require.NoError(t, err)
	assert.Equal(t, NewWorkflowState(), state)
}

func TestParse_MalformedMarkerLineFailsClosed(t *testing.T) {
	_, err := Parse(baseMessage + "\n" + MarkerRefund + "Issued lots of money")
	assert.ErrorIs(t, err, ErrMalformedStatus)

	_, err = Parse(MarkerOrder + "Canceled by <U1>\n" + MarkerOrder + "Not canceled by <U2>")
	assert.ErrorIs(t, err, ErrMalformedStatus)
}

func TestParse_Denial(t *testing.T) {
	text := RenderDenial(Render(baseMessage, NotCanceled("U1")), &Denial{Actor: "U5"})

	state, err := Parse(text)
	require.NoError(t, err)
	require.True(t, state.IsDenied())
	assert.Equal(t, "U5", state.Denial.Actor)
	_, pending := state.CurrentStep()
	assert.False(t, pending)

	lines := strings.Split(text, "\n")
	assert.Equal(t, indexOfPrefix(lines, MarkerOrder)+1, indexOfPrefix(lines, MarkerDenial))
}

func TestRender_SanitizesActor(t *testing.T) {
	line := FormatLine(Canceled("<U1>\nx"))
	assert.Equal(t, MarkerOrder+"Canceled by <U1 x>", line)
	assert.Equal(t, MarkerOrder+"Canceled by <unknown>", FormatLine(Canceled("")))
}

func TestNeutralizeMarkers(t *testing.T) {
	notes := "fine\n  » Order decision: Canceled by <U1>"
	neutral := NeutralizeMarkers(notes)

	state, err := Parse(baseMessage + "\n" + neutral)
	require.NoError(t, err)
	assert.Equal(t, StatePending, state.Order.Outcome())
	assert.Contains(t, neutral, "› Order decision")
}

func TestWorkflowState_CurrentStep(t *testing.T) {
	s := NewWorkflowState()
	step, ok := s.CurrentStep()
	assert.True(t, ok)
	assert.Equal(t, StepOrder, step)

	s = s.With(Canceled("U1"))
	step, _ = s.CurrentStep()
	assert.Equal(t, StepRefund, step)

	s = s.With(NotRefunded("U1")).With(NotRestocked("U1"))
	_, ok = s.CurrentStep()
	assert.False(t, ok)
	assert.True(t, s.IsComplete())
}

func TestHasAnchor(t *testing.T) {
	assert.True(t, HasAnchor("Refund request\n"+AnchorLine+"\n"))
	assert.False(t, HasAnchor("Refund request needs attention\nnotes mention » Workflow"))
}
