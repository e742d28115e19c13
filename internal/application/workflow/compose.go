package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/refund-approval/internal/application/refundcheck"
	"github.com/garyjia/refund-approval/internal/domain/entity"
	domainwf "github.com/garyjia/refund-approval/internal/domain/workflow"
)

// Correction reasons
const (
	ReasonOrderNotFound   = "order_not_found"
	ReasonEmailMismatch   = "email_mismatch"
	ReasonDuplicateRefund = "duplicate_refund"
)

const timeLayout = "Jan 2, 2006 3:04 PM MST"

// maxCandidateOrders caps the order numbers listed for a request whose
// number didn't resolve
const maxCandidateOrders = 5

// composeWorkflowMessage renders the body of a main workflow message. The
// anchor line is last; step lines are inserted beneath it as steps resolve.
func composeWorkflowMessage(req entity.RefundRequest, order *entity.OrderReference, submittedAt time.Time, requester *entity.Identity, loc *time.Location) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Refund request for order #%s\n", order.Number)
	writeRequester(&b, req, requester)
	fmt.Fprintf(&b, "Requested: %s\n", req.RefundKind)
	if order.ProductTitle != "" {
		fmt.Fprintf(&b, "Product: %s\n", oneLine(order.ProductTitle))
	}
	fmt.Fprintf(&b, "Total paid: %s\n", order.TotalPaid)
	fmt.Fprintf(&b, "Submitted: %s\n", submittedAt.In(loc).Format(timeLayout))
	if order.CanceledAt != nil {
		fmt.Fprintf(&b, "Order was already canceled on %s\n", order.CanceledAt.In(loc).Format(timeLayout))
	}
	writeNotes(&b, req)
	b.WriteString(domainwf.AnchorLine)

	return b.String()
}

// composeCorrectionMessage renders a request that could not enter the
// workflow, with the reason the operator has to resolve. candidates are the
// requester's orders found by email when the order number didn't resolve.
func composeCorrectionMessage(req entity.RefundRequest, reason string, order *entity.OrderReference, summary *refundcheck.Summary, candidates []*entity.OrderReference, submittedAt time.Time, loc *time.Location) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Refund request needs attention: order #%s\n", oneLine(entity.NormalizeOrderNumber(req.OrderNumber)))
	fmt.Fprintf(&b, "Problem: %s\n", describeReason(reason, req, order, summary))
	if reason == ReasonDuplicateRefund && summary != nil {
		for _, r := range summary.Records {
			fmt.Fprintf(&b, "  - %s %s (%s, %s)\n", r.ID, r.Amount, r.Status, r.CreatedAt.In(loc).Format("Jan 2, 2006"))
		}
	}
	writeCandidates(&b, req, candidates)
	writeRequester(&b, req, nil)
	fmt.Fprintf(&b, "Requested: %s\n", req.RefundKind)
	fmt.Fprintf(&b, "Submitted: %s\n", submittedAt.In(loc).Format(timeLayout))
	writeNotes(&b, req)

	return strings.TrimRight(b.String(), "\n")
}

func describeReason(reason string, req entity.RefundRequest, order *entity.OrderReference, summary *refundcheck.Summary) string {
	switch reason {
	case ReasonOrderNotFound:
		return "no order found with that number"
	case ReasonEmailMismatch:
		customer := ""
		if order != nil {
			customer = order.CustomerEmail
		}
		return fmt.Sprintf("requester email %s does not match the order's customer email %s", oneLine(req.RequestorEmail), customer)
	case ReasonDuplicateRefund:
		if summary == nil {
			return "order already has refunds"
		}
		return fmt.Sprintf("order already has %d refund(s): %s pending, %s completed",
			summary.TotalCount, summary.PendingAmount, summary.CompletedAmount)
	}
	return reason
}

func writeCandidates(b *strings.Builder, req entity.RefundRequest, candidates []*entity.OrderReference) {
	if len(candidates) == 0 {
		return
	}
	fmt.Fprintf(b, "Orders on file for %s:\n", oneLine(req.RequestorEmail))
	for i, o := range candidates {
		if i == maxCandidateOrders {
			fmt.Fprintf(b, "  - and %d more\n", len(candidates)-maxCandidateOrders)
			break
		}
		line := "#" + oneLine(o.Number)
		if o.ProductTitle != "" {
			line += " " + oneLine(o.ProductTitle)
		}
		if o.CanceledAt != nil {
			line += " (canceled)"
		}
		fmt.Fprintf(b, "  - %s\n", line)
	}
}

func writeRequester(b *strings.Builder, req entity.RefundRequest, requester *entity.Identity) {
	fmt.Fprintf(b, "Requested by: %s (%s)", oneLine(req.RequestorName.Full()), oneLine(req.RequestorEmail))
	if requester != nil && requester.UserID != "" {
		fmt.Fprintf(b, " <at user_id=\"%s\"></at>", requester.UserID)
	}
	b.WriteString("\n")
}

func writeNotes(b *strings.Builder, req entity.RefundRequest) {
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		fmt.Fprintf(b, "Notes: %s\n", domainwf.NeutralizeMarkers(notes))
	}
	if req.ReferenceLink != "" {
		fmt.Fprintf(b, "Reference: %s\n", oneLine(req.ReferenceLink))
	}
}

func oneLine(s string) string {
	return domainwf.NeutralizeMarkers(strings.TrimSpace(strings.NewReplacer("\r", "", "\n", " ").Replace(s)))
}
