package entity

import (
	"strings"
	"time"
)

// RequestorName is the requester's name as submitted on the intake form
type RequestorName struct {
	First string `json:"first" validate:"required,max=100"`
	Last  string `json:"last" validate:"required,max=100"`
}

// Full returns "First Last"
func (n RequestorName) Full() string {
	return strings.TrimSpace(strings.TrimSpace(n.First) + " " + strings.TrimSpace(n.Last))
}

// RefundRequest is the inbound request submitted through the intake form
type RefundRequest struct {
	OrderNumber    string        `json:"orderNumber" validate:"required,max=64"`
	RequestorName  RequestorName `json:"requestorName"`
	RequestorEmail string        `json:"requestorEmail" validate:"required,email"`
	RefundKind     RefundKind    `json:"refundKind" validate:"required,oneof=refund credit"`
	Notes          string        `json:"notes,omitempty" validate:"max=2000"`
	ReferenceLink  string        `json:"referenceLink,omitempty" validate:"omitempty,url"`
	SubmittedAt    *time.Time    `json:"submittedAt,omitempty"`
}

// SubmissionTime returns SubmittedAt or fallback when the form omitted it
func (r *RefundRequest) SubmissionTime(fallback time.Time) time.Time {
	if r.SubmittedAt == nil || r.SubmittedAt.IsZero() {
		return fallback
	}
	return *r.SubmittedAt
}

// NormalizedOrderNumber strips whitespace and a leading '#'
func (r *RefundRequest) NormalizedOrderNumber() string {
	return NormalizeOrderNumber(r.OrderNumber)
}

// NormalizeOrderNumber strips whitespace and a leading '#'
func NormalizeOrderNumber(number string) string {
	return strings.TrimPrefix(strings.TrimSpace(number), "#")
}

// EmailsMatch compares two emails case-insensitively
func EmailsMatch(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
