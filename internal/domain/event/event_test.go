package event

import (
	"testing"
	"time"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      bool
	}{
		{name: "submitted", eventType: TypeRequestSubmitted, want: true},
		{name: "rejected", eventType: TypeRequestRejected, want: true},
		{name: "corrected", eventType: TypeRequestCorrected, want: true},
		{name: "step resolved", eventType: TypeStepResolved, want: true},
		{name: "denied", eventType: TypeRequestDenied, want: true},
		{name: "unknown", eventType: Type("unknown.type"), want: false},
		{name: "empty", eventType: Type(""), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.eventType.IsValid(); got != tt.want {
				t.Errorf("Type.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewEvent(t *testing.T) {
	evt := NewEvent(TypeStepResolved, "1001", "om_1", map[string]interface{}{
		KeyStep: "order",
	})

	if evt.ID == "" {
		t.Error("Event ID should not be empty")
	}
	if evt.CorrelationID == "" || evt.CorrelationID == evt.ID {
		t.Error("Event should start its own correlation chain")
	}
	if evt.OrderNumber != "1001" || evt.MessageRef != "om_1" {
		t.Errorf("unexpected references: %q %q", evt.OrderNumber, evt.MessageRef)
	}
	if evt.GetPayloadString(KeyStep) != "order" {
		t.Errorf("payload step = %q", evt.GetPayloadString(KeyStep))
	}
	if time.Since(evt.Timestamp) > time.Second {
		t.Error("Event Timestamp should be recent")
	}
}

func TestNewEvent_NilPayload(t *testing.T) {
	evt := NewEvent(TypeRequestDenied, "1001", "", nil)
	if evt.Payload == nil {
		t.Fatal("payload should be initialised")
	}
}

func TestEvent_GetPayloadInt(t *testing.T) {
	evt := NewEvent(TypeStepResolved, "1", "", map[string]interface{}{
		"int64":   int64(100),
		"int":     50,
		"float64": 75.5,
		"string":  "nope",
	})

	tests := []struct {
		key  string
		want int64
	}{
		{"int64", 100},
		{"int", 50},
		{"float64", 75},
		{"string", 0},
		{"missing", 0},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := evt.GetPayloadInt(tt.key); got != tt.want {
				t.Errorf("GetPayloadInt(%v) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestEvent_CorrelationChain(t *testing.T) {
	first := NewEvent(TypeRequestSubmitted, "1001", "om_1", nil)
	second := NewEventWithCorrelation(TypeStepResolved, "1001", "om_1", nil, first.CorrelationID)

	if second.CorrelationID != first.CorrelationID {
		t.Error("second event should share the correlation ID")
	}
	if second.ID == first.ID {
		t.Error("events should have unique IDs")
	}
}
