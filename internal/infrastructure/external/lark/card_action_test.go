package lark

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/refund-approval/internal/domain/entity"
)

func TestParse_URLVerification(t *testing.T) {
	p := NewCardActionProcessor("tok", zap.NewNop())

	cb, err := p.Parse([]byte(`{"type":"url_verification","challenge":"abc","token":"tok"}`))
	require.NoError(t, err)
	assert.Equal(t, "abc", cb.Challenge)
	assert.Nil(t, cb.Action)
}

func TestParse_LegacyCardAction(t *testing.T) {
	p := NewCardActionProcessor("tok", zap.NewNop())

	body := `{"open_id":"ou_9","open_message_id":"om_1","open_chat_id":"oc_1","token":"tok",
		"action":{"value":{"payload":"action=custom_refund_amount|order_id=gid-1"},"form_value":{"amount":"12.50","count":3}}}`
	cb, err := p.Parse([]byte(body))
	require.NoError(t, err)
	require.NotNil(t, cb.Action)

	assert.Equal(t, "ou_9", cb.Action.Trigger.UserID)
	assert.Equal(t, "oc_1", cb.Action.Trigger.ChatID)
	assert.Equal(t, "om_1", cb.Action.Trigger.MessageRef)
	assert.Equal(t, "action=custom_refund_amount|order_id=gid-1", cb.Action.Payload)
	assert.Equal(t, "12.50", cb.Action.Inputs["amount"])
	assert.Equal(t, "3", cb.Action.Inputs["count"])
}

func TestParse_EventEnvelope(t *testing.T) {
	p := NewCardActionProcessor("", zap.NewNop())

	body := `{"schema":"2.0","header":{"event_type":"card.action.trigger","token":"x"},
		"event":{"operator":{"open_id":"ou_9"},"action":{"value":{"payload":"action=no_refund"}},
		"context":{"open_message_id":"om_2","open_chat_id":"oc_2"}}}`
	cb, err := p.Parse([]byte(body))
	require.NoError(t, err)
	require.NotNil(t, cb.Action)
	assert.Equal(t, "om_2", cb.Action.Trigger.MessageRef)
	assert.Equal(t, "action=no_refund", cb.Action.Payload)
	assert.Empty(t, cb.Action.Inputs)
}

func TestParse_Rejections(t *testing.T) {
	p := NewCardActionProcessor("tok", zap.NewNop())

	_, err := p.Parse([]byte(`{"type":"url_verification","challenge":"abc","token":"bad"}`))
	assert.True(t, errors.Is(err, ErrInvalidToken))

	_, err = p.Parse([]byte(`{`))
	assert.True(t, errors.Is(err, entity.ErrValidation))

	_, err = p.Parse([]byte(`{"token":"tok","open_message_id":"om_1","action":{"value":{}}}`))
	assert.True(t, errors.Is(err, entity.ErrValidation))

	_, err = p.Parse([]byte(`{"token":"tok","action":{"value":{"payload":"x"}}}`))
	assert.True(t, errors.Is(err, entity.ErrValidation))
}

func TestAPIError_Classification(t *testing.T) {
	assert.True(t, errors.Is(apiError("op", 99991400, "rate"), entity.ErrUpstreamUnavailable))
	assert.True(t, errors.Is(apiError("op", 230011, "gone"), entity.ErrNotFound))
	assert.True(t, errors.Is(apiError("op", 1, "bad"), entity.ErrRejected))
	assert.True(t, isTransient(apiError("op", 1000004, "busy")))
}
