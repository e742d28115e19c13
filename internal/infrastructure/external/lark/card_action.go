package lark

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/refund-approval/internal/application/port"
	"github.com/garyjia/refund-approval/internal/domain/entity"
)

// ErrInvalidToken means a callback did not carry the app's verification token
var ErrInvalidToken = errors.New("invalid verification token")

const (
	callbackURLVerification = "url_verification"
	callbackCardAction      = "card.action.trigger"
)

// CardCallback is a parsed card callback. Exactly one of Challenge and
// Action is set.
type CardCallback struct {
	Challenge string
	Action    *CardAction
}

// CardAction is an operator's activation of a card control
type CardAction struct {
	Trigger port.Trigger
	Payload string
	Inputs  map[string]string
}

// cardCallbackPayload covers the legacy card request and the 2.0 event
// envelope; the fields of whichever arrived are populated.
type cardCallbackPayload struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Token     string `json:"token"`

	OpenID        string       `json:"open_id"`
	OpenMessageID string       `json:"open_message_id"`
	OpenChatID    string       `json:"open_chat_id"`
	Action        *actionValue `json:"action"`

	Schema string `json:"schema"`
	Header *struct {
		EventType string `json:"event_type"`
		Token     string `json:"token"`
	} `json:"header"`
	Event *struct {
		Operator struct {
			OpenID string `json:"open_id"`
		} `json:"operator"`
		Action  *actionValue `json:"action"`
		Context struct {
			OpenMessageID string `json:"open_message_id"`
			OpenChatID    string `json:"open_chat_id"`
		} `json:"context"`
	} `json:"event"`
}

type actionValue struct {
	Value     map[string]interface{} `json:"value"`
	FormValue map[string]interface{} `json:"form_value"`
}

// CardActionProcessor parses card callbacks into actions
type CardActionProcessor struct {
	verificationToken string
	verifier          *Verifier
	logger            *zap.Logger
}

// NewCardActionProcessor creates a new CardActionProcessor. An empty token
// disables token checks.
func NewCardActionProcessor(verificationToken string, logger *zap.Logger) *CardActionProcessor {
	return &CardActionProcessor{
		verificationToken: verificationToken,
		logger:            logger,
	}
}

// WithEncryptKey enables signature checks and body decryption
func (p *CardActionProcessor) WithEncryptKey(key string) *CardActionProcessor {
	if key != "" {
		p.verifier = NewVerifier(key)
	}
	return p
}

// VerifySignature checks the callback signature headers
func (p *CardActionProcessor) VerifySignature(timestamp, nonce, signature string, body []byte) bool {
	return p.verifier.VerifySignature(timestamp, nonce, signature, body)
}

// Parse reads one callback body
func (p *CardActionProcessor) Parse(body []byte) (*CardCallback, error) {
	body, err := p.verifier.Decrypt(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrValidation, err)
	}

	var payload cardCallbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: parse card callback: %v", entity.ErrValidation, err)
	}

	token := payload.Token
	if payload.Header != nil && payload.Header.Token != "" {
		token = payload.Header.Token
	}
	if p.verificationToken != "" && token != p.verificationToken {
		p.logger.Warn("Card callback token mismatch")
		return nil, ErrInvalidToken
	}

	if payload.Type == callbackURLVerification {
		return &CardCallback{Challenge: payload.Challenge}, nil
	}

	var (
		trigger port.Trigger
		action  *actionValue
	)
	switch {
	case payload.Header != nil && payload.Event != nil:
		if payload.Header.EventType != callbackCardAction {
			p.logger.Info("Ignoring card event", zap.String("event_type", payload.Header.EventType))
			return &CardCallback{}, nil
		}
		trigger = port.Trigger{
			UserID:     payload.Event.Operator.OpenID,
			ChatID:     payload.Event.Context.OpenChatID,
			MessageRef: payload.Event.Context.OpenMessageID,
		}
		action = payload.Event.Action
	default:
		trigger = port.Trigger{
			UserID:     payload.OpenID,
			ChatID:     payload.OpenChatID,
			MessageRef: payload.OpenMessageID,
		}
		action = payload.Action
	}

	if action == nil {
		return nil, fmt.Errorf("%w: card callback has no action", entity.ErrValidation)
	}
	if trigger.MessageRef == "" {
		return nil, fmt.Errorf("%w: card callback has no message id", entity.ErrValidation)
	}

	value, _ := action.Value[payloadKey].(string)
	if value == "" {
		return nil, fmt.Errorf("%w: card callback has no payload", entity.ErrValidation)
	}

	inputs := make(map[string]string, len(action.FormValue))
	for k, v := range action.FormValue {
		if s, ok := v.(string); ok {
			inputs[k] = s
			continue
		}
		inputs[k] = fmt.Sprint(v)
	}

	return &CardCallback{Action: &CardAction{
		Trigger: trigger,
		Payload: value,
		Inputs:  inputs,
	}}, nil
}
