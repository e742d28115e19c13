package lark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/garyjia/refund-approval/internal/application/port"
	"github.com/garyjia/refund-approval/internal/domain/entity"
	"github.com/garyjia/refund-approval/internal/infrastructure/retry"
)

const ephemeralPath = "/open-apis/ephemeral/v1/send"

// Messenger implements port.Messenger on Lark interactive cards
type Messenger struct {
	client *Client
	policy retry.Policy
	logger *zap.Logger
}

// NewMessenger creates a new Lark messenger. Reads are retried with policy;
// posts and updates are attempted once.
func NewMessenger(client *Client, policy retry.Policy, logger *zap.Logger) *Messenger {
	return &Messenger{
		client: client,
		policy: policy,
		logger: logger,
	}
}

// PostMessage sends a new card to a chat and returns its message id
func (m *Messenger) PostMessage(ctx context.Context, destination, text string, controls []port.Control) (string, error) {
	content, err := marshalCard(text, controls)
	if err != nil {
		return "", err
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType("chat_id").
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(destination).
			MsgType("interactive").
			Content(content).
			Build()).
		Build()

	resp, err := m.client.client.Im.Message.Create(ctx, req)
	if err != nil {
		m.logger.Error("Failed to post message",
			zap.String("chat_id", destination),
			zap.Error(err))
		return "", fmt.Errorf("post message: %w: %v", entity.ErrUpstreamUnavailable, err)
	}
	if !resp.Success() {
		m.logger.Error("API returned failure",
			zap.String("chat_id", destination),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return "", apiError("post message", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}

	m.logger.Info("Message posted",
		zap.String("message_id", messageID),
		zap.String("chat_id", destination))

	return messageID, nil
}

// UpdateMessage replaces a card's text and controls in place
func (m *Messenger) UpdateMessage(ctx context.Context, ref, text string, controls []port.Control) error {
	content, err := marshalCard(text, controls)
	if err != nil {
		return err
	}

	req := larkim.NewPatchMessageReqBuilder().
		MessageId(ref).
		Body(larkim.NewPatchMessageReqBodyBuilder().
			Content(content).
			Build()).
		Build()

	resp, err := m.client.client.Im.Message.Patch(ctx, req)
	if err != nil {
		m.logger.Error("Failed to update message",
			zap.String("message_id", ref),
			zap.Error(err))
		return fmt.Errorf("update message: %w: %v", entity.ErrUpstreamUnavailable, err)
	}
	if !resp.Success() {
		m.logger.Error("API returned failure",
			zap.String("message_id", ref),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return apiError("update message", resp.Code, resp.Msg)
	}
	return nil
}

// ReadMessage fetches the current status text of a card
func (m *Messenger) ReadMessage(ctx context.Context, ref string) (string, error) {
	var content string
	err := retry.Do(ctx, m.policy, func(ctx context.Context) error {
		req := larkim.NewGetMessageReqBuilder().
			MessageId(ref).
			Build()

		resp, err := m.client.client.Im.Message.Get(ctx, req)
		if err != nil {
			return fmt.Errorf("%w: %v", entity.ErrUpstreamUnavailable, err)
		}
		if !resp.Success() {
			return apiError("read message", resp.Code, resp.Msg)
		}
		if resp.Data == nil || len(resp.Data.Items) == 0 ||
			resp.Data.Items[0].Body == nil || resp.Data.Items[0].Body.Content == nil {
			return fmt.Errorf("message %s: %w", ref, entity.ErrNotFound)
		}
		content = *resp.Data.Items[0].Body.Content
		return nil
	}, isTransient)
	if err != nil {
		m.logger.Error("Failed to read message",
			zap.String("message_id", ref),
			zap.Error(err))
		return "", fmt.Errorf("read message: %w", err)
	}

	return extractText(content)
}

// SendErrorNotice shows a card only the triggering user can see
func (m *Messenger) SendErrorNotice(ctx context.Context, trigger port.Trigger, text string) error {
	body := map[string]interface{}{
		"chat_id":  trigger.ChatID,
		"open_id":  trigger.UserID,
		"msg_type": "interactive",
		"card":     buildCard(text, nil),
	}

	resp, err := m.client.client.Post(ctx, ephemeralPath, body, larkcore.AccessTokenTypeTenant)
	if err != nil {
		return fmt.Errorf("send notice: %w: %v", entity.ErrUpstreamUnavailable, err)
	}

	var result struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(resp.RawBody, &result); err != nil {
		return fmt.Errorf("send notice: unmarshal response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || result.Code != 0 {
		m.logger.Error("Ephemeral API returned failure",
			zap.String("open_id", trigger.UserID),
			zap.Int("code", result.Code),
			zap.String("msg", result.Msg))
		return apiError("send notice", result.Code, result.Msg)
	}
	return nil
}

// apiError classifies a non-zero Lark response code. Rate limiting and
// internal errors are worth retrying; everything else is final.
func apiError(op string, code int, msg string) error {
	switch code {
	case 99991400, 99991663, 1000004, 1000005:
		return fmt.Errorf("%s: %w: code=%d, msg=%s", op, entity.ErrUpstreamUnavailable, code, msg)
	case 230001, 230011, 231003:
		return fmt.Errorf("%s: %w: code=%d, msg=%s", op, entity.ErrNotFound, code, msg)
	}
	return fmt.Errorf("%s: %w: code=%d, msg=%s", op, entity.ErrRejected, code, msg)
}

func isTransient(err error) bool {
	return errors.Is(err, entity.ErrUpstreamUnavailable)
}
