// Package websocket receives card actions over the Lark long connection, for
// deployments that cannot expose the HTTP callback route.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	larkevent "github.com/larksuite/oapi-sdk-go/v3/event"
	larkdispatcher "github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"go.uber.org/zap"

	"github.com/garyjia/refund-approval/internal/application/workflow"
	"github.com/garyjia/refund-approval/internal/infrastructure/external/lark"
)

const cardActionEvent = "card.action.trigger"

// ActionHandler processes one operator interaction
type ActionHandler interface {
	HandleAction(ctx context.Context, in workflow.Interaction) (*workflow.ActionOutcome, error)
}

// CardParser parses raw callback bodies
type CardParser interface {
	Parse(body []byte) (*lark.CardCallback, error)
}

// LarkAdapter wraps the Lark WebSocket SDK client and forwards card actions
// to the workflow engine.
type LarkAdapter struct {
	appID         string
	appSecret     string
	actionTimeout time.Duration
	parser        CardParser
	handler       ActionHandler
	logger        *zap.Logger

	wsClient *larkws.Client
	mu       sync.RWMutex
	started  bool
	inflight sync.WaitGroup
}

// LarkAdapterConfig holds configuration for the Lark WebSocket adapter.
type LarkAdapterConfig struct {
	AppID         string
	AppSecret     string
	ActionTimeout time.Duration
}

// NewLarkAdapter creates a new Lark WebSocket adapter.
func NewLarkAdapter(cfg LarkAdapterConfig, parser CardParser, handler ActionHandler, logger *zap.Logger) *LarkAdapter {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 60 * time.Second
	}
	return &LarkAdapter{
		appID:         cfg.AppID,
		appSecret:     cfg.AppSecret,
		actionTimeout: cfg.ActionTimeout,
		parser:        parser,
		handler:       handler,
		logger:        logger,
	}
}

// Start opens the long connection. It blocks until ctx is cancelled or the
// client fails to connect.
func (a *LarkAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return fmt.Errorf("adapter already started")
	}

	// Token and encrypt key are not used on the long connection
	sdkDispatcher := larkdispatcher.NewEventDispatcher("", "")
	sdkDispatcher.OnCustomizedEvent(cardActionEvent, a.handleCardEvent)

	a.wsClient = larkws.NewClient(
		a.appID,
		a.appSecret,
		larkws.WithEventHandler(sdkDispatcher),
	)

	a.started = true
	a.mu.Unlock()

	a.logger.Info("Starting Lark WebSocket adapter", zap.String("app_id", a.appID))

	// The SDK client never returns once connected
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.wsClient.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("Lark WebSocket client error", zap.Error(err))
			return fmt.Errorf("websocket client error: %w", err)
		}
		return nil
	}
}

// Stop marks the adapter stopped and waits for in-flight actions. The SDK
// connection itself closes when the Start context is cancelled.
func (a *LarkAdapter) Stop() error {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = false
	a.mu.Unlock()

	a.inflight.Wait()
	a.logger.Info("Lark WebSocket adapter stopped")
	return nil
}

// IsRunning returns whether the adapter is currently running.
func (a *LarkAdapter) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.started
}

// handleCardEvent acknowledges the event and handles the action in the background
func (a *LarkAdapter) handleCardEvent(_ context.Context, evt *larkevent.EventReq) error {
	cb, err := a.parser.Parse(evt.Body)
	if err != nil {
		a.logger.Error("Failed to parse card event", zap.Error(err), zap.Int("body_length", len(evt.Body)))
		return nil
	}
	if cb.Action == nil {
		return nil
	}

	in := workflow.Interaction{
		Trigger: cb.Action.Trigger,
		Payload: cb.Action.Payload,
		Inputs:  cb.Action.Inputs,
	}

	a.inflight.Add(1)
	go func() {
		defer a.inflight.Done()
		a.process(in)
	}()
	return nil
}

func (a *LarkAdapter) process(in workflow.Interaction) {
	ctx, cancel := context.WithTimeout(context.Background(), a.actionTimeout)
	defer cancel()

	outcome, err := a.handler.HandleAction(ctx, in)
	if err != nil {
		a.logger.Error("Card action failed",
			zap.String("message_ref", in.Trigger.MessageRef),
			zap.String("user_id", in.Trigger.UserID),
			zap.Error(err))
		return
	}

	a.logger.Info("Card action handled",
		zap.String("message_ref", in.Trigger.MessageRef),
		zap.String("action", outcome.Action),
		zap.String("status", outcome.Status))
}
