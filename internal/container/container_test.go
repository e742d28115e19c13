package container

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/refund-approval/internal/config"
	"github.com/garyjia/refund-approval/internal/domain/event"
	"github.com/garyjia/refund-approval/internal/infrastructure/retry"
)

func testConfig() *config.Config {
	return &config.Config{
		Lark: config.LarkConfig{
			AppID:         "cli_test",
			AppSecret:     "secret",
			ChannelID:     "oc_refunds",
			EventMode:     config.EventModeWebhook,
			ActionTimeout: time.Second,
		},
		Orders:     config.OrdersConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second},
		Retry:      retry.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: time.Millisecond},
		Dedup:      config.DedupConfig{TTL: time.Minute, SweepInterval: time.Minute},
		Proration:  config.ProrationConfig{ProcessingFeePercent: 5, Timezone: "UTC"},
		Identity:   config.IdentityConfig{Concurrency: 2, MaxAttempts: 1},
		Dispatcher: config.DispatcherConfig{HandlerTimeout: time.Second},
		Database:   config.DatabaseConfig{Path: ":memory:"},
		Journal:    config.JournalConfig{Retention: time.Hour, PruneInterval: time.Hour},
	}
}

func TestNewContainer_Validation(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewContainer(testConfig(), nil)
	assert.Error(t, err)

	cfg := testConfig()
	cfg.Lark.ChannelID = ""
	_, err = NewContainer(cfg, zap.NewNop())
	assert.ErrorContains(t, err, "lark.channel_id")
}

func TestContainer_Lifecycle(t *testing.T) {
	c, err := NewContainer(testConfig(), zap.NewNop())
	require.NoError(t, err)
	assert.False(t, c.Ready())

	ok, components := c.HealthSummary()
	assert.False(t, ok)
	assert.Equal(t, "not initialized", components["database"])

	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.Ready())
	assert.Error(t, c.Start(context.Background()))

	assert.NotNil(t, c.WorkflowEngine())
	assert.NotNil(t, c.Exporter())
	assert.NotNil(t, c.Lark().Cards)
	assert.Equal(t, 2, c.Workers().Count())

	health := c.Health()
	assert.True(t, health.Overall, "%+v", health.Components)
	ok, components = c.HealthSummary()
	assert.True(t, ok)
	assert.Equal(t, "ok", components["database"])

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close())
	assert.Error(t, c.Start(context.Background()))
}

func TestContainer_JournalRecordsDispatchedEvents(t *testing.T) {
	c, err := NewContainer(testConfig(), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer func() { _ = c.Close() }()

	ctx := context.Background()
	evt := event.NewEvent(event.TypeRequestDenied, "1001", "om_1", map[string]interface{}{
		"actor": "ou_1",
		"email": "ann@example.com",
	})
	require.NoError(t, c.Dispatcher().Dispatch(ctx, evt))

	entries, err := c.Services().Journal.List(ctx, "1001", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "DENIED", entries[0].Kind)
	assert.Equal(t, "om_1", entries[0].MessageRef)
}

func TestConvertToZapFields(t *testing.T) {
	fields := convertToZapFields("a", 1, 2, "skipped", "err", errors.New("boom"), "dangling")
	require.Len(t, fields, 2)
	assert.Equal(t, "a", fields[0].Key)
	assert.Equal(t, "err", fields[1].Key)
}
