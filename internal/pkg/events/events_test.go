package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMessage(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msg, err := toMessage(Event{
		Type:       TypePaymentStatusChanged,
		TenantID:   7,
		Key:        "7:ref-1",
		Data:       map[string]any{"status": "approved"},
		OccurredAt: at,
	})
	require.NoError(t, err)
	assert.Equal(t, "7:ref-1", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, TypePaymentStatusChanged, string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, uint(7), decoded.TenantID)
	assert.Equal(t, "approved", decoded.Data["status"])
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	assert.False(t, LoadConfig().Enabled())
	_, isNoop := NewPublisherFromEnv().(NoopPublisher)
	assert.True(t, isNoop)

	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("KAFKA_TOPIC", "recon")
	cfg := LoadConfig()
	assert.True(t, cfg.Enabled())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Brokers)
	assert.Equal(t, "recon", cfg.Topic)
}
