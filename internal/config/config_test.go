package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
server:
  port: 8080
logging:
  level: info
`

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, TransportOutboxForward, cfg.Event.Transport)
	assert.Equal(t, 1024, cfg.Bus.MaxQueueDepth)
	assert.Equal(t, 0.7, cfg.Bus.WarningRatio)
	assert.Equal(t, 0.9, cfg.Bus.CriticalRatio)
	assert.Equal(t, DispatchBestEffort, cfg.Bus.DispatchPolicy)
	assert.Equal(t, 500, cfg.Relay.PollIntervalMs)
	assert.Equal(t, 100, cfg.Relay.BatchSize)
	assert.Equal(t, 5, cfg.Relay.MaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.Relay.LeaseTTL)
	assert.Equal(t, 300, cfg.TenantCache.TTLSeconds)
	assert.Equal(t, 60, cfg.TenantCache.NegativeTTLSeconds)
	assert.Equal(t, "tenant.cache.invalidate", cfg.TenantCache.InvalidationChannel)
}

func TestLoadConfigRejectsUnknownTransport(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
event:
  transport: bogus
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Equal(t,
		"Invalid transport 'bogus'. Expected one of: in_memory, outbox_forward, external_broker",
		err.Error())
}

func TestLoadConfigEnvOverrideRejectsUnknownTransport(t *testing.T) {
	t.Setenv("RUSTOK_EVENT_TRANSPORT", "bogus")

	_, err := LoadConfig(writeConfig(t, minimalConfig))
	require.Error(t, err)
	assert.Equal(t,
		"Invalid transport 'bogus'. Expected one of: in_memory, outbox_forward, external_broker",
		err.Error())
}

func TestLoadConfigEnvOverrideWinsOverFile(t *testing.T) {
	t.Setenv("RUSTOK_EVENT_TRANSPORT", "in_memory")

	path := writeConfig(t, minimalConfig+`
event:
  transport: outbox_forward
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, TransportInMemory, cfg.Event.Transport)
}

func TestLoadConfigExternalBrokerRequiresBrokers(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
event:
  transport: external_broker
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event.kafka.brokers")
}

func TestValidateTransport(t *testing.T) {
	for _, transport := range TransportValues {
		assert.NoError(t, ValidateTransport(transport))
	}

	err := ValidateTransport("carrier_pigeon")
	require.Error(t, err)
	assert.Equal(t,
		"Invalid transport 'carrier_pigeon'. Expected one of: in_memory, outbox_forward, external_broker",
		err.Error())
}

func TestValidateStaticBusRatios(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	cfg.Bus.CriticalRatio = 0.5
	err = ValidateStatic(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "critical_ratio")
}
