package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 2*time.Second, config.ReconnectInterval)
	assert.Equal(t, 5, config.MaxReconnectAttempts)
	assert.Equal(t, 10*time.Second, config.AttemptTimeout)
	assert.Equal(t, TransportSimulated, config.Transport)
	assert.Equal(t, time.Second, config.Simulated.ConnectDelay)
	assert.Equal(t, time.Second, config.Simulated.AttemptDelay)
	assert.InDelta(t, 0.3, config.Simulated.SuccessRate, 1e-9)
	assert.False(t, config.Guard.CircuitBreakerEnabled)
	assert.Equal(t, 0, config.Guard.RateLimitAttempts)
	assert.Equal(t, "info", config.LogLevel)
	assert.NoError(t, config.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid_config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "zero_interval",
			mutate:  func(c *Config) { c.ReconnectInterval = 0 },
			wantErr: true,
			errMsg:  "ReconnectInterval",
		},
		{
			name:    "negative_max_attempts",
			mutate:  func(c *Config) { c.MaxReconnectAttempts = -1 },
			wantErr: true,
			errMsg:  "MaxReconnectAttempts",
		},
		{
			name:    "zero_max_attempts_allowed",
			mutate:  func(c *Config) { c.MaxReconnectAttempts = 0 },
			wantErr: false,
		},
		{
			name:    "unknown_transport",
			mutate:  func(c *Config) { c.Transport = "carrier-pigeon" },
			wantErr: true,
			errMsg:  "Transport",
		},
		{
			name:    "success_rate_above_one",
			mutate:  func(c *Config) { c.Simulated.SuccessRate = 1.5 },
			wantErr: true,
			errMsg:  "SuccessRate",
		},
		{
			name:    "websocket_without_url",
			mutate:  func(c *Config) { c.Transport = TransportWebSocket },
			wantErr: true,
			errMsg:  "WebSocket.URL",
		},
		{
			name:    "websocket_bad_url",
			mutate:  func(c *Config) { c.WithWebSocket("not a url") },
			wantErr: true,
			errMsg:  "URL",
		},
		{
			name:    "http_without_base_url",
			mutate:  func(c *Config) { c.Transport = TransportHTTP },
			wantErr: true,
			errMsg:  "HTTP.BaseURL",
		},
		{
			name:    "bad_log_level",
			mutate:  func(c *Config) { c.LogLevel = "trace" },
			wantErr: true,
			errMsg:  "LogLevel",
		},
		{
			name: "invalid_circuit_breaker_fail_threshold",
			mutate: func(c *Config) {
				c.WithCircuitBreaker(0, 1, time.Second)
			},
			wantErr: true,
			errMsg:  "CircuitBreakerFailThreshold",
		},
		{
			name: "invalid_circuit_breaker_success_threshold",
			mutate: func(c *Config) {
				c.WithCircuitBreaker(3, 0, time.Second)
			},
			wantErr: true,
			errMsg:  "CircuitBreakerSuccessThreshold",
		},
		{
			name: "invalid_circuit_breaker_timeout",
			mutate: func(c *Config) {
				c.WithCircuitBreaker(3, 1, 0)
			},
			wantErr: true,
			errMsg:  "CircuitBreakerTimeout",
		},
		{
			name: "circuit_breaker_disabled_skips_validation",
			mutate: func(c *Config) {
				c.Guard = GuardConfig{}
			},
			wantErr: false,
		},
		{
			name:    "rate_limit_without_period",
			mutate:  func(c *Config) { c.WithRateLimit(3, 0) },
			wantErr: true,
			errMsg:  "RateLimitPeriod",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, strings.Contains(err.Error(), tt.errMsg), "expected error to contain %q, got %q", tt.errMsg, err.Error())
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Chain(t *testing.T) {
	config := DefaultConfig()

	result := config.
		WithReconnectInterval(10 * time.Millisecond).
		WithMaxReconnectAttempts(2).
		WithHTTP("http://127.0.0.1:8080").
		WithRateLimit(4, time.Second)

	assert.Same(t, config, result)
	assert.Equal(t, 10*time.Millisecond, config.ReconnectInterval)
	assert.Equal(t, 2, config.MaxReconnectAttempts)
	assert.Equal(t, TransportHTTP, config.Transport)
	assert.Equal(t, "http://127.0.0.1:8080", config.HTTP.BaseURL)
	assert.Equal(t, 4, config.Guard.RateLimitAttempts)
	assert.NoError(t, config.Validate())
}

func TestLoad_DefaultsOnly(t *testing.T) {
	config, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), config)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redial.toml")
	content := `
reconnect_interval = "250ms"
max_reconnect_attempts = 3
transport = "simulated"
log_level = "debug"

[simulated]
success_rate = 0.7
attempt_delay = "50ms"

[guard]
circuit_breaker_enabled = true
circuit_breaker_fail_threshold = 4
circuit_breaker_success_threshold = 1
circuit_breaker_timeout = "5s"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("REDIAL_MAX__RECONNECT__ATTEMPTS", "7")

	config, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, config.ReconnectInterval)
	assert.Equal(t, 7, config.MaxReconnectAttempts)
	assert.Equal(t, "debug", config.LogLevel)
	assert.InDelta(t, 0.7, config.Simulated.SuccessRate, 1e-9)
	assert.Equal(t, 50*time.Millisecond, config.Simulated.AttemptDelay)
	assert.Equal(t, time.Second, config.Simulated.ConnectDelay)
	assert.True(t, config.Guard.CircuitBreakerEnabled)
	assert.Equal(t, 4, config.Guard.CircuitBreakerFailThreshold)
	assert.Equal(t, 5*time.Second, config.Guard.CircuitBreakerTimeout)
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redial.toml")
	require.NoError(t, os.WriteFile(path, []byte(`transport = "websocket"`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config file")
}
