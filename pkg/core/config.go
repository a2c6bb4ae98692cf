package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables that override file configuration.
const EnvPrefix = "REDIAL_"

// TransportKind selects the transport a session runs over.
type TransportKind string

// Supported transports.
const (
	TransportSimulated TransportKind = "simulated"
	TransportWebSocket TransportKind = "websocket"
	TransportHTTP      TransportKind = "http"
)

// SimulatedConfig configures the randomized in-process transport.
type SimulatedConfig struct {
	// ConnectDelay is how long the initial connection takes to come up.
	ConnectDelay time.Duration `koanf:"connect_delay" validate:"min=0"`
	// AttemptDelay is the simulated round trip of a reconnect attempt.
	AttemptDelay time.Duration `koanf:"attempt_delay" validate:"min=0"`
	// SuccessRate is the probability in [0,1] that an attempt succeeds.
	SuccessRate float64 `koanf:"success_rate" validate:"gte=0,lte=1"`
}

// WebSocketConfig configures the websocket transport.
type WebSocketConfig struct {
	URL              string        `koanf:"url" validate:"omitempty,url"`
	HandshakeTimeout time.Duration `koanf:"handshake_timeout" validate:"min=0"`
}

// HTTPConfig configures the HTTP health-probe transport.
type HTTPConfig struct {
	BaseURL    string        `koanf:"base_url" validate:"omitempty,url"`
	HealthPath string        `koanf:"health_path"`
	Timeout    time.Duration `koanf:"timeout" validate:"min=0"`
}

// GuardConfig configures the circuit breaker and rate limiter placed in front of
// reconnect attempts. A zero RateLimitAttempts disables rate limiting.
type GuardConfig struct {
	CircuitBreakerEnabled          bool          `koanf:"circuit_breaker_enabled"`
	CircuitBreakerFailThreshold    int           `koanf:"circuit_breaker_fail_threshold"`
	CircuitBreakerSuccessThreshold int           `koanf:"circuit_breaker_success_threshold"`
	CircuitBreakerTimeout          time.Duration `koanf:"circuit_breaker_timeout"`

	RateLimitAttempts int           `koanf:"rate_limit_attempts" validate:"min=0"`
	RateLimitPeriod   time.Duration `koanf:"rate_limit_period" validate:"min=0"`
}

// Config contains all configuration options for a reconnect session and its transport.
type Config struct {
	// ReconnectInterval is the idle wait before every reconnect attempt.
	ReconnectInterval time.Duration `koanf:"reconnect_interval" validate:"min=1ms"`
	// MaxReconnectAttempts bounds an episode to MaxReconnectAttempts+1 attempts.
	MaxReconnectAttempts int `koanf:"max_reconnect_attempts" validate:"min=0"`
	// AttemptTimeout bounds a single reconnect attempt.
	AttemptTimeout time.Duration `koanf:"attempt_timeout" validate:"min=1ms"`

	Transport TransportKind   `koanf:"transport" validate:"oneof=simulated websocket http"`
	Simulated SimulatedConfig `koanf:"simulated"`
	WebSocket WebSocketConfig `koanf:"websocket"`
	HTTP      HTTPConfig      `koanf:"http"`
	Guard     GuardConfig     `koanf:"guard"`

	MetricsAddr string `koanf:"metrics_addr"`
	LogLevel    string `koanf:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultConfig returns a Config initialized with the demo defaults:
// 2s interval, 5 attempts (plus one), 10s attempt timeout, simulated transport
// with 1s delays and a 30% success rate, breaker disabled, no rate limit.
func DefaultConfig() *Config {
	return &Config{
		ReconnectInterval:    2 * time.Second,
		MaxReconnectAttempts: 5,
		AttemptTimeout:       10 * time.Second,

		Transport: TransportSimulated,
		Simulated: SimulatedConfig{
			ConnectDelay: 1 * time.Second,
			AttemptDelay: 1 * time.Second,
			SuccessRate:  0.3,
		},
		WebSocket: WebSocketConfig{
			HandshakeTimeout: 5 * time.Second,
		},
		HTTP: HTTPConfig{
			HealthPath: "/health",
			Timeout:    5 * time.Second,
		},
		Guard: GuardConfig{
			CircuitBreakerFailThreshold:    5,
			CircuitBreakerSuccessThreshold: 1,
			CircuitBreakerTimeout:          30 * time.Second,
			RateLimitPeriod:                time.Second,
		},

		LogLevel: "info",
	}
}

var validate = validator.New()

// Validate checks field constraints and the cross-field rules that tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	switch c.Transport {
	case TransportWebSocket:
		if c.WebSocket.URL == "" {
			return errors.New("WebSocket.URL is required for the websocket transport")
		}
	case TransportHTTP:
		if c.HTTP.BaseURL == "" {
			return errors.New("HTTP.BaseURL is required for the http transport")
		}
	}
	if c.Guard.CircuitBreakerEnabled {
		if c.Guard.CircuitBreakerFailThreshold <= 0 {
			return errors.New("CircuitBreakerFailThreshold must be positive when enabled")
		}
		if c.Guard.CircuitBreakerSuccessThreshold <= 0 {
			return errors.New("CircuitBreakerSuccessThreshold must be positive when enabled")
		}
		if c.Guard.CircuitBreakerTimeout <= 0 {
			return errors.New("CircuitBreakerTimeout must be positive when enabled")
		}
	}
	if c.Guard.RateLimitAttempts > 0 && c.Guard.RateLimitPeriod <= 0 {
		return errors.New("RateLimitPeriod must be positive when RateLimitAttempts is set")
	}
	return nil
}

// WithReconnectInterval sets the wait between attempts and returns the config for chaining.
func (c *Config) WithReconnectInterval(interval time.Duration) *Config {
	c.ReconnectInterval = interval
	return c
}

// WithMaxReconnectAttempts sets the attempt budget and returns the config for chaining.
func (c *Config) WithMaxReconnectAttempts(attempts int) *Config {
	c.MaxReconnectAttempts = attempts
	return c
}

// WithSimulated switches to the simulated transport and returns the config for chaining.
func (c *Config) WithSimulated(sim SimulatedConfig) *Config {
	c.Transport = TransportSimulated
	c.Simulated = sim
	return c
}

// WithWebSocket switches to the websocket transport and returns the config for chaining.
func (c *Config) WithWebSocket(url string) *Config {
	c.Transport = TransportWebSocket
	c.WebSocket.URL = url
	return c
}

// WithHTTP switches to the HTTP probe transport and returns the config for chaining.
func (c *Config) WithHTTP(baseURL string) *Config {
	c.Transport = TransportHTTP
	c.HTTP.BaseURL = baseURL
	return c
}

// WithCircuitBreaker enables the attempt circuit breaker and returns the config for chaining.
func (c *Config) WithCircuitBreaker(failThreshold, successThreshold int, timeout time.Duration) *Config {
	c.Guard.CircuitBreakerEnabled = true
	c.Guard.CircuitBreakerFailThreshold = failThreshold
	c.Guard.CircuitBreakerSuccessThreshold = successThreshold
	c.Guard.CircuitBreakerTimeout = timeout
	return c
}

// WithRateLimit limits reconnect attempts to attempts per period and returns the config for chaining.
func (c *Config) WithRateLimit(attempts int, period time.Duration) *Config {
	c.Guard.RateLimitAttempts = attempts
	c.Guard.RateLimitPeriod = period
	return c
}

// Load builds a Config from defaults, an optional TOML file and REDIAL_* environment
// variables, in that order of precedence (later wins), then validates it.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	// Double underscores keep a literal underscore, single ones separate sections:
	// REDIAL_SIMULATED_SUCCESS__RATE -> simulated.success_rate
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		s = strings.ReplaceAll(s, "__", "%UNDERSCORE%")
		s = strings.ReplaceAll(s, "_", ".")
		return strings.ReplaceAll(s, "%UNDERSCORE%", "_")
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			TagName:          "koanf",
			WeaklyTypedInput: true,
			Result:           cfg,
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		},
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}
