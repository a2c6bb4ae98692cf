package transport

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"resty.dev/v3"

	"redial/pkg/broadcast"
	"redial/pkg/core"
)

// HTTPProbe treats a service as connected while its health endpoint answers.
// Establish and every reconnect attempt issue one GET to the health path; a 2xx
// answer whose optional JSON status is healthy counts as connected.
type HTTPProbe struct {
	config     core.HTTPConfig
	client     *resty.Client
	disconnect *broadcast.Signal
	leave      *broadcast.Signal
	logger     zerolog.Logger

	connected atomic.Bool
	probes    atomic.Int64
}

type healthResponse struct {
	Status string `json:"status"`
}

var healthyStatuses = map[string]bool{
	"":        true,
	"ok":      true,
	"up":      true,
	"pass":    true,
	"healthy": true,
}

// NewHTTPProbe creates an HTTP probe transport for config.BaseURL.
func NewHTTPProbe(config core.HTTPConfig) *HTTPProbe {
	if config.HealthPath == "" {
		config.HealthPath = "/health"
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(config.BaseURL)
	client.SetTimeout(config.Timeout)
	client.AddContentTypeDecoder("application/json", func(r io.Reader, v any) error {
		data, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		return sonic.Unmarshal(data, v)
	})

	p := &HTTPProbe{
		config:     config,
		client:     client,
		disconnect: broadcast.New(),
		leave:      broadcast.New(),
		logger:     zerolog.Nop(),
	}

	client.AddResponseMiddleware(func(_ *resty.Client, resp *resty.Response) error {
		p.logger.Debug().
			Str("method", resp.Request.Method).
			Str("url", resp.Request.URL).
			Int("status", resp.StatusCode()).
			Msg("health probe response")
		return nil
	})
	return p
}

// SetLogger configures the logger for the transport.
func (p *HTTPProbe) SetLogger(logger zerolog.Logger) {
	p.logger = logger
}

// Establish probes the health endpoint once.
func (p *HTTPProbe) Establish(ctx context.Context) error {
	return p.probe(ctx)
}

// Reconnect probes the health endpoint once.
func (p *HTTPProbe) Reconnect(ctx context.Context) error {
	return p.probe(ctx)
}

func (p *HTTPProbe) probe(ctx context.Context) error {
	if p.leave.Closed() {
		return core.ErrTransportClosed
	}
	p.probes.Add(1)

	var health healthResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetResult(&health).
		Get(p.config.HealthPath)
	if err != nil {
		p.connected.Store(false)
		return fmt.Errorf("probe %s: %w", p.config.HealthPath, err)
	}

	if !resp.IsSuccess() {
		p.connected.Store(false)
		return fmt.Errorf("probe %s: status %d: %w", p.config.HealthPath, resp.StatusCode(), core.ErrAttemptRejected)
	}
	if status := strings.ToLower(health.Status); !healthyStatuses[status] {
		p.connected.Store(false)
		return fmt.Errorf("probe %s: status %q: %w", p.config.HealthPath, health.Status, core.ErrAttemptRejected)
	}

	p.connected.Store(true)
	return nil
}

// Disconnect marks the service as lost and fires the disconnect signal.
func (p *HTTPProbe) Disconnect() error {
	p.connected.Store(false)
	p.disconnect.Fire()
	return nil
}

// Leave fires the leave signal and releases the HTTP client.
func (p *HTTPProbe) Leave() {
	if !p.leave.Close() {
		return
	}
	p.connected.Store(false)
	if err := p.client.Close(); err != nil {
		p.logger.Warn().Err(err).Msg("close http client")
	}
}

// DisconnectSignal fires on every dropped connection.
func (p *HTTPProbe) DisconnectSignal() *broadcast.Signal { return p.disconnect }

// LeaveSignal is closed by Leave.
func (p *HTTPProbe) LeaveSignal() *broadcast.Signal { return p.leave }

// Connected reports whether the last probe succeeded.
func (p *HTTPProbe) Connected() bool {
	return p.connected.Load()
}

// Probes returns how many probes were issued.
func (p *HTTPProbe) Probes() int64 {
	return p.probes.Load()
}
