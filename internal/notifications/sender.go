package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Channel is one way of putting a notification in front of the user.
// Dispatcher tries channels in registration order.
type Channel interface {
	// Name returns the channel identifier (e.g. "push", "direct").
	Name() string
	// Ready returns nil when the channel can be used right now.
	Ready(ctx context.Context) error
	// Send delivers msg. It must not block past ctx.
	Send(ctx context.Context, msg Message) error
}

const (
	defaultPushTimeout = 10 * time.Second
	pushUserAgent      = "expirywatch/1"
)

// PushEnvelope is the JSON payload POSTed to the platform notifier relay.
type PushEnvelope struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	// Tag lets the platform collapse two notifications for the same day.
	Tag string `json:"tag"`
	// ClickURL is opened (or focused) when the user activates the notification.
	ClickURL string `json:"click_url,omitempty"`
}

// PushConfig configures a PushChannel.
type PushConfig struct {
	URL       string
	AuthToken string
	Timeout   time.Duration
	// RatePerMinute bounds relay calls; 0 means 6/minute.
	RatePerMinute int
}

// PushChannel is the preferred channel: an OS-level notification surface
// reached through an HTTP relay (service worker push, ntfy-style gateway).
// The relay owns the notification lifecycle once accepted.
type PushChannel struct {
	httpClient *http.Client
	url        string
	authToken  string
	limiter    *rate.Limiter
	ready      atomic.Bool
	logger     *slog.Logger
}

// NewPushChannel validates cfg and returns a ready channel.
func NewPushChannel(cfg PushConfig, logger *slog.Logger) (*PushChannel, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("push relay URL is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid push relay URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("push relay URL must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("push relay URL must include a host")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultPushTimeout
	}
	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = 6
	}

	p := &PushChannel{
		httpClient: &http.Client{Timeout: timeout},
		url:        cfg.URL,
		authToken:  cfg.AuthToken,
		limiter:    rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), max(1, perMinute/6)),
		logger:     logger,
	}
	p.ready.Store(true)
	return p, nil
}

// Name implements Channel.
func (p *PushChannel) Name() string { return "push" }

// SetReady is the host-managed readiness gate (e.g. subscription lost).
func (p *PushChannel) SetReady(ready bool) { p.ready.Store(ready) }

// Ready implements Channel.
func (p *PushChannel) Ready(_ context.Context) error {
	if p == nil || !p.ready.Load() {
		return ErrChannelUnavailable
	}
	return nil
}

// Send implements Channel.
func (p *PushChannel) Send(ctx context.Context, msg Message) error {
	if !p.limiter.Allow() {
		return fmt.Errorf("push relay rate limited")
	}

	body, err := json.Marshal(PushEnvelope{
		Type:      "expirywatch.expiry.reminder",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Title:     msg.Title,
		Body:      msg.Body,
		Tag:       msg.Tag,
		ClickURL:  msg.URL,
	})
	if err != nil {
		return fmt.Errorf("encode push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", pushUserAgent)
	if p.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.authToken)
	}

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("push relay request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RelayError{StatusCode: resp.StatusCode}
	}

	p.logger.Debug("Push relay accepted notification",
		"tag", msg.Tag, "status", resp.StatusCode, "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// RelayError is a non-2xx answer from the push relay.
type RelayError struct {
	StatusCode int
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("push relay returned status %d", e.StatusCode)
}
