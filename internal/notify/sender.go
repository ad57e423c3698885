package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Sender delivers one text message.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// NoopSender logs messages instead of sending them. It is used when no SMS
// gateway is configured.
type NoopSender struct {
	Log *zap.Logger
}

func (s NoopSender) Send(ctx context.Context, to, body string) error {
	if s.Log != nil {
		s.Log.Debug("sms gateway not configured, skipping message", zap.String("to", to))
	}
	return nil
}

type webhookPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

// WebhookSender posts messages as JSON to an SMS gateway. Calls go through a
// circuit breaker so a dead gateway does not slow every booking down.
type WebhookSender struct {
	url     string
	token   string
	from    string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[struct{}]
}

type WebhookConfig struct {
	URL     string
	Token   string
	From    string
	Timeout time.Duration
}

func NewWebhookSender(cfg WebhookConfig, log *zap.Logger) *WebhookSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "sms-webhook",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &WebhookSender{
		url:     cfg.URL,
		token:   cfg.Token,
		from:    cfg.From,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
	}
}

// ErrGatewayUnavailable is returned while the breaker is open.
var ErrGatewayUnavailable = errors.New("sms gateway unavailable")

func (s *WebhookSender) Send(ctx context.Context, to, body string) error {
	_, err := s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.post(ctx, to, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return err
}

func (s *WebhookSender) post(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(webhookPayload{From: s.from, To: to, Body: body})
	if err != nil {
		return fmt.Errorf("encode sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("send sms: gateway returned %s", resp.Status)
	}
	return nil
}
