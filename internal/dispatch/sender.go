package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"beacon/internal/platform/config"
	"beacon/internal/routing"
	"beacon/internal/signing"
)

// Class buckets one attempt outcome for the retry decision.
type Class int

const (
	// ClassDelivered means the webhook accepted the card.
	ClassDelivered Class = iota
	// ClassRetryable covers 429, 5xx, network errors and timeouts.
	ClassRetryable
	// ClassPermanent covers the remaining 4xx family; retrying cannot help.
	ClassPermanent
)

// Outcome is the result of one webhook delivery attempt.
type Outcome struct {
	Class      Class
	StatusCode int
	// RetryAfter is the server-requested delay from a 429, zero when absent.
	RetryAfter time.Duration
	Err        error
}

// Sender posts signed cards to channel webhooks over a shared, bounded
// HTTP client.
type Sender struct {
	client *http.Client
}

func NewSender(cfg config.DispatchConfig) *Sender {
	return &Sender{
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:    cfg.MaxConns,
				MaxConnsPerHost: cfg.MaxConnsPerHost,
			},
		},
	}
}

// Send delivers payload to the channel webhook, signing the exact bytes sent.
func (s *Sender) Send(ctx context.Context, channel routing.Channel, payload []byte) Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, channel.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return Outcome{Class: ClassPermanent, Err: fmt.Errorf("build webhook request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signing.Header, signing.Sign(channel.Secret, payload))

	resp, err := s.client.Do(req)
	if err != nil {
		return Outcome{Class: ClassRetryable, Err: fmt.Errorf("deliver to webhook: %w", err)}
	}
	defer resp.Body.Close()

	return classify(resp)
}

func classify(resp *http.Response) Outcome {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return Outcome{Class: ClassDelivered, StatusCode: code}
	case code == http.StatusTooManyRequests:
		return Outcome{
			Class:      ClassRetryable,
			StatusCode: code,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("webhook throttled the delivery"),
		}
	case code >= 500:
		return Outcome{Class: ClassRetryable, StatusCode: code, Err: fmt.Errorf("webhook returned %d", code)}
	default:
		return Outcome{Class: ClassPermanent, StatusCode: code, Err: fmt.Errorf("webhook rejected the delivery with %d", code)}
	}
}

// parseRetryAfter handles both delay-seconds and HTTP-date forms. Returns
// zero when the header is absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
