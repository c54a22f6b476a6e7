package notifier

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

var _ Notifier = (*Telegram)(nil)

// Telegram sends messages through the Bot API. An optional HTTP proxy
// covers deployments where api.telegram.org is not reachable directly.
type Telegram struct {
	token   string
	chatID  string
	client  *http.Client
	logger  *zap.Logger
	baseURL string

	retries       uint64
	retryInterval time.Duration
}

// NewTelegram builds a notifier for the given bot token and chat.
// retries and retryDelay tune the send retry loop; zero or negative
// values fall back to defaults.
func NewTelegram(token, chatID, proxyURL string, retries int, retryDelay time.Duration, logger *zap.Logger) (*Telegram, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retries <= 0 {
		retries = 3
	}
	if retryDelay <= 0 {
		retryDelay = backoff.DefaultInitialInterval
	}
	transport := &http.Transport{}
	if proxyURL != "" {
		purl, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("notifier: parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(purl)
	}
	return &Telegram{
		token:         token,
		chatID:        chatID,
		client:        &http.Client{Transport: transport, Timeout: 10 * time.Second},
		logger:        logger,
		baseURL:       "https://api.telegram.org",
		retries:       uint64(retries),
		retryInterval: retryDelay,
	}, nil
}

// Send posts the message, retrying transient failures with exponential
// backoff. Client errors other than rate limiting are not retried.
func (t *Telegram) Send(ctx context.Context, msg string) error {
	send := func() error {
		apiURL := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
		form := url.Values{"chat_id": {t.chatID}, "text": {msg}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(form.Encode()))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("notifier: build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := t.client.Do(req)
		if err != nil {
			t.logger.Warn("telegram send failed", zap.Error(err))
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("notifier: telegram status %s", resp.Status)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(err)
			}
			t.logger.Warn("telegram send failed", zap.Int("status", resp.StatusCode))
			return err
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.retryInterval
	return backoff.Retry(send, backoff.WithContext(backoff.WithMaxRetries(bo, t.retries), ctx))
}
