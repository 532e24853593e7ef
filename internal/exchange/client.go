// Package exchange implements the signed HTTP gateway to the derivatives
// exchange (C1): candle history, account assets, order placement/
// cancellation, and open positions. It is grounded on the teacher's
// internal/binance.FuturesClientImpl — same retry/backoff shape and
// bounded-timeout http.Client — adapted to the passphrase-style
// HMAC-SHA256-over-base64 signing scheme this engine's venue uses instead
// of Binance's plain query-string signing.
package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const (
	maxRetries     = 3
	baseRetryDelay = 400 * time.Millisecond
	maxRetryDelay  = 3 * time.Second

	// requestTimeout bounds every outbound call, matching the 5s exchange
	// timeout the concurrency model requires.
	requestTimeout = 5 * time.Second

	successCode = "00000"
)

// Config holds the venue credentials and connection settings.
type Config struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	Passphrase string
}

// Client is the signed HTTP gateway. It is safe for concurrent use; it
// holds no mutable state beyond its http.Client.
type Client struct {
	cfg    Config
	http   *http.Client
	logger zerolog.Logger
}

// NewClient builds a Client. An empty APIKey/APISecret/Passphrase is valid:
// read-only calls (FetchCandles) still work, but signed calls return
// ErrNotConfigured, letting the engine run in a degraded-but-valid state
// without exchange credentials.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: requestTimeout},
		logger: logger.With().Str("component", "ExchangeClient").Logger(),
	}
}

// ErrNotConfigured is returned by signed calls when no API credentials are set.
var ErrNotConfigured = fmt.Errorf("exchange: no API credentials configured")

// IsConfigured reports whether signed (trading) calls can be made.
func (c *Client) IsConfigured() bool {
	return c.cfg.APIKey != "" && c.cfg.APISecret != "" && c.cfg.Passphrase != ""
}

// sign computes the base64 HMAC-SHA256 signature over
// timestamp||method||path||queryString||body, per the gateway's signing
// contract. queryString includes its leading "?" when non-empty; body is
// empty for GET requests.
func (c *Client) sign(timestamp, method, path, queryString, body string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	mac.Write([]byte(timestamp + method + path + queryString + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// request performs one signed HTTP round trip with retry on transient
// failures. path must not include the query string; query is encoded and
// appended (with its "?" prefix) both to the URL and to the signed payload.
func (c *Client) request(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	queryString := ""
	if len(query) > 0 {
		queryString = "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
		signature := c.sign(timestamp, method, path, queryString, string(body))

		reqURL := c.cfg.BaseURL + path + queryString
		var bodyReader io.Reader
		if len(body) > 0 {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("exchange: building request: %w", err)
		}
		req.Header.Set("ACCESS-KEY", c.cfg.APIKey)
		req.Header.Set("ACCESS-SIGN", signature)
		req.Header.Set("ACCESS-PASSPHRASE", c.cfg.Passphrase)
		req.Header.Set("ACCESS-TIMESTAMP", timestamp)
		if len(body) > 0 {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxRetries && ctx.Err() == nil {
				time.Sleep(retryDelay(attempt))
				continue
			}
			return nil, fmt.Errorf("exchange: request failed: %w", err)
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("exchange: reading response: %w", err)
		}

		if resp.StatusCode >= 500 && attempt < maxRetries {
			lastErr = fmt.Errorf("exchange: server error %d: %s", resp.StatusCode, respBody)
			time.Sleep(retryDelay(attempt))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("exchange: HTTP %d: %s", resp.StatusCode, respBody)
		}
		return respBody, nil
	}
	return nil, lastErr
}

func retryDelay(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<uint(attempt))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	return delay/2 + jitter
}

func marshalBody(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func newPublicRequest(ctx context.Context, method, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("exchange: building public request: %w", err)
	}
	return req, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("exchange: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("exchange: HTTP %d: %s", resp.StatusCode, body)
	}
	return body, nil
}
