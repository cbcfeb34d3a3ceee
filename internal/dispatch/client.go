package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/vonshlovens/spokesync/internal/domain"
)

// KeyHeader carries the shared secret on every request to a spoke
const KeyHeader = "X-Syndication-Key"

// ClientConfig bounds every call made to a destination
type ClientConfig struct {
	Timeout      time.Duration
	ProbeTimeout time.Duration
	WakePause    time.Duration
	MaxErrorBody int
	UserAgent    string
}

// Client talks to spoke receivers
type Client struct {
	http   *http.Client
	cfg    ClientConfig
	logger *slog.Logger
}

// NewClient creates a spoke client. A nil httpClient uses a fresh default one;
// per-call deadlines come from the context so the client itself has no timeout.
func NewClient(httpClient *http.Client, cfg ClientConfig, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.MaxErrorBody <= 0 {
		cfg.MaxErrorBody = 2048
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "spokesync"
	}
	return &Client{
		http:   httpClient,
		cfg:    cfg,
		logger: logger.With("component", "dispatch-client"),
	}
}

// Status fetches GET {base}/status
func (c *Client) Status(ctx context.Context, conn *domain.Connection) (*domain.StatusResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, conn, "status", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.TransientDeliveryError{Status: resp.StatusCode, Body: c.readError(resp.Body)}
	}

	var st domain.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &st, nil
}

// Probe reports whether the destination answers its status endpoint
func (c *Client) Probe(ctx context.Context, conn *domain.Connection) error {
	_, err := c.Status(ctx, conn)
	return err
}

// EnsureAwake probes the destination and, when that fails, sends one wake
// request to the site root, pauses and probes again. It never fails the
// caller; the return value only reports whether the site answered.
func (c *Client) EnsureAwake(ctx context.Context, conn *domain.Connection) bool {
	err := c.Probe(ctx, conn)
	if err == nil {
		return true
	}
	c.logger.Debug("probe failed, waking destination", "destination", conn.BaseURL, "error", err)

	wakeCtx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	if resp, err := c.do(wakeCtx, http.MethodGet, conn, "", nil); err == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
	}
	cancel()

	if c.cfg.WakePause > 0 {
		t := time.NewTimer(c.cfg.WakePause)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
	}

	if err := c.Probe(ctx, conn); err != nil {
		c.logger.Info("destination still not answering probes, sending anyway",
			"destination", conn.BaseURL, "error", err)
		return false
	}
	return true
}

// Send delivers a payload. Create posts to /receive, update to /update.
// Any failure is returned as a *domain.TransientDeliveryError.
func (c *Client) Send(ctx context.Context, conn *domain.Connection, op domain.Operation, payload *domain.Payload) (*domain.ReceiveResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	endpoint := "receive"
	if op == domain.OpUpdate {
		endpoint = "update"
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.do(ctx, http.MethodPost, conn, endpoint, body)
	if err != nil {
		return nil, &domain.TransientDeliveryError{Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("destination responded",
		"destination", conn.BaseURL,
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.TransientDeliveryError{Status: resp.StatusCode, Body: c.readError(resp.Body)}
	}

	var out domain.ReceiveResponse
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &domain.TransientDeliveryError{Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			c.logger.Warn("destination answered 2xx with an unreadable body",
				"destination", conn.BaseURL, "error", err)
		}
	}
	out.Success = true
	return &out, nil
}

func (c *Client) do(ctx context.Context, method string, conn *domain.Connection, path string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, conn.Endpoint(path), r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(KeyHeader, conn.Secret)
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("timed out: %w", err)
		}
		return nil, err
	}
	return resp, nil
}

// readError reads at most MaxErrorBody bytes of an error answer. A few
// extra bytes are read so a rune split at the limit can be recovered.
func (c *Client) readError(r io.Reader) string {
	buf, _ := io.ReadAll(io.LimitReader(r, int64(c.cfg.MaxErrorBody)+utf8.UTFMax))
	return domain.CleanText(string(buf), c.cfg.MaxErrorBody)
}

// IsNotFound reports whether err is a 404 answer from a destination
func IsNotFound(err error) bool {
	var te *domain.TransientDeliveryError
	return errors.As(err, &te) && te.Status == http.StatusNotFound
}
