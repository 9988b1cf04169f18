package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/lanscore/internal/domain/types"
	"github.com/okian/lanscore/internal/reconcile"
	"github.com/okian/lanscore/pkg/logger"
)

// Retry settings for a pass that is already running on the service.
const (
	busyRetries = 10
	busyBackoff = 500 * time.Millisecond
)

// ErrUnexpectedStatus is returned when the service answers with a status
// the client does not handle.
var ErrUnexpectedStatus = errors.New("unexpected status")

// HTTPClient talks to the lanscore ops API.
type HTTPClient struct {
	client  *http.Client
	baseURL string
	backoff time.Duration
}

// NewHTTPClient creates a client for the service at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		backoff: busyBackoff,
	}
}

// Health checks GET /healthz.
func (c *HTTPClient) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: healthz returned %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return nil
}

// TriggerReconcile asks the service for a pass, waiting out passes that are
// already running.
func (c *HTTPClient) TriggerReconcile(ctx context.Context) (*reconcile.Result, error) {
	for attempt := 0; ; attempt++ {
		resp, err := c.do(ctx, http.MethodPost, "/reconcile")
		if err != nil {
			return nil, err
		}
		body, err := readResponseBody(resp)
		if err != nil {
			return nil, err
		}

		switch resp.StatusCode {
		case http.StatusAccepted:
			var res reconcile.Result
			if err := json.Unmarshal(body, &res); err != nil {
				return nil, fmt.Errorf("decoding pass result: %w", err)
			}
			return &res, nil
		case http.StatusConflict:
			if attempt >= busyRetries {
				return nil, fmt.Errorf("%w: pass still in progress after %d attempts", ErrUnexpectedStatus, attempt+1)
			}
			logger.Get().Debug(ctx, "pass in progress, retrying", logger.Int("attempt", attempt+1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff):
			}
		default:
			return nil, fmt.Errorf("%w: reconcile returned %d: %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(body)))
		}
	}
}

// Leaderboard fetches GET /leaderboard for a LAN.
func (c *HTTPClient) Leaderboard(ctx context.Context, lanID int64, limit int) ([]types.Entry, error) {
	q := url.Values{}
	q.Set("lan", strconv.FormatInt(lanID, 10))
	q.Set("limit", strconv.Itoa(limit))

	resp, err := c.do(ctx, http.MethodGet, "/leaderboard?"+q.Encode())
	if err != nil {
		return nil, err
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: leaderboard returned %d: %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var entries []types.Entry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decoding leaderboard: %w", err)
	}
	return entries, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.client.Do(req)
}

// readResponseBody reads and closes the response body
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
