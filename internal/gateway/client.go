package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/GoPolymarket/frontdoor/internal/pkg/metrics"
	"golang.org/x/time/rate"
)

// Error is a non-2xx gateway response. Message is the backend's own text.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}

// Client calls the launch gateway. Requests are paced by a token bucket so a
// tight poll loop cannot flood the backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(baseURL string, timeout time.Duration, rps float64, burst int) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Bootstrap(ctx context.Context) (*Bootstrap, error) {
	var out Bootstrap
	if err := c.do(ctx, "bootstrap", http.MethodGet, "/bootstrap", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SuggestConfig(ctx context.Context, req SuggestRequest) (*SuggestResponse, error) {
	var out SuggestResponse
	if err := c.do(ctx, "suggest_config", http.MethodPost, "/suggest-config", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Challenge(ctx context.Context, req ChallengeRequest) (*ChallengeResponse, error) {
	var out ChallengeResponse
	if err := c.do(ctx, "challenge", http.MethodPost, "/challenge", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Verify(ctx context.Context, req VerifyRequest) error {
	return c.do(ctx, "verify", http.MethodPost, "/verify", req, nil)
}

func (c *Client) Session(ctx context.Context, sessionID string) (*SessionStatus, error) {
	var out SessionStatus
	if err := c.do(ctx, "session", http.MethodGet, "/session/"+url.PathEscape(sessionID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) OnboardingState(ctx context.Context, sessionID string) (*OnboardingState, error) {
	var out OnboardingState
	path := "/onboarding/state?" + url.Values{"session_id": {sessionID}}.Encode()
	if err := c.do(ctx, "onboarding_state", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) OnboardingChat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var out ChatResponse
	if err := c.do(ctx, "onboarding_chat", http.MethodPost, "/onboarding/chat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	start := time.Now()
	defer func() {
		metrics.LatencyBucket.WithLabelValues("gateway_" + endpoint).Observe(time.Since(start).Seconds())
	}()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", endpoint, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway %s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read gateway %s response: %w", endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{StatusCode: resp.StatusCode, Message: errorText(resp.StatusCode, raw)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode gateway %s response: %w", endpoint, err)
	}
	return nil
}

// errorText picks the backend message from error, message, detail in that
// order. Non-string details are rendered as compact JSON.
func errorText(status int, raw []byte) string {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err == nil {
		for _, key := range []string{"error", "message", "detail"} {
			v, ok := body[key]
			if !ok {
				continue
			}
			var s string
			if err := json.Unmarshal(v, &s); err == nil {
				if s = strings.TrimSpace(s); s != "" {
					return s
				}
				continue
			}
			if t := strings.TrimSpace(string(v)); t != "" && t != "null" {
				return t
			}
		}
	}
	return fmt.Sprintf("gateway returned %d %s", status, http.StatusText(status))
}
