package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rickgao/botmanager/internal/token"
)

// APIError represents a non-2xx HTTP response.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
	RetryAfter time.Duration // From Retry-After on 429
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// MethodError is an "ok": false reply from a Web API method.
type MethodError struct {
	Method string
	Code   string
}

func (e *MethodError) Error() string {
	return fmt.Sprintf("slack %s: %s", e.Method, e.Code)
}

// Is reports auth failures as token.ErrInvalidCredential.
func (e *MethodError) Is(target error) bool {
	if target != token.ErrInvalidCredential {
		return false
	}
	_, ok := authErrors[e.Code]
	return ok
}

// doRequest POSTs a form-encoded Web API call authenticated with tok.
func (c *Client) doRequest(ctx context.Context, method, tok string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
		}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
		return nil, apiErr
	}

	return body, nil
}

// doWithRetry performs a call with exponential backoff retry.
func (c *Client) doWithRetry(ctx context.Context, method, tok string, params url.Values) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Add jitter: backoff * (0.5 to 1.5)
			wait := backoff/2 + time.Duration(rand.Int63n(int64(backoff)+1))
			var apiErr *APIError
			if errors.As(lastErr, &apiErr) && apiErr.RetryAfter > wait {
				wait = apiErr.RetryAfter
			}
			c.logger.Debug("retrying request",
				"attempt", attempt,
				"backoff", wait,
				"method", method,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}

			backoff *= 2
		}

		body, err := c.doRequest(ctx, method, tok, params)
		if err == nil {
			return body, nil
		}

		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.IsRetryable() {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// call runs a Web API method and decodes the reply into result, turning
// "ok": false into a *MethodError.
func (c *Client) call(ctx context.Context, method, tok string, params url.Values, result any) error {
	body, err := c.doWithRetry(ctx, method, tok, params)
	if err != nil {
		return err
	}

	var envelope Response
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if !envelope.OK {
		code := envelope.Error
		if code == "" {
			code = "unknown_error"
		}
		return &MethodError{Method: method, Code: code}
	}
	if envelope.Warning != "" {
		c.logger.Debug("slack api warning", "method", method, "warning", envelope.Warning)
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
