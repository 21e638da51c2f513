package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// client talks to the controller's local HTTP API. Only GET requests are
// retried; commands are sent exactly once.
type client struct {
	baseURL string
	token   string
	http    *http.Client
	retry   *retrier
	logger  zerolog.Logger
}

func newClient(baseURL, token string, logger zerolog.Logger) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
		retry:   newRetrier(200*time.Millisecond, 2*time.Second, 3, logger),
		logger:  logger,
	}
}

type apiError struct {
	Status    int
	Message   string
	RequestID string
}

func (e *apiError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("server returned %d: %s (request %s)", e.Status, e.Message, e.RequestID)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// commandResponse is the body of every /v1/commands reply.
type commandResponse struct {
	Outcome struct {
		Op      string    `json:"op"`
		Outcome string    `json:"outcome"`
		Reason  string    `json:"reason"`
		Cause   string    `json:"cause"`
		At      time.Time `json:"at"`
	} `json:"outcome"`
	RequestID string `json:"request_id"`
}

func (c *client) get(ctx context.Context, path string, out any) error {
	return c.retry.do(ctx, func(ctx context.Context) error {
		resp, err := c.send(ctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := statusRetryError(resp); err != nil {
			return err
		}
		return decodeResponse(resp, out)
	}, isRetryableHTTP)
}

func (c *client) post(ctx context.Context, path string, body, out any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = data
	}
	resp, err := c.send(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

// command posts to a command route. Denied and failed outcomes come back with
// non-2xx codes but still carry an outcome body, so they are decoded rather
// than turned into errors.
func (c *client) command(ctx context.Context, path string, body any) (*commandResponse, error) {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = data
	}
	resp, err := c.send(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusForbidden, http.StatusBadGateway:
		var out commandResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("decode command response: %w", err)
		}
		if out.Outcome.Outcome != "" {
			return &out, nil
		}
		return nil, &apiError{Status: resp.StatusCode, Message: "response carried no outcome", RequestID: out.RequestID}
	default:
		return nil, readAPIError(resp)
	}
}

func (c *client) send(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.logger.Debug().Str("method", method).Str("path", path).Msg("Calling controller")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to controller: %w", err)
	}
	return resp, nil
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	var body struct {
		Error     string `json:"error"`
		RequestID string `json:"request_id"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
		if body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
	}
	return &apiError{Status: resp.StatusCode, Message: body.Error, RequestID: body.RequestID}
}
