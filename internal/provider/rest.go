package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// restClient is a minimal bearer-token JSON client for provider
// management APIs. GCP and Azure adapters are built on it; both expose
// plain REST surfaces where an SDK would add little.
type restClient struct {
	provider   ID
	token      string
	httpClient *http.Client
}

func newRESTClient(provider ID, token string, timeout time.Duration) *restClient {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &restClient{
		provider: provider,
		token:    token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// do issues a JSON request and decodes the response body into out when
// out is non-nil. Non-2xx responses are returned as classified
// provider errors.
func (c *restClient) do(ctx context.Context, op, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return Fatal(c.provider, op, fmt.Errorf("encode request: %w", err))
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return Fatal(c.provider, op, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network-level failures (timeouts, resets) are retryable.
		return Transient(c.provider, op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transient(c.provider, op, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return wrapHTTPStatus(c.provider, op, resp.StatusCode, string(respBody))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return Fatal(c.provider, op, fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}

// isNotFound reports whether err is a provider REST 404, which delete
// operations treat as success.
func isNotFound(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Status == http.StatusNotFound
}
