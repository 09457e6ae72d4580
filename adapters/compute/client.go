package compute

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

	"pivotdesk/domain/pivot"
	"pivotdesk/internal"
	"pivotdesk/internal/errors"
)

const serviceName = "pivot compute"

// Config holds connection settings for the compute service
type Config struct {
	BaseURL string
	Timeout time.Duration
	APIKey  string // optional bearer token
}

// Client calls the external pivot compute service over HTTP.
// Each request is POST {BaseURL}/datasources/{dataSource}/pivot with a
// pivot.ComputeRequest body and a pivot.ComputeResponse reply.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *internal.Logger
}

// NewClient creates a compute client
func NewClient(config Config, logger *internal.Logger) (*Client, error) {
	baseURL := strings.TrimSpace(config.BaseURL)
	if baseURL == "" {
		return nil, errors.ConfigInvalid("missing compute service URL")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, &errors.AppError{Code: errors.CodeConfigInvalid, Message: "invalid compute service URL", Cause: err}
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = internal.NewDefaultLogger()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     config.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("ComputeClient"),
	}, nil
}

// Compute sends req for dataSource and decodes the pivot grid
func (c *Client) Compute(ctx context.Context, dataSource string, req pivot.ComputeRequest) (*pivot.ComputeResponse, error) {
	if strings.TrimSpace(dataSource) == "" {
		return nil, errors.InvalidInput("missing data source")
	}

	raw, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "marshal compute request")
	}

	endpoint := fmt.Sprintf("%s/datasources/%s/pivot", c.baseURL, url.PathEscape(dataSource))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "build compute request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.ExternalServiceError(serviceName, err)
	}
	defer resp.Body.Close()

	respRaw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.ExternalServiceError(serviceName, fmt.Errorf("read response: %w", err))
	}
	c.logger.Debug("POST %s -> %d in %s (%d bytes)", endpoint, resp.StatusCode, time.Since(start).Round(time.Millisecond), len(respRaw))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.NotFound("data source " + dataSource)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, errors.InvalidInput(fmt.Sprintf("compute rejected request: %s", truncate(respRaw)))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, errors.ExternalServiceError(serviceName, fmt.Errorf("http %d: %s", resp.StatusCode, truncate(respRaw)))
	}

	var decoded pivot.ComputeResponse
	if err := json.Unmarshal(respRaw, &decoded); err != nil {
		return nil, errors.ExternalServiceError(serviceName, fmt.Errorf("unmarshal response: %w", err))
	}
	if decoded.Data == nil {
		decoded.Data = []pivot.ResultRow{}
	}
	return &decoded, nil
}

func truncate(b []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
