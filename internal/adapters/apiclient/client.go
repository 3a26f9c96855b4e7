package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	e "github.com/mkleiva/riskview/internal/errors"
	"github.com/mkleiva/riskview/internal/logging"
	"golang.org/x/time/rate"
)

const userAgent = "riskview (+https://github.com/mkleiva/riskview)"

type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the governance backend. All fetch orchestration and caching
// happens above it; the client only shapes requests, maps status codes to
// sentinel errors and decodes wire payloads into domain types.
type Client struct {
	httpClient HttpClient
	baseURL    string
	token      string
	limiter    *rate.Limiter
}

func New(httpClient HttpClient, baseURL, token string, requestsPerSecond float64) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		token:      token,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), int(requestsPerSecond)+1),
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	logger := logging.FromContext(ctx)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: waiting for request slot: %w", e.NetworkError, err)
	}

	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to create request", "error", err)
		return nil, fmt.Errorf("%w: %w", e.NetworkError, err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to send request", "method", method, "path", path, "error", err)
		return nil, fmt.Errorf("%w: %w", e.NetworkError, err)
	}

	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to read response body", "error", err)
		return nil, fmt.Errorf("%w: %w", e.NetworkError, err)
	}

	if err := errorForStatus(resp.StatusCode, data); err != nil {
		logger.ErrorContext(ctx, "Request failed", "method", method, "path", path, "statusCode", resp.StatusCode)
		return nil, err
	}

	return data, nil
}

func errorForStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	detail := serverDetail(body)

	switch {
	case statusCode == http.StatusBadRequest || statusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", e.ValidationError, detail)
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", e.NotFoundError, detail)
	case statusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", e.ConflictError, detail)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w (%d): %s", e.RatelimitExceededError, statusCode, detail)
	default:
		return fmt.Errorf("%w (%d): %s", e.NetworkError, statusCode, detail)
	}
}

func serverDetail(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return "server did not include an error message"
}

// queryFromParams flattens the orchestrator's canonical fetch parameters into
// URL query values.
func queryFromParams(params map[string]any) url.Values {
	query := url.Values{}
	for key, value := range params {
		query.Set(key, fmt.Sprint(value))
	}
	return query
}
