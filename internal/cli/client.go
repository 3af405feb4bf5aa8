package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haskel/foodia/internal/budget"
	"github.com/haskel/foodia/internal/server"
	"github.com/haskel/foodia/internal/server/middleware"
)

// Client calls the foodia HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// APIError is a non-2xx reply carrying the server's error message.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.Status)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Message)
}

func NewClient() *Client {
	return &Client{
		baseURL: strings.TrimRight(GetServerURL(), "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Health(ctx context.Context) (*server.HealthResponse, error) {
	var out server.HealthResponse
	return &out, c.call(ctx, http.MethodGet, "/health", "", nil, &out)
}

func (c *Client) Model(ctx context.Context) (*server.ModelResponse, error) {
	var out server.ModelResponse
	return &out, c.call(ctx, http.MethodGet, "/model", "", nil, &out)
}

// Predict uploads a photo. A photo the model could not classify comes back
// as a result with Success false rather than an error.
func (c *Client) Predict(ctx context.Context, image []byte, q url.Values) (*server.PredictResponse, error) {
	path := "/predict"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out server.PredictResponse
	err := c.call(ctx, http.MethodPost, path, http.DetectContentType(image), bytes.NewReader(image), &out)

	var apiErr *APIError
	if errors.As(err, &apiErr) && out.Error != "" {
		switch apiErr.Status {
		case http.StatusUnprocessableEntity, http.StatusServiceUnavailable:
			return &out, nil
		}
	}
	return &out, err
}

func (c *Client) Budget(ctx context.Context, req server.BudgetRequest) (*budget.Evaluation, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var out budget.Evaluation
	return &out, c.call(ctx, http.MethodPost, "/budget", "application/json", bytes.NewReader(body), &out)
}

func (c *Client) Calories(ctx context.Context, meal string) (*server.CaloriesResponse, error) {
	var out server.CaloriesResponse
	path := "/calories?" + url.Values{"meal": {meal}}.Encode()
	return &out, c.call(ctx, http.MethodGet, path, "", nil, &out)
}

// call sends one request and decodes the JSON reply into out. Error replies
// are still decoded into out when they have its shape.
func (c *Client) call(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(middleware.RequestIDHeader, uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	decodeErr := json.Unmarshal(data, out)
	if resp.StatusCode/100 != 2 {
		var e server.ErrorResponse
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if decodeErr != nil {
		return fmt.Errorf("decode %s response: %w", path, decodeErr)
	}
	return nil
}
