package syncer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hitch/internal/models"
)

// Applier replays a single queued action against the backend.
type Applier interface {
	Apply(ctx context.Context, item models.SyncItem) error
}

// HTTPApplier replays actions as plain HTTP requests. The backend's route
// contract is external: the applier only assumes 2xx means success and
// anything else is a failure to be retried.
type HTTPApplier struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPApplier(baseURL, token string) *HTTPApplier {
	return &HTTPApplier{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// methodFor maps queue verbs onto HTTP methods. Items written by older
// app versions carry create/update/delete, newer ones the method itself.
func methodFor(m string) string {
	switch strings.ToLower(m) {
	case "create":
		return http.MethodPost
	case "update":
		return http.MethodPut
	case "delete":
		return http.MethodDelete
	case "get":
		return http.MethodGet
	}
	return strings.ToUpper(m)
}

func (a *HTTPApplier) Apply(ctx context.Context, item models.SyncItem) error {
	var body io.Reader
	if len(item.Payload) > 0 {
		body = bytes.NewReader(item.Payload)
	}

	req, err := http.NewRequestWithContext(ctx, methodFor(item.Method), a.BaseURL+item.Endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("remote rejected %s %s: status %d", req.Method, item.Endpoint, resp.StatusCode)
	}
	return nil
}
