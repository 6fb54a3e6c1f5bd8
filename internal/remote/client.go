// Package remote is the client for the back-office REST API that accepts
// synced entities.
package remote

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

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/loja-mae/fieldsync/internal/config"
	apperrors "github.com/loja-mae/fieldsync/internal/errors"
	"github.com/loja-mae/fieldsync/internal/models"
)

// SubmitResult is the server's answer to a successful submission.
type SubmitResult struct {
	ID string `json:"id"`
}

// Client talks to the back-office API over HTTP with JSON bodies.
type Client struct {
	client  *http.Client
	baseURL string
	retry   config.RetryConfig
	logger  *logrus.Logger
}

// ClientOption allows configuring the remote client
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client; used in tests.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.client = httpClient
	}
}

// NewClient creates a new back-office API client authorized with the
// given token.
func NewClient(cfg *config.RemoteConfig, logger *logrus.Logger, opts ...ClientOption) *Client {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: cfg.Token},
	)
	httpClient := oauth2.NewClient(context.Background(), ts)
	httpClient.Timeout = cfg.Timeout

	client := &Client{
		client:  httpClient,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		retry:   cfg.Retry,
		logger:  logger,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// SubmitVisit sends a visit payload: POST for locally created visits, PUT
// to the id-qualified endpoint when the server already knows the visit.
func (c *Client) SubmitVisit(ctx context.Context, payload *models.VisitPayload) (*SubmitResult, error) {
	if payload == nil {
		return nil, NewValidationError("payload", "cannot be nil")
	}
	method, path := http.MethodPost, "/visits"
	if models.HasServerID(payload.ID) {
		method, path = http.MethodPut, "/visits/"+url.PathEscape(payload.ID)
	}
	return c.submit(ctx, method, path, payload)
}

// SubmitChecklist sends an installation checklist. All photo and signature
// references must already be resolved to remote URLs.
func (c *Client) SubmitChecklist(ctx context.Context, payload *models.ChecklistPayload) (*SubmitResult, error) {
	if payload == nil {
		return nil, NewValidationError("payload", "cannot be nil")
	}
	method, path := http.MethodPost, "/installation-checklists"
	if models.HasServerID(payload.ID) {
		method, path = http.MethodPut, "/installation-checklists/"+url.PathEscape(payload.ID)
	}
	return c.submit(ctx, method, path, payload)
}

// CreateLeadNote appends a note to a lead. Notes are append-only and
// always POSTed.
func (c *Client) CreateLeadNote(ctx context.Context, leadID string, payload *models.NotePayload) (*SubmitResult, error) {
	if leadID == "" {
		return nil, NewValidationError("leadID", "cannot be empty")
	}
	if payload == nil {
		return nil, NewValidationError("payload", "cannot be nil")
	}
	return c.submit(ctx, http.MethodPost, "/leads/"+url.PathEscape(leadID)+"/notes", payload)
}

// CreateClientNote appends a note to a client record.
func (c *Client) CreateClientNote(ctx context.Context, clientID string, payload *models.NotePayload) (*SubmitResult, error) {
	if clientID == "" {
		return nil, NewValidationError("clientID", "cannot be empty")
	}
	if payload == nil {
		return nil, NewValidationError("payload", "cannot be nil")
	}
	return c.submit(ctx, http.MethodPost, "/clients/"+url.PathEscape(clientID)+"/notes", payload)
}

// submit performs one request and decodes the outcome. Transport failures
// come back as NETWORK errors; non-2xx responses as APIErrors carrying the
// body's error field when present.
func (c *Client) submit(ctx context.Context, method, path string, payload interface{}) (*SubmitResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
	}).Debug("Submitting entity to back-office API")

	resp, err := c.doWithRetry(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewNetworkError("failed to read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := rejectionMessage(respBody)
		return nil, apperrors.NewRemoteRejectedError(msg, NewAPIError(resp.StatusCode, msg))
	}

	result := &SubmitResult{}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return nil, NewAPIError(resp.StatusCode, "malformed response body")
		}
	}
	return result, nil
}

// doWithRetry performs the request, retrying transport failures with
// exponential backoff. Submissions carry device-generated ids, so a replay
// of a request whose response was lost is deduplicated server side.
func (c *Client) doWithRetry(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	backoff := c.retry.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, apperrors.NewNetworkError(fmt.Sprintf("%s %s cancelled", method, path), ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
			if c.retry.MaxBackoff > 0 && backoff > c.retry.MaxBackoff {
				backoff = c.retry.MaxBackoff
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		c.logger.WithError(err).WithFields(logrus.Fields{
			"method":  method,
			"path":    path,
			"attempt": attempt + 1,
		}).Debug("Transport failure, will retry")
	}

	return nil, apperrors.NewNetworkError(fmt.Sprintf("%s %s failed", method, path), lastErr)
}

// rejectionMessage extracts the server's diagnostic from an error body,
// falling back to the raw body text.
func rejectionMessage(body []byte) string {
	var parsed struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		return parsed.Error
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = "request rejected"
	}
	return msg
}
