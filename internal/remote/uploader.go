package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	apperrors "github.com/loja-mae/fieldsync/internal/errors"
	"github.com/loja-mae/fieldsync/internal/models"
)

// Uploader is the external file-upload collaborator: binary content in, a
// durable remote URL out.
type Uploader interface {
	Upload(ctx context.Context, rec *models.AttachmentRecord) (string, error)
}

// HTTPUploader uploads attachments to the back-office upload endpoint as
// multipart form data.
type HTTPUploader struct {
	client  *http.Client
	baseURL string
	logger  *logrus.Logger
}

// NewHTTPUploader creates an uploader sharing the client's authorized
// HTTP transport.
func NewHTTPUploader(client *Client, logger *logrus.Logger) *HTTPUploader {
	return &HTTPUploader{
		client:  client.client,
		baseURL: client.baseURL,
		logger:  logger,
	}
}

// Upload sends the blob and returns the remote URL the server stored it
// under.
func (u *HTTPUploader) Upload(ctx context.Context, rec *models.AttachmentRecord) (string, error) {
	if rec == nil || len(rec.Content) == 0 {
		return "", NewValidationError("attachment", "cannot be empty")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", rec.FileID)
	if err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := part.Write(rec.Content); err != nil {
		return "", fmt.Errorf("failed to write upload content: %w", err)
	}
	if err := writer.WriteField("purpose", string(rec.Purpose)); err != nil {
		return "", fmt.Errorf("failed to write upload purpose: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finish upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/uploads", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	u.logger.WithFields(logrus.Fields{
		"item_id": rec.ItemID,
		"file_id": rec.FileID,
		"purpose": rec.Purpose,
		"size":    len(rec.Content),
	}).Debug("Uploading attachment")

	resp, err := u.client.Do(req)
	if err != nil {
		return "", apperrors.NewNetworkError("attachment upload failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperrors.NewNetworkError("failed to read upload response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := rejectionMessage(respBody)
		return "", apperrors.NewRemoteRejectedError(msg, NewAPIError(resp.StatusCode, msg))
	}

	var parsed struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil || strings.TrimSpace(parsed.URL) == "" {
		return "", NewAPIError(resp.StatusCode, "upload response missing url")
	}
	return parsed.URL, nil
}
