package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	apperrors "github.com/loja-mae/fieldsync/internal/errors"
	"github.com/loja-mae/fieldsync/internal/models"
	syncpkg "github.com/loja-mae/fieldsync/internal/sync"
)

// QueueService is the slice of the mutation queue the status surface
// needs.
type QueueService interface {
	Enqueue(ctx context.Context, kind models.Kind, parentID string, payload interface{}) (*models.QueuedItem, error)
	ListAll(ctx context.Context) ([]*models.QueuedItem, error)
	Counts(ctx context.Context) (models.StatusCounts, error)
	RetryFailed(ctx context.Context) (int, error)
}

// PreferencesService persists the mobile-data toggle.
type PreferencesService interface {
	GetSyncPreferences(ctx context.Context) (*models.SyncPreferences, error)
	SaveSyncPreferences(ctx context.Context, prefs *models.SyncPreferences) error
}

type Handler struct {
	queue   QueueService
	manager syncpkg.Manager
	prefs   PreferencesService
	logger  *logrus.Logger
}

func NewHandler(queue QueueService, manager syncpkg.Manager, prefs PreferencesService, logger *logrus.Logger) *Handler {
	return &Handler{
		queue:   queue,
		manager: manager,
		prefs:   prefs,
		logger:  logger,
	}
}

// QueueListResponse is the queue snapshot returned to the status UI.
type QueueListResponse struct {
	Items  []*models.QueuedItem `json:"items"`
	Counts models.StatusCounts  `json:"counts"`
}

// EnqueueRequest is the body of a queue submission from the offline form
// UI.
type EnqueueRequest struct {
	ParentID string          `json:"parent_id"`
	Payload  json.RawMessage `json:"payload" binding:"required"`
}

// RetryResponse reports how many failed items were reset.
type RetryResponse struct {
	Retried int `json:"retried"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error string `json:"error"`
}

// GetQueue returns the full queue with counts by status.
func (h *Handler) GetQueue(c *gin.Context) {
	items, err := h.queue.ListAll(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list queue")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list queue"})
		return
	}

	counts := models.StatusCounts{}
	for _, item := range items {
		counts.Add(item.Status)
	}

	if items == nil {
		items = []*models.QueuedItem{}
	}
	c.JSON(http.StatusOK, QueueListResponse{Items: items, Counts: counts})
}

// EnqueueItem records a new offline mutation. Used by the form UI when a
// write could not reach the server.
func (h *Handler) EnqueueItem(c *gin.Context) {
	kind := models.Kind(c.Param("kind"))
	if !kind.IsValid() {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown entity kind: " + c.Param("kind")})
		return
	}

	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	item, err := h.queue.Enqueue(c.Request.Context(), kind, req.ParentID, req.Payload)
	if err != nil {
		if apperrors.IsInvalidInput(err) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		h.logger.WithError(err).Error("Failed to enqueue item")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to enqueue item"})
		return
	}

	c.JSON(http.StatusCreated, item)
}

// RetryFailed resets all failed items to pending.
func (h *Handler) RetryFailed(c *gin.Context) {
	count, err := h.queue.RetryFailed(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to retry failed items")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to retry failed items"})
		return
	}
	c.JSON(http.StatusOK, RetryResponse{Retried: count})
}

// TriggerSync runs a sync pass now. With force=true a pass is run even
// while another is in flight.
func (h *Handler) TriggerSync(c *gin.Context) {
	force := c.Query("force") == "true"

	result, err := h.manager.TriggerSync(c.Request.Context(), force)
	if err != nil {
		if apperrors.IsSyncInProgress(err) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "sync already in progress"})
			return
		}
		h.logger.WithError(err).Error("Sync pass failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "sync pass failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetSyncStatus returns the engine snapshot for the status UI.
func (h *Handler) GetSyncStatus(c *gin.Context) {
	status, err := h.manager.Status(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to read sync status")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to read sync status"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetPreferences returns the persisted sync preferences.
func (h *Handler) GetPreferences(c *gin.Context) {
	prefs, err := h.prefs.GetSyncPreferences(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to read sync preferences")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to read sync preferences"})
		return
	}
	c.JSON(http.StatusOK, prefs)
}

// UpdatePreferences persists the sync preferences (the mobile-data
// toggle).
func (h *Handler) UpdatePreferences(c *gin.Context) {
	var prefs models.SyncPreferences
	if err := c.ShouldBindJSON(&prefs); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.prefs.SaveSyncPreferences(c.Request.Context(), &prefs); err != nil {
		h.logger.WithError(err).Error("Failed to save sync preferences")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to save sync preferences"})
		return
	}
	c.JSON(http.StatusOK, prefs)
}

// Health reports process liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
