package api

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title FieldSync API
// @version 1.0
// @description Offline mutation queue and synchronization engine for field sales agents
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
// @host localhost:8090
// @BasePath /api/v1
// @schemes http

// SetupRouter configures the API routes
func SetupRouter(h *Handler) *gin.Engine {
	r := gin.Default()

	// API documentation
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// @Summary Health check
	// @Description Reports process liveness
	// @Tags health
	// @Produce json
	// @Success 200 {object} map[string]string
	// @Router /health [get]
	r.GET("/health", h.Health)

	// API v1 group
	v1 := r.Group("/api/v1")
	{
		queue := v1.Group("/queue")
		{
			// @Summary List the mutation queue
			// @Description Get all queued mutations in sync order with counts by status
			// @Tags queue
			// @Accept json
			// @Produce json
			// @Success 200 {object} QueueListResponse
			// @Failure 500 {object} ErrorResponse
			// @Router /queue [get]
			queue.GET("", h.GetQueue)

			// @Summary Enqueue an offline mutation
			// @Description Record a mutation that could not reach the server for later sync
			// @Tags queue
			// @Accept json
			// @Produce json
			// @Param kind path string true "Entity kind" Enums(visit, installation_checklist, lead_note, client_note)
			// @Param request body EnqueueRequest true "Mutation payload"
			// @Success 201 {object} models.QueuedItem
			// @Failure 400 {object} ErrorResponse
			// @Failure 500 {object} ErrorResponse
			// @Router /queue/{kind} [post]
			queue.POST("/:kind", h.EnqueueItem)

			// @Summary Retry failed items
			// @Description Reset all failed queue items to pending so the next pass retries them
			// @Tags queue
			// @Accept json
			// @Produce json
			// @Success 200 {object} RetryResponse
			// @Failure 500 {object} ErrorResponse
			// @Router /queue/retry-failed [post]
			queue.POST("/retry-failed", h.RetryFailed)
		}

		sync := v1.Group("/sync")
		{
			// @Summary Trigger a sync pass
			// @Description Run a sync pass now, draining the queue against the remote API
			// @Tags sync
			// @Accept json
			// @Produce json
			// @Param force query bool false "Run even if a pass is already in flight" default(false)
			// @Success 200 {object} models.SyncResult
			// @Failure 409 {object} ErrorResponse "Sync already in progress"
			// @Failure 500 {object} ErrorResponse
			// @Router /sync [post]
			sync.POST("", h.TriggerSync)

			// @Summary Get sync status
			// @Description Get the engine status including queue counts and last run outcome
			// @Tags sync
			// @Accept json
			// @Produce json
			// @Success 200 {object} models.SyncStatus
			// @Failure 500 {object} ErrorResponse
			// @Router /sync/status [get]
			sync.GET("/status", h.GetSyncStatus)
		}

		preferences := v1.Group("/preferences")
		{
			// @Summary Get sync preferences
			// @Description Get the persisted sync preferences
			// @Tags preferences
			// @Accept json
			// @Produce json
			// @Success 200 {object} models.SyncPreferences
			// @Failure 500 {object} ErrorResponse
			// @Router /preferences [get]
			preferences.GET("", h.GetPreferences)

			// @Summary Update sync preferences
			// @Description Persist the sync preferences, including the mobile data toggle
			// @Tags preferences
			// @Accept json
			// @Produce json
			// @Param request body models.SyncPreferences true "Preferences"
			// @Success 200 {object} models.SyncPreferences
			// @Failure 400 {object} ErrorResponse
			// @Failure 500 {object} ErrorResponse
			// @Router /preferences [put]
			preferences.PUT("", h.UpdatePreferences)
		}
	}

	return r
}
