package sync

import (
	"context"
	"time"

	"github.com/loja-mae/fieldsync/internal/models"
	"github.com/loja-mae/fieldsync/internal/remote"
)

// MutationQueue is the slice of the queue the sync manager drives.
type MutationQueue interface {
	// ListByKind returns all items of one kind in enqueue order.
	ListByKind(ctx context.Context, kind models.Kind) ([]*models.QueuedItem, error)

	// Counts returns the per-status breakdown of the queue.
	Counts(ctx context.Context) (models.StatusCounts, error)

	// Update merges the non-nil fields into the item.
	Update(ctx context.Context, id string, update models.ItemUpdate) (*models.QueuedItem, error)

	// Remove deletes an item after it synced.
	Remove(ctx context.Context, id string) error
}

// PolicyEvaluator decides whether a sync pass may run right now.
type PolicyEvaluator interface {
	CanSync(ctx context.Context) (bool, error)
}

// RemoteAPI is the back-office endpoint surface the manager replays
// queued mutations against.
type RemoteAPI interface {
	SubmitVisit(ctx context.Context, payload *models.VisitPayload) (*remote.SubmitResult, error)
	SubmitChecklist(ctx context.Context, payload *models.ChecklistPayload) (*remote.SubmitResult, error)
	CreateLeadNote(ctx context.Context, leadID string, payload *models.NotePayload) (*remote.SubmitResult, error)
	CreateClientNote(ctx context.Context, clientID string, payload *models.NotePayload) (*remote.SubmitResult, error)
}

// Manager defines the interface for sync operations
type Manager interface {
	// TriggerSync runs one full drain pass over all eligible queued
	// items. A non-forced trigger while a pass is in flight is dropped
	// with a SyncInProgressError.
	TriggerSync(ctx context.Context, force bool) (models.SyncResult, error)

	// Status returns a snapshot of the engine for the status surface.
	Status(ctx context.Context) (*models.SyncStatus, error)
}

// Scheduler defines the interface for background sync scheduling
type Scheduler interface {
	// StartBackgroundSync runs one immediate pass, then re-triggers on a
	// fixed interval. Starting again replaces the previous timer.
	StartBackgroundSync(ctx context.Context, interval time.Duration)

	// StopBackgroundSync cancels the timer; safe to call when stopped.
	StopBackgroundSync()
}
