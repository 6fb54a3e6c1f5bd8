// Package sync orchestrates draining the mutation queue against the
// back-office API.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/loja-mae/fieldsync/internal/errors"
	"github.com/loja-mae/fieldsync/internal/models"
	"github.com/loja-mae/fieldsync/internal/notify"
	"github.com/loja-mae/fieldsync/internal/remote"
	"github.com/loja-mae/fieldsync/internal/store"
)

// ManagerImpl implements the Manager interface. The in-flight guard is
// owned by the instance, so independent managers (e.g. under test) never
// interfere with each other.
type ManagerImpl struct {
	queue       MutationQueue
	attachments store.AttachmentStore
	policy      PolicyEvaluator
	api         RemoteAPI
	uploader    remote.Uploader
	notifier    notify.Notifier
	logger      *logrus.Logger

	// inFlight is a single-slot semaphore: at most one pass runs at a
	// time and a non-forced trigger during a pass is dropped.
	inFlight chan struct{}

	mu         sync.Mutex
	lastRunAt  *time.Time
	lastResult *models.SyncResult
	lastErr    string
}

// NewManager creates a new sync manager
func NewManager(
	queue MutationQueue,
	attachments store.AttachmentStore,
	policy PolicyEvaluator,
	api RemoteAPI,
	uploader remote.Uploader,
	notifier notify.Notifier,
	logger *logrus.Logger,
) *ManagerImpl {
	return &ManagerImpl{
		queue:       queue,
		attachments: attachments,
		policy:      policy,
		api:         api,
		uploader:    uploader,
		notifier:    notifier,
		logger:      logger,
		inFlight:    make(chan struct{}, 1),
	}
}

// TriggerSync runs one full drain pass. Kinds are processed in a fixed
// order and items in enqueue order within each kind; a per-item failure
// never blocks siblings. With force set the guard and the per-item status
// filter are bypassed; the caller accepts the double-processing risk.
func (m *ManagerImpl) TriggerSync(ctx context.Context, force bool) (models.SyncResult, error) {
	var result models.SyncResult

	acquired := false
	select {
	case m.inFlight <- struct{}{}:
		acquired = true
	default:
		if !force {
			m.notifier.Advise(notify.LevelInfo, "Sincronização já em progresso.")
			return result, apperrors.NewSyncInProgressError()
		}
	}
	defer func() {
		if acquired {
			<-m.inFlight
		}
	}()

	ok, err := m.policy.CanSync(ctx)
	if err != nil {
		// Could not even read preferences; abort the whole run with no
		// state mutation.
		m.logger.WithError(err).Error("Sync pass aborted: policy evaluation failed")
		m.notifier.Advise(notify.LevelError, "Não foi possível verificar as preferências de sincronização.")
		m.recordRun(result, err.Error())
		return result, err
	}
	if !ok {
		return result, nil
	}

	logger := m.logger.WithField("force", force)
	logger.Info("Starting sync pass")

	for _, kind := range models.KindOrder {
		items, err := m.queue.ListByKind(ctx, kind)
		if err != nil {
			// Local storage is misbehaving; skip this kind for this pass.
			logger.WithError(err).WithField("kind", kind).Error("Failed to list queue")
			continue
		}

		for _, item := range items {
			if !force && item.Status != models.StatusPending && item.Status != models.StatusFailed {
				result.Skipped++
				continue
			}
			if m.syncItem(ctx, item) {
				result.Synced++
			} else {
				result.Failed++
			}
		}
	}

	m.recordRun(result, "")
	m.announce(result)
	m.notifier.QueueChanged()

	logger.WithFields(logrus.Fields{
		"synced":  result.Synced,
		"failed":  result.Failed,
		"skipped": result.Skipped,
	}).Info("Sync pass finished")

	return result, nil
}

// syncItem pushes a single queued item through its state machine:
// syncing, then removed on success or failed with a diagnostic.
func (m *ManagerImpl) syncItem(ctx context.Context, item *models.QueuedItem) bool {
	logger := m.logger.WithFields(logrus.Fields{
		"item_id": item.ID,
		"kind":    item.Kind,
	})

	// Persist the transition first so a crash mid-call leaves an accurate
	// record instead of silently re-queuing.
	syncing := models.StatusSyncing
	attempts := item.Attempts + 1
	if _, err := m.queue.Update(ctx, item.ID, models.ItemUpdate{Status: &syncing, Attempts: &attempts}); err != nil {
		if apperrors.IsNotFound(err) {
			logger.Warn("Queue item vanished before sync, skipping")
		} else {
			logger.WithError(err).Error("Failed to mark item syncing, skipping")
		}
		return false
	}

	if err := m.submitItem(ctx, item); err != nil {
		msg := failureMessage(err)
		logger.WithError(err).Warn("Item failed to sync")

		failed := models.StatusFailed
		if _, uerr := m.queue.Update(ctx, item.ID, models.ItemUpdate{Status: &failed, Error: &msg}); uerr != nil {
			logger.WithError(uerr).Error("Failed to record item failure")
		}
		return false
	}

	if err := m.queue.Remove(ctx, item.ID); err != nil {
		logger.WithError(err).Error("Failed to remove synced item")
		return false
	}
	if err := m.attachments.DeleteAttachmentsForItem(ctx, item.ID); err != nil {
		// The mutation itself is on the server; leftover blobs are only
		// wasted space.
		logger.WithError(err).Warn("Failed to delete attachments of synced item")
	}

	logger.Info("Item synced")
	return true
}

// submitItem dispatches on the item kind and performs the remote call.
func (m *ManagerImpl) submitItem(ctx context.Context, item *models.QueuedItem) error {
	switch item.Kind {
	case models.KindVisit:
		payload := &models.VisitPayload{}
		if err := json.Unmarshal(item.Payload, payload); err != nil {
			return apperrors.NewValidationError("corrupt visit payload", err)
		}
		_, err := m.api.SubmitVisit(ctx, payload)
		return err

	case models.KindChecklist:
		payload := &models.ChecklistPayload{}
		if err := json.Unmarshal(item.Payload, payload); err != nil {
			return apperrors.NewValidationError("corrupt checklist payload", err)
		}
		m.resolveChecklistAttachments(ctx, item.ID, payload)
		_, err := m.api.SubmitChecklist(ctx, payload)
		return err

	case models.KindLeadNote:
		payload := &models.NotePayload{}
		if err := json.Unmarshal(item.Payload, payload); err != nil {
			return apperrors.NewValidationError("corrupt note payload", err)
		}
		_, err := m.api.CreateLeadNote(ctx, item.ParentID, payload)
		return err

	case models.KindClientNote:
		payload := &models.NotePayload{}
		if err := json.Unmarshal(item.Payload, payload); err != nil {
			return apperrors.NewValidationError("corrupt note payload", err)
		}
		_, err := m.api.CreateClientNote(ctx, item.ParentID, payload)
		return err
	}

	return apperrors.NewValidationError(fmt.Sprintf("unknown entity kind: %s", item.Kind), nil)
}

// resolveChecklistAttachments uploads every locally stored photo and
// substitutes the returned remote URL into the payload. Resolution is
// best-effort per attachment: a missing or unreadable blob degrades that
// field to empty instead of blocking the whole checklist.
func (m *ManagerImpl) resolveChecklistAttachments(ctx context.Context, itemID string, payload *models.ChecklistPayload) {
	for i := range payload.Fotos {
		photo := &payload.Fotos[i]
		if photo.OfflinePath == "" || photo.ID == "" {
			continue
		}

		logger := m.logger.WithFields(logrus.Fields{
			"item_id": itemID,
			"file_id": photo.ID,
		})

		rec, err := m.attachments.GetAttachment(ctx, itemID, photo.ID)
		if err != nil {
			if apperrors.IsNotFound(err) {
				logger.Warn("Referenced attachment missing, submitting checklist without it")
			} else {
				logger.WithError(err).Warn("Failed to read attachment, submitting checklist without it")
			}
			photo.OfflinePath = ""
			continue
		}

		url, err := m.uploader.Upload(ctx, rec)
		if err != nil {
			logger.WithError(err).Warn("Attachment upload failed, submitting checklist without it")
			photo.OfflinePath = ""
			continue
		}

		photo.URL = url
		photo.OfflinePath = ""
	}

	if payload.AssinaturaClienteURL != nil && *payload.AssinaturaClienteURL == models.SignaturePendingSentinel {
		payload.AssinaturaClienteURL = nil
		for i := range payload.Fotos {
			photo := payload.Fotos[i]
			if photo.Tipo == models.PhotoPurposeSignature && photo.URL != "" {
				url := photo.URL
				payload.AssinaturaClienteURL = &url
				break
			}
		}
	}
}

// Status returns a snapshot of the engine for the status surface.
func (m *ManagerImpl) Status(ctx context.Context) (*models.SyncStatus, error) {
	counts, err := m.queue.Counts(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return &models.SyncStatus{
		IsSyncing:  len(m.inFlight) > 0,
		LastRunAt:  m.lastRunAt,
		LastResult: m.lastResult,
		LastError:  m.lastErr,
		Counts:     counts,
	}, nil
}

func (m *ManagerImpl) recordRun(result models.SyncResult, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.lastRunAt = &now
	m.lastResult = &result
	m.lastErr = errMsg
}

// announce surfaces the aggregate outcome of a pass.
func (m *ManagerImpl) announce(result models.SyncResult) {
	if !result.Processed() {
		m.notifier.Advise(notify.LevelInfo, "Nenhum item para sincronizar.")
		return
	}
	if result.Synced > 0 {
		m.notifier.Advise(notify.LevelSuccess,
			fmt.Sprintf("%d item(s) sincronizado(s) com sucesso.", result.Synced))
	}
	if result.Failed > 0 {
		m.notifier.Advise(notify.LevelError,
			fmt.Sprintf("%d item(s) falharam ao sincronizar. Verifique a fila.", result.Failed))
	}
}

// failureMessage picks the diagnostic stored on a failed item: a server
// rejection keeps the server's own message.
func failureMessage(err error) string {
	if apiErr, ok := remote.IsAPIError(err); ok {
		return apiErr.Message
	}
	return err.Error()
}
