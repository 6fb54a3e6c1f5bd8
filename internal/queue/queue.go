// Package queue implements the durable mutation queue of pending offline
// writes, built on the local key-value store.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	apperrors "github.com/loja-mae/fieldsync/internal/errors"
	"github.com/loja-mae/fieldsync/internal/models"
	"github.com/loja-mae/fieldsync/internal/notify"
	"github.com/loja-mae/fieldsync/internal/store"
)

const keyPrefix = "queue/"

// Queue is the ordered collection of pending mutations. One logical
// collection per entity kind: items live under "queue/<kind>/<seq>-<id>"
// so a per-kind listing is a prefix scan in enqueue order.
type Queue struct {
	kv       store.KVStore
	notifier notify.Notifier
	logger   *logrus.Logger

	mu      sync.Mutex
	lastSeq int64
}

// New creates a mutation queue over kv. The notifier receives a
// queue-changed event on every mutation of the queue itself.
func New(kv store.KVStore, notifier notify.Notifier, logger *logrus.Logger) *Queue {
	return &Queue{
		kv:       kv,
		notifier: notifier,
		logger:   logger,
	}
}

// Enqueue appends a new pending item for kind. parentID is required for
// note kinds and ignored otherwise. payload must be JSON-serializable.
func (q *Queue) Enqueue(ctx context.Context, kind models.Kind, parentID string, payload interface{}) (*models.QueuedItem, error) {
	if !kind.IsValid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown entity kind: %s", kind), nil)
	}
	if kind.IsNote() && parentID == "" {
		return nil, apperrors.NewValidationError(fmt.Sprintf("parent id is required for %s", kind), nil)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.NewValidationError("payload is not serializable", err)
	}

	item := &models.QueuedItem{
		ID:        uuid.New().String(),
		Kind:      kind,
		ParentID:  parentID,
		Payload:   body,
		Status:    models.StatusPending,
		Attempts:  0,
		CreatedAt: time.Now().UTC(),
	}

	if err := q.persist(ctx, q.keyFor(item), item); err != nil {
		return nil, err
	}

	q.logger.WithFields(logrus.Fields{
		"item_id": item.ID,
		"kind":    item.Kind,
	}).Info("Enqueued offline mutation")

	q.notifier.QueueChanged()
	return item, nil
}

// ListByKind returns a snapshot of all items of one kind, in enqueue order.
func (q *Queue) ListByKind(ctx context.Context, kind models.Kind) ([]*models.QueuedItem, error) {
	if !kind.IsValid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown entity kind: %s", kind), nil)
	}
	return q.listPrefix(ctx, keyPrefix+string(kind)+"/")
}

// ListAll returns a snapshot of the whole queue, kinds in their fixed
// drain order, items in enqueue order within each kind.
func (q *Queue) ListAll(ctx context.Context) ([]*models.QueuedItem, error) {
	var all []*models.QueuedItem
	for _, kind := range models.KindOrder {
		items, err := q.listPrefix(ctx, keyPrefix+string(kind)+"/")
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
	}
	return all, nil
}

// Get returns a single item by id.
func (q *Queue) Get(ctx context.Context, id string) (*models.QueuedItem, error) {
	key, err := q.findKey(ctx, id)
	if err != nil {
		return nil, err
	}
	return q.load(ctx, key)
}

// Update merges the non-nil fields of update into the item and persists
// it. Returns the updated item, or a NOT_FOUND error when the item
// vanished.
func (q *Queue) Update(ctx context.Context, id string, update models.ItemUpdate) (*models.QueuedItem, error) {
	key, err := q.findKey(ctx, id)
	if err != nil {
		return nil, err
	}

	item, err := q.load(ctx, key)
	if err != nil {
		return nil, err
	}

	if update.Status != nil {
		item.Status = *update.Status
	}
	if update.Attempts != nil {
		item.Attempts = *update.Attempts
	}
	if update.Error != nil {
		item.Error = *update.Error
	}

	if err := q.persist(ctx, key, item); err != nil {
		return nil, err
	}

	q.notifier.QueueChanged()
	return item, nil
}

// Remove deletes an item; used when it has successfully synced. Returns a
// NOT_FOUND error when the item is absent.
func (q *Queue) Remove(ctx context.Context, id string) error {
	key, err := q.findKey(ctx, id)
	if err != nil {
		return err
	}
	if err := q.kv.Delete(ctx, key); err != nil {
		return err
	}
	q.notifier.QueueChanged()
	return nil
}

// RetryFailed resets every failed item to pending so the next pass picks
// it up, and returns how many were reset.
func (q *Queue) RetryFailed(ctx context.Context) (int, error) {
	keys, err := q.kv.ListKeysWithPrefix(ctx, keyPrefix)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, key := range keys {
		item, err := q.load(ctx, key)
		if err != nil {
			if apperrors.IsNotFound(err) {
				continue
			}
			return count, err
		}
		if item.Status != models.StatusFailed {
			continue
		}
		item.Status = models.StatusPending
		item.Error = ""
		if err := q.persist(ctx, key, item); err != nil {
			return count, err
		}
		count++
	}

	if count > 0 {
		q.notifier.QueueChanged()
	}
	return count, nil
}

// Counts returns the per-status breakdown of the queue.
func (q *Queue) Counts(ctx context.Context) (models.StatusCounts, error) {
	var counts models.StatusCounts
	items, err := q.ListAll(ctx)
	if err != nil {
		return counts, err
	}
	for _, item := range items {
		counts.Add(item.Status)
	}
	return counts, nil
}

// keyFor builds the storage key for an item. The sequence component keeps
// prefix scans in enqueue order; the id suffix makes lookups by id
// possible without a separate index.
func (q *Queue) keyFor(item *models.QueuedItem) string {
	return fmt.Sprintf("%s%s/%020d-%s", keyPrefix, item.Kind, q.seqFor(item.CreatedAt), item.ID)
}

// seqFor derives a strictly increasing sequence number from the enqueue
// timestamp. Two enqueues within the same nanosecond would collide on
// ordering, so the last issued value is tracked.
func (q *Queue) seqFor(createdAt time.Time) int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	seq := createdAt.UnixNano()
	if seq <= q.lastSeq {
		seq = q.lastSeq + 1
	}
	q.lastSeq = seq
	return seq
}

func (q *Queue) findKey(ctx context.Context, id string) (string, error) {
	keys, err := q.kv.ListKeysWithPrefix(ctx, keyPrefix)
	if err != nil {
		return "", err
	}
	for _, key := range keys {
		if strings.HasSuffix(key, "-"+id) {
			return key, nil
		}
	}
	return "", apperrors.NewItemNotFoundError(id)
}

func (q *Queue) listPrefix(ctx context.Context, prefix string) ([]*models.QueuedItem, error) {
	keys, err := q.kv.ListKeysWithPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}

	items := make([]*models.QueuedItem, 0, len(keys))
	for _, key := range keys {
		item, err := q.load(ctx, key)
		if err != nil {
			if apperrors.IsNotFound(err) {
				// Deleted between listing and load; skip.
				continue
			}
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (q *Queue) load(ctx context.Context, key string) (*models.QueuedItem, error) {
	value, ok, err := q.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("queue entry not found: %s", key), nil)
	}

	item := &models.QueuedItem{}
	if err := json.Unmarshal(value, item); err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("corrupt queue entry: %s", key), err)
	}
	return item, nil
}

func (q *Queue) persist(ctx context.Context, key string, item *models.QueuedItem) error {
	value, err := json.Marshal(item)
	if err != nil {
		return apperrors.NewStorageError("failed to encode queue item", err)
	}
	return q.kv.Set(ctx, key, value)
}
