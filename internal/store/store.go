package store

import (
	"context"

	"github.com/loja-mae/fieldsync/internal/models"
)

// KVStore is the durable local key-value contract. Absence of a key is a
// valid, non-error result. Within one key, writes are last-write-wins;
// no ordering is guaranteed between unrelated keys.
type KVStore interface {
	// Get retrieves the value stored under key. ok is false when the key
	// is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// ListKeysWithPrefix returns all keys starting with prefix, in
	// ascending key order.
	ListKeysWithPrefix(ctx context.Context, prefix string) ([]string, error)
}

// AttachmentStore holds binary blobs captured offline, keyed by the owning
// queue item and a file id.
type AttachmentStore interface {
	// SaveAttachment stores a blob, replacing any previous blob under the
	// same (item, file) key.
	SaveAttachment(ctx context.Context, rec *models.AttachmentRecord) error

	// GetAttachment retrieves a blob. Returns a NOT_FOUND error when no
	// blob exists for the key.
	GetAttachment(ctx context.Context, itemID, fileID string) (*models.AttachmentRecord, error)

	// ListAttachments returns all attachment records for an item, content
	// included.
	ListAttachments(ctx context.Context, itemID string) ([]*models.AttachmentRecord, error)

	// DeleteAttachmentsForItem removes every blob owned by the item.
	DeleteAttachmentsForItem(ctx context.Context, itemID string) error
}

// PreferencesStore persists the singleton sync preferences record.
type PreferencesStore interface {
	// GetSyncPreferences returns the persisted preferences, or the
	// defaults when none have been saved yet.
	GetSyncPreferences(ctx context.Context) (*models.SyncPreferences, error)

	// SaveSyncPreferences persists the preferences.
	SaveSyncPreferences(ctx context.Context, prefs *models.SyncPreferences) error
}

// Store is the full device-local persistence surface owned by the sync
// engine.
type Store interface {
	KVStore
	AttachmentStore
	PreferencesStore

	// Migrate brings the local schema up to date.
	Migrate() error

	// Close releases the underlying database.
	Close() error
}
