package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	apperrors "github.com/loja-mae/fieldsync/internal/errors"
	"github.com/loja-mae/fieldsync/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

// keyPreferences is the singleton KV key the sync preferences live under.
const keyPreferences = "preferences/sync"

// SQLiteStore implements Store on an embedded SQLite database
// (modernc.org/sqlite, no CGO), suitable for the field device.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the local database under
// dataDir.
func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "fieldsync.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite does not support multiple writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate brings the local schema up to date.
func (s *SQLiteStore) Migrate() error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}

	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close releases the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.NewStorageError(fmt.Sprintf("failed to read key %s", key), err)
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to write key %s", key), err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to delete key %s", key), err)
	}
	return nil
}

func (s *SQLiteStore) ListKeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM kv WHERE key >= ? AND key < ? ORDER BY key ASC`,
		prefix, prefix+"\xff")
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to list keys with prefix %s", prefix), err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, apperrors.NewStorageError("failed to scan key", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("failed to iterate keys", err)
	}
	return keys, nil
}

func (s *SQLiteStore) SaveAttachment(ctx context.Context, rec *models.AttachmentRecord) error {
	if rec.ItemID == "" || rec.FileID == "" {
		return apperrors.NewValidationError("attachment requires item id and file id", nil)
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attachments (item_id, file_id, purpose, content, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (item_id, file_id) DO UPDATE SET
			purpose = excluded.purpose,
			content = excluded.content`,
		rec.ItemID, rec.FileID, string(rec.Purpose), rec.Content, createdAt)
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to save attachment %s/%s", rec.ItemID, rec.FileID), err)
	}
	return nil
}

func (s *SQLiteStore) GetAttachment(ctx context.Context, itemID, fileID string) (*models.AttachmentRecord, error) {
	rec := &models.AttachmentRecord{ItemID: itemID, FileID: fileID}
	var purpose string
	err := s.db.QueryRowContext(ctx,
		`SELECT purpose, content, created_at FROM attachments WHERE item_id = ? AND file_id = ?`,
		itemID, fileID).Scan(&purpose, &rec.Content, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("attachment not found: %s/%s", itemID, fileID), nil)
	}
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to read attachment %s/%s", itemID, fileID), err)
	}
	rec.Purpose = models.AttachmentPurpose(purpose)
	return rec, nil
}

func (s *SQLiteStore) ListAttachments(ctx context.Context, itemID string) ([]*models.AttachmentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_id, purpose, content, created_at FROM attachments WHERE item_id = ? ORDER BY created_at ASC`,
		itemID)
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to list attachments for item %s", itemID), err)
	}
	defer rows.Close()

	var recs []*models.AttachmentRecord
	for rows.Next() {
		rec := &models.AttachmentRecord{ItemID: itemID}
		var purpose string
		if err := rows.Scan(&rec.FileID, &purpose, &rec.Content, &rec.CreatedAt); err != nil {
			return nil, apperrors.NewStorageError("failed to scan attachment", err)
		}
		rec.Purpose = models.AttachmentPurpose(purpose)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("failed to iterate attachments", err)
	}
	return recs, nil
}

func (s *SQLiteStore) DeleteAttachmentsForItem(ctx context.Context, itemID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM attachments WHERE item_id = ?`, itemID); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to delete attachments for item %s", itemID), err)
	}
	return nil
}

func (s *SQLiteStore) GetSyncPreferences(ctx context.Context) (*models.SyncPreferences, error) {
	value, ok, err := s.Get(ctx, keyPreferences)
	if err != nil {
		return nil, err
	}
	if !ok {
		return models.DefaultSyncPreferences(), nil
	}

	prefs := &models.SyncPreferences{}
	if err := json.Unmarshal(value, prefs); err != nil {
		return nil, apperrors.NewStorageError("failed to decode sync preferences", err)
	}
	return prefs, nil
}

func (s *SQLiteStore) SaveSyncPreferences(ctx context.Context, prefs *models.SyncPreferences) error {
	if prefs == nil {
		return apperrors.NewValidationError("preferences cannot be nil", nil)
	}
	value, err := json.Marshal(prefs)
	if err != nil {
		return apperrors.NewStorageError("failed to encode sync preferences", err)
	}
	return s.Set(ctx, keyPreferences, value)
}
