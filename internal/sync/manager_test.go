package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loja-mae/fieldsync/internal/config"
	apperrors "github.com/loja-mae/fieldsync/internal/errors"
	"github.com/loja-mae/fieldsync/internal/models"
	"github.com/loja-mae/fieldsync/internal/notify"
	"github.com/loja-mae/fieldsync/internal/queue"
	"github.com/loja-mae/fieldsync/internal/remote"
	"github.com/loja-mae/fieldsync/internal/store"
)

type stubPolicy struct {
	allow bool
	err   error
}

func (p stubPolicy) CanSync(ctx context.Context) (bool, error) {
	return p.allow, p.err
}

type fakeUploader struct {
	urls     map[string]string
	uploaded []string
	err      error
}

func (u *fakeUploader) Upload(ctx context.Context, rec *models.AttachmentRecord) (string, error) {
	u.uploaded = append(u.uploaded, rec.FileID)
	if u.err != nil {
		return "", u.err
	}
	return u.urls[rec.FileID], nil
}

type receivedCall struct {
	Method string
	Path   string
	Body   map[string]interface{}
}

// recordingServer accepts every submission and records it in order.
type recordingServer struct {
	*httptest.Server
	calls []receivedCall
}

func newRecordingServer(t *testing.T, status func(r *http.Request) (int, string)) *recordingServer {
	t.Helper()

	rs := &recordingServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		json.Unmarshal(raw, &body)
		rs.calls = append(rs.calls, receivedCall{Method: r.Method, Path: r.URL.Path, Body: body})

		code, resp := http.StatusCreated, `{"id":"srv-1"}`
		if status != nil {
			code, resp = status(r)
		}
		w.WriteHeader(code)
		w.Write([]byte(resp))
	}))
	t.Cleanup(rs.Close)
	return rs
}

type testEnv struct {
	manager  *ManagerImpl
	queue    *queue.Queue
	store    *store.SQLiteStore
	uploader *fakeUploader
	bus      *notify.Bus
}

func setupTestManager(t *testing.T, baseURL string, policy PolicyEvaluator) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(bytes.NewBuffer(nil)) // Discard logs during tests

	s, err := store.NewSQLiteStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() {
		s.Close()
	})

	bus := notify.NewBus(logger)
	q := queue.New(s, bus, logger)

	cfg := config.DefaultRemoteConfig()
	cfg.BaseURL = baseURL
	cfg.Token = "test-token"
	cfg.Retry = config.RetryConfig{} // Single attempt keeps failure scenarios deterministic.
	client := remote.NewClient(cfg, logger, remote.WithHTTPClient(&http.Client{Timeout: 5 * time.Second}))

	uploader := &fakeUploader{urls: map[string]string{}}
	manager := NewManager(q, s, policy, client, uploader, bus, logger)

	return &testEnv{manager: manager, queue: q, store: s, uploader: uploader, bus: bus}
}

func TestTriggerSyncVisit(t *testing.T) {
	ctx := context.Background()
	server := newRecordingServer(t, nil)
	env := setupTestManager(t, server.URL, stubPolicy{allow: true})

	_, err := env.queue.Enqueue(ctx, models.KindVisit, "", models.VisitPayload{
		ID:          "offline_1721412000_abc",
		ClienteNome: "Ana",
	})
	require.NoError(t, err)

	result, err := env.manager.TriggerSync(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Synced)
	assert.Zero(t, result.Failed)

	require.Len(t, server.calls, 1)
	assert.Equal(t, http.MethodPost, server.calls[0].Method)
	assert.Equal(t, "/visits", server.calls[0].Path)
	assert.Equal(t, "Ana", server.calls[0].Body["clienteNome"])

	items, err := env.queue.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestTriggerSyncRemoteRejection(t *testing.T) {
	ctx := context.Background()
	server := newRecordingServer(t, func(r *http.Request) (int, string) {
		return http.StatusInternalServerError, `{"error":"db down"}`
	})
	env := setupTestManager(t, server.URL, stubPolicy{allow: true})

	item, err := env.queue.Enqueue(ctx, models.KindLeadNote, "lead-7", models.NotePayload{Content: "call back"})
	require.NoError(t, err)

	result, err := env.manager.TriggerSync(ctx, false)
	require.NoError(t, err)

	assert.Zero(t, result.Synced)
	assert.Equal(t, 1, result.Failed)

	got, err := env.queue.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "db down", got.Error)
	assert.Equal(t, 1, got.Attempts)
}

func TestTriggerSyncChecklistAttachments(t *testing.T) {
	ctx := context.Background()

	t.Run("uploads photos and resolves signature", func(t *testing.T) {
		server := newRecordingServer(t, nil)
		env := setupTestManager(t, server.URL, stubPolicy{allow: true})

		sentinel := models.SignaturePendingSentinel
		item, err := env.queue.Enqueue(ctx, models.KindChecklist, "", models.ChecklistPayload{
			ID: "offline_1_cl",
			Fotos: []models.ChecklistPhoto{
				{ID: "f1", OfflinePath: "local/f1.jpg"},
				{ID: "f2", OfflinePath: "local/f2.png", Tipo: models.PhotoPurposeSignature},
			},
			AssinaturaClienteURL: &sentinel,
		})
		require.NoError(t, err)

		require.NoError(t, env.store.SaveAttachment(ctx, &models.AttachmentRecord{
			ItemID: item.ID, FileID: "f1", Purpose: models.PurposePhoto, Content: []byte("jpg"),
		}))
		require.NoError(t, env.store.SaveAttachment(ctx, &models.AttachmentRecord{
			ItemID: item.ID, FileID: "f2", Purpose: models.PurposeSignature, Content: []byte("png"),
		}))
		env.uploader.urls["f1"] = "https://cdn.example.com/f1.jpg"
		env.uploader.urls["f2"] = "https://cdn.example.com/f2.png"

		result, err := env.manager.TriggerSync(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Synced)
		assert.Equal(t, []string{"f1", "f2"}, env.uploader.uploaded)

		require.Len(t, server.calls, 1)
		body := server.calls[0].Body
		assert.Equal(t, "https://cdn.example.com/f2.png", body["assinaturaClienteUrl"])

		fotos := body["fotos"].([]interface{})
		first := fotos[0].(map[string]interface{})
		assert.Equal(t, "https://cdn.example.com/f1.jpg", first["url"])
		assert.NotContains(t, first, "offlinePath")

		// Attachments of a synced item are cleaned up.
		recs, err := env.store.ListAttachments(ctx, item.ID)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("missing attachment degrades to empty reference", func(t *testing.T) {
		server := newRecordingServer(t, nil)
		env := setupTestManager(t, server.URL, stubPolicy{allow: true})

		_, err := env.queue.Enqueue(ctx, models.KindChecklist, "", models.ChecklistPayload{
			ID:    "offline_2_cl",
			Fotos: []models.ChecklistPhoto{{ID: "f1", OfflinePath: "local/f1.jpg"}},
		})
		require.NoError(t, err)

		result, err := env.manager.TriggerSync(ctx, false)
		require.NoError(t, err)

		assert.Equal(t, 1, result.Synced)
		assert.Empty(t, env.uploader.uploaded)

		require.Len(t, server.calls, 1)
		fotos := server.calls[0].Body["fotos"].([]interface{})
		first := fotos[0].(map[string]interface{})
		assert.NotContains(t, first, "offlinePath")
		assert.NotContains(t, first, "url")

		items, err := env.queue.ListAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("upload failure degrades without blocking the checklist", func(t *testing.T) {
		server := newRecordingServer(t, nil)
		env := setupTestManager(t, server.URL, stubPolicy{allow: true})
		env.uploader.err = apperrors.NewNetworkError("upload refused", nil)

		item, err := env.queue.Enqueue(ctx, models.KindChecklist, "", models.ChecklistPayload{
			ID:    "offline_3_cl",
			Fotos: []models.ChecklistPhoto{{ID: "f1", OfflinePath: "local/f1.jpg"}},
		})
		require.NoError(t, err)
		require.NoError(t, env.store.SaveAttachment(ctx, &models.AttachmentRecord{
			ItemID: item.ID, FileID: "f1", Purpose: models.PurposePhoto, Content: []byte("jpg"),
		}))

		result, err := env.manager.TriggerSync(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Synced)

		fotos := server.calls[0].Body["fotos"].([]interface{})
		first := fotos[0].(map[string]interface{})
		assert.NotContains(t, first, "url")
	})
}

func TestTriggerSyncOrdering(t *testing.T) {
	ctx := context.Background()
	server := newRecordingServer(t, nil)
	env := setupTestManager(t, server.URL, stubPolicy{allow: true})

	// Enqueued against the drain order on purpose.
	_, err := env.queue.Enqueue(ctx, models.KindClientNote, "client-1", models.NotePayload{Content: "n"})
	require.NoError(t, err)
	_, err = env.queue.Enqueue(ctx, models.KindLeadNote, "lead-1", models.NotePayload{Content: "m"})
	require.NoError(t, err)
	_, err = env.queue.Enqueue(ctx, models.KindVisit, "", models.VisitPayload{ID: "offline_1_v"})
	require.NoError(t, err)
	_, err = env.queue.Enqueue(ctx, models.KindChecklist, "", models.ChecklistPayload{ID: "offline_1_c"})
	require.NoError(t, err)

	result, err := env.manager.TriggerSync(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 4, result.Synced)

	require.Len(t, server.calls, 4)
	assert.Equal(t, "/visits", server.calls[0].Path)
	assert.Equal(t, "/installation-checklists", server.calls[1].Path)
	assert.Equal(t, "/leads/lead-1/notes", server.calls[2].Path)
	assert.Equal(t, "/clients/client-1/notes", server.calls[3].Path)
}

func TestTriggerSyncPartialFailure(t *testing.T) {
	ctx := context.Background()
	server := newRecordingServer(t, func(r *http.Request) (int, string) {
		if r.URL.Path == "/visits" {
			return http.StatusUnprocessableEntity, `{"error":"invalid visit"}`
		}
		return http.StatusCreated, `{"id":"srv-1"}`
	})
	env := setupTestManager(t, server.URL, stubPolicy{allow: true})

	bad, err := env.queue.Enqueue(ctx, models.KindVisit, "", models.VisitPayload{ID: "offline_1_v"})
	require.NoError(t, err)
	_, err = env.queue.Enqueue(ctx, models.KindClientNote, "client-1", models.NotePayload{Content: "ok"})
	require.NoError(t, err)

	result, err := env.manager.TriggerSync(ctx, false)
	require.NoError(t, err)

	// The visit failure does not block the note behind it.
	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, 1, result.Failed)

	got, err := env.queue.Get(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "invalid visit", got.Error)
}

func TestTriggerSyncPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("denied policy leaves the queue untouched", func(t *testing.T) {
		server := newRecordingServer(t, nil)
		env := setupTestManager(t, server.URL, stubPolicy{allow: false})

		item, err := env.queue.Enqueue(ctx, models.KindVisit, "", models.VisitPayload{ID: "offline_1_v"})
		require.NoError(t, err)

		result, err := env.manager.TriggerSync(ctx, false)
		require.NoError(t, err)

		assert.False(t, result.Processed())
		assert.Empty(t, server.calls)

		got, err := env.queue.Get(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, got.Status)
		assert.Zero(t, got.Attempts)
	})

	t.Run("policy failure aborts the run", func(t *testing.T) {
		server := newRecordingServer(t, nil)
		env := setupTestManager(t, server.URL, stubPolicy{err: apperrors.NewStorageError("disk gone", nil)})

		_, err := env.manager.TriggerSync(ctx, false)
		require.Error(t, err)
		assert.True(t, apperrors.IsStorage(err))

		status, serr := env.manager.Status(ctx)
		require.NoError(t, serr)
		assert.NotEmpty(t, status.LastError)
	})
}

func TestTriggerSyncInFlightGuard(t *testing.T) {
	ctx := context.Background()
	server := newRecordingServer(t, nil)
	env := setupTestManager(t, server.URL, stubPolicy{allow: true})

	// Occupy the single pass slot.
	env.manager.inFlight <- struct{}{}

	t.Run("concurrent trigger is rejected", func(t *testing.T) {
		_, err := env.manager.TriggerSync(ctx, false)
		require.Error(t, err)
		assert.True(t, apperrors.IsSyncInProgress(err))
	})

	t.Run("status reports syncing", func(t *testing.T) {
		status, err := env.manager.Status(ctx)
		require.NoError(t, err)
		assert.True(t, status.IsSyncing)
	})

	t.Run("forced trigger proceeds", func(t *testing.T) {
		_, err := env.queue.Enqueue(ctx, models.KindVisit, "", models.VisitPayload{ID: "offline_1_v"})
		require.NoError(t, err)

		result, err := env.manager.TriggerSync(ctx, true)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Synced)
	})

	// The occupied slot is still held by the simulated pass.
	assert.True(t, len(env.manager.inFlight) > 0)
	<-env.manager.inFlight
}

func TestTriggerSyncSkipsActiveItems(t *testing.T) {
	ctx := context.Background()
	server := newRecordingServer(t, nil)
	env := setupTestManager(t, server.URL, stubPolicy{allow: true})

	item, err := env.queue.Enqueue(ctx, models.KindVisit, "", models.VisitPayload{ID: "offline_1_v"})
	require.NoError(t, err)

	syncing := models.StatusSyncing
	_, err = env.queue.Update(ctx, item.ID, models.ItemUpdate{Status: &syncing})
	require.NoError(t, err)

	t.Run("without force", func(t *testing.T) {
		result, err := env.manager.TriggerSync(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Skipped)
		assert.Zero(t, result.Synced)
		assert.Empty(t, server.calls)
	})

	t.Run("with force", func(t *testing.T) {
		result, err := env.manager.TriggerSync(ctx, true)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Synced)
	})
}

func TestTriggerSyncIdempotentReplay(t *testing.T) {
	ctx := context.Background()

	// First attempt dies on the network, second succeeds. The visit keeps
	// its offline id so the server can dedupe the replayed POST.
	var failed bool
	var calls []receivedCall
	flaky := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !failed {
			failed = true
			conn, _, _ := w.(http.Hijacker).Hijack()
			conn.Close()
			return
		}
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		json.Unmarshal(raw, &body)
		calls = append(calls, receivedCall{Method: r.Method, Path: r.URL.Path, Body: body})
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"srv-1"}`))
	}))
	defer flaky.Close()

	env := setupTestManager(t, flaky.URL, stubPolicy{allow: true})

	item, err := env.queue.Enqueue(ctx, models.KindVisit, "", models.VisitPayload{ID: "offline_1_v", ClienteNome: "Ana"})
	require.NoError(t, err)

	result, err := env.manager.TriggerSync(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	got, err := env.queue.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, 1, got.Attempts)

	result, err = env.manager.TriggerSync(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)

	require.Len(t, calls, 1)
	assert.Equal(t, "offline_1_v", calls[0].Body["id"])

	items, err := env.queue.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}
