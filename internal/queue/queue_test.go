package queue

import (
	"bytes"
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/loja-mae/fieldsync/internal/errors"
	"github.com/loja-mae/fieldsync/internal/models"
	"github.com/loja-mae/fieldsync/internal/notify"
	"github.com/loja-mae/fieldsync/internal/store"
)

func setupTestQueue(t *testing.T) (*Queue, *notify.Bus) {
	t.Helper()

	s, err := store.NewSQLiteStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() {
		s.Close()
	})

	logger := logrus.New()
	logger.SetOutput(bytes.NewBuffer(nil)) // Discard logs during tests

	bus := notify.NewBus(logger)
	return New(s, bus, logger), bus
}

func TestEnqueue(t *testing.T) {
	q, _ := setupTestQueue(t)
	ctx := context.Background()

	t.Run("enqueues a pending item", func(t *testing.T) {
		item, err := q.Enqueue(ctx, models.KindVisit, "", models.VisitPayload{ClienteNome: "Ana"})
		require.NoError(t, err)

		assert.NotEmpty(t, item.ID)
		assert.Equal(t, models.KindVisit, item.Kind)
		assert.Equal(t, models.StatusPending, item.Status)
		assert.Equal(t, 0, item.Attempts)
		assert.JSONEq(t, `{"clienteNome":"Ana"}`, string(item.Payload))
	})

	t.Run("rejects unknown kind", func(t *testing.T) {
		_, err := q.Enqueue(ctx, models.Kind("bogus"), "", nil)
		require.Error(t, err)
		assert.True(t, apperrors.IsInvalidInput(err))
	})

	t.Run("rejects note without parent id", func(t *testing.T) {
		_, err := q.Enqueue(ctx, models.KindLeadNote, "", models.NotePayload{Content: "hi"})
		require.Error(t, err)
		assert.True(t, apperrors.IsInvalidInput(err))
	})

	t.Run("accepts note with parent id", func(t *testing.T) {
		item, err := q.Enqueue(ctx, models.KindLeadNote, "lead-7", models.NotePayload{Content: "hi"})
		require.NoError(t, err)
		assert.Equal(t, "lead-7", item.ParentID)
	})

	t.Run("publishes queue changed event", func(t *testing.T) {
		q, bus := setupTestQueue(t)
		events, cancel := bus.Subscribe()
		defer cancel()

		_, err := q.Enqueue(ctx, models.KindVisit, "", models.VisitPayload{})
		require.NoError(t, err)

		ev := <-events
		assert.Equal(t, notify.EventQueueChanged, ev.Type)
	})
}

func TestListOrdering(t *testing.T) {
	q, _ := setupTestQueue(t)
	ctx := context.Background()

	// Enqueue out of drain order on purpose.
	note, err := q.Enqueue(ctx, models.KindClientNote, "client-1", models.NotePayload{Content: "n"})
	require.NoError(t, err)
	v1, err := q.Enqueue(ctx, models.KindVisit, "", models.VisitPayload{Observacoes: "first"})
	require.NoError(t, err)
	v2, err := q.Enqueue(ctx, models.KindVisit, "", models.VisitPayload{Observacoes: "second"})
	require.NoError(t, err)
	cl, err := q.Enqueue(ctx, models.KindChecklist, "", models.ChecklistPayload{})
	require.NoError(t, err)

	t.Run("ListByKind preserves enqueue order", func(t *testing.T) {
		items, err := q.ListByKind(ctx, models.KindVisit)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, v1.ID, items[0].ID)
		assert.Equal(t, v2.ID, items[1].ID)
	})

	t.Run("ListAll walks kinds in drain order", func(t *testing.T) {
		items, err := q.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, items, 4)
		assert.Equal(t, []string{v1.ID, v2.ID, cl.ID, note.ID}, []string{
			items[0].ID, items[1].ID, items[2].ID, items[3].ID,
		})
	})

	t.Run("ListByKind rejects unknown kind", func(t *testing.T) {
		_, err := q.ListByKind(ctx, models.Kind("bogus"))
		require.Error(t, err)
		assert.True(t, apperrors.IsInvalidInput(err))
	})
}

func TestGetUpdateRemove(t *testing.T) {
	q, _ := setupTestQueue(t)
	ctx := context.Background()

	item, err := q.Enqueue(ctx, models.KindVisit, "", models.VisitPayload{ClienteNome: "Bia"})
	require.NoError(t, err)

	t.Run("get by id", func(t *testing.T) {
		got, err := q.Get(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, item.ID, got.ID)
	})

	t.Run("get unknown id returns not found", func(t *testing.T) {
		_, err := q.Get(ctx, "missing")
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("update merges only set fields", func(t *testing.T) {
		status := models.StatusSyncing
		attempts := 1
		updated, err := q.Update(ctx, item.ID, models.ItemUpdate{Status: &status, Attempts: &attempts})
		require.NoError(t, err)

		assert.Equal(t, models.StatusSyncing, updated.Status)
		assert.Equal(t, 1, updated.Attempts)
		assert.JSONEq(t, string(item.Payload), string(updated.Payload))
	})

	t.Run("update unknown id returns not found", func(t *testing.T) {
		status := models.StatusFailed
		_, err := q.Update(ctx, "missing", models.ItemUpdate{Status: &status})
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("remove deletes the item", func(t *testing.T) {
		require.NoError(t, q.Remove(ctx, item.ID))

		_, err := q.Get(ctx, item.ID)
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("remove unknown id returns not found", func(t *testing.T) {
		err := q.Remove(ctx, item.ID)
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestRetryFailed(t *testing.T) {
	q, _ := setupTestQueue(t)
	ctx := context.Background()

	ok, err := q.Enqueue(ctx, models.KindVisit, "", models.VisitPayload{})
	require.NoError(t, err)
	bad1, err := q.Enqueue(ctx, models.KindVisit, "", models.VisitPayload{})
	require.NoError(t, err)
	bad2, err := q.Enqueue(ctx, models.KindClientNote, "c-1", models.NotePayload{Content: "x"})
	require.NoError(t, err)

	failed := models.StatusFailed
	msg := "db down"
	_, err = q.Update(ctx, bad1.ID, models.ItemUpdate{Status: &failed, Error: &msg})
	require.NoError(t, err)
	_, err = q.Update(ctx, bad2.ID, models.ItemUpdate{Status: &failed, Error: &msg})
	require.NoError(t, err)

	count, err := q.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	for _, id := range []string{bad1.ID, bad2.ID} {
		item, err := q.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, item.Status)
		assert.Empty(t, item.Error)
	}

	// The pending item is untouched.
	item, err := q.Get(ctx, ok.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, item.Status)
	assert.Equal(t, 0, item.Attempts)

	t.Run("noop when nothing failed", func(t *testing.T) {
		count, err := q.RetryFailed(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestCounts(t *testing.T) {
	q, _ := setupTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, models.KindVisit, "", models.VisitPayload{})
	require.NoError(t, err)
	item, err := q.Enqueue(ctx, models.KindChecklist, "", models.ChecklistPayload{})
	require.NoError(t, err)

	failed := models.StatusFailed
	_, err = q.Update(ctx, item.ID, models.ItemUpdate{Status: &failed})
	require.NoError(t, err)

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Pending)
	assert.Equal(t, 1, counts.Failed)
	assert.Equal(t, 0, counts.Syncing)
	assert.Equal(t, 2, counts.Total)
}

func TestQueueSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	logger := logrus.New()
	logger.SetOutput(bytes.NewBuffer(nil))

	s, err := store.NewSQLiteStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())

	q := New(s, notify.NewBus(logger), logger)
	item, err := q.Enqueue(ctx, models.KindVisit, "", models.VisitPayload{ClienteNome: "Ana"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := store.NewSQLiteStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	q2 := New(reopened, notify.NewBus(logger), logger)
	items, err := q2.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, item.ID, items[0].ID)
	assert.Equal(t, models.StatusPending, items[0].Status)
}
