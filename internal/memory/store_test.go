package memory

import (
	"context"
	"errors"
	"hash/fnv"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// hashEmbedder is a deterministic bag-of-words embedder: texts sharing
// words produce similar vectors, which is enough to exercise ranking.
type hashEmbedder struct{}

func (hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 64)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%64]++
	}
	return vec, nil
}

func (e hashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// failingEmbedder simulates an unreachable embedding endpoint.
type failingEmbedder struct{}

func (failingEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedding endpoint unreachable")
}

func (failingEmbedder) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedding endpoint unreachable")
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "memories.db"))
	require.NoError(t, err)
	store, err := NewStore(db, hashEmbedder{}, zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestStoreAssignsIDAndDefaults(t *testing.T) {
	store := newTestStore(t)

	id, err := store.Store(context.Background(), &Memory{Task: "Build REST API", ConfidenceScore: 0.7})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StateNew, got.LifecycleState)
	assert.False(t, got.Timestamp.IsZero())
	assert.NotEmpty(t, got.TaskEmbedding)
	assert.NotEmpty(t, got.ContentEmbedding)
}

func TestStoreRejectsEmptyTask(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Store(context.Background(), &Memory{})
	assert.ErrorIs(t, err, ErrStorage)
}

func TestStoreNoPartialWriteOnEmbeddingFailure(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "memories.db"))
	require.NoError(t, err)
	store, err := NewStore(db, failingEmbedder{}, zap.NewNop())
	require.NoError(t, err)

	_, err = store.Store(context.Background(), &Memory{Task: "doomed"})
	assert.ErrorIs(t, err, ErrStorage)

	rows, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSearchByTaskRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Store(ctx, &Memory{Task: "Build FastAPI endpoint", ConfidenceScore: 0.8})
	require.NoError(t, err)
	_, err = store.Store(ctx, &Memory{Task: "Tune database indexes", ConfidenceScore: 0.8})
	require.NoError(t, err)

	results, err := store.SearchByTask(ctx, "Build FastAPI endpoint", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, id, results[0].ID)
	assert.Greater(t, results[0].Similarity, 0.5)
}

func TestSearchAxesDiverge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fastapi, err := store.Store(ctx, &Memory{
		Task:              "Build FastAPI endpoint",
		TacticalLearning:  "pydantic models validate request bodies",
		StrategicLearning: "api first design keeps handlers thin",
	})
	require.NoError(t, err)
	auth, err := store.Store(ctx, &Memory{
		Task:             "Harden login flow",
		TacticalLearning: "api authentication tokens expire after an hour",
	})
	require.NoError(t, err)

	byContent, err := store.SearchByContent(ctx, "api authentication", 2)
	require.NoError(t, err)
	require.Len(t, byContent, 2)
	assert.Equal(t, auth, byContent[0].ID)

	byTask, err := store.SearchByTask(ctx, "Build REST API endpoint", 2)
	require.NoError(t, err)
	require.Len(t, byTask, 2)
	assert.Equal(t, fastapi, byTask[0].ID)
}

func TestSearchExcludesArchivedAndFailed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Store(ctx, &Memory{Task: "archived task", LifecycleState: StateArchived})
	require.NoError(t, err)
	_, err = store.Store(ctx, &Memory{Task: "failed task", LifecycleState: StateFailed})
	require.NoError(t, err)

	results, err := store.SearchByTask(ctx, "task", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchTieBreakByRecency(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	_, err := store.Store(ctx, &Memory{ID: "older", Task: "identical task", Timestamp: older})
	require.NoError(t, err)
	_, err = store.Store(ctx, &Memory{ID: "newer", Task: "identical task", Timestamp: newer})
	require.NoError(t, err)

	results, err := store.SearchByTask(ctx, "identical task", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "newer", results[0].ID)
}

func TestUpdateOutcomeUnknownIDIsNoOp(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateOutcome(context.Background(), "does-not-exist", true, "", "")
	assert.NoError(t, err)
}

func TestUpdateOutcomePersists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Store(ctx, &Memory{Task: "apply learning", ConfidenceScore: 0.75})
	require.NoError(t, err)

	require.NoError(t, store.UpdateOutcome(ctx, id, true, "", ""))
	require.NoError(t, store.UpdateOutcome(ctx, id, false, SeverityCritical, "regressed prod"))

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SuccessCount)
	assert.Equal(t, 1, got.FailureCount)
	assert.Equal(t, 2, got.ApplicationCount)
	assert.Equal(t, "regressed prod", got.LastFailureReason)
	assert.InDelta(t, 0.75*1.05*0.4, got.ConfidenceScore, 1e-9)
}

func TestListByState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Store(ctx, &Memory{Task: "a"})
	require.NoError(t, err)
	_, err = store.Store(ctx, &Memory{Task: "b", LifecycleState: StateStable})
	require.NoError(t, err)

	stable, err := store.List(ctx, StateStable)
	require.NoError(t, err)
	require.Len(t, stable, 1)
	assert.Equal(t, "b", stable[0].Task)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Store(ctx, &Memory{Task: "ephemeral"})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, id))

	_, err = store.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCountByState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Store(ctx, &Memory{Task: "a"})
	require.NoError(t, err)
	_, err = store.Store(ctx, &Memory{Task: "b"})
	require.NoError(t, err)
	_, err = store.Store(ctx, &Memory{Task: "c", LifecycleState: StateStable})
	require.NoError(t, err)

	counts, err := store.CountByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[StateNew])
	assert.Equal(t, int64(1), counts[StateStable])
}
