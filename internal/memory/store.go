// Package memory persists learning records with dual embeddings and
// exposes nearest-neighbor search by either axis.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/johannhartmann/learning-agent/internal/embeddings"
)

var (
	// ErrStorage indicates a failed store or update; no partial write occurred.
	ErrStorage = errors.New("memory storage failure")

	// ErrNotFound indicates the requested memory does not exist.
	ErrNotFound = errors.New("memory not found")
)

var tracer = otel.Tracer("learning-agent.memory")

// SearchResult is a memory annotated with its similarity to the query.
type SearchResult struct {
	Memory
	Similarity float64 `json:"similarity"`
}

// Store is the vector memory store backed by a relational row table.
//
// Embeddings are stored per row and ranked in process with exact cosine
// similarity, which is sufficient at the scale this system operates at.
// All mutations are single-row transactions; rows are independent.
type Store struct {
	db       *gorm.DB
	embedder embeddings.Embedder
	logger   *zap.Logger
}

// Open opens (or creates) the sqlite database at path.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	return db, nil
}

// NewStore creates a Store and migrates its schema.
func NewStore(db *gorm.DB, embedder embeddings.Embedder, logger *zap.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&Memory{}); err != nil {
		return nil, fmt.Errorf("migrating memories table: %w", err)
	}
	return &Store{db: db, embedder: embedder, logger: logger}, nil
}

// Store computes both embeddings and inserts the memory atomically.
//
// The task embedding derives from the task text alone; the content
// embedding from the task plus all non-null learning dimensions. The two
// calls run concurrently, and the row is written only when both succeed.
func (s *Store) Store(ctx context.Context, mem *Memory) (id string, err error) {
	ctx, span := tracer.Start(ctx, "Store.Store")
	defer span.End()
	defer func() { recordOperation("store", err) }()

	if mem == nil || mem.Task == "" {
		err = fmt.Errorf("%w: memory task cannot be empty", ErrStorage)
		return "", err
	}

	if mem.ID == "" {
		mem.ID = uuid.New().String()
	}
	if mem.Timestamp.IsZero() {
		mem.Timestamp = time.Now()
	}
	if mem.LifecycleState == "" {
		mem.LifecycleState = StateNew
	}

	var taskVec, contentVec []float32
	p := pool.New().WithErrors().WithContext(ctx)
	p.Go(func(ctx context.Context) error {
		vec, embedErr := s.embedder.EmbedQuery(ctx, mem.Task)
		if embedErr != nil {
			return fmt.Errorf("task embedding: %w", embedErr)
		}
		taskVec = vec
		return nil
	})
	p.Go(func(ctx context.Context) error {
		vec, embedErr := s.embedder.EmbedQuery(ctx, mem.ContentText())
		if embedErr != nil {
			return fmt.Errorf("content embedding: %w", embedErr)
		}
		contentVec = vec
		return nil
	})
	if waitErr := p.Wait(); waitErr != nil {
		err = fmt.Errorf("%w: %v", ErrStorage, waitErr)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	mem.TaskEmbedding = taskVec
	mem.ContentEmbedding = contentVec

	if dbErr := s.db.WithContext(ctx).Create(mem).Error; dbErr != nil {
		err = fmt.Errorf("%w: %v", ErrStorage, dbErr)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	span.SetAttributes(attribute.String("memory_id", mem.ID))
	span.SetStatus(codes.Ok, "stored")
	s.logger.Info("memory stored",
		zap.String("memory_id", mem.ID),
		zap.String("task", mem.Task),
		zap.Float64("confidence", mem.ConfidenceScore),
	)
	return mem.ID, nil
}

// SearchByTask ranks memories by task-embedding similarity: "what tasks
// are like this one."
func (s *Store) SearchByTask(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	return s.search(ctx, "task", query, limit)
}

// SearchByContent ranks memories by content-embedding similarity: "what
// do I know about X."
func (s *Store) SearchByContent(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	return s.search(ctx, "content", query, limit)
}

func (s *Store) search(ctx context.Context, axis, query string, limit int) (results []SearchResult, err error) {
	ctx, span := tracer.Start(ctx, "Store.Search")
	defer span.End()
	span.SetAttributes(attribute.String("axis", axis), attribute.Int("limit", limit))
	start := time.Now()
	defer func() {
		SearchDuration.WithLabelValues(axis).Observe(time.Since(start).Seconds())
		recordOperation("search_"+axis, err)
	}()

	if limit <= 0 {
		limit = 3
	}

	queryVec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	var rows []Memory
	dbErr := s.db.WithContext(ctx).
		Where("lifecycle_state NOT IN ?", []LifecycleState{StateArchived, StateFailed}).
		Find(&rows).Error
	if dbErr != nil {
		err = fmt.Errorf("loading memories: %w", dbErr)
		span.RecordError(err)
		return nil, err
	}

	results = make([]SearchResult, 0, len(rows))
	for _, row := range rows {
		vec := row.TaskEmbedding
		if axis == "content" {
			vec = row.ContentEmbedding
		}
		// Rows without an embedding on this axis are excluded, not errors.
		if len(vec) == 0 {
			continue
		}
		results = append(results, SearchResult{
			Memory:     row,
			Similarity: CosineSimilarity(queryVec, vec),
		})
	}

	// Descending similarity; equal scores break ties by recency.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Timestamp.After(results[j].Timestamp)
	})

	if len(results) > limit {
		results = results[:limit]
	}
	span.SetAttributes(attribute.Int("results", len(results)))
	return results, nil
}

// UpdateOutcome folds one application result into a memory as a single
// atomic read-modify-write. An unknown id is logged and swallowed: the
// feedback call runs after the user-facing task finished and must never
// fail loudly.
func (s *Store) UpdateOutcome(ctx context.Context, id string, success bool, severity Severity, reason string) (err error) {
	ctx, span := tracer.Start(ctx, "Store.UpdateOutcome")
	defer span.End()
	span.SetAttributes(attribute.String("memory_id", id), attribute.Bool("success", success))
	defer func() { recordOperation("update_outcome", err) }()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m Memory
		if findErr := tx.First(&m, "id = ?", id).Error; findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				s.logger.Warn("outcome feedback for unknown memory", zap.String("memory_id", id))
				return nil
			}
			return findErr
		}
		m.ApplyOutcome(success, severity, reason, time.Now())
		return tx.Save(&m).Error
	})
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrStorage, err)
		span.RecordError(err)
	}
	return err
}

// Get loads one memory by id.
func (s *Store) Get(ctx context.Context, id string) (*Memory, error) {
	var m Memory
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading memory %s: %w", id, err)
	}
	return &m, nil
}

// List returns all memories in the given states, or every memory when no
// state is passed. Used by the lifecycle jobs.
func (s *Store) List(ctx context.Context, states ...LifecycleState) ([]Memory, error) {
	var rows []Memory
	q := s.db.WithContext(ctx)
	if len(states) > 0 {
		q = q.Where("lifecycle_state IN ?", states)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing memories: %w", err)
	}
	return rows, nil
}

// ListRecent returns the latest memories by creation time.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []Memory
	if err := s.db.WithContext(ctx).Order("timestamp DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing recent memories: %w", err)
	}
	return rows, nil
}

// Save persists lifecycle mutations of one row in its own transaction.
func (s *Store) Save(ctx context.Context, mem *Memory) error {
	if err := s.db.WithContext(ctx).Save(mem).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// Delete hard-deletes one memory.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&Memory{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// CountByState reports row counts per lifecycle state and refreshes the
// state gauge.
func (s *Store) CountByState(ctx context.Context) (map[LifecycleState]int64, error) {
	type stateCount struct {
		LifecycleState LifecycleState
		N              int64
	}
	var counts []stateCount
	err := s.db.WithContext(ctx).
		Model(&Memory{}).
		Select("lifecycle_state, count(*) as n").
		Group("lifecycle_state").
		Find(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("counting memories: %w", err)
	}

	out := make(map[LifecycleState]int64, len(counts))
	for _, c := range counts {
		out[c.LifecycleState] = c.N
		MemoriesByState.WithLabelValues(string(c.LifecycleState)).Set(float64(c.N))
	}
	return out, nil
}
