// Package lifecycle governs confidence decay, state transitions,
// generalization, and pruning of stored memories.
package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/johannhartmann/learning-agent/internal/memory"
)

// Config holds the lifecycle thresholds. All durations and cutoffs are
// configuration, not magic numbers scattered through the jobs.
type Config struct {
	// StableUnusedDays demotes a STABLE memory to DECLINING when unused this long.
	StableUnusedDays int

	// DecliningUnusedDays archives a DECLINING memory when unused this long.
	DecliningUnusedDays int

	// ArchiveRetentionDays hard-deletes ARCHIVED memories inactive this long.
	ArchiveRetentionDays int

	// FailedRetentionDays hard-deletes FAILED memories older than this.
	FailedRetentionDays int

	// GeneralizeSimilarity is the pairwise cutoff for clustering.
	GeneralizeSimilarity float64

	// GeneralizeConfidence is the minimum confidence for cluster members.
	GeneralizeConfidence float64

	// GeneralizeApplications is the minimum application count for cluster members.
	GeneralizeApplications int

	// GeneralizeGroupSize is the minimum cluster size that yields a pattern.
	GeneralizeGroupSize int

	// DuplicateSimilarity is the near-duplicate merge cutoff.
	DuplicateSimilarity float64

	// LowValueConfidence, LowValueApplications, LowValueAgeDays archive
	// memories that never proved themselves.
	LowValueConfidence   float64
	LowValueApplications int
	LowValueAgeDays      int
}

// DefaultConfig returns the documented lifecycle thresholds.
func DefaultConfig() Config {
	return Config{
		StableUnusedDays:       30,
		DecliningUnusedDays:    90,
		ArchiveRetentionDays:   180,
		FailedRetentionDays:    7,
		GeneralizeSimilarity:   0.85,
		GeneralizeConfidence:   0.8,
		GeneralizeApplications: 5,
		GeneralizeGroupSize:    3,
		DuplicateSimilarity:    0.95,
		LowValueConfidence:     0.5,
		LowValueApplications:   2,
		LowValueAgeDays:        60,
	}
}

// Metrics is the health report over the stored population.
type Metrics struct {
	StateCounts map[memory.LifecycleState]int64 `json:"state_counts"`
	HealthScore float64                         `json:"health_score"`
	AtRiskCount int                             `json:"at_risk_count"`
	NewThisWeek int                             `json:"new_this_week"`
	TotalCount  int64                           `json:"total_count"`
}

// Manager runs the scheduled lifecycle jobs over the memory store.
//
// Every job is idempotent and safe to re-run: each memory's update is its
// own transaction, and one failing row is logged and skipped rather than
// aborting the batch.
type Manager struct {
	store  *memory.Store
	cfg    Config
	logger *zap.Logger

	// now is the clock, replaceable in tests.
	now func() time.Time
}

// NewManager creates a lifecycle manager.
func NewManager(store *memory.Store, cfg Config, logger *zap.Logger) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, cfg: cfg, logger: logger, now: time.Now}, nil
}

// RunDaily applies confidence decay, time-driven demotions, anti-pattern
// synthesis for newly failed learnings, and failed-row cleanup.
func (m *Manager) RunDaily(ctx context.Context) {
	now := m.now()
	m.decayConfidence(ctx, now)
	m.demoteUnused(ctx, now)
	m.synthesizeAntiPatterns(ctx)
	m.cleanupFailed(ctx, now)
}

// decayConfidence halves confidence every 60 unused days, floored at 0.3.
// Memories validated within the last day are skipped.
func (m *Manager) decayConfidence(ctx context.Context, now time.Time) {
	rows, err := m.store.List(ctx, memory.StateNew, memory.StateValidated, memory.StateStable, memory.StateDeclining)
	if err != nil {
		m.logger.Error("decay: listing memories failed", zap.Error(err))
		return
	}

	decayed := 0
	for i := range rows {
		row := &rows[i]
		if row.LastValidated != nil && now.Sub(*row.LastValidated) < 24*time.Hour {
			continue
		}
		before := row.ConfidenceScore
		row.Decay(now)
		if row.ConfidenceScore == before {
			continue
		}
		if err := m.store.Save(ctx, row); err != nil {
			m.logger.Warn("decay: saving memory failed",
				zap.String("memory_id", row.ID), zap.Error(err))
			continue
		}
		decayed++
	}
	m.logger.Info("confidence decay applied", zap.Int("decayed", decayed))
}

// demoteUnused applies the time-driven state table rows:
// STABLE unused 30 days becomes DECLINING, DECLINING unused 90 days
// becomes ARCHIVED.
func (m *Manager) demoteUnused(ctx context.Context, now time.Time) {
	rows, err := m.store.List(ctx, memory.StateStable, memory.StateDeclining)
	if err != nil {
		m.logger.Error("demotion: listing memories failed", zap.Error(err))
		return
	}

	for i := range rows {
		row := &rows[i]
		unusedDays := int(now.Sub(row.LastActivity()).Hours() / 24)

		var next memory.LifecycleState
		switch row.LifecycleState {
		case memory.StateStable:
			if unusedDays >= m.cfg.StableUnusedDays {
				next = memory.StateDeclining
			}
		case memory.StateDeclining:
			if unusedDays >= m.cfg.DecliningUnusedDays {
				next = memory.StateArchived
			}
		}
		if next == "" {
			continue
		}

		row.LifecycleState = next
		if err := m.store.Save(ctx, row); err != nil {
			m.logger.Warn("demotion: saving memory failed",
				zap.String("memory_id", row.ID), zap.Error(err))
			continue
		}
		m.logger.Info("memory demoted",
			zap.String("memory_id", row.ID),
			zap.String("state", string(next)),
			zap.Int("unused_days", unusedDays),
		)
	}
}

// synthesizeAntiPatterns creates a high-confidence anti-pattern memory
// from each FAILED learning that does not have one yet. The source's
// ReplacedBy marks it as processed.
func (m *Manager) synthesizeAntiPatterns(ctx context.Context) {
	rows, err := m.store.List(ctx, memory.StateFailed)
	if err != nil {
		m.logger.Error("anti-patterns: listing failed memories failed", zap.Error(err))
		return
	}

	for i := range rows {
		row := &rows[i]
		if row.ReplacedBy != "" {
			continue
		}

		anti := &memory.Memory{
			Task:             "ANTI-PATTERN: " + row.Task,
			TacticalLearning: row.TacticalLearning,
			AntiPatterns: datatypes.NewJSONType(memory.AntiPatterns{
				Description: fmt.Sprintf("approach failed repeatedly: %s", row.LastFailureReason),
			}),
			ConfidenceScore: 0.9,
			Outcome:         memory.OutcomeFailure,
			SourceLearnings: datatypes.NewJSONSlice([]string{row.ID}),
		}
		id, err := m.store.Store(ctx, anti)
		if err != nil {
			m.logger.Warn("anti-patterns: storing anti-pattern failed",
				zap.String("source_id", row.ID), zap.Error(err))
			continue
		}

		row.ReplacedBy = id
		if err := m.store.Save(ctx, row); err != nil {
			m.logger.Warn("anti-patterns: marking source failed",
				zap.String("memory_id", row.ID), zap.Error(err))
		}
		m.logger.Info("anti-pattern synthesized",
			zap.String("anti_pattern_id", id),
			zap.String("source_id", row.ID),
		)
	}
}

// cleanupFailed hard-deletes FAILED memories past retention.
func (m *Manager) cleanupFailed(ctx context.Context, now time.Time) {
	rows, err := m.store.List(ctx, memory.StateFailed)
	if err != nil {
		m.logger.Error("cleanup: listing failed memories failed", zap.Error(err))
		return
	}

	cutoff := now.AddDate(0, 0, -m.cfg.FailedRetentionDays)
	for i := range rows {
		row := &rows[i]
		if row.LastActivity().After(cutoff) {
			continue
		}
		if err := m.store.Delete(ctx, row.ID); err != nil {
			m.logger.Warn("cleanup: deleting failed memory failed",
				zap.String("memory_id", row.ID), zap.Error(err))
		}
	}
}

// RunWeekly clusters similar high-confidence memories into patterns.
//
// Members need pairwise content similarity at or above the threshold,
// confidence at or above the floor, and enough applications. A cluster of
// three or more yields one generalized pattern whose confidence is the
// group minimum times 0.9; sources are archived with a back-reference.
func (m *Manager) RunWeekly(ctx context.Context) {
	rows, err := m.store.List(ctx, memory.StateNew, memory.StateValidated, memory.StateStable)
	if err != nil {
		m.logger.Error("generalization: listing memories failed", zap.Error(err))
		return
	}

	var candidates []memory.Memory
	for _, row := range rows {
		if row.IsGeneralization {
			continue
		}
		if row.ConfidenceScore < m.cfg.GeneralizeConfidence {
			continue
		}
		if row.ApplicationCount < m.cfg.GeneralizeApplications {
			continue
		}
		if len(row.ContentEmbedding) == 0 {
			continue
		}
		candidates = append(candidates, row)
	}

	for _, group := range clusterBySimilarity(candidates, m.cfg.GeneralizeSimilarity, m.cfg.GeneralizeGroupSize) {
		m.generalizeGroup(ctx, group)
	}
}

// clusterBySimilarity greedily groups memories whose content embeddings
// are pairwise similar at or above the threshold.
func clusterBySimilarity(candidates []memory.Memory, threshold float64, minSize int) [][]memory.Memory {
	var groups [][]memory.Memory
	used := make(map[string]bool, len(candidates))

	for i := range candidates {
		if used[candidates[i].ID] {
			continue
		}
		group := []memory.Memory{candidates[i]}
		for j := i + 1; j < len(candidates); j++ {
			if used[candidates[j].ID] {
				continue
			}
			similarToAll := true
			for _, member := range group {
				sim := memory.CosineSimilarity(member.ContentEmbedding, candidates[j].ContentEmbedding)
				if sim < threshold {
					similarToAll = false
					break
				}
			}
			if similarToAll {
				group = append(group, candidates[j])
			}
		}
		if len(group) < minSize {
			continue
		}
		for _, member := range group {
			used[member.ID] = true
		}
		groups = append(groups, group)
	}
	return groups
}

// generalizeGroup synthesizes one pattern from a cluster and archives the
// sources with a back-reference to it.
func (m *Manager) generalizeGroup(ctx context.Context, group []memory.Memory) {
	// The exemplar is the member that proved itself the most.
	exemplar := group[0]
	minConfidence := group[0].ConfidenceScore
	sourceIDs := make([]string, 0, len(group))
	for _, member := range group {
		sourceIDs = append(sourceIDs, member.ID)
		if member.ConfidenceScore < minConfidence {
			minConfidence = member.ConfidenceScore
		}
		if member.ConfidenceScore*float64(member.ApplicationCount) >
			exemplar.ConfidenceScore*float64(exemplar.ApplicationCount) {
			exemplar = member
		}
	}
	sort.Strings(sourceIDs)

	pattern := &memory.Memory{
		Task:              exemplar.Task,
		TacticalLearning:  exemplar.TacticalLearning,
		StrategicLearning: fmt.Sprintf("Generalized from %d similar experiences: %s", len(group), exemplar.StrategicLearning),
		ConfidenceScore:   minConfidence * 0.9,
		Outcome:           exemplar.Outcome,
		IsGeneralization:  true,
		SourceLearnings:   datatypes.NewJSONSlice(sourceIDs),
	}
	patternID, err := m.store.Store(ctx, pattern)
	if err != nil {
		m.logger.Warn("generalization: storing pattern failed", zap.Error(err))
		return
	}

	for i := range group {
		source := group[i]
		source.LifecycleState = memory.StateArchived
		source.ReplacedBy = patternID
		if err := m.store.Save(ctx, &source); err != nil {
			m.logger.Warn("generalization: archiving source failed",
				zap.String("memory_id", source.ID), zap.Error(err))
		}
	}

	m.logger.Info("pattern generalized",
		zap.String("pattern_id", patternID),
		zap.Int("sources", len(group)),
	)
}

// RunMonthly prunes storage: deletes expired ARCHIVED rows, merges
// near-duplicates, and archives memories that never proved their value.
func (m *Manager) RunMonthly(ctx context.Context) {
	now := m.now()
	m.pruneArchived(ctx, now)
	m.mergeDuplicates(ctx)
	m.archiveLowValue(ctx, now)
}

// pruneArchived hard-deletes ARCHIVED memories inactive past retention.
func (m *Manager) pruneArchived(ctx context.Context, now time.Time) {
	rows, err := m.store.List(ctx, memory.StateArchived)
	if err != nil {
		m.logger.Error("pruning: listing archived memories failed", zap.Error(err))
		return
	}

	cutoff := now.AddDate(0, 0, -m.cfg.ArchiveRetentionDays)
	deleted := 0
	for i := range rows {
		row := &rows[i]
		if row.LastActivity().After(cutoff) {
			continue
		}
		if err := m.store.Delete(ctx, row.ID); err != nil {
			m.logger.Warn("pruning: delete failed",
				zap.String("memory_id", row.ID), zap.Error(err))
			continue
		}
		deleted++
	}
	m.logger.Info("archived memories pruned", zap.Int("deleted", deleted))
}

// mergeDuplicates folds near-duplicate memories into the one maximizing
// confidence times application count, then deletes the losers.
func (m *Manager) mergeDuplicates(ctx context.Context) {
	rows, err := m.store.List(ctx, memory.StateNew, memory.StateValidated, memory.StateStable, memory.StateDeclining)
	if err != nil {
		m.logger.Error("dedup: listing memories failed", zap.Error(err))
		return
	}

	merged := make(map[string]bool)
	for i := range rows {
		if merged[rows[i].ID] || len(rows[i].ContentEmbedding) == 0 {
			continue
		}
		for j := i + 1; j < len(rows); j++ {
			if merged[rows[j].ID] || len(rows[j].ContentEmbedding) == 0 {
				continue
			}
			sim := memory.CosineSimilarity(rows[i].ContentEmbedding, rows[j].ContentEmbedding)
			if sim < m.cfg.DuplicateSimilarity {
				continue
			}

			winner, loser := &rows[i], &rows[j]
			if loser.ConfidenceScore*float64(loser.ApplicationCount) >
				winner.ConfidenceScore*float64(winner.ApplicationCount) {
				winner, loser = loser, winner
			}

			winner.ApplicationCount += loser.ApplicationCount
			winner.SuccessCount += loser.SuccessCount
			winner.FailureCount += loser.FailureCount
			if err := m.store.Save(ctx, winner); err != nil {
				m.logger.Warn("dedup: saving winner failed",
					zap.String("memory_id", winner.ID), zap.Error(err))
				continue
			}
			if err := m.store.Delete(ctx, loser.ID); err != nil {
				m.logger.Warn("dedup: deleting duplicate failed",
					zap.String("memory_id", loser.ID), zap.Error(err))
				continue
			}
			merged[loser.ID] = true
			m.logger.Info("duplicate merged",
				zap.String("kept", winner.ID),
				zap.String("removed", loser.ID),
				zap.Float64("similarity", sim),
			)
			if loser == &rows[i] {
				break
			}
		}
	}
}

// archiveLowValue archives memories that stayed both unconfident and
// unapplied past the age cutoff.
func (m *Manager) archiveLowValue(ctx context.Context, now time.Time) {
	rows, err := m.store.List(ctx, memory.StateNew, memory.StateValidated, memory.StateDeclining)
	if err != nil {
		m.logger.Error("low-value: listing memories failed", zap.Error(err))
		return
	}

	cutoff := now.AddDate(0, 0, -m.cfg.LowValueAgeDays)
	for i := range rows {
		row := &rows[i]
		if row.ConfidenceScore >= m.cfg.LowValueConfidence {
			continue
		}
		if row.ApplicationCount >= m.cfg.LowValueApplications {
			continue
		}
		if row.Timestamp.After(cutoff) {
			continue
		}
		row.LifecycleState = memory.StateArchived
		if err := m.store.Save(ctx, row); err != nil {
			m.logger.Warn("low-value: archiving failed",
				zap.String("memory_id", row.ID), zap.Error(err))
		}
	}
}

// Report computes the population health metrics.
func (m *Manager) Report(ctx context.Context) (*Metrics, error) {
	counts, err := m.store.CountByState(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting states: %w", err)
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	health := 1.0
	if total > 0 {
		health = float64(counts[memory.StateValidated]+counts[memory.StateStable]) / float64(total)
	}

	rows, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing memories: %w", err)
	}
	atRisk := 0
	newThisWeek := 0
	weekAgo := m.now().AddDate(0, 0, -7)
	for _, row := range rows {
		if row.ConsecutiveFailures >= 2 {
			atRisk++
		}
		if row.Timestamp.After(weekAgo) {
			newThisWeek++
		}
	}

	return &Metrics{
		StateCounts: counts,
		HealthScore: health,
		AtRiskCount: atRisk,
		NewThisWeek: newThisWeek,
		TotalCount:  total,
	}, nil
}
