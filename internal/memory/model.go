package memory

import (
	"math"
	"time"

	"gorm.io/datatypes"
)

// LifecycleState is the trust/maturity stage of a memory.
type LifecycleState string

const (
	StateNew       LifecycleState = "NEW"
	StateValidated LifecycleState = "VALIDATED"
	StateStable    LifecycleState = "STABLE"
	StateDeclining LifecycleState = "DECLINING"
	StateArchived  LifecycleState = "ARCHIVED"
	StateFailed    LifecycleState = "FAILED"
)

// Severity grades an application failure for the confidence penalty.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// Outcome is the overall result the memory was extracted from.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// AntiPatterns records what not to repeat.
type AntiPatterns struct {
	Description    string   `json:"description"`
	Redundancies   []string `json:"redundancies"`
	Inefficiencies []string `json:"inefficiencies"`
}

// ExecutionMetadata is the execution analysis folded into the stored record.
type ExecutionMetadata struct {
	ToolCounts                   map[string]int `json:"tool_counts"`
	EfficiencyScore              float64        `json:"efficiency_score"`
	WorkflowPattern              string         `json:"workflow_pattern"`
	ParallelizationOpportunities [][]string     `json:"parallelization_opportunities"`
}

// Memory is the persisted learning unit.
//
// A generalized Pattern is a Memory with IsGeneralization set and
// SourceLearnings pointing at the archived rows it supersedes. Rows are
// independent: every mutation is a single-row transaction keyed by ID.
type Memory struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	Task      string `gorm:"not null" json:"task"`
	Context   string `json:"context,omitempty"`
	Narrative string `json:"narrative,omitempty"`

	TacticalLearning  string `json:"tactical_learning,omitempty"`
	StrategicLearning string `json:"strategic_learning,omitempty"`
	MetaLearning      string `json:"meta_learning,omitempty"`

	AntiPatterns      datatypes.JSONType[AntiPatterns]      `gorm:"type:json" json:"anti_patterns"`
	ExecutionMetadata datatypes.JSONType[ExecutionMetadata] `gorm:"type:json" json:"execution_metadata"`

	ConfidenceScore float64   `json:"confidence_score"`
	Outcome         Outcome   `json:"outcome"`
	Timestamp       time.Time `json:"timestamp"`

	TaskEmbedding    datatypes.JSONSlice[float32] `gorm:"type:json" json:"-"`
	ContentEmbedding datatypes.JSONSlice[float32] `gorm:"type:json" json:"-"`

	LifecycleState LifecycleState `gorm:"index;default:NEW" json:"lifecycle_state"`
	LastValidated  *time.Time     `json:"last_validated,omitempty"`

	ApplicationCount    int    `json:"application_count"`
	SuccessCount        int    `json:"success_count"`
	FailureCount        int    `json:"failure_count"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastFailureReason   string `json:"last_failure_reason,omitempty"`

	// RecentOutcomes is a bounded window of the latest application results,
	// newest last, used for the 2-failures-in-last-5 demotion check.
	RecentOutcomes datatypes.JSONSlice[bool] `gorm:"type:json" json:"-"`

	IsGeneralization bool                        `json:"is_generalization"`
	SourceLearnings  datatypes.JSONSlice[string] `gorm:"type:json" json:"source_learnings,omitempty"`
	ReplacedBy       string                      `json:"replaced_by,omitempty"`
}

// TableName keeps the table name stable regardless of struct renames.
func (Memory) TableName() string { return "memories" }

// failurePenalties maps severity to its confidence multiplier.
var failurePenalties = map[Severity]float64{
	SeverityMinor:    0.9,
	SeverityMajor:    0.7,
	SeverityCritical: 0.4,
}

const (
	recentOutcomeWindow = 5

	validatedSuccessThreshold = 3
	validatedConfidenceFloor  = 0.7
	stableSuccessThreshold    = 10
	stableConfidenceFloor     = 0.9
	failedConsecutiveFailures = 3
)

// ApplyOutcome folds one application result into the memory.
//
// Success multiplies confidence by 1.05 (capped at 1.0), resets the
// consecutive-failure streak, and stamps LastValidated. Failure applies
// the severity penalty (major when unspecified). Counter-driven state
// transitions happen here; time-driven ones belong to the lifecycle jobs.
// FAILED is terminal: a memory that reached three consecutive failures
// never transitions out, though its counters keep recording.
func (m *Memory) ApplyOutcome(success bool, severity Severity, reason string, now time.Time) {
	m.ApplicationCount++
	m.RecentOutcomes = append(m.RecentOutcomes, success)
	if len(m.RecentOutcomes) > recentOutcomeWindow {
		m.RecentOutcomes = m.RecentOutcomes[len(m.RecentOutcomes)-recentOutcomeWindow:]
	}

	if success {
		m.SuccessCount++
		m.ConsecutiveFailures = 0
		m.ConfidenceScore = min(1.0, m.ConfidenceScore*1.05)
		m.LastValidated = &now
	} else {
		penalty, ok := failurePenalties[severity]
		if !ok {
			penalty = failurePenalties[SeverityMajor]
		}
		m.FailureCount++
		m.ConsecutiveFailures++
		m.ConfidenceScore *= penalty
		if reason != "" {
			m.LastFailureReason = reason
		}
	}

	m.advanceState()
}

// advanceState applies the counter-driven transitions of the state table.
func (m *Memory) advanceState() {
	if m.LifecycleState == StateFailed {
		return
	}
	if m.ConsecutiveFailures >= failedConsecutiveFailures {
		m.LifecycleState = StateFailed
		return
	}

	switch m.LifecycleState {
	case StateNew:
		if m.SuccessCount >= validatedSuccessThreshold && m.ConfidenceScore > validatedConfidenceFloor {
			m.LifecycleState = StateValidated
		}
	case StateValidated:
		if m.SuccessCount >= stableSuccessThreshold && m.ConfidenceScore > stableConfidenceFloor {
			m.LifecycleState = StateStable
		}
	case StateStable:
		if m.recentFailures() >= 2 {
			m.LifecycleState = StateDeclining
		}
	}
}

// recentFailures counts failures inside the bounded outcome window.
func (m *Memory) recentFailures() int {
	n := 0
	for _, ok := range m.RecentOutcomes {
		if !ok {
			n++
		}
	}
	return n
}

// Decay applies exponential confidence decay with a 60-day half-life,
// floored at 0.3 so a decayed memory can still redeem itself.
func (m *Memory) Decay(now time.Time) {
	ref := m.Timestamp
	if m.LastValidated != nil {
		ref = *m.LastValidated
	}
	days := now.Sub(ref).Hours() / 24
	if days <= 0 {
		return
	}
	decayed := m.ConfidenceScore * math.Pow(0.5, days/60)
	m.ConfidenceScore = max(0.3, decayed)
}

// LastActivity is the most recent of creation and last validation.
func (m *Memory) LastActivity() time.Time {
	if m.LastValidated != nil && m.LastValidated.After(m.Timestamp) {
		return *m.LastValidated
	}
	return m.Timestamp
}

// ContentText is the text the content embedding derives from: task plus
// all non-null learning dimensions, in fixed order, space-joined.
func (m *Memory) ContentText() string {
	text := m.Task
	for _, part := range []string{m.TacticalLearning, m.StrategicLearning, m.MetaLearning} {
		if part != "" {
			text += " " + part
		}
	}
	return text
}
