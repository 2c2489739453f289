// Package learner is the background scheduler that turns finished
// conversations into stored memories without ever blocking the foreground
// agent loop.
package learner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/johannhartmann/learning-agent/internal/analyzer"
	"github.com/johannhartmann/learning-agent/internal/conversation"
	"github.com/johannhartmann/learning-agent/internal/extraction"
	"github.com/johannhartmann/learning-agent/internal/memory"
	"github.com/johannhartmann/learning-agent/internal/notify"
	"github.com/johannhartmann/learning-agent/internal/relevance"
)

// Config holds the scheduler tunables.
type Config struct {
	// DebounceWindow collapses repeated submissions for the same thread:
	// the latest supersedes earlier queued-but-not-started ones.
	DebounceWindow time.Duration

	// ProcessTimeout bounds one pipeline run end to end.
	ProcessTimeout time.Duration
}

// ApplyDefaults fills zero values with the documented defaults.
func (c *Config) ApplyDefaults() {
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = 30 * time.Second
	}
	if c.ProcessTimeout <= 0 {
		c.ProcessTimeout = 2 * time.Minute
	}
}

// pending is one debounced submission waiting for its window to elapse.
type pending struct {
	trace *conversation.Trace
	timer *time.Timer
}

// threadLock serializes runs for one thread. refs counts the runs holding
// it so the registry entry can be dropped once the last one finishes.
type threadLock struct {
	mu   sync.Mutex
	refs int
}

// Learner owns the per-thread debounce registry and the learning
// pipeline. Submit never blocks and pipeline failures never propagate:
// at worst the conversation produces no learning this time.
type Learner struct {
	analyzer  *analyzer.Analyzer
	extractor *extraction.Extractor
	store     *memory.Store
	notifier  notify.Notifier
	cfg       Config
	logger    *zap.Logger

	// mu protects pending, threadLocks, and closed.
	mu          sync.Mutex
	pending     map[string]*pending
	threadLocks map[string]*threadLock
	closed      bool

	wg sync.WaitGroup
}

// New creates a learner. The notifier may be nil, in which case events
// are discarded.
func New(an *analyzer.Analyzer, ex *extraction.Extractor, store *memory.Store, notifier notify.Notifier, cfg Config, logger *zap.Logger) (*Learner, error) {
	if an == nil {
		return nil, fmt.Errorf("analyzer cannot be nil")
	}
	if ex == nil {
		return nil, fmt.Errorf("extractor cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	return &Learner{
		analyzer:    an,
		extractor:   ex,
		store:       store,
		notifier:    notifier,
		cfg:         cfg,
		logger:      logger,
		pending:     make(map[string]*pending),
		threadLocks: make(map[string]*threadLock),
	}, nil
}

// Submit queues a finished conversation for background learning and
// returns immediately. A submission for a thread that already has one
// pending replaces it and restarts the debounce window.
func (l *Learner) Submit(trace *conversation.Trace) {
	if trace == nil || trace.ThreadID == "" {
		l.logger.Warn("learning submission dropped: missing thread id")
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		l.logger.Warn("learning submission dropped: learner is closed",
			zap.String("thread_id", trace.ThreadID))
		return
	}

	recordSubmission()
	if p, ok := l.pending[trace.ThreadID]; ok {
		p.trace = trace
		p.timer.Reset(l.cfg.DebounceWindow)
		recordDebounced()
		l.logger.Debug("learning submission debounced",
			zap.String("thread_id", trace.ThreadID))
		return
	}

	threadID := trace.ThreadID
	p := &pending{trace: trace}
	p.timer = time.AfterFunc(l.cfg.DebounceWindow, func() {
		l.fire(threadID)
	})
	l.pending[threadID] = p
}

// fire moves a debounced submission from the registry into a processing
// goroutine once its window elapsed.
func (l *Learner) fire(threadID string) {
	l.mu.Lock()
	p, ok := l.pending[threadID]
	if !ok {
		l.mu.Unlock()
		return
	}
	delete(l.pending, threadID)

	lock, ok := l.threadLocks[threadID]
	if !ok {
		lock = &threadLock{}
		l.threadLocks[threadID] = lock
	}
	lock.refs++
	l.wg.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()
		defer l.releaseThreadLock(threadID, lock)

		// Serializes runs for one thread so submissions are processed
		// in submission order.
		lock.mu.Lock()
		defer lock.mu.Unlock()

		l.safeProcess(p.trace)
	}()
}

// releaseThreadLock drops a thread's registry entry once its last run
// finished, so the map does not grow with every thread id ever seen.
func (l *Learner) releaseThreadLock(threadID string, lock *threadLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.threadLocks, threadID)
	}
}

// Close stops accepting submissions, drops pending ones, and waits for
// in-flight runs to finish.
func (l *Learner) Close() {
	l.mu.Lock()
	l.closed = true
	for threadID, p := range l.pending {
		p.timer.Stop()
		delete(l.pending, threadID)
	}
	l.mu.Unlock()

	l.wg.Wait()
}

// safeProcess wraps one pipeline run with panic recovery so nothing can
// crash the daemon.
func (l *Learner) safeProcess(trace *conversation.Trace) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("learning pipeline panicked",
				zap.String("thread_id", trace.ThreadID),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.ProcessTimeout)
	defer cancel()

	l.process(ctx, trace)
}

// process runs the pipeline: analyze, gate on relevance signals, extract,
// store, notify. Every failure is logged and swallowed.
func (l *Learner) process(ctx context.Context, trace *conversation.Trace) {
	started := time.Now()

	analysis := l.analyzer.Analyze(trace)

	signals := relevance.ComputeSignals(trace, analysis)
	if len(signals) == 0 {
		recordOutcome("skipped_no_signals")
		l.logger.Debug("conversation skipped: no relevance signals",
			zap.String("thread_id", trace.ThreadID))
		return
	}

	ext, err := l.extractor.Extract(ctx, trace, analysis)
	if err != nil {
		recordOutcome("extraction_failed")
		l.logger.Warn("learning extraction failed",
			zap.String("thread_id", trace.ThreadID),
			zap.Error(err),
		)
		return
	}
	if !ext.ShouldSave {
		recordOutcome("skipped_should_not_save")
		l.logger.Info("learning discarded by extractor",
			zap.String("thread_id", trace.ThreadID),
			zap.String("reason", ext.SaveReason),
		)
		return
	}

	mem := buildMemory(trace, analysis, ext)
	id, err := l.store.Store(ctx, mem)
	if err != nil {
		// Never retried within the cycle: a duplicate memory is worse
		// than a missing one.
		recordOutcome("store_failed")
		l.logger.Warn("memory store failed",
			zap.String("thread_id", trace.ThreadID),
			zap.Error(err),
		)
		return
	}

	if err := l.notifier.MemoryCreated(ctx, notify.MemoryCreatedEvent{
		MemoryID:   id,
		ThreadID:   trace.ThreadID,
		Task:       mem.Task,
		Confidence: mem.ConfidenceScore,
		CreatedAt:  mem.Timestamp,
	}); err != nil {
		l.logger.Warn("memory-created notification failed",
			zap.String("memory_id", id),
			zap.Error(err),
		)
	}

	recordOutcome("stored")
	l.logger.Info("learning cycle completed",
		zap.String("thread_id", trace.ThreadID),
		zap.String("memory_id", id),
		zap.Strings("signals", relevance.Strings(signals)),
		zap.Duration("duration", time.Since(started)),
	)
}

// buildMemory folds the trace, analysis, and extraction into the
// canonical stored shape.
func buildMemory(trace *conversation.Trace, analysis analyzer.Analysis, ext *extraction.Extraction) *memory.Memory {
	outcome := memory.OutcomeSuccess
	if trace.Metadata.Outcome == conversation.OutcomeFailure {
		outcome = memory.OutcomeFailure
	}

	return &memory.Memory{
		Task:              trace.Task(),
		Narrative:         extraction.Narrative(trace),
		TacticalLearning:  ext.TacticalLearning,
		StrategicLearning: ext.StrategicLearning,
		MetaLearning:      ext.MetaLearning,
		AntiPatterns: datatypes.NewJSONType(memory.AntiPatterns{
			Description:    ext.AntiPatterns.Description,
			Redundancies:   ext.AntiPatterns.Redundancies,
			Inefficiencies: ext.AntiPatterns.Inefficiencies,
		}),
		ExecutionMetadata: datatypes.NewJSONType(memory.ExecutionMetadata{
			ToolCounts:                   analysis.ToolCounts,
			EfficiencyScore:              analysis.EfficiencyScore,
			WorkflowPattern:              string(analysis.ExecutionPatterns.WorkflowPattern),
			ParallelizationOpportunities: analysis.ParallelizationOpportunities,
		}),
		ConfidenceScore: ext.ConfidenceScore,
		Outcome:         outcome,
	}
}
