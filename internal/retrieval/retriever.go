// Package retrieval turns stored memories into a context block injected
// ahead of the next task.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/johannhartmann/learning-agent/internal/conversation"
	"github.com/johannhartmann/learning-agent/internal/memory"
)

// contextHeader prefixes every non-empty injection block.
const contextHeader = "Relevant learnings from past task executions:"

// Config holds the retrieval tunables.
type Config struct {
	// Limit is the number of memories to retrieve per task.
	Limit int

	// MinSimilarity drops results below this score. Low-similarity
	// injection is worse than no injection.
	MinSimilarity float64

	// HistoryWindow is how many trailing messages feed the query when the
	// task is not the first message of its thread.
	HistoryWindow int
}

// ApplyDefaults fills zero values with the documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Limit <= 0 {
		c.Limit = 3
	}
	if c.MinSimilarity <= 0 {
		c.MinSimilarity = 0.5
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 10
	}
}

// Retriever fetches and formats prior learnings for a new task.
type Retriever struct {
	store  *memory.Store
	cfg    Config
	logger *zap.Logger
}

// New creates a retriever over the memory store.
func New(store *memory.Store, cfg Config, logger *zap.Logger) (*Retriever, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	return &Retriever{store: store, cfg: cfg, logger: logger}, nil
}

// FetchForTask returns the formatted context block for a task.
//
// For the first message of a thread the task text is the query. Later
// messages may be too terse on their own, so the query is synthesized
// from the trailing history window plus the task. An empty block, not an
// error, is returned when nothing scores above the similarity floor.
func (r *Retriever) FetchForTask(ctx context.Context, taskText string, history []conversation.Message) (string, error) {
	if strings.TrimSpace(taskText) == "" {
		return "", nil
	}

	query := taskText
	if len(history) > 0 {
		query = r.synthesizeQuery(taskText, history)
	}

	results, err := r.store.SearchByTask(ctx, query, r.cfg.Limit)
	if err != nil {
		return "", fmt.Errorf("searching memories: %w", err)
	}

	kept := results[:0]
	for _, res := range results {
		if res.Similarity >= r.cfg.MinSimilarity {
			kept = append(kept, res)
		}
	}
	if len(kept) == 0 {
		r.logger.Debug("no memories above similarity floor",
			zap.Int("candidates", len(results)),
			zap.Float64("floor", r.cfg.MinSimilarity),
		)
		return "", nil
	}

	r.logger.Info("learnings retrieved for task",
		zap.Int("count", len(kept)),
		zap.Float64("top_similarity", kept[0].Similarity),
	)
	return formatBlock(kept), nil
}

// synthesizeQuery joins the last HistoryWindow message contents with the
// task text so the embedding sees the conversational context.
func (r *Retriever) synthesizeQuery(taskText string, history []conversation.Message) string {
	start := 0
	if len(history) > r.cfg.HistoryWindow {
		start = len(history) - r.cfg.HistoryWindow
	}

	var b strings.Builder
	for _, msg := range history[start:] {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		b.WriteString(msg.Content)
		b.WriteString(" ")
	}
	b.WriteString(taskText)
	return b.String()
}

// formatBlock renders the retrieved memories as one injectable text block:
// header, then per result the task, outcome, confidence, each non-empty
// learning dimension, and anti-patterns.
func formatBlock(results []memory.SearchResult) string {
	var b strings.Builder
	b.WriteString(contextHeader)
	b.WriteString("\n")

	for i, res := range results {
		mem := res.Memory
		fmt.Fprintf(&b, "\n%d. Task: %s\n", i+1, mem.Task)
		fmt.Fprintf(&b, "   Outcome: %s (confidence %.2f, similarity %.2f)\n",
			mem.Outcome, mem.ConfidenceScore, res.Similarity)

		for _, dim := range []struct {
			label string
			text  string
		}{
			{"Tactical", mem.TacticalLearning},
			{"Strategic", mem.StrategicLearning},
			{"Meta", mem.MetaLearning},
		} {
			if dim.text == "" {
				continue
			}
			fmt.Fprintf(&b, "   %s: %s\n", dim.label, dim.text)
		}

		anti := mem.AntiPatterns.Data()
		if anti.Description != "" {
			fmt.Fprintf(&b, "   Avoid: %s\n", anti.Description)
		}
		for _, item := range anti.Redundancies {
			fmt.Fprintf(&b, "   Avoid (redundancy): %s\n", item)
		}
		for _, item := range anti.Inefficiencies {
			fmt.Fprintf(&b, "   Avoid (inefficiency): %s\n", item)
		}
	}
	return b.String()
}
