package analyzer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/johannhartmann/learning-agent/internal/conversation"
)

// Tool-name classification. Matching is substring-based so the rules work
// across orchestrators with differently prefixed tool names.
var (
	planningNames = []string{"plan", "todo"}
	listingNames  = []string{"ls", "list", "glob", "grep", "search", "find", "status"}
	readNames     = []string{"read", "cat", "get", "fetch"}
	mutatingNames = []string{"write", "edit", "create", "delete", "update", "patch", "move", "remove"}
	delegateNames = []string{"task", "delegate", "subagent"}
	sandboxNames  = []string{"sandbox", "execute", "run", "bash", "python"}
)

func matchesAny(tool string, names []string) bool {
	lower := strings.ToLower(tool)
	for _, n := range names {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

func isPlanning(tool string) bool { return matchesAny(tool, planningNames) }
func isListing(tool string) bool  { return matchesAny(tool, listingNames) }
func isRead(tool string) bool     { return matchesAny(tool, readNames) && !isListing(tool) }
func isMutating(tool string) bool { return matchesAny(tool, mutatingNames) }
func isDelegate(tool string) bool { return matchesAny(tool, delegateNames) }
func isSandbox(tool string) bool  { return matchesAny(tool, sandboxNames) }

// redundancyRule detects one class of redundant tool usage over a sequence.
type redundancyRule struct {
	name  string
	apply func(cfg Config, calls []conversation.ToolCall) []Redundancy
}

// redundancyRules is the fixed rule table evaluated by Analyze. Each rule
// is independent so it can be tested and extended on its own.
var redundancyRules = []redundancyRule{
	{
		name: "consecutive_duplicate",
		apply: func(_ Config, calls []conversation.ToolCall) []Redundancy {
			var out []Redundancy
			for i := 1; i < len(calls); i++ {
				if calls[i].Name == calls[i-1].Name {
					out = append(out, Redundancy{
						Type:       "consecutive_duplicate",
						Tool:       calls[i].Name,
						Position:   i + 1,
						Suggestion: fmt.Sprintf("batch %s operations", calls[i].Name),
					})
				}
			}
			return out
		},
	},
	{
		name: "excessive_checks",
		apply: func(cfg Config, calls []conversation.ToolCall) []Redundancy {
			// More than MaxStatusChecks listing/status calls without an
			// intervening mutating call means the agent is polling state
			// it already knows.
			checks := 0
			lastTool := ""
			lastPos := 0
			for i, c := range calls {
				switch {
				case isListing(c.Name):
					checks++
					lastTool = c.Name
					lastPos = i + 1
				case isMutating(c.Name):
					checks = 0
				}
			}
			if checks > cfg.MaxStatusChecks {
				return []Redundancy{{
					Type:       "excessive_checks",
					Tool:       lastTool,
					Position:   lastPos,
					Suggestion: "consolidate status checks, state has not changed between them",
				}}
			}
			return nil
		},
	},
}

// inefficiencyRule detects one class of inefficient tool usage.
type inefficiencyRule struct {
	name  string
	apply func(cfg Config, calls []conversation.ToolCall) []Inefficiency
}

var inefficiencyRules = []inefficiencyRule{
	{
		name: "no_initial_plan",
		apply: func(_ Config, calls []conversation.ToolCall) []Inefficiency {
			distinct := map[string]struct{}{}
			for _, c := range calls {
				distinct[c.Name] = struct{}{}
			}
			if len(distinct) < 3 {
				return nil
			}
			if len(calls) > 0 && isPlanning(calls[0].Name) {
				return nil
			}
			return []Inefficiency{{
				Type:   "no_initial_plan",
				Detail: fmt.Sprintf("%d distinct tools used without an initial planning step", len(distinct)),
				Impact: "exploratory execution, likely wasted calls",
			}}
		},
	},
	{
		name: "read_without_context",
		apply: func(_ Config, calls []conversation.ToolCall) []Inefficiency {
			var out []Inefficiency
			for i, c := range calls {
				if i == 0 || !isRead(c.Name) {
					continue
				}
				// A read is contextualized when a listing, search, write,
				// or another read appears in the preceding window.
				window := calls[max(0, i-3):i]
				grounded := false
				for _, p := range window {
					if isListing(p.Name) || isMutating(p.Name) || isRead(p.Name) {
						grounded = true
						break
					}
				}
				if !grounded {
					out = append(out, Inefficiency{
						Type:   "read_without_context",
						Detail: fmt.Sprintf("%s at position %d with no preceding listing or write", c.Name, i+1),
						Impact: "blind read, structure unknown at access time",
					})
				}
			}
			return out
		},
	},
	{
		name: "repeated_reads",
		apply: func(_ Config, calls []conversation.ToolCall) []Inefficiency {
			// Reads of the same resource with no modification between them
			// should have been cached.
			lastRead := map[string]int{}
			var out []Inefficiency
			for i, c := range calls {
				key := c.Name + "|" + resourceKey(c.Args)
				switch {
				case isMutating(c.Name):
					lastRead = map[string]int{}
				case isRead(c.Name):
					if prev, ok := lastRead[key]; ok {
						out = append(out, Inefficiency{
							Type:   "repeated_reads",
							Detail: fmt.Sprintf("%s re-read at position %d, previously read at %d", c.Name, i+1, prev+1),
							Impact: "redundant I/O, content unchanged since prior read",
						})
					}
					lastRead[key] = i
				}
			}
			return out
		},
	},
}

// resourceKey derives a stable identity for the resource a call touches.
// Falls back to all stringified argument values when no path-like key exists.
func resourceKey(args map[string]any) string {
	for _, k := range []string{"path", "file", "file_path", "url", "resource", "id"} {
		if v, ok := args[k]; ok {
			return fmt.Sprint(v)
		}
	}
	parts := make([]string, 0, len(args))
	for _, v := range args {
		parts = append(parts, fmt.Sprint(v))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
