package extraction

import (
	"encoding/json"
	"strings"
)

// AntiPatterns captures what not to repeat: the model's description plus
// the concrete redundancies and inefficiencies observed.
type AntiPatterns struct {
	Description    string   `json:"description"`
	Redundancies   []string `json:"redundancies"`
	Inefficiencies []string `json:"inefficiencies"`
}

// Extraction is the canonical multi-dimensional learning record.
//
// Downstream code only ever sees this shape; the schema variance of the
// external extractor (unified learnings text vs. split fields) is resolved
// at decode time.
type Extraction struct {
	TacticalLearning  string       `json:"tactical_learning"`
	StrategicLearning string       `json:"strategic_learning"`
	MetaLearning      string       `json:"meta_learning"`
	AntiPatterns      AntiPatterns `json:"anti_patterns"`
	ConfidenceScore   float64      `json:"confidence_score"`
	ShouldSave        bool         `json:"should_save"`
	SaveReason        string       `json:"save_reason,omitempty"`
}

// envelope accepts both observed extractor output shapes: a single unified
// learnings string, or the split tactical/strategic/meta fields. Pointer
// fields distinguish absent from empty so defaults apply correctly.
type envelope struct {
	Learnings         *string       `json:"learnings"`
	TacticalLearning  *string       `json:"tactical_learning"`
	StrategicLearning *string       `json:"strategic_learning"`
	MetaLearning      *string       `json:"meta_learning"`
	AntiPatterns      *AntiPatterns `json:"anti_patterns"`
	ConfidenceScore   *float64      `json:"confidence_score"`
	ShouldSave        *bool         `json:"should_save"`
	SaveReason        *string       `json:"save_reason"`
}

// decodeExtraction validates and normalizes raw extractor output.
//
// Returns ok=false for anything that does not conform to the schema:
// invalid JSON, mistyped fields, confidence out of range, or no learning
// content at all. Callers treat that as a negative save decision.
func decodeExtraction(raw json.RawMessage) (Extraction, bool) {
	var env envelope
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	if err := dec.Decode(&env); err != nil {
		return Extraction{}, false
	}

	out := Extraction{
		ConfidenceScore: 0.5,
		ShouldSave:      true,
	}
	if env.ConfidenceScore != nil {
		if *env.ConfidenceScore < 0.0 || *env.ConfidenceScore > 1.0 {
			return Extraction{}, false
		}
		out.ConfidenceScore = *env.ConfidenceScore
	}
	if env.ShouldSave != nil {
		out.ShouldSave = *env.ShouldSave
	}
	if env.SaveReason != nil {
		out.SaveReason = *env.SaveReason
	}
	if env.AntiPatterns != nil {
		out.AntiPatterns = *env.AntiPatterns
	}

	switch {
	case env.TacticalLearning != nil || env.StrategicLearning != nil || env.MetaLearning != nil:
		if env.TacticalLearning != nil {
			out.TacticalLearning = *env.TacticalLearning
		}
		if env.StrategicLearning != nil {
			out.StrategicLearning = *env.StrategicLearning
		}
		if env.MetaLearning != nil {
			out.MetaLearning = *env.MetaLearning
		}
	case env.Learnings != nil:
		splitUnified(*env.Learnings, &out)
	default:
		// Neither shape present: nothing to save.
		return Extraction{}, false
	}

	return out, true
}

// splitUnified decomposes a single learnings text into dimensions by its
// section markers. Unmarked text lands in the tactical dimension.
func splitUnified(text string, out *Extraction) {
	sections := map[string]*string{
		"tactical":  &out.TacticalLearning,
		"strategic": &out.StrategicLearning,
		"meta":      &out.MetaLearning,
	}

	current := &out.TacticalLearning
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		matched := false
		for marker, dst := range sections {
			if strings.HasPrefix(lower, marker+":") {
				current = dst
				trimmed = strings.TrimSpace(trimmed[len(marker)+1:])
				matched = true
				break
			}
		}
		if trimmed == "" && !matched {
			continue
		}
		if *current != "" {
			*current += "\n"
		}
		*current += trimmed
	}
}
