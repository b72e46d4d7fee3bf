// Package curator gates candidate prompt/response pairs before they reach the
// training stream: length and complexity bands, PII and forbidden-phrase
// screening, and hash-based deduplication with provenance stamping.
package curator

import (
	"strings"
	"sync"
	"time"

	"github.com/danielpatrickdp/student-loop/internal/texthash"
)

// #region curator

// Curator is the data-curation gate. Safe for concurrent use; the only
// mutable state is the set of sample ids already accepted.
type Curator struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	config Config
}

// New creates a curator with the given config.
func New(config Config) *Curator {
	return &Curator{
		seen:   make(map[string]struct{}),
		config: config,
	}
}

// #endregion curator

// #region curate

// Curate validates a candidate pair and returns the stamped example, or nil
// with a rejection reason. The sample id is a function of the canonicalized
// source and the normalized prompt/output hashes, so cosmetically different
// duplicates collide.
func (c *Curator) Curate(prompt, teacherOutput string, constraints map[string]any, promptHash, teacherSource string) (*TrainingExample, string) {
	if reason := c.checkText(prompt); reason != "" {
		return nil, "prompt " + reason
	}
	if reason := c.checkText(teacherOutput); reason != "" {
		return nil, "output " + reason
	}
	if !complexEnough(teacherOutput, c.config.MinComplexityTokens) {
		return nil, "output fails complexity check"
	}

	sampleID := texthash.SampleID(teacherSource, prompt, teacherOutput)

	c.mu.Lock()
	if _, dup := c.seen[sampleID]; dup {
		c.mu.Unlock()
		return nil, "duplicate sample"
	}
	c.seen[sampleID] = struct{}{}
	c.mu.Unlock()

	if promptHash == "" {
		promptHash = texthash.HashHex(prompt)
	}
	if constraints == nil {
		constraints = map[string]any{}
	}

	return &TrainingExample{
		Prompt:        prompt,
		TeacherOutput: teacherOutput,
		Constraints:   constraints,
		Provenance: Provenance{
			Source:      teacherSource,
			PromptHash:  promptHash,
			TeacherHash: texthash.HashHex(teacherOutput),
			SampleHash:  sampleID,
			Tags:        tagsFromConstraints(constraints),
			Timestamp:   time.Now().UTC(),
		},
	}, ""
}

// #endregion curate

// #region preference

// RecordStudentResponse builds a preference pair when the student output
// clears the same safety and length checks as a curated sample. No dedup is
// applied; repeated pairs are the caller's concern.
func (c *Curator) RecordStudentResponse(prompt, teacherOutput, studentOutput string) (*PreferencePair, string) {
	if reason := c.checkText(studentOutput); reason != "" {
		return nil, "student output " + reason
	}
	if !complexEnough(studentOutput, c.config.MinComplexityTokens) {
		return nil, "student output fails complexity check"
	}

	return &PreferencePair{
		Prompt:        prompt,
		TeacherOutput: teacherOutput,
		StudentOutput: studentOutput,
		CreatedAt:     time.Now().UTC(),
	}, ""
}

// #endregion preference

// #region checks

// checkText applies the token band and pattern screens shared by prompts,
// outputs, and student responses.
func (c *Curator) checkText(text string) string {
	tokens := len(strings.Fields(text))
	if tokens < c.config.MinTokens {
		return "below minimum token count"
	}
	if tokens > c.config.MaxTokens {
		return "above maximum token count"
	}
	if ContainsPII(text) {
		return "matches PII or secret pattern"
	}
	if ViolatesForbidden(text) {
		return "matches forbidden phrase"
	}
	return ""
}

// complexEnough requires a minimum token count and at least one
// sentence-ending punctuation mark.
func complexEnough(text string, minTokens int) bool {
	if len(strings.Fields(text)) < minTokens {
		return false
	}
	return strings.ContainsAny(text, ".!?")
}

// tagsFromConstraints pulls an optional tag list out of the constraints map.
func tagsFromConstraints(constraints map[string]any) []string {
	raw, ok := constraints["tags"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		var tags []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				tags = append(tags, s)
			}
		}
		return tags
	}
	return nil
}

// #endregion checks
