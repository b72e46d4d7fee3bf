package curator

import "time"

// #region training-example

// Provenance stamps where an accepted example came from and how it is
// identified. Hashes are stable across processes.
type Provenance struct {
	Source      string    `json:"source"`
	PromptHash  string    `json:"prompt_hash"`
	TeacherHash string    `json:"teacher_hash"`
	SampleHash  string    `json:"sample_hash"`
	Tags        []string  `json:"tags,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// TrainingExample is one accepted prompt/response pair. Immutable once
// accepted; the training log only ever appends.
type TrainingExample struct {
	Prompt        string         `json:"prompt"`
	TeacherOutput string         `json:"teacher_output"`
	Constraints   map[string]any `json:"constraints"`
	Provenance    Provenance     `json:"provenance"`
}

// #endregion training-example

// #region preference-pair

// PreferencePair pairs a teacher output with a later student output for
// preference-style refinement.
type PreferencePair struct {
	Prompt        string    `json:"prompt"`
	TeacherOutput string    `json:"teacher_output"`
	StudentOutput string    `json:"student_output"`
	CreatedAt     time.Time `json:"created_at"`
}

// #endregion preference-pair

// #region config

// Config bounds what the curator accepts.
type Config struct {
	MinTokens           int // inclusive lower bound on whitespace tokens
	MaxTokens           int // inclusive upper bound on whitespace tokens
	MinComplexityTokens int // outputs below this never pass the complexity check
}

// DefaultConfig returns the standard acceptance band.
func DefaultConfig() Config {
	return Config{
		MinTokens:           5,
		MaxTokens:           1024,
		MinComplexityTokens: 10,
	}
}

// #endregion config
