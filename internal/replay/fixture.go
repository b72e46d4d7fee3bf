package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/student-loop/internal/autopilot"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a gate-replay fixture.
type Fixture struct {
	Description string             `json:"description"`
	Config      FixtureConfig      `json:"config"`
	Candidates  []FixtureCandidate `json:"candidates"`
	Expected    []FixtureExpected  `json:"expected_results"`
}

// FixtureConfig overrides gate settings for a replay run. Zero values fall
// back to the defaults.
type FixtureConfig struct {
	QualityFloor      float64  `json:"quality_floor"`
	MinAcceptedTokens int      `json:"min_accepted_tokens"`
	NoveltyThreshold  float64  `json:"novelty_threshold"`
	PriorityTags      []string `json:"priority_tags"`
}

// FixtureCandidate is one recorded candidate example.
type FixtureCandidate struct {
	ID            string         `json:"id"`
	Prompt        string         `json:"prompt"`
	TeacherOutput string         `json:"teacher_output"`
	Constraints   map[string]any `json:"constraints"`
	Source        string         `json:"source"`
}

// FixtureExpected captures the expected gate outcome per candidate.
type FixtureExpected struct {
	ID       string `json:"id"`
	Accepted bool   `json:"accepted"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToAutopilotConfig applies fixture overrides on top of the defaults.
func (c *FixtureConfig) ToAutopilotConfig() autopilot.Config {
	config := autopilot.DefaultConfig()
	if c.QualityFloor > 0 {
		config.QualityFloor = c.QualityFloor
	}
	if c.MinAcceptedTokens > 0 {
		config.MinAcceptedTokens = c.MinAcceptedTokens
	}
	if c.NoveltyThreshold > 0 {
		config.NoveltyThreshold = c.NoveltyThreshold
	}
	return config
}

// #endregion fixture-loader
