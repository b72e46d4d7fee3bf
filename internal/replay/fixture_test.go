package replay

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.json")
	content := `{
		"description": "basic gate fixture",
		"config": {"quality_floor": 0.2, "priority_tags": ["source::docs"]},
		"candidates": [
			{"id": "c1", "prompt": "please describe the first topic", "teacher_output": "words.", "source": "test"}
		],
		"expected_results": [{"id": "c1", "accepted": false}]
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if f.Description != "basic gate fixture" {
		t.Fatalf("description = %q", f.Description)
	}
	if len(f.Candidates) != 1 || f.Candidates[0].ID != "c1" {
		t.Fatalf("candidates = %+v", f.Candidates)
	}
	if len(f.Expected) != 1 || f.Expected[0].Accepted {
		t.Fatalf("expected = %+v", f.Expected)
	}
}

func TestLoadFixtureMissingFile(t *testing.T) {
	if _, err := LoadFixture(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing fixture")
	}
}

func TestFixtureConfigOverrides(t *testing.T) {
	fc := FixtureConfig{QualityFloor: 0.5, MinAcceptedTokens: 10}
	config := fc.ToAutopilotConfig()
	if config.QualityFloor != 0.5 {
		t.Fatalf("floor = %f", config.QualityFloor)
	}
	if config.MinAcceptedTokens != 10 {
		t.Fatalf("min tokens = %d", config.MinAcceptedTokens)
	}
	if config.NoveltyThreshold != 0.92 {
		t.Fatalf("unset override must keep default, got %f", config.NoveltyThreshold)
	}
}
