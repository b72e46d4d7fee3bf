// Package replay re-runs recorded candidate examples through a fresh gate
// pipeline, entirely in-memory, so gating behavior can be audited and
// regression-tested against captured fixtures.
package replay

import (
	"github.com/danielpatrickdp/student-loop/internal/adapter"
	"github.com/danielpatrickdp/student-loop/internal/autopilot"
	"github.com/danielpatrickdp/student-loop/internal/curator"
	"github.com/danielpatrickdp/student-loop/internal/model"
	"github.com/danielpatrickdp/student-loop/internal/trainer"
)

// #region types

// Result is the gate outcome for one replayed candidate.
type Result struct {
	ID       string
	Decision autopilot.GateDecision
}

// Summary aggregates a replay run.
type Summary struct {
	Total      int
	Accepted   int
	Rejected   int
	Incidents  autopilot.Incidents
	Mismatches []string // candidate ids whose outcome differs from expected
}

// #endregion types

// #region replay

// Replay feeds every fixture candidate through a fresh gate pipeline in
// order, so novelty and dedup state accumulate exactly as they would during
// live ingestion. Training is left untriggered; only gating runs.
func Replay(f *Fixture) ([]Result, Summary) {
	config := f.Config.ToAutopilotConfig()
	tok := model.NewWordTokenizer()
	m := model.NewRefModel(16, 32)
	tr := trainer.New(m, tok, adapter.NewManager(), trainer.DefaultConfig())
	a := autopilot.New(config, curator.New(curator.DefaultConfig()), tr, tok)

	if len(f.Config.PriorityTags) > 0 {
		a.SetCurriculum(autopilot.Curriculum{
			QualityFloor: config.QualityFloor,
			PriorityTags: f.Config.PriorityTags,
		})
	}

	expected := make(map[string]bool, len(f.Expected))
	for _, e := range f.Expected {
		expected[e.ID] = e.Accepted
	}

	results := make([]Result, 0, len(f.Candidates))
	summary := Summary{Total: len(f.Candidates)}
	for _, c := range f.Candidates {
		d := a.IngestCandidate(c.Prompt, c.TeacherOutput, c.Constraints, c.Source)
		if d.Accepted {
			summary.Accepted++
		} else {
			summary.Rejected++
		}
		if want, ok := expected[c.ID]; ok && want != d.Accepted {
			summary.Mismatches = append(summary.Mismatches, c.ID)
		}
		results = append(results, Result{ID: c.ID, Decision: d})
	}
	summary.Incidents = a.Incidents()
	return results, summary
}

// ReplayFile loads a fixture and replays it.
func ReplayFile(path string) ([]Result, Summary, error) {
	f, err := LoadFixture(path)
	if err != nil {
		return nil, Summary{}, err
	}
	results, summary := Replay(f)
	return results, summary, nil
}

// #endregion replay
