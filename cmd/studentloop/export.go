package main

// #region imports
import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/student-loop/internal/ledger"
	"github.com/danielpatrickdp/student-loop/internal/replay"
)

// #endregion

// #region export-command

// exportCmd turns the most recent persisted training examples into a replay
// fixture, with expected_results pinned to "accepted" since every persisted
// example cleared the gate when it was recorded.
func exportCmd() *cobra.Command {
	var dataDir string
	var last int
	var outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export recent training examples as a replay fixture",
		RunE: func(cmd *cobra.Command, args []string) error {
			if outPath == "" {
				return fmt.Errorf("--out is required")
			}
			return runExport(dataDir, last, outPath)
		},
	}
	cmd.Flags().StringVar(&dataDir, "data", "data", "loop data directory")
	cmd.Flags().IntVar(&last, "last", 8, "number of most recent examples to export")
	cmd.Flags().StringVar(&outPath, "out", "", "output fixture JSON path")
	return cmd
}

func runExport(dataDir string, last int, outPath string) error {
	examples, err := ledger.NewTrainingLog(filepath.Join(dataDir, "training.jsonl")).Load()
	if err != nil {
		return err
	}
	if len(examples) == 0 {
		return fmt.Errorf("no persisted training examples in %s", dataDir)
	}
	if last > 0 && len(examples) > last {
		examples = examples[len(examples)-last:]
	}

	fixture := replay.Fixture{
		Description: fmt.Sprintf("exported from %s", dataDir),
	}
	for i, ex := range examples {
		id := ex.Provenance.SampleHash
		if id == "" {
			id = fmt.Sprintf("example-%d", i)
		}
		fixture.Candidates = append(fixture.Candidates, replay.FixtureCandidate{
			ID:            id,
			Prompt:        ex.Prompt,
			TeacherOutput: ex.TeacherOutput,
			Constraints:   ex.Constraints,
			Source:        ex.Provenance.Source,
		})
		fixture.Expected = append(fixture.Expected, replay.FixtureExpected{ID: id, Accepted: true})
	}

	data, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}
	fmt.Printf("exported %d candidates to %s\n", len(fixture.Candidates), outPath)
	return nil
}

// #endregion export-command
