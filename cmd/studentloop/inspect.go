package main

// #region imports
import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/student-loop/internal/ledger"
	"github.com/danielpatrickdp/student-loop/internal/runstore"
)

// #endregion

// #region inspect-command

func inspectCmd() *cobra.Command {
	var dataDir string
	var last int

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show run-store state and recent gating decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(dataDir, last)
		},
	}
	cmd.Flags().StringVar(&dataDir, "data", "data", "loop data directory")
	cmd.Flags().IntVar(&last, "last", 10, "show N most recent records per section")
	return cmd
}

func runInspect(dataDir string, last int) error {
	store, err := runstore.NewStore(filepath.Join(dataDir, "run.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	heading := color.New(color.FgCyan, color.Bold)
	accept := color.New(color.FgGreen)
	reject := color.New(color.FgRed)

	heading.Println("promoted checkpoints")
	checkpoints, err := store.ListCheckpoints(last)
	if err != nil {
		return err
	}
	if len(checkpoints) == 0 {
		fmt.Println("  (none)")
	}
	for _, c := range checkpoints {
		fmt.Printf("  %s  step=%-6d ppl=%-8.3f %s\n", c.VersionID, c.Step, c.Perplexity, c.Path)
	}

	heading.Println("recent evaluations")
	evals, err := store.RecentEvals(last)
	if err != nil {
		return err
	}
	if len(evals) == 0 {
		fmt.Println("  (none)")
	}
	for _, e := range evals {
		fmt.Printf("  step=%-6d ppl=%-8.3f hit_rate=%-5.2f adapter_norm=%.4f\n",
			e.Step, e.Perplexity, e.HitRate, e.AdapterNorm)
	}

	heading.Println("curriculum")
	if rec, found, err := store.LatestCurriculum(); err != nil {
		return err
	} else if found {
		fmt.Printf("  floor=%.2f priority=%v\n", rec.QualityFloor, rec.PriorityTags)
	} else {
		fmt.Println("  (none)")
	}

	heading.Println("recent gating decisions")
	entries, err := ledger.NewLedger(filepath.Join(dataDir, "ledger.jsonl")).Tail(last)
	if err != nil {
		fmt.Println("  (no ledger)")
		return nil
	}
	for _, e := range entries {
		line := fmt.Sprintf("  %s  quality=%.2f similarity=%.2f tokens=%d reasons=%v",
			e.Timestamp, e.QualityScore, e.Similarity, e.FilteredTokens, e.Reasons)
		if e.Accepted {
			accept.Println(line)
		} else {
			reject.Println(line)
		}
	}
	return nil
}

// #endregion inspect-command
