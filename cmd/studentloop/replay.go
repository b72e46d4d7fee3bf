package main

// #region imports
import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/student-loop/internal/replay"
)

// #endregion

// #region replay-command

func replayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <fixture.json>",
		Short: "Replay recorded candidates through a fresh gate pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, summary, err := replay.ReplayFile(args[0])
			if err != nil {
				return err
			}

			accept := color.New(color.FgGreen)
			reject := color.New(color.FgRed)
			for _, r := range results {
				line := fmt.Sprintf("  %-12s quality=%.2f similarity=%.2f reasons=%v",
					r.ID, r.Decision.QualityScore, r.Decision.Similarity, r.Decision.Reasons)
				if r.Decision.Accepted {
					accept.Println(line)
				} else {
					reject.Println(line)
				}
			}

			fmt.Printf("total=%d accepted=%d rejected=%d pii=%d regex=%d governor=%d\n",
				summary.Total, summary.Accepted, summary.Rejected,
				summary.Incidents.PII, summary.Incidents.Regex, summary.Incidents.Governor)

			if len(summary.Mismatches) > 0 {
				return fmt.Errorf("%d candidates diverged from expected results: %v",
					len(summary.Mismatches), summary.Mismatches)
			}
			return nil
		},
	}
}

// #endregion replay-command
