package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "studentloop",
		Short: "Continuous-learning loop for a small sequence model",
		Long: `studentloop runs a self-hosted continuous-learning loop: it harvests
prompt/response pairs from an external teacher, gates them for safety,
novelty, and quality, and periodically retrains a student model with a
low-rank adapter while adapting its own acceptance thresholds.`,
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(inspectCmd())
	rootCmd.AddCommand(replayCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
