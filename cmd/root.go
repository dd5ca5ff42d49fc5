package cmd

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"pstrace/pkg/report"
	"pstrace/pkg/tracer"
)

var verbose bool

var RootCmd = &cobra.Command{
	Use:   "pstrace <output-file> <command> [args...]",
	Short: "pstrace: process-tree syscall tracer",
	Long:  `Traces a command and every descendant it spawns, recording which files were opened, read, and written.`,
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		outputPath := args[0]
		command := args[1:]

		t := tracer.New()
		if verbose {
			t.Logger = tracer.NewStreamLogger(os.Stderr)
		}

		snap, err := t.Run(command)
		if err != nil {
			return fmt.Errorf("pstrace: %w", err)
		}

		r := report.FromSnapshot(snap, uuid.New())
		if err := report.WriteFile(outputPath, r); err != nil {
			return err
		}

		fmt.Fprintln(os.Stderr, report.Summary(r, os.Stderr))

		if snap.Interrupted {
			os.Exit(128 + snap.InterruptSignal)
		}
		os.Exit(snap.RootExitCode)
		return nil
	},
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every traced syscall to stderr")
}
