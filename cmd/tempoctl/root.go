package main

import (
	"github.com/spf13/cobra"

	"github.com/meltforce/tempo/internal/config"
)

func newRootCmd(a *app) *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:   "tempoctl",
		Short: "tempoctl drives your active workout, run or meditation",
		Long: `tempoctl keeps one active session (strength workout, free workout, timed run
or guided meditation) that survives restarts, sleep and suspended terminals.
Every command resumes the session from the local cache first and derives all
timers from the stored start instant.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context(), cfgPath)
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultClientConfigPath(), "path to client config file")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "print machine-readable JSON")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		newStartCmd(a),
		newStatusCmd(a),
		newSetCmd(a),
		newUndoCmd(a),
		newSkipRestCmd(a),
		newNextCmd(a),
		newPrevCmd(a),
		newPauseCmd(a),
		newResumeCmd(a),
		newFinishCmd(a),
		newExitCmd(a),
		newBackgroundCmd(a),
		newMeditateCmd(a),
		newMCPCmd(a, &cfgPath),
	)
	return root
}
