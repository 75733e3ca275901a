package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/worklog-sync/internal/app"
	"github.com/Tiliavir/worklog-sync/internal/config"
)

var (
	verbose bool
	logger  = slog.New(slog.DiscardHandler)
)

var rootCmd = &cobra.Command{
	Use:   "wsync",
	Short: "wsync – stage, push and revert Jira worklogs",
	Long: `wsync turns meetings, coding sessions and manual entries into Jira
worklogs. Entries are staged locally, pushed in auditable batches and can be
reverted batch by batch. State lives in ~/.wsync/ (override with WSYNC_HOME).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		}
	},
}

// Execute is the entry point called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log details to stderr")

	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stageCmd)
	rootCmd.AddCommand(unstageCmd)
	rootCmd.AddCommand(stageAllCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(revertCmd)
	rootCmd.AddCommand(reconstructCmd)
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(fillCmd)
	rootCmd.AddCommand(meetingsCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(wizardCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(configCmd)
}

// exitCode maps storage failures to 2 and everything else to 1.
func exitCode(err error) int {
	var se *app.StorageError
	if errors.As(err, &se) {
		return 2
	}
	return 1
}

// openApp loads the config and the persisted state.
func openApp() (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return app.Open(cfg, logger)
}

// withApp runs fn against a freshly opened App and closes it afterwards.
func withApp(fn func(a *app.App) error) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// interruptible returns a context canceled on Ctrl-C or SIGTERM.
func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
