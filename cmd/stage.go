package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/worklog-sync/internal/app"
	"github.com/Tiliavir/worklog-sync/internal/worklog"
)

var stageCmd = &cobra.Command{
	Use:   "stage <id>...",
	Short: "Mark draft entries as ready to push",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			return printOutcomes("Staged", "already staged", a.Staging().Stage(args))
		})
	},
}

var unstageCmd = &cobra.Command{
	Use:   "unstage <id>...",
	Short: "Move staged entries back to draft",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			return printOutcomes("Unstaged", "already a draft", a.Staging().Unstage(args))
		})
	},
}

var stageAllCmd = &cobra.Command{
	Use:   "stage-all",
	Short: "Stage every draft entry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			outcomes := a.Staging().StageAll()
			if len(outcomes) == 0 {
				fmt.Println("No drafts to stage.")
				return nil
			}
			return printOutcomes("Staged", "already staged", outcomes)
		})
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset <id>...",
	Short: "Return staged entries to draft; fails for entries that are not staged",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App) error {
			return printOutcomes("Reset", "", a.Staging().Reset(args))
		})
	},
}

// printOutcomes prints one line per entry and returns an error when any
// entry failed.
func printOutcomes(verb, noop string, outcomes []worklog.Outcome) error {
	failed := 0
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			failed++
			fmt.Printf("  ! %s: %v\n", o.ID, o.Err)
		case o.Changed:
			fmt.Printf("  ✓ %s: %s\n", verb, o.ID)
		default:
			fmt.Printf("  – Skipped:  %s (%s)\n", o.ID, noop)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d entries failed", failed, len(outcomes))
	}
	return nil
}

func firstError(outcomes []worklog.Outcome) error {
	for _, o := range outcomes {
		if o.Err != nil {
			return o.Err
		}
	}
	return nil
}
