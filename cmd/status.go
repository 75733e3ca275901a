package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/worklog-sync/internal/app"
	"github.com/Tiliavir/worklog-sync/internal/model"
	"github.com/Tiliavir/worklog-sync/internal/timecalc"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show entry counts, today's total and the latest batch",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app.App) error {
		loc := a.Location()
		now := time.Now().In(loc)

		for _, st := range []model.Status{model.StatusDraft, model.StatusStaged, model.StatusPushed, model.StatusReverted} {
			entries := a.Store.ByStatus(st)
			var secs int64
			for _, e := range entries {
				secs += e.DurationSeconds
			}
			fmt.Printf("  %-9s %3d  %8s\n", st, len(entries), timecalc.FormatDuration(secs))
		}

		var today, failing int64
		for _, e := range a.Store.OnDay(now) {
			if e.Status != model.StatusReverted {
				today += e.DurationSeconds
			}
		}
		for _, e := range a.Store.ByStatus(model.StatusStaged) {
			if e.LastError != "" {
				failing++
			}
		}
		fmt.Printf("\nToday: %s logged.\n", timecalc.FormatDuration(today))
		if failing > 0 {
			fmt.Printf("%d staged entr(ies) failed their last push; see 'wsync list --status staged'.\n", failing)
		}

		if batches := a.Ledger.Newest(); len(batches) > 0 {
			fmt.Printf("Last push: %s\n", batchLine(a, batches[0]))
		} else {
			fmt.Println("No pushes recorded.")
		}
		return nil
	})
}
