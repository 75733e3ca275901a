package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/worklog-sync/internal/app"
	"github.com/Tiliavir/worklog-sync/internal/model"
	"github.com/Tiliavir/worklog-sync/internal/notify"
	"github.com/Tiliavir/worklog-sync/internal/timecalc"
	"github.com/Tiliavir/worklog-sync/internal/worklog"
)

var (
	historyShow  string
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List pushed batches, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyShow, "show", "", "Show the members of one batch")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of batches to list (0 = all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app.App) error {
		if historyShow != "" {
			b, err := a.Ledger.Get(historyShow)
			if err != nil {
				return err
			}
			printBatch(a, b)
			return nil
		}

		batches := a.Ledger.Newest()
		if len(batches) == 0 {
			fmt.Println("No pushes recorded.")
			return nil
		}
		if historyLimit > 0 && len(batches) > historyLimit {
			batches = batches[:historyLimit]
		}
		for _, b := range batches {
			fmt.Println(batchLine(a, b))
		}
		return nil
	})
}

func batchLine(a *app.App, b model.Batch) string {
	tag := ""
	if b.Recovered {
		tag = "  (recovered)"
	}
	return fmt.Sprintf("%s  %s  %2d entr(ies)  %6sh  %-18s%s",
		b.CreatedAt.In(a.Location()).Format("2006-01-02 15:04"), b.ID, len(b.Members),
		timecalc.FormatHours(b.TotalSeconds), b.Status, tag)
}

func printBatch(a *app.App, b model.Batch) {
	fmt.Println(batchLine(a, b))
	for _, m := range b.Members {
		status := "missing"
		if e, err := a.Store.Get(m.EntryID); err == nil {
			status = string(e.Status)
		}
		fmt.Printf("  %-10s %7s  worklog %-10s %-9s %s\n",
			m.IssueKey, timecalc.FormatDuration(m.DurationSeconds), m.RemoteID, status, m.EntryID)
	}
}

var revertConfirm string

var revertCmd = &cobra.Command{
	Use:   "revert <batch-id>",
	Short: "Delete a batch's worklogs from Jira",
	Long: `Delete the worklogs of a pushed batch from Jira. The batch total in hours
with one decimal (as shown by wsync history) must be given as confirmation.
Re-running a partially reverted batch retries only the remaining entries.`,
	Args: cobra.ExactArgs(1),
	RunE: runRevert,
}

func init() {
	revertCmd.Flags().StringVar(&revertConfirm, "confirm", "", "Batch total in hours, e.g. 12.5")
}

func runRevert(cmd *cobra.Command, args []string) error {
	ctx, stop := interruptible()
	defer stop()

	return withApp(func(a *app.App) error {
		b, err := a.Ledger.Get(args[0])
		if err != nil {
			return err
		}
		confirmation := revertConfirm
		if confirmation == "" {
			printBatch(a, b)
			fmt.Print("\nType the batch total in hours to confirm: ")
			if confirmation, err = readConfirmation(os.Stdin); err != nil {
				return err
			}
		}

		remote, err := a.Jira(ctx)
		if err != nil {
			return err
		}
		rec := a.Reconciler(remote, worklog.WithProgress(printProgress(a)))
		res, err := rec.Revert(ctx, b.ID, confirmation)
		if err != nil && len(res.Reverted) == 0 && len(res.Failed) == 0 {
			return err
		}
		for _, id := range res.AlreadyReverted {
			fmt.Printf("  – Skipped  %s (already reverted)\n", id)
		}
		summary := notify.RevertSummary(res)
		fmt.Println()
		fmt.Println(summary)
		if len(res.Reverted) > 0 {
			if perr := a.Notifier().Post(context.WithoutCancel(ctx), summary); perr != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", perr)
			}
		}
		if err != nil {
			return err
		}
		if len(res.Failed) > 0 {
			return fmt.Errorf("%d entries could not be reverted; run the command again to retry", len(res.Failed))
		}
		return nil
	})
}

// errNoConfirmation is returned when stdin closes before a confirmation
// was typed.
var errNoConfirmation = errors.New("no confirmation given; pass --confirm or type the batch total")

// readConfirmation reads one line. An empty answer, or input that ends
// before any text, is errNoConfirmation.
func readConfirmation(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	line = strings.TrimSpace(line)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading confirmation: %w", err)
	}
	if line == "" {
		return "", errNoConfirmation
	}
	return line, nil
}

var reconstructCmd = &cobra.Command{
	Use:   "reconstruct",
	Short: "Rebuild missing history batches from pushed entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := interruptible()
		defer stop()
		return withApp(func(a *app.App) error {
			batches, err := a.Reconstructor().Reconstruct(ctx)
			if err != nil {
				return err
			}
			if len(batches) == 0 {
				fmt.Println("History is complete; nothing to reconstruct.")
				return nil
			}
			for _, b := range batches {
				fmt.Println("  ✓ " + batchLine(a, b))
			}
			fmt.Printf("\n%d batch(es) recovered.\n", len(batches))
			return nil
		})
	},
}
