package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/worklog-sync/internal/app"
	"github.com/Tiliavir/worklog-sync/internal/model"
	"github.com/Tiliavir/worklog-sync/internal/notify"
	"github.com/Tiliavir/worklog-sync/internal/pipeline"
	"github.com/Tiliavir/worklog-sync/internal/timecalc"
	"github.com/Tiliavir/worklog-sync/internal/worklog"
)

// flowOptions selects which parts of the guided flow run.
type flowOptions struct {
	calendar bool
	approve  pipeline.Approver
	stage    bool
	push     bool
}

// buildFlow assembles the pipeline steps for a and the initial state for
// [from, to). The remote ledger is only contacted when Jira is configured.
func buildFlow(ctx context.Context, a *app.App, from, to time.Time, opts flowOptions) ([]pipeline.Step, pipeline.State, error) {
	state := pipeline.State{
		From:     from,
		To:       to,
		Meetings: a.Meetings(),
		Sessions: a.Sessions(),
		Issues:   a.Issues(),
		Entries:  a.Store.ByStatus(model.StatusDraft, model.StatusStaged, model.StatusPushed),
	}

	sync := pipeline.Sync{JQL: a.Config.Jira.JQL}
	if opts.calendar {
		source, err := a.Calendar(ctx, os.Stdout)
		if err != nil {
			return nil, state, err
		}
		sync.Meetings = source
	}
	var remote worklog.RemoteLedger
	if a.Config.Jira.BaseURL != "" {
		client, err := a.Jira(ctx)
		if err != nil {
			return nil, state, err
		}
		sync.Issues = client
		remote = client
	}
	linker, err := a.Linker()
	if err != nil {
		return nil, state, err
	}

	steps := []pipeline.Step{
		sync,
		pipeline.Link{Linker: linker},
		pipeline.Fill{Config: a.Config.FillerConfig()},
		pipeline.Review{Staging: a.Staging(), Approve: opts.approve, Stage: opts.stage},
	}
	if opts.push {
		if remote == nil {
			return nil, state, fmt.Errorf("jira.base_url is not configured; cannot push")
		}
		steps = append(steps, pipeline.Push{Reconciler: a.Reconciler(remote, worklog.WithProgress(printProgress(a)))})
	}
	return steps, state, nil
}

// persistFlow writes meetings and issues gathered by a run back to the app.
func persistFlow(a *app.App, s pipeline.State) error {
	a.SetMeetings(s.Meetings)
	if len(s.Issues) > 0 {
		a.SetIssues(s.Issues)
	}
	return a.Save()
}

var (
	wizardRange      rangeFlags
	wizardNoCalendar bool
	wizardNoPush     bool
	wizardYes        bool
)

var wizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Guided flow: sync meetings, link, fill gaps, review, stage and push",
	Args:  cobra.NoArgs,
	RunE:  runWizard,
}

func init() {
	wizardRange.register(wizardCmd)
	wizardCmd.Flags().BoolVar(&wizardNoCalendar, "no-calendar", false, "Skip the Outlook sync")
	wizardCmd.Flags().BoolVar(&wizardNoPush, "no-push", false, "Stop after staging")
	wizardCmd.Flags().BoolVarP(&wizardYes, "yes", "y", false, "Accept every proposal without asking")
}

func runWizard(cmd *cobra.Command, args []string) error {
	ctx, stop := interruptible()
	defer stop()

	return withApp(func(a *app.App) error {
		from, to, err := wizardRange.resolve(time.Now(), a.Location(), false)
		if err != nil {
			return err
		}
		opts := flowOptions{calendar: !wizardNoCalendar, stage: true, push: !wizardNoPush}
		if !wizardYes {
			opts.approve = promptApprover(os.Stdin, os.Stdout, a.Location())
		}
		steps, state, err := buildFlow(ctx, a, from, to, opts)
		if err != nil {
			return err
		}

		runner := pipeline.Runner{
			Steps: steps,
			Log:   a.Log,
			After: func(step string, s pipeline.State) { printStep(step, s) },
		}
		state, runErr := runner.Run(ctx, state)
		if err := persistFlow(a, state); err != nil {
			return err
		}
		if state.Push != nil && state.Push.BatchID != "" {
			if b, err := a.Ledger.Get(state.Push.BatchID); err == nil {
				summary := notify.PushSummary(*state.Push, &b)
				fmt.Println()
				fmt.Println(summary)
				fmt.Printf("Revert with: wsync revert %s --confirm %s\n", b.ID, timecalc.FormatHours(b.TotalSeconds))
				if perr := a.Notifier().Post(context.WithoutCancel(ctx), summary); perr != nil {
					fmt.Fprintf(os.Stderr, "Warning: %v\n", perr)
				}
			}
		}
		return runErr
	})
}

func printStep(step string, s pipeline.State) {
	switch step {
	case "sync":
		fmt.Printf("• sync    %d meeting(s) imported, %d updated, %d issue(s) known\n", s.Imported, s.Updated, len(s.Issues))
	case "link":
		fmt.Printf("• link    %d linked, %d unlinked\n", len(s.Links.Linked), len(s.Links.Unlinked))
	case "fill":
		var gaps int
		for _, p := range s.Proposals {
			gaps += len(p.Drafts)
		}
		fmt.Printf("• fill    %d gap draft(s) proposed, %d candidate(s) total\n", gaps, len(s.Candidates))
	case "review":
		fmt.Printf("• review  %d draft(s) created, %d staged, %d rejected\n", len(s.Drafts), len(s.Staged), len(s.Rejected))
		for _, o := range s.Rejected {
			fmt.Printf("    – %s: %v\n", o.ID, o.Err)
		}
	case "push":
		if s.Push == nil {
			fmt.Println("• push    nothing staged")
		}
	}
}

// promptApprover asks for every candidate: y accepts, n drops, a accepts
// the rest and q drops the rest.
func promptApprover(in io.Reader, out io.Writer, loc *time.Location) pipeline.Approver {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, candidates []model.Entry) ([]model.Entry, error) {
		if len(candidates) == 0 {
			return nil, nil
		}
		fmt.Fprintf(out, "\n%d proposal(s). [y]es / [n]o / [a]ll remaining / [q]uit\n", len(candidates))
		var approved []model.Entry
		for i, c := range candidates {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			fmt.Fprintf(out, "  %s %s–%s  %-10s %7s  %s ? ",
				c.Start.In(loc).Format("Mon 01-02"), c.Start.In(loc).Format("15:04"), c.End().In(loc).Format("15:04"),
				c.IssueKey, timecalc.FormatDuration(c.DurationSeconds), c.Comment)
			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				return approved, nil
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "y", "yes", "":
				approved = append(approved, c)
			case "a", "all":
				return append(approved, candidates[i:]...), nil
			case "q", "quit":
				return approved, nil
			}
		}
		return approved, nil
	}
}
