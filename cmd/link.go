package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/worklog-sync/internal/app"
	"github.com/Tiliavir/worklog-sync/internal/autolink"
	"github.com/Tiliavir/worklog-sync/internal/model"
	"github.com/Tiliavir/worklog-sync/internal/pipeline"
	"github.com/Tiliavir/worklog-sync/internal/timecalc"
	"github.com/Tiliavir/worklog-sync/internal/worklog"
)

var (
	linkRange  rangeFlags
	linkForce  bool
	linkDraft  bool
	linkDryRun bool
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Attach Jira issue keys to meetings by title, description or fuzzy match",
	Args:  cobra.NoArgs,
	RunE:  runLink,
}

func init() {
	linkRange.register(linkCmd)
	linkCmd.Flags().BoolVar(&linkForce, "force", false, "Relink meetings that already have an issue key")
	linkCmd.Flags().BoolVar(&linkDraft, "draft", false, "Create draft entries for the linked meetings")
	linkCmd.Flags().BoolVar(&linkDryRun, "dry-run", false, "Show matches without saving")
}

func runLink(cmd *cobra.Command, args []string) error {
	ctx, stop := interruptible()
	defer stop()

	return withApp(func(a *app.App) error {
		from, to, err := linkRange.resolve(time.Now(), a.Location(), true)
		if err != nil {
			return err
		}
		meetings := a.MeetingsBetween(from, to)
		if len(meetings) == 0 {
			fmt.Println("No meetings in range. Run 'wsync meetings sync' first.")
			return nil
		}
		issues, err := loadIssues(ctx, a)
		if err != nil {
			return err
		}
		linker, err := a.Linker()
		if err != nil {
			return err
		}

		linked, rep := linker.Link(meetings, issues, autolink.Options{Force: linkForce})
		printLinks(linked, rep, a.Location())
		if linkDryRun {
			fmt.Println("\n[dry-run] nothing saved.")
			return nil
		}
		a.UpdateMeetings(linked)
		if err := a.Save(); err != nil {
			return err
		}
		if !linkDraft {
			return nil
		}

		drafts, outcomes := a.Staging().CreateDrafts(worklog.MeetingCandidates(linked))
		fmt.Printf("\n%d draft(s) created.\n", len(drafts))
		for _, o := range outcomes {
			if o.Err != nil {
				fmt.Printf("  – Skipped  %s: %v\n", o.ID, o.Err)
			}
		}
		return nil
	})
}

// loadIssues queries Jira when configured and refreshes the cache; without
// a Jira base URL the cached issue set is used.
func loadIssues(ctx context.Context, a *app.App) ([]model.Issue, error) {
	if a.Config.Jira.BaseURL == "" {
		return a.Issues(), nil
	}
	client, err := a.Jira(ctx)
	if err != nil {
		return nil, err
	}
	issues, err := client.SearchIssues(ctx, a.Config.Jira.JQL)
	if err != nil {
		cached := a.Issues()
		if len(cached) == 0 {
			return nil, err
		}
		fmt.Fprintf(os.Stderr, "Warning: %v; using %d cached issue(s)\n", err, len(cached))
		return cached, nil
	}
	a.SetIssues(issues)
	return issues, nil
}

func printLinks(meetings []model.Meeting, rep autolink.Report, loc *time.Location) {
	for _, m := range meetings {
		when := m.Start.In(loc).Format("2006-01-02 15:04")
		if match, ok := rep.Linked[m.ID]; ok {
			detail := string(match.Method)
			if match.Method == autolink.MethodFuzzy {
				detail = fmt.Sprintf("%s %.2f", match.Method, match.Score)
			}
			fmt.Printf("  ✓ %s  %-10s %s (%s)\n", when, match.Key, m.Title, detail)
			continue
		}
		if m.IssueKey != "" {
			fmt.Printf("  = %s  %-10s %s\n", when, m.IssueKey, m.Title)
			continue
		}
		fmt.Printf("  ? %s  %-10s %s\n", when, "", m.Title)
	}
	fmt.Printf("\n%d linked, %d unlinked, %d unchanged\n", len(rep.Linked), len(rep.Unlinked), len(rep.Untouched))
}

var (
	fillRange  rangeFlags
	fillDryRun bool
)

var fillCmd = &cobra.Command{
	Use:   "fill",
	Short: "Propose draft entries for uncovered working time",
	Long: `Find the gaps between logged entries and meetings inside the working day
and propose a draft for each one. A gap takes the issue of the block right
before it, otherwise the open-sprint issue with the most time logged so far.
The sprint issue set is the cache refreshed by 'wsync link'.`,
	Args: cobra.NoArgs,
	RunE: runFill,
}

func init() {
	fillRange.register(fillCmd)
	fillCmd.Flags().BoolVar(&fillDryRun, "dry-run", false, "Show the proposals without creating drafts")
}

func runFill(cmd *cobra.Command, args []string) error {
	ctx, stop := interruptible()
	defer stop()

	return withApp(func(a *app.App) error {
		from, to, err := fillRange.resolve(time.Now(), a.Location(), false)
		if err != nil {
			return err
		}
		state := pipeline.State{
			From:     from,
			To:       to,
			Meetings: a.Meetings(),
			Issues:   a.Issues(),
			Entries:  a.Store.ByStatus(model.StatusDraft, model.StatusStaged, model.StatusPushed),
		}
		state, err = pipeline.Fill{Config: a.Config.FillerConfig()}.Run(ctx, state)
		if err != nil {
			return err
		}
		printProposals(state, a.Location())
		if fillDryRun || len(state.Candidates) == 0 {
			return nil
		}
		drafts, outcomes := a.Staging().CreateDrafts(state.Candidates)
		fmt.Printf("\n%d draft(s) created. Review with 'wsync list --status draft'.\n", len(drafts))
		return firstError(outcomes)
	})
}

func printProposals(s pipeline.State, loc *time.Location) {
	for _, p := range s.Proposals {
		day := p.Day.In(loc).Format("2006-01-02 Mon")
		if p.Skipped != "" {
			fmt.Printf("%s  – skipped (%s)\n", day, p.Skipped)
			continue
		}
		fmt.Printf("%s  logged %s, proposing %s\n", day,
			timecalc.FormatDuration(p.CommittedSeconds), timecalc.FormatDuration(p.ProposedSeconds()))
		drafts := append([]model.Entry(nil), p.Drafts...)
		sort.Slice(drafts, func(i, j int) bool { return drafts[i].Start.Before(drafts[j].Start) })
		for _, d := range drafts {
			fmt.Printf("  + %s–%s  %-10s %7s\n", d.Start.In(loc).Format("15:04"), d.End().In(loc).Format("15:04"),
				d.IssueKey, timecalc.FormatDuration(d.DurationSeconds))
		}
		for _, g := range p.Unassigned {
			fmt.Printf("  ? %s–%s  no issue to attribute\n", g.Start.In(loc).Format("15:04"), g.End.In(loc).Format("15:04"))
		}
	}
}
