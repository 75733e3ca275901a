// Package notify posts push, revert and watch summaries to Slack.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/Tiliavir/worklog-sync/internal/model"
	"github.com/Tiliavir/worklog-sync/internal/pipeline"
	"github.com/Tiliavir/worklog-sync/internal/timecalc"
	"github.com/Tiliavir/worklog-sync/internal/worklog"
)

// Notifier sends plain-text summaries to one channel. The zero value and a
// nil *Notifier are disabled and drop every message.
type Notifier struct {
	api     *slack.Client
	channel string
}

// New returns a notifier, or nil when token or channel is empty.
func New(token, channel string, opts ...slack.Option) *Notifier {
	if token == "" || channel == "" {
		return nil
	}
	return &Notifier{api: slack.New(token, opts...), channel: channel}
}

// Enabled reports whether messages are actually sent.
func (n *Notifier) Enabled() bool { return n != nil && n.api != nil }

// Post sends text to the configured channel.
func (n *Notifier) Post(ctx context.Context, text string) error {
	if !n.Enabled() {
		return nil
	}
	if _, _, err := n.api.PostMessageContext(ctx, n.channel, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}
	return nil
}

// PushSummary describes a push. batch is the batch it recorded, if any.
func PushSummary(res worklog.PushResult, batch *model.Batch) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pushed %d worklog(s)", len(res.Succeeded))
	if batch != nil {
		fmt.Fprintf(&b, " (%sh) as batch %s", timecalc.FormatHours(batch.TotalSeconds), batch.ID)
	}
	if n := len(res.Failed); n > 0 {
		fmt.Fprintf(&b, ", %d failed", n)
	}
	if n := len(res.Skipped); n > 0 {
		fmt.Fprintf(&b, ", %d skipped", n)
	}
	if res.Canceled {
		b.WriteString(", canceled")
	}
	b.WriteString(".")
	writeFailures(&b, res.Failed)
	return b.String()
}

// RevertSummary describes a revert.
func RevertSummary(res worklog.RevertResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reverted %d worklog(s) of batch %s, now %s", len(res.Reverted), res.BatchID, res.Status)
	if n := len(res.Failed); n > 0 {
		fmt.Fprintf(&b, ", %d failed", n)
	}
	if res.Canceled {
		b.WriteString(", canceled")
	}
	b.WriteString(".")
	writeFailures(&b, res.Failed)
	return b.String()
}

// WatchSummary describes one unattended pipeline run.
func WatchSummary(s pipeline.State) string {
	var proposed int64
	for _, d := range s.Drafts {
		proposed += d.DurationSeconds
	}
	unassigned := 0
	for _, p := range s.Proposals {
		unassigned += len(p.Unassigned)
	}
	msg := fmt.Sprintf("%s: %d meeting(s) imported, %d linked, %d draft(s) created (%sh)",
		s.From.Format("2006-01-02"), s.Imported, len(s.Links.Linked), len(s.Drafts), timecalc.FormatHours(proposed))
	if unassigned > 0 {
		msg += fmt.Sprintf(", %d unassigned gap(s)", unassigned)
	}
	return msg + ". Review with `wsync list` and push with `wsync push`."
}

func writeFailures(b *strings.Builder, failures []worklog.Failure) {
	for _, f := range failures {
		fmt.Fprintf(b, "\n• %s: %v", f.EntryID, f.Err)
	}
}
