package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/worklog-sync/internal/app"
	"github.com/Tiliavir/worklog-sync/internal/model"
)

var (
	exportFormat string
	exportRange  rangeFlags
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export worklog entries to stdout",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	exportRange.register(exportCmd)
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "Output format: csv, json, md")
}

func runExport(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app.App) error {
		from, to, err := exportRange.resolve(time.Now(), a.Location(), true)
		if err != nil {
			return err
		}
		entries := between(a.Store.All(), from, to)

		switch exportFormat {
		case "json":
			if entries == nil {
				entries = []model.Entry{}
			}
			data, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding JSON: %w", err)
			}
			fmt.Println(string(data))
		case "md":
			printList(entries, a.Location())
		case "csv":
			writeCSV(os.Stdout, entries, a.Location())
		default:
			return fmt.Errorf("unknown format %q (csv, json, md)", exportFormat)
		}
		return nil
	})
}

func writeCSV(w io.Writer, entries []model.Entry, loc *time.Location) {
	fmt.Fprintln(w, "date,issue,status,source,comment,start,end,duration_minutes,remote_id")
	for _, e := range entries {
		fmt.Fprintf(w, "%s,%s,%s,%s,%s,%s,%s,%d,%s\n",
			csvEscape(e.Start.In(loc).Format("2006-01-02")),
			csvEscape(e.IssueKey),
			e.Status,
			e.Source,
			csvEscape(e.Comment),
			csvEscape(e.Start.In(loc).Format(time.RFC3339)),
			csvEscape(e.End().In(loc).Format(time.RFC3339)),
			e.DurationSeconds/60,
			csvEscape(e.Remote()),
		)
	}
}

// csvEscape wraps a field in quotes if it contains a comma, quote, or newline.
func csvEscape(s string) string {
	needsQuote := false
	for _, c := range s {
		if c == ',' || c == '"' || c == '\n' || c == '\r' {
			needsQuote = true
			break
		}
	}
	if !needsQuote {
		return s
	}
	// Escape internal double quotes by doubling them.
	escaped := ""
	for _, c := range s {
		if c == '"' {
			escaped += "\""
		}
		escaped += string(c)
	}
	return `"` + escaped + `"`
}
