package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// configTemplate is the annotated config written on first run.
const configTemplate = `# wsync configuration – ~/.wsync/config.yaml
#
# All settings are optional except the Jira connection. Any key can be
# overridden from the environment, e.g. WSYNC_JIRA_API_TOKEN.

# ── Jira (remote worklog ledger) ──────────────────────────────────────────
jira:
  base_url: ""         # e.g. https://example.atlassian.net
  email: ""            # used with api_token for basic auth
  api_token: ""
  bearer_token: ""     # personal access token, takes precedence over api_token
  jql: "sprint in openSprints() AND assignee = currentUser()"
  timeout: 30s

# ── Microsoft Graph / Outlook calendar sync ──────────────────────────────
outlook:
  # "common" works for personal accounts and any organisation.
  tenant_id: common
  # The public Azure CLI app; no app registration needed.
  client_id: 04b07795-8542-4c4a-95af-30b2c573d5ab
  # IANA timezone for event times, e.g. "Europe/Berlin". Empty = UTC.
  timezone: ""

# ── Worklog lifecycle ─────────────────────────────────────────────────────
worklog:
  daily_hours_limit: 8   # 0 disables the limit
  recovery_window: 10m   # push times closer than this form one recovered batch

# ── Meeting auto-linking ──────────────────────────────────────────────────
link:
  patterns:
    - '\b([A-Za-z][A-Za-z0-9]+-[0-9]+)\b'
  fuzzy_threshold: 0.5   # 0..1, minimum title/summary similarity
  require_known: true    # only link keys returned by jira.jql

# ── Gap filling ───────────────────────────────────────────────────────────
fill:
  day_start: "09:00"
  day_end: "17:00"
  granularity: 15m
  skip_above_hours: 6    # days already logged this much are left alone
  skip_weekends: true
  comment: Gap fill

# ── Storage ───────────────────────────────────────────────────────────────
storage:
  backend: json          # json or sqlite
  path: ""               # empty = ~/.wsync/state.json or ~/.wsync/wsync.db

# ── Slack summaries (optional) ────────────────────────────────────────────
notify:
  slack_token: ""
  slack_channel: ""

# ── wsync watch ───────────────────────────────────────────────────────────
watch:
  schedule: "0 17 * * 1-5"   # standard 5-field cron
`

// WriteDefault creates the config directory and writes the annotated
// default config template.
func WriteDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0o600); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}
