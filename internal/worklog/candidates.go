package worklog

import (
	"fmt"
	"strings"

	"github.com/Tiliavir/worklog-sync/internal/model"
)

// MeetingCandidates turns linked meetings into draft candidates. Meetings
// without an issue or with a non-positive length are left out.
func MeetingCandidates(meetings []model.Meeting) []model.Entry {
	var out []model.Entry
	for _, m := range meetings {
		if m.IssueKey == "" || m.DurationSeconds() <= 0 {
			continue
		}
		origin := m.ExternalID
		if origin == "" {
			origin = m.ID
		}
		out = append(out, model.Entry{
			IssueKey:        m.IssueKey,
			DurationSeconds: m.DurationSeconds(),
			Start:           m.Start,
			Comment:         m.Title,
			Source:          model.SourceMeeting,
			OriginID:        origin,
		})
	}
	return out
}

// SessionCandidates turns coding sessions into draft candidates, one per
// session, attributed to the first issue key the session touched.
func SessionCandidates(sessions []model.Session) []model.Entry {
	var out []model.Entry
	for _, s := range sessions {
		secs := int64(s.End.Sub(s.Start).Seconds())
		if len(s.IssueKeys) == 0 || secs <= 0 {
			continue
		}
		comment := s.Description
		if comment == "" {
			comment = fmt.Sprintf("Work in %s", s.Repo)
		}
		out = append(out, model.Entry{
			IssueKey:        strings.ToUpper(s.IssueKeys[0]),
			DurationSeconds: secs,
			Start:           s.Start,
			Comment:         comment,
			Source:          model.SourceCodingSession,
			OriginID:        s.ID,
		})
	}
	return out
}
