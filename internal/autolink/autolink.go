// Package autolink attaches issue keys to meeting records.
package autolink

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/Tiliavir/worklog-sync/internal/model"
)

// DefaultPattern matches issue keys such as ABC-123.
const DefaultPattern = `\b([A-Za-z][A-Za-z0-9]+-[0-9]+)\b`

// DefaultThreshold is the minimum fuzzy score accepted by default.
const DefaultThreshold = 0.5

// Method names the resolver that produced a link.
type Method string

const (
	MethodTitle       Method = "title"
	MethodDescription Method = "description"
	MethodFuzzy       Method = "fuzzy"
)

// Match is a resolved issue key.
type Match struct {
	Key    string
	Method Method
	Score  float64
}

// Resolver proposes an issue key for a meeting. ok is false when the
// resolver has no opinion.
type Resolver interface {
	Resolve(m model.Meeting, issues []model.Issue) (match Match, ok bool)
}

// Options controls a single Link call.
type Options struct {
	// Force relinks meetings that already carry an issue key.
	Force bool
}

// Report summarizes a Link call.
type Report struct {
	Linked    map[string]Match // meeting id -> match
	Unlinked  []string
	Untouched []string
}

// Config configures the default resolver chain.
type Config struct {
	Patterns       []string
	FuzzyThreshold float64
	// RequireKnown limits pattern matches to keys present in the issue set.
	RequireKnown bool
}

// Linker runs resolvers in order; the first match wins.
type Linker struct {
	resolvers []Resolver
	log       *slog.Logger
}

// New returns a linker over the given resolvers.
func New(log *slog.Logger, resolvers ...Resolver) *Linker {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Linker{resolvers: resolvers, log: log}
}

// NewDefault builds the title, description, fuzzy chain from cfg.
func NewDefault(cfg Config, log *slog.Logger) (*Linker, error) {
	patterns := cfg.Patterns
	if len(patterns) == 0 {
		patterns = []string{DefaultPattern}
	}
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("link pattern %q: %w", p, err)
		}
		res = append(res, re)
	}
	threshold := cfg.FuzzyThreshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return New(log,
		&PatternResolver{Field: MethodTitle, Patterns: res, RequireKnown: cfg.RequireKnown},
		&PatternResolver{Field: MethodDescription, Patterns: res, RequireKnown: cfg.RequireKnown},
		&FuzzyResolver{Threshold: threshold},
	), nil
}

// Link returns a copy of records with issue keys filled in where a resolver
// matched. Records that match nothing stay unlinked; that is not an error.
func (l *Linker) Link(records []model.Meeting, issues []model.Issue, opts Options) ([]model.Meeting, Report) {
	out := make([]model.Meeting, len(records))
	copy(out, records)
	rep := Report{Linked: make(map[string]Match)}

	for i := range out {
		m := &out[i]
		if m.IssueKey != "" && !opts.Force {
			rep.Untouched = append(rep.Untouched, m.ID)
			continue
		}
		matched := false
		for _, r := range l.resolvers {
			match, ok := r.Resolve(*m, issues)
			if !ok {
				continue
			}
			m.IssueKey = match.Key
			rep.Linked[m.ID] = match
			l.log.Debug("meeting linked", "meeting", m.ID, "issue", match.Key, "method", match.Method, "score", match.Score)
			matched = true
			break
		}
		if !matched {
			rep.Unlinked = append(rep.Unlinked, m.ID)
		}
	}
	return out, rep
}

// PatternResolver extracts an issue key from the title or description.
type PatternResolver struct {
	Field        Method
	Patterns     []*regexp.Regexp
	RequireKnown bool
}

func (p *PatternResolver) Resolve(m model.Meeting, issues []model.Issue) (Match, bool) {
	text := m.Title
	if p.Field == MethodDescription {
		text = m.Description
	}
	if text == "" {
		return Match{}, false
	}
	var known map[string]bool
	if p.RequireKnown {
		known = make(map[string]bool, len(issues))
		for _, is := range issues {
			known[strings.ToUpper(is.Key)] = true
		}
	}
	for _, re := range p.Patterns {
		for _, sub := range re.FindAllStringSubmatch(text, -1) {
			key := sub[0]
			if len(sub) > 1 {
				key = sub[1]
			}
			key = strings.ToUpper(key)
			if known != nil && !known[key] {
				continue
			}
			return Match{Key: key, Method: p.Field, Score: 1}, true
		}
	}
	return Match{}, false
}

// FuzzyResolver picks the issue whose summary shares the most words with
// the meeting title. Ties go to the lowest issue key.
type FuzzyResolver struct {
	Threshold float64
}

func (f *FuzzyResolver) Resolve(m model.Meeting, issues []model.Issue) (Match, bool) {
	title := tokens(m.Title)
	if len(title) == 0 {
		return Match{}, false
	}
	sorted := make([]model.Issue, len(issues))
	copy(sorted, issues)
	sort.SliceStable(sorted, func(i, j int) bool { return strings.ToUpper(sorted[i].Key) < strings.ToUpper(sorted[j].Key) })

	var best Match
	for _, is := range sorted {
		s := Score(title, tokens(is.Summary))
		if s > best.Score {
			best = Match{Key: strings.ToUpper(is.Key), Method: MethodFuzzy, Score: s}
		}
	}
	if best.Key == "" || best.Score < f.Threshold {
		return Match{}, false
	}
	return best, true
}

// Score is the Dice coefficient of two token sets, in [0, 1].
func Score(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for t := range a {
		if b[t] {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(a)+len(b))
}

// tokens lowercases s and splits it into words of at least two runes.
func tokens(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(w)) >= 2 {
			out[w] = true
		}
	}
	return out
}
