package ctxengine

import (
	"strings"
	"unicode/utf8"

	"github.com/skillminer/memoryd/internal/memory"
)

// RenderOptions controls how a merged context becomes prompt text.
// Zero values use the defaults noted on each field.
type RenderOptions struct {
	MaxTokens    int // 0 = unbounded
	MaxSnippets  int // 3
	SnippetChars int // 200
	MaxSkills    int // 10
	MaxRoles     int // 5
	MaxCompanies int // 5
}

func (o RenderOptions) withDefaults() RenderOptions {
	if o.MaxSnippets <= 0 {
		o.MaxSnippets = 3
	}
	if o.SnippetChars <= 0 {
		o.SnippetChars = 200
	}
	if o.MaxSkills <= 0 {
		o.MaxSkills = 10
	}
	if o.MaxRoles <= 0 {
		o.MaxRoles = 5
	}
	if o.MaxCompanies <= 0 {
		o.MaxCompanies = 5
	}
	return o
}

// Render formats mc as a prompt section: the short-term view under
// "Recent conversation summary:" followed by a digest of retrieved memories
// under "Relevant past context:". An empty context renders as "".
func Render(mc memory.MergedContext, est TokenEstimator, opts RenderOptions) string {
	opts = opts.withDefaults()

	var parts []string
	if stm := renderShortTerm(mc); stm != "" {
		parts = append(parts, "Recent conversation summary:\n"+stm)
	}
	if ltm := DigestMemories(mc.RetrievedMemories, opts); ltm != "" {
		parts = append(parts, "Relevant past context:\n"+ltm)
	}
	out := strings.Join(parts, "\n\n")
	if opts.MaxTokens > 0 && est != nil {
		out = TruncateToTokens(est, out, opts.MaxTokens)
	}
	return out
}

func renderShortTerm(mc memory.MergedContext) string {
	var parts []string
	if s := strings.TrimSpace(mc.RollingSummary); s != "" {
		parts = append(parts, s)
	}
	if len(mc.RecentTurns) > 0 {
		parts = append(parts, FormatTranscript(mc.RecentTurns))
	}
	return strings.Join(parts, "\n\n")
}

// DigestMemories aggregates entities across results and quotes the leading
// snippets, one line per kind.
func DigestMemories(results []memory.Result, opts RenderOptions) string {
	if len(results) == 0 {
		return ""
	}
	opts = opts.withDefaults()

	var all memory.Entities
	var snippets []string
	for _, r := range results {
		all = all.Merge(r.Record.Entities)
		if text := strings.TrimSpace(r.Record.Text); text != "" && len(snippets) < opts.MaxSnippets {
			snippets = append(snippets, clip(text, opts.SnippetChars))
		}
	}

	var lines []string
	add := func(label string, values []string, limit int) {
		if len(values) == 0 {
			return
		}
		lines = append(lines, label+": "+strings.Join(values[:min(limit, len(values))], ", "))
	}
	add("Skills mentioned", all[memory.CategorySkills], opts.MaxSkills)
	add("Roles discussed", all[memory.CategoryRoles], opts.MaxRoles)
	add("Companies mentioned", all[memory.CategoryCompanies], opts.MaxCompanies)
	if len(snippets) > 0 {
		lines = append(lines, "Relevant context: "+strings.Join(snippets, " | "))
	}
	return strings.Join(lines, "\n")
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return prefixRunes(s, n) + "..."
}
