// Package format renders hook results as tagged text blocks an agent can
// parse unambiguously.
package format

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mattsolo1/han-bridge/internal/models"
)

const (
	StatusPassed = "passed"
	StatusFailed = "failed"

	failureHeader = "Validation hooks failed. Fix these issues before continuing:"
)

var attrEscaper = strings.NewReplacer(`&`, "&amp;", `"`, "&quot;", `<`, "&lt;", `>`, "&gt;")

// Block renders one result. Output is included verbatim apart from
// surrounding whitespace.
func Block(r models.HookResult, status string) string {
	return fmt.Sprintf(`<validation plugin="%s" hook="%s" status="%s">%s</validation>`,
		attrEscaper.Replace(r.Hook.PluginName),
		attrEscaper.Replace(r.Hook.Name),
		status,
		strings.TrimSpace(r.Output()),
	)
}

// FormatFailuresOnly returns a message describing every genuine failure,
// and false when nothing failed. Failures with no output get no block but
// are still named so the agent knows which hook to look at.
func FormatFailuresOnly(results []models.HookResult) (string, bool) {
	failed := failures(results)
	if len(failed) == 0 {
		return "", false
	}

	var blocks, silent []string
	for _, r := range failed {
		if strings.TrimSpace(r.Output()) == "" {
			silent = append(silent, fmt.Sprintf("%s (exit %d)", r.Hook.ID(), r.ExitCode))
			continue
		}
		blocks = append(blocks, Block(r, StatusFailed))
	}

	var b strings.Builder
	b.WriteString(failureHeader)
	if len(blocks) > 0 {
		b.WriteString("\n\n")
		b.WriteString(strings.Join(blocks, "\n\n"))
	}
	if len(silent) > 0 {
		b.WriteString("\n\nFailed without output: ")
		b.WriteString(strings.Join(silent, ", "))
	}
	return b.String(), true
}

// FormatSummary renders every executed result inside an outer summary tag
// that carries the passed, failed and skipped counts.
func FormatSummary(results []models.HookResult) string {
	var passed, failed, skipped int
	var blocks []string
	for _, r := range sorted(results) {
		switch {
		case r.Skipped:
			skipped++
		case r.Failed():
			failed++
			blocks = append(blocks, Block(r, StatusFailed))
		default:
			passed++
			blocks = append(blocks, Block(r, StatusPassed))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<validation-summary passed="%d" failed="%d" skipped="%d">`, passed, failed, skipped)
	for _, blk := range blocks {
		b.WriteString("\n")
		b.WriteString(blk)
	}
	b.WriteString("\n</validation-summary>")
	return b.String()
}

func failures(results []models.HookResult) []models.HookResult {
	var out []models.HookResult
	for _, r := range sorted(results) {
		if r.Failed() {
			out = append(out, r)
		}
	}
	return out
}

// sorted orders by plugin and hook so output is stable regardless of
// completion order.
func sorted(results []models.HookResult) []models.HookResult {
	out := make([]models.HookResult, len(results))
	copy(out, results)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Hook.ID() < out[j].Hook.ID()
	})
	return out
}
