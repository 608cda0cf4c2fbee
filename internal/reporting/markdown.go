package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Sale Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Sale: `%s`\n\n", r.SaleAddress))

	// Summary
	s := r.Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Admin | %s |\n", s.Admin))
	sb.WriteString(fmt.Sprintf("| Total Supply | %d |\n", s.TotalSupply))
	sb.WriteString(fmt.Sprintf("| Sold | %d |\n", s.Sold))
	sb.WriteString(fmt.Sprintf("| Remaining | %d |\n", s.Remaining))
	sb.WriteString(fmt.Sprintf("| Sold %% | %.2f |\n", s.SoldPercent))
	sb.WriteString(fmt.Sprintf("| Supply Added | %d |\n", s.SupplyIncrease))
	sb.WriteString(fmt.Sprintf("| Observations | %d |\n", s.Observations))
	sb.WriteString(fmt.Sprintf("| First Observed | %s |\n", formatMillis(s.FirstObserved)))
	sb.WriteString(fmt.Sprintf("| Last Observed | %s |\n", formatMillis(s.LastObserved)))
	sb.WriteString("\n")

	// Progress
	sb.WriteString("## Progress\n\n")
	if len(r.Progress) > 0 {
		sb.WriteString("| Observed | Supply | Sold | Delta | Remaining |\n")
		sb.WriteString("|----------|--------|------|-------|-----------|\n")
		for _, p := range r.Progress {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %d |\n",
				formatMillis(p.ObservedAt), p.TotalSupply, p.Sold, p.SoldDelta, p.Remaining))
		}
	} else {
		sb.WriteString("No progress recorded.\n")
	}
	sb.WriteString("\n")

	// Actions
	if r.Signer != "" {
		sb.WriteString(fmt.Sprintf("## Actions of `%s`\n\n", r.Signer))
	} else {
		sb.WriteString("## Pending Actions\n\n")
	}
	if len(r.ActionSummary) > 0 {
		sb.WriteString("| Kind | Status | Count | Tokens |\n")
		sb.WriteString("|------|--------|-------|--------|\n")
		for _, a := range r.ActionSummary {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %d |\n", a.Kind, a.Status, a.Count, a.Tokens))
		}
		sb.WriteString("\n")

		sb.WriteString("| Created | Kind | Amount | Status | Signature | Error |\n")
		sb.WriteString("|---------|------|--------|--------|-----------|-------|\n")
		for _, a := range r.Actions {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %s | %s | %s |\n",
				formatMillis(a.CreatedAt), a.Kind, a.Amount, a.Status, a.Signature, escapeCell(a.Error)))
		}
	} else {
		sb.WriteString("No actions recorded.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
