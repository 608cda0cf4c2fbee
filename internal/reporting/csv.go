package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders progress rows as CSV string.
func RenderCSV(rows []ProgressRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("observed_at,total_supply,sold,sold_delta,remaining\n")

	// Rows
	for _, p := range rows {
		sb.WriteString(fmt.Sprintf("%d,%d,%d,%d,%d\n",
			p.ObservedAt,
			p.TotalSupply,
			p.Sold,
			p.SoldDelta,
			p.Remaining,
		))
	}

	return sb.String()
}
