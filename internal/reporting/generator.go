package reporting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"solana-token-sale/internal/domain"
	"solana-token-sale/internal/storage"
)

// ErrNoHistory is returned when no observation exists for the sale.
var ErrNoHistory = errors.New("no snapshot history for sale")

// Generator produces reports from stored data.
type Generator struct {
	history storage.SnapshotHistoryStore
	journal storage.ActionJournal
	now     func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(history storage.SnapshotHistoryStore, journal storage.ActionJournal) *Generator {
	return &Generator{
		history: history,
		journal: journal,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a report for saleAddress. With a signer the action
// section lists that signer's actions, otherwise every pending action.
func (g *Generator) Generate(ctx context.Context, saleAddress, signer string) (*Report, error) {
	observations, err := g.history.GetBySale(ctx, saleAddress)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if len(observations) == 0 {
		return nil, ErrNoHistory
	}

	var actions []*domain.ActionRecord
	if signer != "" {
		actions, err = g.journal.GetBySigner(ctx, signer)
	} else {
		actions, err = g.journal.GetPending(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("load actions: %w", err)
	}

	return &Report{
		GeneratedAt:   g.now(),
		SaleAddress:   saleAddress,
		Signer:        signer,
		Summary:       summarize(observations),
		Progress:      progressRows(observations),
		Actions:       actionRows(actions),
		ActionSummary: summarizeActions(actions),
	}, nil
}

// summarize expects observations ordered by observed_at.
func summarize(obs []*domain.SnapshotObservation) SaleSummary {
	first, last := obs[0], obs[len(obs)-1]
	s := SaleSummary{
		Admin:         last.Admin,
		TotalSupply:   last.TotalSupply,
		Sold:          last.Sold,
		Observations:  len(obs),
		FirstObserved: first.ObservedAt,
		LastObserved:  last.ObservedAt,
	}
	if last.TotalSupply > last.Sold {
		s.Remaining = last.TotalSupply - last.Sold
	}
	if last.TotalSupply > 0 {
		s.SoldPercent = float64(last.Sold) / float64(last.TotalSupply) * 100
	}
	if last.TotalSupply > first.TotalSupply {
		s.SupplyIncrease = last.TotalSupply - first.TotalSupply
	}
	return s
}

// progressRows keeps only observations where supply or sold changed.
func progressRows(obs []*domain.SnapshotObservation) []ProgressRow {
	var rows []ProgressRow
	var prev *domain.SnapshotObservation
	for _, o := range obs {
		if prev != nil && o.Sold == prev.Sold && o.TotalSupply == prev.TotalSupply {
			continue
		}
		row := ProgressRow{
			ObservedAt:  o.ObservedAt,
			TotalSupply: o.TotalSupply,
			Sold:        o.Sold,
		}
		if o.TotalSupply > o.Sold {
			row.Remaining = o.TotalSupply - o.Sold
		}
		if prev != nil && o.Sold > prev.Sold {
			row.SoldDelta = o.Sold - prev.Sold
		}
		rows = append(rows, row)
		prev = o
	}
	return rows
}

func actionRows(actions []*domain.ActionRecord) []ActionRow {
	rows := make([]ActionRow, len(actions))
	for i, a := range actions {
		rows[i] = ActionRow{
			ActionID:  a.ActionID,
			Kind:      a.Kind.String(),
			Signer:    a.Signer,
			Amount:    a.Amount,
			Status:    string(a.Status),
			CreatedAt: a.CreatedAt,
		}
		if a.Signature != nil {
			rows[i].Signature = *a.Signature
		}
		if a.Error != nil {
			rows[i].Error = *a.Error
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CreatedAt < rows[j].CreatedAt
	})
	return rows
}

func summarizeActions(actions []*domain.ActionRecord) []ActionSummaryRow {
	type key struct{ kind, status string }
	groups := make(map[key]*ActionSummaryRow)
	for _, a := range actions {
		k := key{a.Kind.String(), string(a.Status)}
		row, ok := groups[k]
		if !ok {
			row = &ActionSummaryRow{Kind: k.kind, Status: k.status}
			groups[k] = row
		}
		row.Count++
		row.Tokens += a.Amount
	}

	rows := make([]ActionSummaryRow, 0, len(groups))
	for _, row := range groups {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Kind != rows[j].Kind {
			return rows[i].Kind < rows[j].Kind
		}
		return rows[i].Status < rows[j].Status
	})
	return rows
}
