package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"solana-token-sale/internal/domain"
	"solana-token-sale/internal/eligibility"
	"solana-token-sale/internal/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current sale",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		snapshot, err := a.discovery.RefreshSaleSnapshot(ctx)
		if err != nil {
			return err
		}
		printSale(cmd.OutOrStdout(), snapshot)
		return nil
	},
}

var roleCmd = &cobra.Command{
	Use:   "role",
	Short: "Attach the keypair and show its role, holding and allowance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		ctrl, err := a.attach(ctx)
		if err != nil {
			return err
		}
		printSession(cmd.OutOrStdout(), ctrl.State(), a.engine)
		return nil
	},
}

var quoteCmd = &cobra.Command{
	Use:   "quote <amount>",
	Short: "Price a purchase of amount whole tokens",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmount(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		if amount <= 0 {
			return eligibility.ErrNonPositiveAmount
		}
		quote, err := a.engine.Quote(uint64(amount))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Amount:      %d tokens\n", quote.Amount)
		fmt.Fprintf(out, "Cost:        %s SOL\n", eligibility.FormatSOL(quote.Cost))
		fmt.Fprintf(out, "Fee reserve: %s SOL\n", eligibility.FormatSOL(quote.FeeReserve))
		fmt.Fprintf(out, "Total:       %s SOL\n", eligibility.FormatSOL(quote.Total))
		return nil
	},
}

func parseAmount(s string) (int64, error) {
	amount, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return amount, nil
}

func printSale(w io.Writer, snapshot *domain.SaleSnapshot) {
	if snapshot == nil {
		fmt.Fprintln(w, "No sale found.")
		return
	}
	fmt.Fprintf(w, "Sale:        %s\n", snapshot.Address)
	fmt.Fprintf(w, "Admin:       %s\n", snapshot.Admin)
	fmt.Fprintf(w, "Supply:      %d tokens\n", snapshot.TotalSupply)
	fmt.Fprintf(w, "Sold:        %d tokens\n", snapshot.Sold)
	fmt.Fprintf(w, "Remaining:   %d tokens\n", snapshot.Remaining())
	fmt.Fprintf(w, "Price:       %s SOL per token\n", eligibility.FormatSOL(snapshot.TokenPrice))
	for _, other := range snapshot.CompetingSales {
		fmt.Fprintf(w, "Also found:  %s\n", other)
	}
}

func printSession(w io.Writer, st session.State, engine *eligibility.Engine) {
	fmt.Fprintf(w, "Signer:      %s\n", st.Signer)
	fmt.Fprintf(w, "Role:        %s\n", st.Role)
	fmt.Fprintf(w, "Phase:       %s\n", st.Phase)
	fmt.Fprintf(w, "Balance:     %s SOL\n", eligibility.FormatSOL(st.NativeBalance))
	fmt.Fprintf(w, "Holding:     %d tokens\n", st.Holding.Whole)
	fmt.Fprintf(w, "Purchased:   %d tokens\n", st.Purchased)
	if st.CanBuy() {
		fmt.Fprintf(w, "Allowance:   %d tokens\n", engine.RemainingAllowance(st.CapHolding()))
	}
	if st.LastError != nil {
		fmt.Fprintf(w, "Warning:     %v\n", st.LastError)
	}
	fmt.Fprintln(w)
	printSale(w, st.Snapshot)
}
