package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"solana-token-sale/internal/domain"
	"solana-token-sale/internal/ledger"
	"solana-token-sale/internal/session"
)

var requestID string

var buyCmd = &cobra.Command{
	Use:   "buy <amount>",
	Short: "Buy amount whole tokens",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, args[0], (*session.Controller).Buy)
	},
}

var initCmd = &cobra.Command{
	Use:   "init <amount>",
	Short: "Create the sale with amount whole tokens from the keypair's token account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, args[0], (*session.Controller).InitializeSale)
	},
}

var depositCmd = &cobra.Command{
	Use:   "deposit <amount>",
	Short: "Add amount whole tokens to the keypair's sale",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, args[0], (*session.Controller).Deposit)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{buyCmd, initCmd, depositCmd} {
		cmd.Flags().StringVar(&requestID, "request-id", "", "idempotency key; a repeated request is refused")
	}
}

type action func(c *session.Controller, ctx context.Context, amount int64) (*domain.Receipt, error)

func runAction(cmd *cobra.Command, arg string, run action) error {
	amount, err := parseAmount(arg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if requestID != "" {
		ctx = session.WithRequestID(ctx, requestID)
	}

	a, err := newApp(ctx, appOptions{withStores: true, withWS: true})
	if err != nil {
		return err
	}
	defer a.Close()

	ctrl, err := a.attach(ctx)
	if err != nil {
		return err
	}

	receipt, err := run(ctrl, ctx, amount)
	out := cmd.OutOrStdout()
	if err != nil {
		printFailure(cmd.ErrOrStderr(), err)
		return err
	}

	fmt.Fprintf(out, "Confirmed:   %s (slot %d)\n\n", receipt.Signature, receipt.Slot)
	printSession(out, ctrl.State(), a.engine)
	return nil
}

func printFailure(w io.Writer, err error) {
	se, ok := ledger.AsSubmissionError(err)
	if !ok {
		return
	}
	if perr, ok := se.ProgramError(); ok {
		fmt.Fprintf(w, "Program rejected the transaction: %s\n", perr.Message)
	}
	if len(se.Logs) > 0 {
		fmt.Fprintln(w, se.Detail())
	}
}
