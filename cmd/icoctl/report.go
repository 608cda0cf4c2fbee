package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"solana-token-sale/internal/reporting"
)

var (
	reportSale      string
	reportSigner    string
	reportOutputDir string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render sale progress and journaled actions from stored history",
	Long: `report reads the snapshot history and the action journal. The sale defaults to
the discovered one and the signer to the configured keypair; without a signer
the report lists pending actions. With --output-dir it writes SALE_REPORT.md and
SALE_PROGRESS.csv, otherwise the Markdown goes to stdout.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, appOptions{withStores: true})
		if err != nil {
			return err
		}
		defer a.Close()

		sale := reportSale
		if sale == "" {
			snapshot, err := a.discovery.RefreshSaleSnapshot(ctx)
			if err != nil {
				return err
			}
			if snapshot == nil {
				return fmt.Errorf("no sale found; pass --sale")
			}
			sale = snapshot.Address.String()
		}

		signer := reportSigner
		if signer == "" && cfg.KeypairPath != "" {
			key, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.KeypairPath)
			if err != nil {
				return fmt.Errorf("load keypair: %w", err)
			}
			signer = key.PublicKey().String()
		}

		report, err := reporting.NewGenerator(a.history, a.journal).Generate(ctx, sale, signer)
		if err != nil {
			return err
		}

		md := reporting.RenderMarkdown(report)
		if reportOutputDir == "" {
			_, err := fmt.Fprint(cmd.OutOrStdout(), md)
			return err
		}

		if err := os.MkdirAll(reportOutputDir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
		files := []struct{ name, content string }{
			{"SALE_REPORT.md", md},
			{"SALE_PROGRESS.csv", reporting.RenderCSV(report.Progress)},
		}
		for _, f := range files {
			path := filepath.Join(reportOutputDir, f.name)
			if err := os.WriteFile(path, []byte(f.content), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", path)
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportSale, "sale", "", "sale record address (default: discovered sale)")
	reportCmd.Flags().StringVar(&reportSigner, "signer", "", "signer whose actions to list (default: keypair)")
	reportCmd.Flags().StringVar(&reportOutputDir, "output-dir", "", "directory for SALE_REPORT.md and SALE_PROGRESS.csv")
}
