package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/finsentry/finsentry/internal/cli"
	"github.com/finsentry/finsentry/internal/importer"
	"github.com/finsentry/finsentry/internal/model"
	"github.com/finsentry/finsentry/internal/plaid"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import transactions from statements or bank APIs",
		Long: `Import transactions into an account.

Statement files (CSV, JSON, OFX/QFX) are parsed locally; Plaid pulls
transactions from the bank directly. Duplicates are detected by content
hash and skipped, so re-importing the same statement is safe.`,
	}

	cmd.AddCommand(importFileCmd())
	cmd.AddCommand(importPlaidCmd())

	return cmd
}

func importFileCmd() *cobra.Command {
	var accountID int64

	cmd := &cobra.Command{
		Use:   "file <path>",
		Short: "Import a statement file (CSV, JSON, OFX, QFX)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			user, err := resolveUser(ctx, store)
			if err != nil {
				return err
			}

			imp := importer.NewImporter(store, slog.Default(), true)
			session, err := imp.ImportFile(ctx, user.ID, accountID, args[0])
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}

			printImportSummary(session)
			return nil
		},
	}

	cmd.Flags().Int64Var(&accountID, "account", 0, "target account ID (required)")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func importPlaidCmd() *cobra.Command {
	var (
		accountID int64
		days      int
	)

	cmd := &cobra.Command{
		Use:   "plaid",
		Short: "Pull transactions from Plaid",
		Long: `Fetch transactions from the bank via the Plaid API.

Requires plaid.client_id, plaid.secret, plaid.access_token, and
plaid.environment in the config (or FINSENTRY_PLAID_* env vars).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			client, err := plaid.NewClient(plaid.Config{
				ClientID:    viper.GetString("plaid.client_id"),
				Secret:      viper.GetString("plaid.secret"),
				AccessToken: viper.GetString("plaid.access_token"),
				Environment: viper.GetString("plaid.environment"),
			})
			if err != nil {
				return err
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			user, err := resolveUser(ctx, store)
			if err != nil {
				return err
			}

			end := time.Now()
			start := end.AddDate(0, 0, -days)
			transactions, err := client.FetchTransactions(ctx, start, end)
			if err != nil {
				return fmt.Errorf("plaid fetch failed: %w", err)
			}

			imp := importer.NewImporter(store, slog.Default(), true)
			session, err := imp.ImportTransactions(ctx, user.ID, accountID, transactions, "plaid")
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}

			printImportSummary(session)
			return nil
		},
	}

	cmd.Flags().Int64Var(&accountID, "account", 0, "target account ID (required)")
	cmd.Flags().IntVar(&days, "days", 30, "how many days back to fetch")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func printImportSummary(session *model.Import) {
	duplicates := session.Total - session.Succeeded - session.Failed
	summary := fmt.Sprintf("Imported %d of %d transactions", session.Succeeded, session.Total)
	fmt.Println(cli.FormatSuccess(summary))
	if duplicates > 0 {
		fmt.Println(cli.SubtleStyle.Render(fmt.Sprintf("  %d duplicates skipped", duplicates)))
	}
	if session.Failed > 0 {
		fmt.Println(cli.FormatWarning(fmt.Sprintf("  %d rows could not be parsed", session.Failed)))
	}
	fmt.Println(cli.SubtleStyle.Render(fmt.Sprintf("  session %s", session.ID)))
}
