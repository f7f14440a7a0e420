package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/finsentry/finsentry/internal/cli"
	"github.com/finsentry/finsentry/internal/service"
	"github.com/finsentry/finsentry/internal/sheets"
)

func exportCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export recurring patterns and anomalies to Google Sheets",
		Long: `Write the active recurring patterns and recent anomalies to a
Google Sheets spreadsheet, one tab each.

Authentication uses either OAuth2 (sheets.client_id, sheets.client_secret,
sheets.refresh_token) or a service account (sheets.service_account_path).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg := sheets.DefaultConfig()
			cfg.ClientID = viper.GetString("sheets.client_id")
			cfg.ClientSecret = viper.GetString("sheets.client_secret")
			cfg.RefreshToken = viper.GetString("sheets.refresh_token")
			cfg.ServiceAccountPath = expandPath(viper.GetString("sheets.service_account_path"))
			if id := viper.GetString("sheets.spreadsheet_id"); id != "" {
				cfg.SpreadsheetID = id
			}
			if name := viper.GetString("sheets.spreadsheet_name"); name != "" {
				cfg.SpreadsheetName = name
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

			recurring, err := store.ListRecurring(ctx, service.RecurringFilter{
				UserID:     user.ID,
				OnlyActive: true,
			})
			if err != nil {
				return fmt.Errorf("failed to load recurring transactions: %w", err)
			}

			since := time.Now().AddDate(0, 0, -days)
			anomalies, err := store.ListAnomalies(ctx, service.AnomalyFilter{
				UserID: user.ID,
				Since:  &since,
			})
			if err != nil {
				return fmt.Errorf("failed to load anomalies: %w", err)
			}

			writer, err := sheets.NewWriter(ctx, cfg, slog.Default())
			if err != nil {
				return err
			}

			if err := writer.WriteReport(ctx, recurring, anomalies); err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf(
				"Exported %d recurring patterns and %d anomalies", len(recurring), len(anomalies))))
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 90, "anomaly window in days")

	return cmd
}
