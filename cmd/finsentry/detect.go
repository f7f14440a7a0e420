package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/finsentry/finsentry/internal/anomaly"
	"github.com/finsentry/finsentry/internal/cli"
	"github.com/finsentry/finsentry/internal/jobs"
	"github.com/finsentry/finsentry/internal/recurring"
)

func detectCmd() *cobra.Command {
	var (
		accountID int64
		daysBack  int
	)

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Run recurring-pattern and anomaly detection",
		Long: `Run the full detection sweep: find recurring obligations in each
account's history, then scan for anomalies (unusual amounts, duplicates,
missed subscriptions, spending spikes, and more).

Without --account, every active account is swept. A failing account is
reported but does not abort the sweep.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			logger := slog.Default()
			recurringSvc := recurring.NewService(store, recurring.DefaultConfig(), logger)
			anomalySvc := anomaly.NewService(store, logger)
			runner := jobs.NewRunner(store, recurringSvc, anomalySvc, logger)
			if daysBack > 0 {
				runner.DaysBack = daysBack
			}

			if accountID > 0 {
				patterns, anomalies, err := runner.RunForAccount(ctx, user.ID, accountID)
				if err != nil {
					return fmt.Errorf("detection failed: %w", err)
				}
				fmt.Println(cli.FormatSuccess(fmt.Sprintf(
					"Account %d: %d recurring patterns, %d new anomalies", accountID, patterns, anomalies)))
				return nil
			}

			result, err := runner.RunForUser(ctx, user.ID)
			if err != nil {
				return fmt.Errorf("detection failed: %w", err)
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf(
				"Swept %d accounts: %d recurring patterns, %d new anomalies",
				result.Accounts, result.RecurringPatterns, result.AnomaliesCreated)))
			for id, accErr := range result.AccountErrors {
				fmt.Println(cli.FormatWarning(fmt.Sprintf("account %d: %v", id, accErr)))
			}

			return nil
		},
	}

	cmd.Flags().Int64Var(&accountID, "account", 0, "sweep a single account")
	cmd.Flags().IntVar(&daysBack, "days-back", 0, "history window in days (default 365)")

	return cmd
}
