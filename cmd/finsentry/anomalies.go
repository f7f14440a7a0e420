package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/finsentry/finsentry/internal/cli"
	"github.com/finsentry/finsentry/internal/model"
	"github.com/finsentry/finsentry/internal/service"
)

func anomaliesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "anomalies",
		Short: "Review detected anomalies",
		Long: `List and dismiss the anomalies detection has flagged: unusual
amounts, duplicate charges, missed subscriptions, spending spikes,
new merchants, and inactive accounts.`,
	}

	cmd.AddCommand(listAnomaliesCmd())
	cmd.AddCommand(dismissAnomalyCmd())

	return cmd
}

func listAnomaliesCmd() *cobra.Command {
	var (
		accountID   int64
		anomalyType string
		severity    string
		days        int
		showAll     bool
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List anomalies, newest first",
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

			filter := service.AnomalyFilter{
				UserID:      user.ID,
				Undismissed: !showAll,
				Limit:       limit,
			}
			if accountID > 0 {
				filter.AccountID = &accountID
			}
			if anomalyType != "" {
				filter.Type = model.AnomalyType(anomalyType)
			}
			if severity != "" {
				filter.Severity = model.AnomalySeverity(severity)
			}
			if days > 0 {
				since := time.Now().AddDate(0, 0, -days)
				filter.Since = &since
			}

			anomalies, err := store.ListAnomalies(ctx, filter)
			if err != nil {
				return fmt.Errorf("failed to list anomalies: %w", err)
			}

			if len(anomalies) == 0 {
				fmt.Println(cli.FormatSuccess("No anomalies. All quiet."))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer func() { _ = w.Flush() }()

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				cli.HeaderStyle.Render("ID"),
				cli.HeaderStyle.Render("Date"),
				cli.HeaderStyle.Render("Severity"),
				cli.HeaderStyle.Render("Type"),
				cli.HeaderStyle.Render("Score"),
				cli.HeaderStyle.Render("Title"))

			for _, a := range anomalies {
				sev := cli.SeverityStyle(string(a.Severity)).Render(string(a.Severity))
				title := truncate(a.Title, 50)
				if a.IsDismissed {
					title = cli.SubtleStyle.Render(title)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					a.ID,
					a.CreatedAt.Format("2006-01-02"),
					sev,
					string(a.Type),
					a.Score.StringFixed(0),
					title)
			}

			return nil
		},
	}

	cmd.Flags().Int64Var(&accountID, "account", 0, "filter by account ID")
	cmd.Flags().StringVar(&anomalyType, "type", "", "filter by anomaly type")
	cmd.Flags().StringVar(&severity, "severity", "", "filter by severity (info, warning, critical)")
	cmd.Flags().IntVar(&days, "days", 0, "only anomalies from the last N days")
	cmd.Flags().BoolVar(&showAll, "all", false, "include dismissed anomalies")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to show")

	return cmd
}

func dismissAnomalyCmd() *cobra.Command {
	var falsePositive bool

	cmd := &cobra.Command{
		Use:   "dismiss <id>",
		Short: "Dismiss an anomaly",
		Long: `Dismiss an anomaly so it no longer appears in the default list.
Mark it --false-positive when the detector was simply wrong; that
feedback is kept on the record.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid anomaly ID %q", args[0])
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.DismissAnomaly(ctx, id, falsePositive); err != nil {
				return fmt.Errorf("failed to dismiss anomaly: %w", err)
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Anomaly %d dismissed", id)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&falsePositive, "false-positive", false, "record the anomaly as a false positive")

	return cmd
}
