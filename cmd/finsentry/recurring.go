package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/finsentry/finsentry/internal/cli"
	"github.com/finsentry/finsentry/internal/model"
	"github.com/finsentry/finsentry/internal/service"
)

func recurringCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recurring",
		Short: "Manage detected recurring transactions",
		Long: `Inspect the recurring obligations (subscriptions, salaries, rent)
that detection has found, project their monthly and yearly cost, and
curate them: rename, annotate, or ignore false positives.`,
	}

	cmd.AddCommand(listRecurringCmd())
	cmd.AddCommand(summaryRecurringCmd())
	cmd.AddCommand(upcomingRecurringCmd())
	cmd.AddCommand(ignoreRecurringCmd())
	cmd.AddCommand(setRecurringCmd())

	return cmd
}

func listRecurringCmd() *cobra.Command {
	var (
		accountID   int64
		frequency   string
		showIgnored bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List detected recurring transactions",
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

			filter := service.RecurringFilter{
				UserID:     user.ID,
				OnlyActive: true,
				OnlyIgnore: showIgnored,
			}
			if accountID > 0 {
				filter.AccountID = &accountID
			}
			if frequency != "" {
				filter.Frequency = model.Frequency(frequency)
				if !filter.Frequency.Valid() {
					return fmt.Errorf("invalid frequency %q", frequency)
				}
			}

			patterns, err := store.ListRecurring(ctx, filter)
			if err != nil {
				return fmt.Errorf("failed to list recurring transactions: %w", err)
			}

			if len(patterns) == 0 {
				fmt.Println(cli.InfoStyle.Render("No recurring transactions found. Run 'finsentry detect' first."))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer func() { _ = w.Flush() }()

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				cli.HeaderStyle.Render("ID"),
				cli.HeaderStyle.Render("Name"),
				cli.HeaderStyle.Render("Frequency"),
				cli.HeaderStyle.Render("Amount"),
				cli.HeaderStyle.Render("Next"),
				cli.HeaderStyle.Render("Seen"),
				cli.HeaderStyle.Render("Confidence"))

			now := time.Now()
			for _, p := range patterns {
				next := p.NextExpectedDate.Format("2006-01-02")
				if p.IsOverdue(now) {
					next = cli.WarningStyle.Render(next + " (overdue)")
				}
				name := truncate(p.GetDisplayName(), 30)
				if p.IsIgnored {
					name = cli.SubtleStyle.Render(name)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d×\t%.0f%%\n",
					p.ID, name, string(p.Frequency),
					p.Amount.StringFixed(2), next,
					p.OccurrenceCount, p.ConfidenceScore*100)
			}

			return nil
		},
	}

	cmd.Flags().Int64Var(&accountID, "account", 0, "filter by account ID")
	cmd.Flags().StringVar(&frequency, "frequency", "", "filter by frequency (weekly, bi-weekly, monthly, quarterly, yearly)")
	cmd.Flags().BoolVar(&showIgnored, "ignored", false, "show only ignored patterns")

	return cmd
}

func summaryRecurringCmd() *cobra.Command {
	var accountID int64

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Project monthly and yearly recurring cost",
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

			filter := service.RecurringFilter{UserID: user.ID, OnlyActive: true}
			if accountID > 0 {
				filter.AccountID = &accountID
			}
			patterns, err := store.ListRecurring(ctx, filter)
			if err != nil {
				return fmt.Errorf("failed to list recurring transactions: %w", err)
			}

			monthly := decimal.Zero
			yearly := decimal.Zero
			byFrequency := make(map[model.Frequency]int)
			active := 0
			for _, p := range patterns {
				if p.IsIgnored {
					continue
				}
				active++
				monthly = monthly.Add(p.MonthlyCost())
				yearly = yearly.Add(p.YearlyCost())
				byFrequency[p.Frequency]++
			}

			var lines []string
			lines = append(lines,
				fmt.Sprintf("Active patterns:   %d", active),
				fmt.Sprintf("Monthly cost:      %s", cli.AmountStyle.Render(monthly.StringFixed(2))),
				fmt.Sprintf("Yearly cost:       %s", cli.AmountStyle.Render(yearly.StringFixed(2))),
				"")
			for _, freq := range model.Frequencies() {
				if n := byFrequency[freq]; n > 0 {
					lines = append(lines, fmt.Sprintf("%-12s %d", string(freq), n))
				}
			}

			fmt.Println(cli.RenderBox("Recurring Cost Summary", strings.Join(lines, "\n")))
			return nil
		},
	}

	cmd.Flags().Int64Var(&accountID, "account", 0, "filter by account ID")

	return cmd
}

func upcomingRecurringCmd() *cobra.Command {
	var (
		accountID int64
		days      int
		overdue   bool
	)

	cmd := &cobra.Command{
		Use:   "upcoming",
		Short: "Show recurring charges expected soon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			patterns, err := store.ActiveRecurring(ctx, accountID)
			if err != nil {
				return fmt.Errorf("failed to load recurring transactions: %w", err)
			}

			now := time.Now()
			horizon := now.AddDate(0, 0, days)
			var shown []model.RecurringTransaction
			for _, p := range patterns {
				switch {
				case overdue && p.IsOverdue(now):
					shown = append(shown, p)
				case !overdue && !p.NextExpectedDate.After(horizon):
					shown = append(shown, p)
				}
			}

			if len(shown) == 0 {
				if overdue {
					fmt.Println(cli.FormatSuccess("Nothing overdue."))
				} else {
					fmt.Println(cli.InfoStyle.Render(fmt.Sprintf("Nothing expected in the next %d days.", days)))
				}
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer func() { _ = w.Flush() }()

			for _, p := range shown {
				expected := p.NextExpectedDate.Format("2006-01-02")
				if p.IsOverdue(now) {
					late := int(now.Sub(p.NextExpectedDate).Hours() / 24)
					expected = cli.WarningStyle.Render(fmt.Sprintf("%s (%dd late)", expected, late))
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					expected,
					truncate(p.GetDisplayName(), 30),
					p.Amount.StringFixed(2),
					string(p.Frequency))
			}

			return nil
		},
	}

	cmd.Flags().Int64Var(&accountID, "account", 0, "account ID (required)")
	cmd.Flags().IntVar(&days, "days", 30, "look-ahead window in days")
	cmd.Flags().BoolVar(&overdue, "overdue", false, "show only missed charges")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func ignoreRecurringCmd() *cobra.Command {
	var restore bool

	cmd := &cobra.Command{
		Use:   "ignore <id>",
		Short: "Ignore a false-positive pattern (or restore it)",
		Long: `Mark a recurring pattern as ignored. Ignored patterns are kept and
still refreshed by detection, but excluded from summaries and the
missing-recurring anomaly check.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid recurring ID %q", args[0])
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.SetRecurringIgnored(ctx, id, !restore); err != nil {
				return fmt.Errorf("failed to update pattern: %w", err)
			}

			if restore {
				fmt.Println(cli.FormatSuccess(fmt.Sprintf("Pattern %d restored", id)))
			} else {
				fmt.Println(cli.FormatSuccess(fmt.Sprintf("Pattern %d ignored", id)))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&restore, "restore", false, "un-ignore the pattern")

	return cmd
}

func setRecurringCmd() *cobra.Command {
	var (
		displayName string
		notes       string
	)

	cmd := &cobra.Command{
		Use:   "set <id>",
		Short: "Rename or annotate a recurring pattern",
		Long: `Set the display name or notes on a pattern. Curated fields survive
re-detection; only the detected metrics are refreshed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid recurring ID %q", args[0])
			}

			var namePtr, notesPtr *string
			if cmd.Flags().Changed("name") {
				namePtr = &displayName
			}
			if cmd.Flags().Changed("notes") {
				notesPtr = &notes
			}
			if namePtr == nil && notesPtr == nil {
				return fmt.Errorf("nothing to set: pass --name and/or --notes")
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.UpdateRecurringDetails(ctx, id, namePtr, notesPtr); err != nil {
				return fmt.Errorf("failed to update pattern: %w", err)
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Pattern %d updated", id)))
			return nil
		},
	}

	cmd.Flags().StringVar(&displayName, "name", "", "display name")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")

	return cmd
}
