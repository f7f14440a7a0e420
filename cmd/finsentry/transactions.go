package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/finsentry/finsentry/internal/cli"
	"github.com/finsentry/finsentry/internal/model"
	"github.com/finsentry/finsentry/internal/service"
)

func transactionsCmd() *cobra.Command {
	var (
		accountID  int64
		txnType    string
		categoryID int64
		days       int
		limit      int
	)

	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"tx"},
		Short:   "List transactions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			filter := service.TransactionFilter{
				AccountID: accountID,
				Limit:     limit,
			}
			if txnType != "" {
				filter.Type = model.TransactionType(txnType)
				if !filter.Type.Valid() {
					return fmt.Errorf("invalid transaction type %q (expense, income, transfer)", txnType)
				}
			}
			if categoryID > 0 {
				filter.CategoryID = &categoryID
			}
			if days > 0 {
				since := time.Now().AddDate(0, 0, -days)
				filter.StartDate = &since
			}

			transactions, err := store.GetTransactions(ctx, filter)
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}

			if len(transactions) == 0 {
				fmt.Println(cli.InfoStyle.Render("No transactions match."))
				return nil
			}

			account, err := store.GetAccount(ctx, accountID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer func() { _ = w.Flush() }()

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				cli.HeaderStyle.Render("ID"),
				cli.HeaderStyle.Render("Date"),
				cli.HeaderStyle.Render("Type"),
				cli.HeaderStyle.Render("Amount"),
				cli.HeaderStyle.Render("Merchant"),
				cli.HeaderStyle.Render("Description"))

			for _, txn := range transactions {
				merchant := txn.MerchantName
				if merchant == "" {
					merchant = txn.PartnerName
				}
				amount := formatAmount(txn.Amount, account.Currency)
				if txn.Type == model.TypeExpense {
					amount = "-" + amount
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					txn.ID,
					txn.Date.Format("2006-01-02"),
					string(txn.Type),
					amount,
					truncate(merchant, 24),
					truncate(txn.Description, 40))
			}

			fmt.Fprintln(w, strings.Repeat("-", 8))
			fmt.Fprintf(w, "%s\n", cli.SubtleStyle.Render(fmt.Sprintf("%d transactions", len(transactions))))

			return nil
		},
	}

	cmd.Flags().Int64Var(&accountID, "account", 0, "account ID (required)")
	cmd.Flags().StringVar(&txnType, "type", "", "filter by type (expense, income, transfer)")
	cmd.Flags().Int64Var(&categoryID, "category", 0, "filter by category ID")
	cmd.Flags().IntVar(&days, "days", 0, "only transactions from the last N days")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to show")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}
