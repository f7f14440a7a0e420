package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/finsentry/finsentry/internal/cli"
	"github.com/finsentry/finsentry/internal/model"
)

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage bank accounts",
		Long:  `List and create the bank accounts whose statements you import.`,
	}

	cmd.AddCommand(listAccountsCmd())
	cmd.AddCommand(addAccountCmd())

	return cmd
}

func listAccountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all accounts",
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

			accounts, err := store.ListAccounts(ctx, user.ID)
			if err != nil {
				return fmt.Errorf("failed to list accounts: %w", err)
			}

			if len(accounts) == 0 {
				fmt.Println(cli.InfoStyle.Render("No accounts found. Use 'finsentry accounts add' to create one."))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer func() { _ = w.Flush() }()

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				cli.HeaderStyle.Render("ID"),
				cli.HeaderStyle.Render("Name"),
				cli.HeaderStyle.Render("IBAN"),
				cli.HeaderStyle.Render("Currency"),
				cli.HeaderStyle.Render("Active"))
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				strings.Repeat("-", 4),
				strings.Repeat("-", 20),
				strings.Repeat("-", 24),
				strings.Repeat("-", 8),
				strings.Repeat("-", 6))

			for _, acct := range accounts {
				active := cli.SuccessStyle.Render("yes")
				if !acct.IsActive {
					active = cli.SubtleStyle.Render("no")
				}
				iban := acct.IBAN
				if iban == "" {
					iban = cli.SubtleStyle.Render("(none)")
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", acct.ID, acct.Name, iban, acct.Currency, active)
			}

			return nil
		},
	}
}

func addAccountCmd() *cobra.Command {
	var (
		iban     string
		currency string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a new account",
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

			account, err := store.CreateAccount(ctx, &model.Account{
				UserID:   user.ID,
				Name:     args[0],
				IBAN:     iban,
				Currency: currency,
				IsActive: true,
			})
			if err != nil {
				return fmt.Errorf("failed to create account: %w", err)
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Created account %q (ID %d)", account.Name, account.ID)))
			return nil
		},
	}

	cmd.Flags().StringVar(&iban, "iban", "", "account IBAN")
	cmd.Flags().StringVar(&currency, "currency", "", "account currency (default EUR)")

	return cmd
}
