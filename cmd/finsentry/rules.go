package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/finsentry/finsentry/internal/cli"
	"github.com/finsentry/finsentry/internal/model"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage categorization rules",
		Long: `Rules categorize transactions automatically on import. They run in
ascending priority order and the first match wins.`,
	}

	cmd.AddCommand(listRulesCmd())
	cmd.AddCommand(addRuleCmd())

	return cmd
}

func listRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active rules in evaluation order",
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

			ruleSet, err := store.GetActiveRules(ctx, user.ID)
			if err != nil {
				return fmt.Errorf("failed to list rules: %w", err)
			}

			if len(ruleSet) == 0 {
				fmt.Println(cli.InfoStyle.Render("No rules defined. Use 'finsentry rules add' to create one."))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer func() { _ = w.Flush() }()

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				cli.HeaderStyle.Render("Priority"),
				cli.HeaderStyle.Render("Name"),
				cli.HeaderStyle.Render("Category"),
				cli.HeaderStyle.Render("Merchant"),
				cli.HeaderStyle.Render("Description"))

			for _, rule := range ruleSet {
				merchant := rule.MerchantPattern
				if merchant == "" {
					merchant = cli.SubtleStyle.Render("any")
				}
				desc := rule.DescriptionLike
				if desc == "" {
					desc = cli.SubtleStyle.Render("any")
				}
				fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n",
					rule.Priority, rule.Name, rule.CategoryID, merchant, desc)
			}

			return nil
		},
	}
}

func addRuleCmd() *cobra.Command {
	var (
		category    string
		merchant    string
		description string
		txnType     string
		amountMin   float64
		amountMax   float64
		priority    int
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a categorization rule",
		Long: `Create a rule. Conditions left empty match anything; a rule with a
merchant pattern AND an amount range requires both.

Example:
  finsentry rules add "Streaming" --category Entertainment \
    --merchant '(netflix|spotify)' --type expense --amount-max 30`,
		Args: cobra.ExactArgs(1),
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

			cat, err := store.GetCategoryByName(ctx, user.ID, category)
			if err != nil {
				return fmt.Errorf("category %q: %w", category, err)
			}

			rule := &model.Rule{
				UserID:          user.ID,
				Name:            args[0],
				CategoryID:      cat.ID,
				MerchantPattern: merchant,
				DescriptionLike: description,
				Priority:        priority,
				IsActive:        true,
			}
			if txnType != "" {
				rule.Type = model.TransactionType(txnType)
				if !rule.Type.Valid() {
					return fmt.Errorf("invalid transaction type %q", txnType)
				}
			}
			if cmd.Flags().Changed("amount-min") {
				min := decimal.NewFromFloat(amountMin)
				rule.AmountMin = &min
			}
			if cmd.Flags().Changed("amount-max") {
				max := decimal.NewFromFloat(amountMax)
				rule.AmountMax = &max
			}

			created, err := store.CreateRule(ctx, rule)
			if err != nil {
				return fmt.Errorf("failed to create rule: %w", err)
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf(
				"Created rule %q (priority %d) → %s", created.Name, created.Priority, cat.Name)))
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "category name to assign (required)")
	cmd.Flags().StringVar(&merchant, "merchant", "", "case-insensitive regex on merchant name")
	cmd.Flags().StringVar(&description, "description", "", "case-insensitive substring on description")
	cmd.Flags().StringVar(&txnType, "type", "", "only match this transaction type")
	cmd.Flags().Float64Var(&amountMin, "amount-min", 0, "minimum amount")
	cmd.Flags().Float64Var(&amountMax, "amount-max", 0, "maximum amount")
	cmd.Flags().IntVar(&priority, "priority", 100, "evaluation priority (lower runs first)")
	_ = cmd.MarkFlagRequired("category")

	return cmd
}
