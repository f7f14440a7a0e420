package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/finsentry/finsentry/internal/cli"
	"github.com/finsentry/finsentry/internal/llm"
)

func suggestCmd() *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "suggest <transaction-id>",
		Short: "Ask the LLM to categorize a transaction",
		Long: `Suggest a category for one transaction using the configured LLM
provider. The suggestion is constrained to your existing categories.

Configure the provider under llm.* (or FINSENTRY_LLM_* env vars):
  llm.provider: openai | ollama
  llm.api_key, llm.model, llm.base_url`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			txnID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid transaction ID %q", args[0])
			}

			client, err := llm.NewClient(llm.Config{
				Provider:    viper.GetString("llm.provider"),
				APIKey:      viper.GetString("llm.api_key"),
				Model:       viper.GetString("llm.model"),
				BaseURL:     viper.GetString("llm.base_url"),
				Temperature: viper.GetFloat64("llm.temperature"),
				MaxTokens:   viper.GetInt("llm.max_tokens"),
				Timeout:     viper.GetDuration("llm.timeout"),
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

			txn, err := store.GetTransactionByID(ctx, txnID)
			if err != nil {
				return fmt.Errorf("transaction %d: %w", txnID, err)
			}

			suggester := llm.NewSuggester(client, store, slog.Default())

			start := time.Now()
			suggestion, err := suggester.SuggestCategory(ctx, user.ID, txn)
			if err != nil {
				return fmt.Errorf("suggestion failed: %w", err)
			}

			fmt.Println(cli.FormatTitle("Category Suggestion"))
			fmt.Printf("  Transaction: %s %s on %s\n",
				txn.Amount.StringFixed(2), truncate(txn.Description, 50), txn.Date.Format("2006-01-02"))
			fmt.Printf("  Suggested:   %s (%.0f%% confident)\n",
				cli.SuccessStyle.Render(suggestion.Category.Name), suggestion.Confidence*100)
			if suggestion.Reason != "" {
				fmt.Printf("  Reason:      %s\n", suggestion.Reason)
			}
			fmt.Println(cli.SubtleStyle.Render(fmt.Sprintf("  took %s", time.Since(start).Round(time.Millisecond))))

			if apply {
				if err := store.UpdateTransactionCategory(ctx, txn.ID, suggestion.Category.ID); err != nil {
					return fmt.Errorf("failed to apply category: %w", err)
				}
				fmt.Println(cli.FormatSuccess("Category applied"))
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "apply the suggested category to the transaction")

	return cmd
}
