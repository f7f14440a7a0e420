package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/finsentry/finsentry/internal/cli"
	"github.com/finsentry/finsentry/internal/currency"
)

func convertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert <amount> <from> <to>",
		Short: "Convert an amount between currencies",
		Long: `Convert an amount using the cached exchange rates. When no rate is
cached for a currency the amount is returned unchanged, with a warning.

Example:
  finsentry convert 100 EUR USD`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			amount, err := decimal.NewFromString(args[0])
			if err != nil {
				return fmt.Errorf("invalid amount %q", args[0])
			}
			from := strings.ToUpper(args[1])
			to := strings.ToUpper(args[2])

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			converter := currency.NewService(store, slog.Default())
			converted := converter.Convert(ctx, amount, from, to)

			fmt.Printf("%s = %s\n",
				formatAmount(amount, from),
				cli.AmountStyle.Render(formatAmount(converted, to)))

			if age, ok := converter.RatesAge(ctx); ok && age > 24*time.Hour {
				fmt.Println(cli.FormatWarning(fmt.Sprintf(
					"cached rates are %s old; run 'finsentry rates update'", age.Round(time.Hour))))
			}

			return nil
		},
	}

	return cmd
}

func ratesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rates",
		Short: "Manage cached exchange rates",
	}

	cmd.AddCommand(showRatesCmd())
	cmd.AddCommand(updateRatesCmd())

	return cmd
}

func showRatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the cached exchange rates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rates, err := store.GetExchangeRates(ctx)
			if err != nil {
				fmt.Println(cli.InfoStyle.Render("No rates cached. Use 'finsentry rates update' to load some."))
				return nil
			}

			fmt.Println(cli.FormatTitle(fmt.Sprintf("Exchange Rates (base %s)", rates.Base)))
			for code, rate := range rates.Rates {
				fmt.Printf("  %s  %.6f\n", code, rate)
			}
			fmt.Println(cli.SubtleStyle.Render(fmt.Sprintf(
				"fetched %s (%s ago)", rates.FetchedAt.Format(time.RFC3339), rates.Age(time.Now()).Round(time.Minute))))

			return nil
		},
	}
}

// ratesFile is the JSON shape accepted by 'rates update --file', matching
// the response format of the common open exchange-rate APIs.
type ratesFile struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

func updateRatesCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Replace the cached exchange rates from a JSON file",
		Long: `Load rates from a JSON file of the form:

  {"base": "USD", "rates": {"EUR": 0.92, "GBP": 0.79}}

Rates are stored per 1 unit of the base currency.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			data, err := os.ReadFile(file) // #nosec G304 -- user-supplied rates path
			if err != nil {
				return fmt.Errorf("failed to read rates file: %w", err)
			}

			var parsed ratesFile
			if err := json.Unmarshal(data, &parsed); err != nil {
				return fmt.Errorf("invalid rates file: %w", err)
			}
			if len(parsed.Rates) == 0 {
				return fmt.Errorf("rates file contains no rates")
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			converter := currency.NewService(store, slog.Default())
			if err := converter.UpdateRates(ctx, parsed.Base, parsed.Rates); err != nil {
				return fmt.Errorf("failed to save rates: %w", err)
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Cached %d rates", len(parsed.Rates))))
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "path to a JSON rates file (required)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
