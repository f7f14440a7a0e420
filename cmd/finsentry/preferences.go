package main

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/finsentry/finsentry/internal/cli"
	"github.com/finsentry/finsentry/internal/model"
)

func preferencesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preferences",
		Short: "Configure anomaly detection",
		Long: `Show and change your anomaly detection preferences: overall
sensitivity, which detectors run, and their thresholds.`,
	}

	cmd.AddCommand(showPreferencesCmd())
	cmd.AddCommand(setPreferencesCmd())

	return cmd
}

func showPreferencesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current detection preferences",
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

			prefs, err := store.GetOrCreatePreferences(ctx, user.ID)
			if err != nil {
				return fmt.Errorf("failed to load preferences: %w", err)
			}

			enabled := "on"
			if !prefs.DetectionEnabled {
				enabled = cli.WarningStyle.Render("off")
			}

			var types []string
			for _, t := range model.AllAnomalyTypes() {
				if prefs.TypeEnabled(t) {
					types = append(types, string(t))
				} else {
					types = append(types, cli.SubtleStyle.Render(string(t)+" (off)"))
				}
			}

			lines := []string{
				fmt.Sprintf("Detection:          %s", enabled),
				fmt.Sprintf("Sensitivity:        %s (minimum score %.0f)", prefs.Sensitivity, prefs.MinimumScore()),
				fmt.Sprintf("Amount deviation:   %s%%", prefs.AmountDeviationPercent.StringFixed(0)),
				fmt.Sprintf("Spike factor:       %s×", prefs.SpendingSpikeFactor.StringFixed(1)),
				fmt.Sprintf("Inactive after:     %d days", prefs.DaysBeforeInactive),
				"",
				"Detectors:",
				"  " + strings.Join(types, "\n  "),
			}

			fmt.Println(cli.RenderBox("Anomaly Preferences", strings.Join(lines, "\n")))
			return nil
		},
	}
}

func setPreferencesCmd() *cobra.Command {
	var (
		sensitivity  string
		enable       []string
		disable      []string
		deviation    float64
		spikeFactor  float64
		inactiveDays int
		detectionOff bool
		detectionOn  bool
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change detection preferences",
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

			prefs, err := store.GetOrCreatePreferences(ctx, user.ID)
			if err != nil {
				return fmt.Errorf("failed to load preferences: %w", err)
			}

			if sensitivity != "" {
				switch model.Sensitivity(sensitivity) {
				case model.SensitivityLow, model.SensitivityMedium, model.SensitivityHigh:
					prefs.Sensitivity = model.Sensitivity(sensitivity)
				default:
					return fmt.Errorf("invalid sensitivity %q (low, medium, high)", sensitivity)
				}
			}
			if cmd.Flags().Changed("deviation") {
				prefs.AmountDeviationPercent = decimal.NewFromFloat(deviation)
			}
			if cmd.Flags().Changed("spike-factor") {
				prefs.SpendingSpikeFactor = decimal.NewFromFloat(spikeFactor)
			}
			if cmd.Flags().Changed("inactive-days") {
				prefs.DaysBeforeInactive = inactiveDays
			}
			if detectionOff {
				prefs.DetectionEnabled = false
			}
			if detectionOn {
				prefs.DetectionEnabled = true
			}

			for _, name := range enable {
				t, err := parseAnomalyType(name)
				if err != nil {
					return err
				}
				if !prefs.TypeEnabled(t) {
					prefs.EnabledTypes = append(prefs.EnabledTypes, t)
				}
			}
			for _, name := range disable {
				t, err := parseAnomalyType(name)
				if err != nil {
					return err
				}
				kept := prefs.EnabledTypes[:0]
				for _, enabled := range prefs.EnabledTypes {
					if enabled != t {
						kept = append(kept, enabled)
					}
				}
				prefs.EnabledTypes = kept
			}

			if err := store.SavePreferences(ctx, prefs); err != nil {
				return fmt.Errorf("failed to save preferences: %w", err)
			}

			fmt.Println(cli.FormatSuccess("Preferences saved"))
			return nil
		},
	}

	cmd.Flags().StringVar(&sensitivity, "sensitivity", "", "detection sensitivity (low, medium, high)")
	cmd.Flags().StringSliceVar(&enable, "enable", nil, "detector types to enable")
	cmd.Flags().StringSliceVar(&disable, "disable", nil, "detector types to disable")
	cmd.Flags().Float64Var(&deviation, "deviation", 0, "unusual-amount deviation threshold in percent")
	cmd.Flags().Float64Var(&spikeFactor, "spike-factor", 0, "spending-spike multiplier over the monthly baseline")
	cmd.Flags().IntVar(&inactiveDays, "inactive-days", 0, "days of silence before an account counts as inactive")
	cmd.Flags().BoolVar(&detectionOff, "off", false, "disable anomaly detection entirely")
	cmd.Flags().BoolVar(&detectionOn, "on", false, "enable anomaly detection")

	return cmd
}

func parseAnomalyType(name string) (model.AnomalyType, error) {
	t := model.AnomalyType(name)
	for _, known := range model.AllAnomalyTypes() {
		if known == t {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown anomaly type %q", name)
}
