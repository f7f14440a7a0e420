package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/finsentry/finsentry/internal/common"
	"github.com/finsentry/finsentry/internal/model"
	"github.com/finsentry/finsentry/internal/service"
)

// Writer exports reports to a Google Sheet.
type Writer struct {
	service *sheets.Service
	logger  *slog.Logger
	config  Config
}

// NewWriter creates a Google Sheets report writer.
func NewWriter(ctx context.Context, config Config, logger *slog.Logger) (*Writer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	svc, err := createSheetsService(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &Writer{config: config, service: svc, logger: logger}, nil
}

func createSheetsService(ctx context.Context, config Config) (*sheets.Service, error) {
	var tokenSource oauth2.TokenSource

	if config.ServiceAccountPath != "" {
		jsonKey, err := os.ReadFile(config.ServiceAccountPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}
		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}
		tokenSource = jwtConfig.TokenSource(ctx)
	} else {
		oauthConfig := &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{sheets.SpreadsheetsScope},
		}
		tokenSource = oauthConfig.TokenSource(ctx, &oauth2.Token{
			RefreshToken: config.RefreshToken,
			TokenType:    "Bearer",
		})
	}

	httpClient := oauth2.NewClient(ctx, tokenSource)
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}
	return srv, nil
}

// WriteReport writes recurring patterns and anomalies to two tabs of the
// configured spreadsheet, creating the spreadsheet when no ID is set.
func (w *Writer) WriteReport(ctx context.Context, recurring []model.RecurringTransaction, anomalies []model.Anomaly) error {
	spreadsheetID, err := w.getOrCreateSpreadsheet(ctx)
	if err != nil {
		return fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	retryOpts := service.RetryOptions{
		MaxAttempts:  w.config.RetryAttempts,
		InitialDelay: w.config.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}

	if err := common.WithRetry(ctx, func() error {
		return w.writeTab(ctx, spreadsheetID, "Recurring", w.recurringRows(recurring))
	}, retryOpts); err != nil {
		return fmt.Errorf("failed to write recurring tab: %w", err)
	}

	if err := common.WithRetry(ctx, func() error {
		return w.writeTab(ctx, spreadsheetID, "Anomalies", w.anomalyRows(anomalies))
	}, retryOpts); err != nil {
		return fmt.Errorf("failed to write anomalies tab: %w", err)
	}

	w.logger.Info("report export completed",
		"spreadsheet_id", spreadsheetID,
		"recurring", len(recurring),
		"anomalies", len(anomalies))
	return nil
}

func (w *Writer) getOrCreateSpreadsheet(ctx context.Context) (string, error) {
	if w.config.SpreadsheetID != "" {
		if _, err := w.service.Spreadsheets.Get(w.config.SpreadsheetID).Context(ctx).Do(); err != nil {
			return "", fmt.Errorf("unable to access spreadsheet %s: %w", w.config.SpreadsheetID, err)
		}
		return w.config.SpreadsheetID, nil
	}

	spreadsheet := &sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{
			Title:    w.config.SpreadsheetName,
			TimeZone: w.config.TimeZone,
		},
		Sheets: []*sheets.Sheet{
			{Properties: &sheets.SheetProperties{Title: "Recurring"}},
			{Properties: &sheets.SheetProperties{Title: "Anomalies"}},
		},
	}
	created, err := w.service.Spreadsheets.Create(spreadsheet).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to create spreadsheet: %w", err)
	}

	w.logger.Info("created new spreadsheet",
		"id", created.SpreadsheetId,
		"url", created.SpreadsheetUrl)
	return created.SpreadsheetId, nil
}

func (w *Writer) writeTab(ctx context.Context, spreadsheetID, tab string, values [][]any) error {
	clearRange := fmt.Sprintf("%s!A:Z", tab)
	if _, err := w.service.Spreadsheets.Values.Clear(spreadsheetID, clearRange, &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return err
	}

	_, err := w.service.Spreadsheets.Values.Update(spreadsheetID, fmt.Sprintf("%s!A1", tab), &sheets.ValueRange{
		Values: values,
	}).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	return err
}

func (w *Writer) recurringRows(recurring []model.RecurringTransaction) [][]any {
	values := make([][]any, 0, len(recurring)+1)
	values = append(values, []any{
		"Name", "Frequency", "Amount", "Monthly Cost", "Yearly Cost",
		"Confidence", "Occurrences", "Next Expected", "Ignored",
	})
	for i := range recurring {
		r := &recurring[i]
		values = append(values, []any{
			r.GetDisplayName(),
			string(r.Frequency),
			r.Amount.StringFixed(2),
			r.MonthlyCost().StringFixed(2),
			r.YearlyCost().StringFixed(2),
			fmt.Sprintf("%.0f%%", r.ConfidenceScore*100),
			r.OccurrenceCount,
			r.NextExpectedDate.Format("2006-01-02"),
			r.IsIgnored,
		})
	}
	return values
}

func (w *Writer) anomalyRows(anomalies []model.Anomaly) [][]any {
	values := make([][]any, 0, len(anomalies)+1)
	values = append(values, []any{
		"Date", "Type", "Severity", "Score", "Title", "Reason", "Dismissed",
	})
	for i := range anomalies {
		a := &anomalies[i]
		values = append(values, []any{
			a.CreatedAt.Format("2006-01-02"),
			string(a.Type),
			string(a.Severity),
			a.Score.StringFixed(0),
			a.Title,
			a.Reason,
			a.IsDismissed,
		})
	}
	return values
}
