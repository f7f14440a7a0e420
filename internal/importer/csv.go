package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finsentry/finsentry/internal/common"
	"github.com/finsentry/finsentry/internal/model"
)

// CSVParser parses delimited statement exports. The first row must be a
// header; columns are matched by name, case-insensitively.
type CSVParser struct {
	// Comma is the field delimiter; defaults to ','. German bank
	// exports frequently use ';'.
	Comma rune
}

// NewCSVParser creates a CSV statement parser.
func NewCSVParser() *CSVParser {
	return &CSVParser{Comma: ','}
}

// Recognized header names per transaction field.
var csvHeaderAliases = map[string][]string{
	"date":             {"date", "booking", "booking_date", "buchungstag"},
	"amount":           {"amount", "betrag"},
	"description":      {"description", "purpose", "verwendungszweck"},
	"reference":        {"reference"},
	"reference_number": {"reference_number", "referencenumber"},
	"partner_name":     {"partner_name", "partnername", "payee", "empfaenger"},
	"partner_iban":     {"partner_iban", "partneriban", "iban"},
	"merchant_name":    {"merchant_name", "merchantname", "merchant"},
	"payment_method":   {"payment_method", "paymentmethod"},
	"card_brand":       {"card_brand", "cardbrand"},
	"type":             {"type", "txn_type"},
}

var csvDateFormats = []string{
	"2006-01-02",
	"02.01.2006",
	"01/02/2006",
	time.RFC3339,
}

// ParseFile parses a CSV export into transactions for one account.
// Malformed rows are collected as errors without aborting the file.
func (p *CSVParser) ParseFile(_ context.Context, reader io.Reader, accountID int64) ([]model.Transaction, []error) {
	r := csv.NewReader(reader)
	if p.Comma != 0 {
		r.Comma = p.Comma
	}
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, []error{fmt.Errorf("failed to read CSV header: %w", err)}
	}
	columns := p.mapHeader(header)
	if _, ok := columns["date"]; !ok {
		return nil, []error{fmt.Errorf("%w: no date column", common.ErrUnsupportedFormat)}
	}
	if _, ok := columns["amount"]; !ok {
		return nil, []error{fmt.Errorf("%w: no amount column", common.ErrUnsupportedFormat)}
	}

	var (
		transactions []model.Transaction
		rowErrors    []error
	)
	for rowNum := 1; ; rowNum++ {
		record, readErr := r.Read()
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			rowErrors = append(rowErrors, fmt.Errorf("row %d: %w: %w", rowNum, common.ErrMalformedRow, readErr))
			continue
		}

		txn, rowErr := p.parseRecord(record, columns, accountID)
		if rowErr != nil {
			rowErrors = append(rowErrors, fmt.Errorf("row %d: %w: %w", rowNum, common.ErrMalformedRow, rowErr))
			continue
		}
		transactions = append(transactions, *txn)
	}
	return transactions, rowErrors
}

func (p *CSVParser) mapHeader(header []string) map[string]int {
	columns := make(map[string]int)
	for i, name := range header {
		normalized := strings.ToLower(strings.TrimSpace(name))
		for field, aliases := range csvHeaderAliases {
			if _, taken := columns[field]; taken {
				continue
			}
			for _, alias := range aliases {
				if normalized == alias {
					columns[field] = i
					break
				}
			}
		}
	}
	return columns
}

func (p *CSVParser) parseRecord(record []string, columns map[string]int, accountID int64) (*model.Transaction, error) {
	get := func(field string) string {
		idx, ok := columns[field]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	date, err := parseCSVDate(get("date"))
	if err != nil {
		return nil, err
	}

	rawAmount := get("amount")
	// German exports use a decimal comma.
	rawAmount = strings.ReplaceAll(rawAmount, ",", ".")
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", get("amount"), err)
	}

	txnType := model.TransactionType(strings.ToLower(get("type")))
	if !txnType.Valid() {
		if amount.IsNegative() {
			txnType = model.TypeExpense
		} else {
			txnType = model.TypeIncome
		}
	}

	txn := &model.Transaction{
		Date:            date,
		Amount:          amount.Abs(),
		Description:     truncateField("description", get("description")),
		Reference:       truncateField("reference", get("reference")),
		ReferenceNumber: truncateField("reference_number", get("reference_number")),
		PartnerName:     truncateField("partner_name", get("partner_name")),
		PartnerIBAN:     truncateField("partner_iban", get("partner_iban")),
		MerchantName:    truncateField("merchant_name", get("merchant_name")),
		PaymentMethod:   truncateField("payment_method", get("payment_method")),
		CardBrand:       truncateField("card_brand", get("card_brand")),
		Type:            txnType,
		AccountID:       accountID,
	}
	if txn.Description == "" {
		txn.Description = txn.PartnerName
	}
	txn.Hash = txn.GenerateHash()
	return txn, nil
}

func parseCSVDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("missing date")
	}
	for _, format := range csvDateFormats {
		if t, err := time.Parse(format, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}
