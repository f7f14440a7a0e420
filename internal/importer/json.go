package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finsentry/finsentry/internal/common"
	"github.com/finsentry/finsentry/internal/model"
)

// jsonAmount is either a plain number/string or a structured object of
// the form {"value": 5070, "precision": 2} meaning 50.70.
type jsonAmount struct {
	value     decimal.Decimal
	precision int
	isStruct  bool
}

func (a *jsonAmount) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var obj struct {
			Value     json.Number `json:"value"`
			Precision *int        `json:"precision"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		value, err := decimal.NewFromString(obj.Value.String())
		if err != nil {
			return fmt.Errorf("invalid amount value %q: %w", obj.Value, err)
		}
		a.value = value
		a.precision = 2
		if obj.Precision != nil {
			a.precision = *obj.Precision
		}
		a.isStruct = true
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		// Some exports quote amounts.
		var s string
		if strErr := json.Unmarshal(data, &s); strErr != nil {
			return err
		}
		num = json.Number(s)
	}
	value, err := decimal.NewFromString(num.String())
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", num, err)
	}
	a.value = value
	return nil
}

// Decimal resolves the amount, scaling structured values by precision.
func (a *jsonAmount) Decimal() decimal.Decimal {
	if a.isStruct && a.precision > 0 {
		return a.value.Shift(int32(-a.precision))
	}
	return a.value
}

type jsonPartnerAccount struct {
	IBAN string `json:"iban"`
}

type jsonRow struct {
	Booking         string              `json:"booking"`
	Valuation       string              `json:"valuation"`
	TransactionDate string              `json:"transactionDateTime"`
	Amount          *jsonAmount         `json:"amount"`
	Reference       string              `json:"reference"`
	ReferenceNumber string              `json:"referenceNumber"`
	PartnerName     string              `json:"partnerName"`
	PartnerAccount  *jsonPartnerAccount `json:"partnerAccount"`
	MerchantName    string              `json:"merchantName"`
	PaymentMethod   string              `json:"paymentMethod"`
	CardBrand       string              `json:"cardBrand"`
	Type            string              `json:"type"`
}

var jsonDateFormats = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02",
}

func parseJSONDate(value string) (time.Time, error) {
	for _, format := range jsonDateFormats {
		if t, err := time.Parse(format, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

// JSONParser parses JSON statement exports: a top-level array of
// transaction objects.
type JSONParser struct{}

// NewJSONParser creates a JSON statement parser.
func NewJSONParser() *JSONParser {
	return &JSONParser{}
}

// ParseFile parses a JSON export into transactions for one account.
// Malformed rows are collected as errors without aborting the file.
func (p *JSONParser) ParseFile(_ context.Context, reader io.Reader, accountID int64) ([]model.Transaction, []error) {
	var rows []json.RawMessage
	decoder := json.NewDecoder(reader)
	decoder.UseNumber()
	if err := decoder.Decode(&rows); err != nil {
		return nil, []error{fmt.Errorf("JSON payload must be an array: %w", err)}
	}

	var (
		transactions []model.Transaction
		rowErrors    []error
	)
	for i, raw := range rows {
		txn, err := p.parseRow(raw, accountID)
		if err != nil {
			rowErrors = append(rowErrors, fmt.Errorf("row %d: %w: %w", i, common.ErrMalformedRow, err))
			continue
		}
		transactions = append(transactions, *txn)
	}
	return transactions, rowErrors
}

func (p *JSONParser) parseRow(raw json.RawMessage, accountID int64) (*model.Transaction, error) {
	var row jsonRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, err
	}
	if row.Amount == nil {
		return nil, fmt.Errorf("missing amount")
	}

	date, err := p.rowDate(&row)
	if err != nil {
		return nil, err
	}

	amount := row.Amount.Decimal()
	txnType := model.TransactionType(row.Type)
	if !txnType.Valid() {
		if amount.IsNegative() {
			txnType = model.TypeExpense
		} else {
			txnType = model.TypeIncome
		}
	}

	partnerIBAN := ""
	if row.PartnerAccount != nil {
		partnerIBAN = row.PartnerAccount.IBAN
	}

	txn := &model.Transaction{
		Date:            date,
		Amount:          amount.Abs(),
		Description:     truncateField("description", p.composeDescription(&row)),
		Reference:       truncateField("reference", row.Reference),
		ReferenceNumber: truncateField("reference_number", row.ReferenceNumber),
		PartnerName:     truncateField("partner_name", row.PartnerName),
		PartnerIBAN:     truncateField("partner_iban", partnerIBAN),
		MerchantName:    truncateField("merchant_name", row.MerchantName),
		PaymentMethod:   truncateField("payment_method", row.PaymentMethod),
		CardBrand:       truncateField("card_brand", row.CardBrand),
		Type:            txnType,
		AccountID:       accountID,
	}

	if row.Booking != "" {
		if booking, bookErr := parseJSONDate(row.Booking); bookErr == nil {
			txn.BookingDate = &booking
		}
	}

	txn.Hash = txn.GenerateHash()
	return txn, nil
}

func (p *JSONParser) rowDate(row *jsonRow) (time.Time, error) {
	for _, candidate := range []string{row.Booking, row.Valuation, row.TransactionDate} {
		if candidate == "" {
			continue
		}
		if date, err := parseJSONDate(candidate); err == nil {
			return date, nil
		}
	}
	return time.Time{}, fmt.Errorf("missing or unparseable date")
}

// composeDescription assembles a description from the richest fields
// available when the export has no dedicated description column.
func (p *JSONParser) composeDescription(row *jsonRow) string {
	var parts []string
	if row.Reference != "" {
		parts = append(parts, row.Reference)
	}
	if row.PartnerName != "" {
		parts = append(parts, row.PartnerName)
	}
	if row.ReferenceNumber != "" {
		parts = append(parts, "Ref: "+row.ReferenceNumber)
	}
	if len(parts) == 0 {
		return "Transaction"
	}
	return strings.Join(parts, " | ")
}
