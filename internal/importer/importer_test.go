package importer

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsentry/finsentry/internal/model"
)

func TestCSVParser_ParseFile(t *testing.T) {
	data := `date,amount,description,partner_name,partner_iban,type
2024-03-01,-49.99,GYM MEMBERSHIP,FitLife GmbH,DE89370400440532013000,
2024-03-02,2500.00,SALARY MARCH,ACME Corp,,income
2024-03-03,not-a-number,BROKEN ROW,,,
`
	parser := NewCSVParser()
	txns, errs := parser.ParseFile(context.Background(), strings.NewReader(data), 7)

	require.Len(t, errs, 1, "broken row should produce one error")
	require.Len(t, txns, 2)

	assert.Equal(t, model.TypeExpense, txns[0].Type, "negative amount infers expense")
	assert.True(t, txns[0].Amount.Equal(decimal.RequireFromString("49.99")), "amount stored absolute")
	assert.Equal(t, "FitLife GmbH", txns[0].PartnerName)
	assert.Equal(t, int64(7), txns[0].AccountID)
	assert.NotEmpty(t, txns[0].Hash)

	assert.Equal(t, model.TypeIncome, txns[1].Type, "explicit type wins")
}

func TestCSVParser_GermanFormat(t *testing.T) {
	data := "Buchungstag;Betrag;Verwendungszweck;Empfaenger\n02.03.2024;-12,99;NETFLIX ABO;Netflix International\n"
	parser := NewCSVParser()
	parser.Comma = ';'

	txns, errs := parser.ParseFile(context.Background(), strings.NewReader(data), 1)
	require.Empty(t, errs)
	require.Len(t, txns, 1)

	assert.Equal(t, 2024, txns[0].Date.Year())
	assert.Equal(t, 2, txns[0].Date.Day())
	assert.True(t, txns[0].Amount.Equal(decimal.RequireFromString("12.99")))
	assert.Equal(t, "Netflix International", txns[0].PartnerName)
}

func TestCSVParser_MissingRequiredColumns(t *testing.T) {
	parser := NewCSVParser()
	_, errs := parser.ParseFile(context.Background(), strings.NewReader("description\nhello\n"), 1)
	require.NotEmpty(t, errs)
}

func TestJSONParser_StructuredAmount(t *testing.T) {
	data := `[
		{
			"booking": "2024-03-01",
			"amount": {"value": 5070, "precision": 2},
			"reference": "REWE SAGT DANKE",
			"partnerName": "REWE Markt",
			"partnerAccount": {"iban": "DE89370400440532013000"},
			"paymentMethod": "CARD",
			"cardBrand": "VISA"
		},
		{
			"booking": "2024-03-05",
			"amount": -12.99,
			"merchantName": "Netflix",
			"referenceNumber": "REF-123"
		},
		{"booking": "2024-03-06"}
	]`

	parser := NewJSONParser()
	txns, errs := parser.ParseFile(context.Background(), strings.NewReader(data), 3)

	require.Len(t, errs, 1, "row without amount should fail")
	require.Len(t, txns, 2)

	// 5070 with precision 2 is 50.70.
	assert.True(t, txns[0].Amount.Equal(decimal.RequireFromString("50.70")),
		"got %s", txns[0].Amount)
	assert.Equal(t, "DE89370400440532013000", txns[0].PartnerIBAN)
	assert.Contains(t, txns[0].Description, "REWE SAGT DANKE")

	assert.Equal(t, model.TypeExpense, txns[1].Type)
	assert.True(t, txns[1].Amount.Equal(decimal.RequireFromString("12.99")))
	assert.Contains(t, txns[1].Description, "Ref: REF-123")
}

func TestJSONParser_RejectsNonArray(t *testing.T) {
	parser := NewJSONParser()
	_, errs := parser.ParseFile(context.Background(), strings.NewReader(`{"not": "an array"}`), 1)
	require.NotEmpty(t, errs)
}

func TestTruncateField(t *testing.T) {
	long := strings.Repeat("x", 2000)

	assert.Len(t, truncateField("description", long), 1024)
	assert.Len(t, truncateField("partner_iban", long), 34)
	assert.Len(t, truncateField("unknown_field", long), 255)
	assert.Equal(t, "short", truncateField("description", "short"))
	assert.Equal(t, "", truncateField("description", ""))
}

func TestParserForFile(t *testing.T) {
	tests := []struct {
		path    string
		source  string
		wantErr bool
	}{
		{"statement.csv", "csv", false},
		{"statement.JSON", "json", false},
		{"statement.qfx", "ofx", false},
		{"statement.pdf", "", true},
	}
	for _, tt := range tests {
		_, source, err := parserForFile(tt.path)
		if tt.wantErr {
			assert.Error(t, err, tt.path)
		} else {
			assert.NoError(t, err, tt.path)
			assert.Equal(t, tt.source, source)
		}
	}
}
