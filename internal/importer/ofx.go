package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/finsentry/finsentry/internal/model"
)

// OFXParser parses OFX/QFX bank and credit card statements.
type OFXParser struct{}

// NewOFXParser creates an OFX statement parser.
func NewOFXParser() *OFXParser {
	return &OFXParser{}
}

var (
	ofxSeverityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	ofxTagFixRegex   = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// preprocessOFX fixes formatting quirks seen in real bank exports:
// leading whitespace, mixed-case SEVERITY values, and SGML tags missing
// their closing bracket.
func (p *OFXParser) preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = ofxSeverityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	content = ofxTagFixRegex.ReplaceAllString(content, "$1>")
	return content
}

// ParseFile parses an OFX/QFX file into transactions for one account.
func (p *OFXParser) ParseFile(_ context.Context, reader io.Reader, accountID int64) ([]model.Transaction, []error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, []error{fmt.Errorf("failed to read OFX file: %w", err)}
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocessOFX(string(content))))
	if err != nil {
		return nil, []error{fmt.Errorf("failed to parse OFX file: %w", err)}
	}

	var transactions []model.Transaction
	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		for _, ofxTxn := range stmt.BankTranList.Transactions {
			transactions = append(transactions, p.convertTransaction(ofxTxn, accountID, ""))
		}
	}
	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		for _, ofxTxn := range stmt.BankTranList.Transactions {
			transactions = append(transactions, p.convertTransaction(ofxTxn, accountID, "CARD"))
		}
	}

	slog.Info("parsed OFX file",
		"transactions", len(transactions),
		"bank_statements", len(resp.Bank),
		"cc_statements", len(resp.CreditCard))
	return transactions, nil
}

func (p *OFXParser) convertTransaction(ofxTxn ofxgo.Transaction, accountID int64, paymentMethod string) model.Transaction {
	// OFX amounts are negative for debits.
	amount := decimal.NewFromBigRat(&ofxTxn.TrnAmt.Rat, 2)
	txnType := model.TypeIncome
	if amount.IsNegative() {
		txnType = model.TypeExpense
		amount = amount.Abs()
	}

	txn := model.Transaction{
		Date:            ofxTxn.DtPosted.Time,
		Amount:          amount,
		Description:     truncateField("description", string(ofxTxn.Name)),
		Reference:       truncateField("reference", string(ofxTxn.Memo)),
		ReferenceNumber: truncateField("reference_number", string(ofxTxn.FiTID)),
		MerchantName:    truncateField("merchant_name", p.extractMerchantName(ofxTxn)),
		PaymentMethod:   paymentMethod,
		Type:            txnType,
		AccountID:       accountID,
	}
	txn.Hash = txn.GenerateHash()
	return txn
}

// extractMerchantName prefers the PAYEE block, then cleans up the NAME
// field by stripping common processor prefixes.
func (p *OFXParser) extractMerchantName(ofxTxn ofxgo.Transaction) string {
	if ofxTxn.Payee != nil && ofxTxn.Payee.Name != "" {
		return string(ofxTxn.Payee.Name)
	}

	name := strings.TrimSpace(string(ofxTxn.Name))
	prefixes := []string{
		"POS PURCHASE ",
		"PURCHASE AUTHORIZED ON ",
		"DEBIT CARD PURCHASE ",
		"ACH DEBIT ",
		"CHECK CARD ",
		"VISA PURCHASE ",
		"MC PURCHASE ",
		"DEBIT PURCHASE ",
	}
	upper := strings.ToUpper(name)
	for _, prefix := range prefixes {
		if strings.HasPrefix(upper, prefix) {
			name = strings.TrimSpace(name[len(prefix):])
			break
		}
	}
	return name
}
