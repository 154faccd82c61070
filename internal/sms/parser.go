package sms

import (
	"regexp"
	"strconv"
	"strings"
)

// Category classifies a mobile-money notification by the keyword found in its body.
type Category string

const (
	CategoryDeposit        Category = "Deposit"
	CategoryWithdrawal     Category = "Withdrawal"
	CategoryIncoming       Category = "Incoming"
	CategoryTransfer       Category = "Transfer"
	CategoryPayment        Category = "Payment"
	CategoryServicePayment Category = "ServicePayment"
)

// categoryRule maps lowercase keywords to a category.
type categoryRule struct {
	keywords []string
	category Category
}

// categoryRules are checked in order; the first rule with a matching keyword wins.
var categoryRules = []categoryRule{
	{keywords: []string{"deposit"}, category: CategoryDeposit},
	{keywords: []string{"withdraw"}, category: CategoryWithdrawal},
	{keywords: []string{"received"}, category: CategoryIncoming},
	{keywords: []string{"transferred"}, category: CategoryTransfer},
	{keywords: []string{"payment"}, category: CategoryPayment},
	{keywords: []string{"airtime", "token"}, category: CategoryServicePayment},
}

// space matches Unicode whitespace, not only ASCII: exports often carry
// U+00A0 or U+202F between an amount and its currency.
const space = `\s\x{0b}\x{1c}-\x{1f}\x{85}\p{Z}`

var (
	txIDPattern       = regexp.MustCompile(`TxId[:` + space + `]+(\d+)`)
	amountPattern     = regexp.MustCompile(`(\d{3,9})[` + space + `]*RWF`)
	newBalancePattern = regexp.MustCompile(`(?i)new balance[:` + space + `]*([\d,]+)[` + space + `]*RWF`)
	feePattern        = regexp.MustCompile(`(?i)Fee (?:was|paid)[:` + space + `]*([\d,]+)[` + space + `]*RWF`)
)

// Fields holds the structured values extracted from an SMS body.
// A nil field means the corresponding pattern did not match.
type Fields struct {
	TxID              *string
	Category          *Category
	Amount            *int64
	Fee               *int64
	NewBalance        *int64
	CounterpartyName  *string
	CounterpartyPhone *string
}

// ParseBody extracts structured transaction fields from a raw SMS body.
// Every extraction is independent of the others. An empty body yields
// a Fields value with everything absent.
func ParseBody(body string) Fields {
	var f Fields
	if body == "" {
		return f
	}

	if m := txIDPattern.FindStringSubmatch(body); len(m) > 1 {
		txID := m[1]
		f.TxID = &txID
	}

	f.Category = categorize(body)

	if m := amountPattern.FindStringSubmatch(body); len(m) > 1 {
		f.Amount = parseAmount(m[1])
	}
	if m := newBalancePattern.FindStringSubmatch(body); len(m) > 1 {
		f.NewBalance = parseAmount(m[1])
	}
	if m := feePattern.FindStringSubmatch(body); len(m) > 1 {
		f.Fee = parseAmount(m[1])
	}

	return f
}

func categorize(body string) *Category {
	low := strings.ToLower(body)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(low, kw) {
				c := rule.category
				return &c
			}
		}
	}
	return nil
}

// parseAmount strips thousands separators and parses the digit run.
// Values that do not fit in an int64 are treated as absent.
func parseAmount(raw string) *int64 {
	clean := strings.ReplaceAll(raw, ",", "")
	if clean == "" {
		return nil
	}
	v, err := strconv.ParseInt(clean, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}
