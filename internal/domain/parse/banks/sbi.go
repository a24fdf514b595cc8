package banks

import (
	"regexp"
	"strings"
	"time"

	"github.com/avishkarn/smsledger/internal/domain/parse/extract"
	"github.com/avishkarn/smsledger/internal/domain/transaction"
)

// SBI account alerts follow a fixed shape:
//
//	Rs.1,250.00 credited to A/c XX1234 on 03Dec25 via NEFT. Avl Bal: Rs.5,430.10
//	Rs.500.00 debited from A/c XX1234 on 04Dec25 for UPI txn. Ref No 433912345678
var (
	sbiCreditRe = regexp.MustCompile(`(?i)(?:rs\.?|inr)\s*([\d,]+(?:\.\d+)?)\s+(?:is\s+)?credited to (?:your\s+)?a/c\s*(?:no\.?\s*)?[x*]*(\d{3,6})\s+on\s+`)
	sbiDebitRe  = regexp.MustCompile(`(?i)(?:rs\.?|inr)\s*([\d,]+(?:\.\d+)?)\s+(?:is\s+)?debited from (?:your\s+)?a/c\s*(?:no\.?\s*)?[x*]*(\d{3,6})\s+on\s+`)
)

type sbiStrategy struct{}

func (sbiStrategy) Institution() string { return "SBI" }

func (sbiStrategy) Parse(body string, ts time.Time) (*transaction.Record, bool) {
	direction := transaction.DirectionCredit
	m := sbiCreditRe.FindStringSubmatch(body)
	if m == nil {
		m = sbiDebitRe.FindStringSubmatch(body)
		direction = transaction.DirectionDebit
	}
	if m == nil {
		return nil, false
	}

	date := extract.Date(body, ts)
	if date.Equal(ts) && !bodyHasExplicitDate(body) {
		// Template requires an in-body date; anything else is not this shape.
		return nil, false
	}

	amount := strings.ReplaceAll(m[1], ",", "")
	suffix := m[2]
	return &transaction.Record{
		Amount:          &amount,
		Direction:       direction,
		Counterparty:    extract.Handle(body),
		ReferenceID:     extract.Reference(body),
		Balance:         extract.Balance(body),
		AccountSuffix:   &suffix,
		TransactionDate: date,
		RawMessage:      body,
	}, true
}

var explicitDateRe = regexp.MustCompile(`(?i)\b(?:on|dated)\s+(?:date\s+)?\d{1,2}(?:[-/][A-Za-z0-9]{1,4}[-/]\d{2,4}|\s*[A-Za-z]{3}\s*\d{2,4})\b`)

func bodyHasExplicitDate(body string) bool {
	return explicitDateRe.MatchString(body)
}
