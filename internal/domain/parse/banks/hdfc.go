package banks

import (
	"regexp"
	"strings"
	"time"

	"github.com/avishkarn/smsledger/internal/domain/parse/extract"
	"github.com/avishkarn/smsledger/internal/domain/transaction"
)

// HDFC UPI alerts name the counterparty VPA inline:
//
//	Rs.249.00 debited from a/c **5678 on 03-12-25 to VPA grocermart@okhdfcbank (UPI Ref No 433912341234)
//	Rs.1,000.00 credited to a/c **5678 on 04-12-25 by VPA rahul.s@okaxis (UPI Ref No 433998761234)
var (
	hdfcDebitRe  = regexp.MustCompile(`(?i)(?:rs\.?|inr)\s*([\d,]+(?:\.\d+)?)\s+debited from a/c\s*[x*]*(\d{3,6})\s+on\s+\S+\s+to\s+VPA\s+(\S+?)(?:[\s(]|$)`)
	hdfcCreditRe = regexp.MustCompile(`(?i)(?:rs\.?|inr)\s*([\d,]+(?:\.\d+)?)\s+credited to a/c\s*[x*]*(\d{3,6})\s+on\s+\S+\s+by\s+VPA\s+(\S+?)(?:[\s(]|$)`)
)

type hdfcStrategy struct{}

func (hdfcStrategy) Institution() string { return "HDFC" }

func (hdfcStrategy) Parse(body string, ts time.Time) (*transaction.Record, bool) {
	direction := transaction.DirectionDebit
	m := hdfcDebitRe.FindStringSubmatch(body)
	if m == nil {
		m = hdfcCreditRe.FindStringSubmatch(body)
		direction = transaction.DirectionCredit
	}
	if m == nil {
		return nil, false
	}

	amount := strings.ReplaceAll(m[1], ",", "")
	suffix := m[2]
	handle := strings.Trim(m[3], ".,;:")
	return &transaction.Record{
		Amount:          &amount,
		Direction:       direction,
		Counterparty:    &handle,
		ReferenceID:     extract.Reference(body),
		Balance:         extract.Balance(body),
		AccountSuffix:   &suffix,
		TransactionDate: extract.Date(body, ts),
		RawMessage:      body,
	}, true
}
