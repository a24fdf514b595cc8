package banks

import (
	"regexp"
	"strings"
	"time"

	"github.com/avishkarn/smsledger/internal/domain/parse/extract"
	"github.com/avishkarn/smsledger/internal/domain/transaction"
)

// ICICI UPI alerts name the beneficiary after the semicolon:
//
//	ICICI Bank Acct XX123 debited for Rs 200.00 on 03-Dec-25; SHARMA STORES credited. UPI:433912345678
//	ICICI Bank Acct XX123 credited with Rs 750.00 on 04-Dec-25; from ANITA R. UPI:433987654321
var (
	iciciDebitRe  = regexp.MustCompile(`(?i)ICICI Bank Acc?t\s*[x*]*(\d{2,6})\s+(?:is\s+)?debited (?:for|with)\s+(?:rs\.?|inr)\s*([\d,]+(?:\.\d+)?)\s+on\s+\S+;\s*(.+?)\s+credited`)
	iciciCreditRe = regexp.MustCompile(`(?i)ICICI Bank Acc?t\s*[x*]*(\d{2,6})\s+(?:is\s+)?credited with\s+(?:rs\.?|inr)\s*([\d,]+(?:\.\d+)?)\s+on\s+\S+;\s*from\s+(.+?)[.;]`)
)

type iciciStrategy struct{}

func (iciciStrategy) Institution() string { return "ICICI" }

func (iciciStrategy) Parse(body string, ts time.Time) (*transaction.Record, bool) {
	direction := transaction.DirectionDebit
	m := iciciDebitRe.FindStringSubmatch(body)
	if m == nil {
		m = iciciCreditRe.FindStringSubmatch(body)
		direction = transaction.DirectionCredit
	}
	if m == nil {
		return nil, false
	}

	suffix := m[1]
	amount := strings.ReplaceAll(m[2], ",", "")
	merchant := strings.TrimSpace(m[3])
	rec := &transaction.Record{
		Amount:          &amount,
		Direction:       direction,
		ReferenceID:     extract.Reference(body),
		Balance:         extract.Balance(body),
		AccountSuffix:   &suffix,
		TransactionDate: extract.Date(body, ts),
		RawMessage:      body,
	}
	if merchant != "" {
		rec.Merchant = &merchant
	}
	return rec, true
}
