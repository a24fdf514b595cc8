package banks

import (
	"regexp"
	"strings"
	"time"

	"github.com/avishkarn/smsledger/internal/domain/parse/extract"
	"github.com/avishkarn/smsledger/internal/domain/transaction"
)

// Axis card alerts carry the merchant after "at":
//
//	INR 450.00 spent on Axis Bank Card XX9012 at AMAZON RETAIL on 03-12-25. Avl Lmt: INR 55,000.00
var axisSpendRe = regexp.MustCompile(`(?i)(?:rs\.?|inr)\s*([\d,]+(?:\.\d+)?)\s+spent on (?:Axis Bank )?Card\s*[x*]*(\d{3,6})\s+at\s+(.+?)\s+on\s+`)

type axisStrategy struct{}

func (axisStrategy) Institution() string { return "AXIS" }

func (axisStrategy) Parse(body string, ts time.Time) (*transaction.Record, bool) {
	m := axisSpendRe.FindStringSubmatch(body)
	if m == nil {
		return nil, false
	}

	amount := strings.ReplaceAll(m[1], ",", "")
	suffix := m[2]
	merchant := strings.TrimSpace(m[3])
	rec := &transaction.Record{
		Amount:          &amount,
		Direction:       transaction.DirectionDebit,
		ReferenceID:     extract.Reference(body),
		AccountSuffix:   &suffix,
		TransactionDate: extract.Date(body, ts),
		RawMessage:      body,
	}
	if merchant != "" {
		rec.Merchant = &merchant
	}
	return rec, true
}
