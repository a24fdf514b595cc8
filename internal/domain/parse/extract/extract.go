// Package extract implements the institution-agnostic fallback extractor. It
// runs only after the classifier and validator have accepted a message and no
// bank-specific strategy resolved it. Every field is best-effort: a pattern
// that does not match leaves the field absent, it never fails the extraction.
package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/avishkarn/smsledger/internal/domain/parse/registry"
	"github.com/avishkarn/smsledger/internal/domain/transaction"
)

// directionRule is one entry of the ordered first-match-wins rule list. The
// order below is authoritative; add regression tests before reordering, since
// several bodies contain more than one direction keyword.
type directionRule struct {
	name  string
	apply func(upper string) (transaction.Direction, bool)
}

func containsRule(name string, dir transaction.Direction, phrases ...string) directionRule {
	return directionRule{
		name: name,
		apply: func(upper string) (transaction.Direction, bool) {
			for _, p := range phrases {
				if strings.Contains(upper, p) {
					return dir, true
				}
			}
			return transaction.DirectionUnknown, false
		},
	}
}

var directionRules = []directionRule{
	containsRule("credited", transaction.DirectionCredit, "CREDITED", "CREDIT TO"),
	containsRule("received", transaction.DirectionCredit, "RECEIVED"),
	containsRule("deposited", transaction.DirectionCredit, "DEPOSITED"),
	containsRule("subsidy", transaction.DirectionCredit, "SUBSIDY"),
	containsRule("refund", transaction.DirectionCredit, "REFUND", "CASHBACK"),
	{
		name: "bare-credit",
		apply: func(upper string) (transaction.Direction, bool) {
			if strings.Contains(upper, "CREDIT") && !strings.Contains(upper, "DEBIT") {
				return transaction.DirectionCredit, true
			}
			return transaction.DirectionUnknown, false
		},
	},
	containsRule("debited", transaction.DirectionDebit, "DEBITED", "DEBIT FROM", "DEBIT OF"),
	containsRule("withdrawn", transaction.DirectionDebit, "WITHDRAWN"),
	containsRule("paid-to", transaction.DirectionDebit, "PAID TO", "PAID AT", "PAID FOR"),
	containsRule("purchase", transaction.DirectionDebit, "PURCHASE AT", "PURCHASE FROM", "SPENT"),
	{
		name: "bare-debit",
		apply: func(upper string) (transaction.Direction, bool) {
			if strings.Contains(upper, "DEBIT") && !strings.Contains(upper, "CREDIT") {
				return transaction.DirectionDebit, true
			}
			return transaction.DirectionUnknown, false
		},
	},
	{
		// Ambiguous verbs resolve on surrounding context: money sent "to you"
		// is incoming, otherwise outgoing.
		name: "ambiguous-verb",
		apply: func(upper string) (transaction.Direction, bool) {
			if !strings.Contains(upper, "SENT") && !strings.Contains(upper, "PAID") &&
				!strings.Contains(upper, "TRANSFER") {
				return transaction.DirectionUnknown, false
			}
			if strings.Contains(upper, "TO YOU") || strings.Contains(upper, "TO YOUR") ||
				strings.Contains(upper, "TRANSFER FROM") {
				return transaction.DirectionCredit, true
			}
			return transaction.DirectionDebit, true
		},
	},
}

// Direction infers the money movement direction from the body.
func Direction(body string) transaction.Direction {
	upper := strings.ToUpper(body)
	for _, rule := range directionRules {
		if dir, ok := rule.apply(upper); ok {
			return dir
		}
	}
	return transaction.DirectionUnknown
}

var (
	currencyAmountRe = regexp.MustCompile(`(?i)(?:rs\.?|inr|₹)\s*([\d,]+(?:\.\d+)?)`)
	verbAmountRe     = regexp.MustCompile(`(?i)(?:debited|credited|paid|received|sent|spent|withdrawn|transferred)\s+(?:by\s+|of\s+|with\s+|for\s+)?([\d,]*\d(?:\.\d+)?)`)

	handleRe    = regexp.MustCompile(`[A-Za-z0-9][A-Za-z0-9._-]*@[A-Za-z][A-Za-z0-9]+`)
	referenceRe = regexp.MustCompile(`(?i)(?:upi\s*ref(?:\s*no)?|ref(?:erence)?\s*no|txn\s*id|transaction\s*id|utr)\s*[:.\-]?\s*([A-Za-z0-9]+)`)
	balanceRe   = regexp.MustCompile(`(?i)(?:avl\.?\s*bal(?:ance)?|available\s*bal(?:ance)?|\bbal)\s*[:.\-]?\s*(?:rs\.?|inr|₹)?\s*([\d,]+(?:\.\d+)?)`)
	accountRe   = regexp.MustCompile(`(?i)(?:a/c|acct|account|card)\s*(?:no\.?)?\s*[x*]*(\d{3,6})`)

	paidMerchantRe  = regexp.MustCompile(`(?i:paid to|received from)\s+([A-Z][A-Za-z0-9&.']*(?:\s+[A-Z0-9][A-Za-z0-9&.']*)*)`)
	prepMerchantRe  = regexp.MustCompile(`(?i:\b(?:to|from|at))\s+([A-Z][A-Za-z&.']*(?:\s+[A-Z0-9][A-Za-z0-9&.']*)*)`)
	merchantTrailRe = regexp.MustCompile(`(?i)\s+(?:on|upi|rs|inr|via|ref|using|thru|through)\b.*$`)
)

// Amount returns the first amount in the body, thousands separators stripped.
// A currency-prefixed number wins over a verb-adjacent one ("debited by 40.0").
func Amount(body string) *string {
	if m := currencyAmountRe.FindStringSubmatch(body); m != nil {
		return cleanNumber(m[1])
	}
	if m := verbAmountRe.FindStringSubmatch(body); m != nil {
		return cleanNumber(m[1])
	}
	return nil
}

// Balance returns the number following a balance label, if any.
func Balance(body string) *string {
	if m := balanceRe.FindStringSubmatch(body); m != nil {
		return cleanNumber(m[1])
	}
	return nil
}

func cleanNumber(s string) *string {
	cleaned := strings.ReplaceAll(s, ",", "")
	if cleaned == "" {
		return nil
	}
	return &cleaned
}

// Handle returns the first payment-handle-shaped token. Tokens followed by a
// dotted domain are e-mail addresses, not payment handles, and are skipped.
func Handle(body string) *string {
	for _, loc := range handleRe.FindAllStringIndex(body, -1) {
		end := loc[1]
		if end+1 < len(body) && body[end] == '.' && isLetter(body[end+1]) {
			continue
		}
		h := body[loc[0]:loc[1]]
		return &h
	}
	return nil
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// Reference returns the alphanumeric token following a reference label.
func Reference(body string) *string {
	if m := referenceRe.FindStringSubmatch(body); m != nil && m[1] != "" {
		return &m[1]
	}
	return nil
}

// AccountSuffix returns the trailing digits of a masked account or card number.
func AccountSuffix(body string) *string {
	if m := accountRe.FindStringSubmatch(body); m != nil && m[1] != "" {
		return &m[1]
	}
	return nil
}

// Merchant returns a capitalized phrase following "paid to"/"received from",
// or a generic to/from/at preposition, truncated before trailing connectors.
// Account-mask phrases are not merchants and are skipped.
func Merchant(body string) *string {
	if m := firstMerchant(paidMerchantRe, body); m != nil {
		return m
	}
	return firstMerchant(prepMerchantRe, body)
}

func firstMerchant(re *regexp.Regexp, body string) *string {
	for _, m := range re.FindAllStringSubmatch(body, -1) {
		candidate := merchantTrailRe.ReplaceAllString(m[1], "")
		candidate = strings.Trim(candidate, " .,:;-")
		if len(candidate) < 2 {
			continue
		}
		upper := strings.ToUpper(candidate)
		if strings.HasPrefix(upper, "A/C") || strings.HasPrefix(upper, "AC ") ||
			strings.HasPrefix(upper, "ACCOUNT") || strings.HasPrefix(upper, "XX") ||
			strings.HasPrefix(upper, "YOUR") || upper == "UPI" || upper == "VPA" {
			continue
		}
		return &candidate
	}
	return nil
}

// Extract assembles a full record from the body. Invoked only once the
// pipeline has accepted the message and the bank-specific dispatch declined.
func Extract(t *registry.Table, body, sender, address string, ts time.Time) *transaction.Record {
	rec := &transaction.Record{
		Amount:          Amount(body),
		Direction:       Direction(body),
		Merchant:        Merchant(body),
		Counterparty:    Handle(body),
		ReferenceID:     Reference(body),
		Balance:         Balance(body),
		AccountSuffix:   AccountSuffix(body),
		TransactionDate: Date(body, ts),
		RawMessage:      body,
	}
	if inst, ok := t.MatchInstitution(sender, address); ok {
		rec.Institution = &inst
	}
	return rec
}
