// Package classify decides whether a message comes from a financial
// institution and whether it describes a completed transaction. All checks are
// keyword and pattern heuristics over an immutable registry table; there is no
// language understanding beyond that.
package classify

import (
	"regexp"
	"strings"

	"github.com/avishkarn/smsledger/internal/domain/parse/registry"
)

// Amount patterns shared by the classifier and the completed-transaction
// validator: a currency marker followed by a number, or a transaction verb
// immediately followed by a number.
var (
	currencyAmountRe = regexp.MustCompile(`(?i)(?:rs\.?|inr|₹)\s*[\d,]+(?:\.\d+)?`)
	verbAmountRe     = regexp.MustCompile(`(?i)(?:debited|credited|paid|received|sent|spent|withdrawn)\s+(?:by\s+|of\s+|with\s+|for\s+)?(?:rs\.?|inr|₹)?\s*[\d,]*\d(?:\.\d+)?`)
)

// HasAmount reports whether the body carries an amount pattern.
func HasAmount(body string) bool {
	return currencyAmountRe.MatchString(body) || verbAmountRe.MatchString(body)
}

// LooksPromotional reports whether the body matches the marketing lexicon.
// The caller decides whether the match vetoes: recognized institutions are
// allowed promotional language in legitimate alerts, unknown senders are not.
func LooksPromotional(t *registry.Table, body string) bool {
	upper := strings.ToUpper(body)
	for _, word := range t.Promotional {
		if strings.Contains(upper, word) {
			return true
		}
	}
	return false
}

// IsFinancial decides whether a message originates from a financial
// institution. Sender identity is the strongest and cheapest signal; body
// heuristics are the fallback for unrecognized or contact-named senders.
func IsFinancial(t *registry.Table, body, sender, address string) bool {
	if sender != "" || address != "" {
		if _, ok := t.MatchInstitution(sender, address); ok {
			return true
		}
		if t.MatchSenderWord(sender, address) {
			return true
		}
	}

	if !HasAmount(body) {
		return false
	}

	// Reaching here the sender is not a recognized institution, so a
	// promotional match vetoes regardless of amount or keywords.
	if LooksPromotional(t, body) {
		return false
	}

	upper := strings.ToUpper(body)
	for _, kw := range t.BodyKeywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

// Completed-action vocabulary. Pending vocabulary is checked first by
// IsCompleted since some messages contain both ("payment pending, last
// credited on ...") and the unsettled reading wins.
var completedPhrases = []string{
	"CREDITED", "DEBITED",
	"PAID TO", "PAID AT", "PAID FOR",
	"RECEIVED FROM",
	"TRANSFERRED TO", "TRANSFERRED FROM",
	"DEPOSITED", "WITHDRAWN",
	"CREDIT OF", "CREDIT TO", "DEBIT OF", "DEBIT FROM",
	"PURCHASE OF", "PURCHASE AT", "SPENT ON", "SPENT AT",
}

// IsCompleted distinguishes settled transactions from requests, reminders and
// pending-approval notices. trustedSender is true when the sender matched an
// institution token; it exempts the message from the promotional veto.
func IsCompleted(t *registry.Table, body string, trustedSender bool) bool {
	if !HasAmount(body) {
		return false
	}

	upper := strings.ToUpper(body)
	for _, word := range t.Pending {
		if strings.Contains(upper, word) {
			return false
		}
	}

	completed := false
	for _, phrase := range completedPhrases {
		if strings.Contains(upper, phrase) {
			completed = true
			break
		}
	}
	// Government subsidy disbursements read as completed credits even without
	// the standard vocabulary.
	if !completed && strings.Contains(upper, "SUBSIDY") && strings.Contains(upper, "SENT") {
		completed = true
	}
	if !completed {
		return false
	}

	// Second-chance veto: a body can pass on a banking keyword and still be
	// marketing copy.
	if !trustedSender && LooksPromotional(t, body) {
		return false
	}
	return true
}
