// Package registry holds the institution table and keyword lexicon consulted
// by the classifier and the extractor dispatch. The table is immutable; updates
// replace the whole table atomically so concurrent per-message parses never see
// a partially edited lexicon.
package registry

import (
	"strings"
	"sync/atomic"
	"unicode"
)

// Institution maps normalized sender tokens to a bank or payment-provider identity.
type Institution struct {
	Name   string   `json:"name"`
	Tokens []string `json:"tokens"`
}

// Table is one immutable snapshot of the registry and keyword lists.
type Table struct {
	Institutions []Institution `json:"institutions"`
	// SenderWords are generic banking words accepted in a sender id even when
	// no institution token matches (BANK, UPI, PAY).
	SenderWords []string `json:"sender_words"`
	// BodyKeywords are banking words that qualify a message body once an
	// amount pattern is present.
	BodyKeywords []string `json:"body_keywords"`
	// Promotional words veto messages from unrecognized senders.
	Promotional []string `json:"promotional"`
	// Pending words mark a request or reminder that has not settled.
	Pending []string `json:"pending"`
}

var current atomic.Pointer[Table]

func init() {
	current.Store(Default())
}

// Current returns the active table. Callers must not mutate it.
func Current() *Table {
	return current.Load()
}

// Replace installs a new table atomically. In-flight parses keep the snapshot
// they already loaded.
func Replace(t *Table) {
	current.Store(t)
}

// Default returns the built-in table.
func Default() *Table {
	return &Table{
		Institutions: []Institution{
			{Name: "SBI", Tokens: []string{"SBIINB", "SBIBNK", "SBIUPI", "SBIPSG", "ATMSBI", "CBSSBI", "SBIDGT"}},
			{Name: "HDFC", Tokens: []string{"HDFCBK", "HDFCBN", "HDFC"}},
			{Name: "ICICI", Tokens: []string{"ICICIB", "ICICIT", "ICICI"}},
			{Name: "AXIS", Tokens: []string{"AXISBK", "AXISB"}},
			{Name: "KOTAK", Tokens: []string{"KOTAKB", "KOTAK"}},
			{Name: "PNB", Tokens: []string{"PNBSMS", "PNBBNK"}},
			{Name: "BOB", Tokens: []string{"BOBTXN", "BOBSMS"}},
			{Name: "CANARA", Tokens: []string{"CANBNK"}},
			{Name: "UNION", Tokens: []string{"UNIONB", "UBOI"}},
			{Name: "IDFC", Tokens: []string{"IDFCFB"}},
			{Name: "YES", Tokens: []string{"YESBNK"}},
			{Name: "INDUSIND", Tokens: []string{"INDUSB"}},
			{Name: "PAYTM", Tokens: []string{"PYTMPB", "PAYTM"}},
			{Name: "PHONEPE", Tokens: []string{"PHONPE"}},
			{Name: "GPAY", Tokens: []string{"GPAY"}},
		},
		SenderWords: []string{"BANK", "UPI", "PAY"},
		BodyKeywords: []string{
			"UPI", "CREDITED", "DEBITED", "ACCOUNT", "A/C", "TRANSACTION",
			"BALANCE", "PAID", "RECEIVED", "PURCHASE", "PAYMENT", "WITHDRAWN",
			"DEPOSITED", "TRANSFERRED", "NEFT", "IMPS", "RTGS", "ATM",
		},
		Promotional: []string{
			"OFFER", "RECHARGE", "PLAN", "PROMO", "DISCOUNT", "CASHBACK UPTO",
			"WIN ", "SALE", "SUBSCRIBE", "COUPON", "HTTP://", "HTTPS://",
			"WWW.", "BIT.LY", "CLICK", "DOWNLOAD", "INSTALL", "HURRY",
			"LIMITED TIME", "EXPIRING", "% OFF", "FLAT OFF", "T&C",
		},
		Pending: []string{
			"REQUEST", "REQUESTED", "COLLECT", "PENDING", "APPROVE",
			"AWAITING", "REMINDER", "WILL BE", "DUE ON", "IS DUE",
			"OVERDUE", "AUTOPAY", "SCHEDULED",
		},
	}
}

// Normalize uppercases s and strips every non-alphanumeric rune. Real sender
// ids carry routing prefixes and suffixes (AD-HDFCBK, VM-SBIINB-S), so token
// matching is done by substring containment over this form.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// MatchInstitution returns the institution whose token is contained in the
// normalized sender or address, if any.
func (t *Table) MatchInstitution(sender, address string) (string, bool) {
	normSender := Normalize(sender)
	normAddress := Normalize(address)
	if normSender == "" && normAddress == "" {
		return "", false
	}
	for _, inst := range t.Institutions {
		for _, token := range inst.Tokens {
			if token == "" {
				continue
			}
			if strings.Contains(normSender, token) || strings.Contains(normAddress, token) {
				return inst.Name, true
			}
		}
	}
	return "", false
}

// MatchSenderWord reports whether the normalized sender or address contains a
// generic banking word.
func (t *Table) MatchSenderWord(sender, address string) bool {
	normSender := Normalize(sender)
	normAddress := Normalize(address)
	for _, w := range t.SenderWords {
		if w == "" {
			continue
		}
		if strings.Contains(normSender, w) || strings.Contains(normAddress, w) {
			return true
		}
	}
	return false
}
