// Package transaction defines the structured record produced by the parsing pipeline.
package transaction

import "time"

// Direction indicates which way money moved.
type Direction int

const (
	// DirectionUnknown is a valid terminal outcome, not an error: the message
	// described a settled transaction but its direction could not be inferred.
	DirectionUnknown Direction = iota
	DirectionCredit
	DirectionDebit
)

// String returns the lowercase wire name of the direction.
func (d Direction) String() string {
	switch d {
	case DirectionCredit:
		return "credit"
	case DirectionDebit:
		return "debit"
	default:
		return "unknown"
	}
}

// ParseDirection converts a wire name back to a Direction.
func ParseDirection(s string) Direction {
	switch s {
	case "credit":
		return DirectionCredit
	case "debit":
		return DirectionDebit
	default:
		return DirectionUnknown
	}
}

// Record is one extracted transaction. Every field except Direction,
// TransactionDate and RawMessage is optional; nil means "not determinable",
// never an empty placeholder. A Record is constructed once by an extractor and
// not mutated afterwards.
type Record struct {
	// Amount and Balance are decimal strings with thousands separators
	// stripped, e.g. "1250.00".
	Amount    *string
	Direction Direction
	Merchant  *string
	// Counterparty is a payment-handle identifier (local-part@provider).
	Counterparty  *string
	ReferenceID   *string
	Balance       *string
	Institution   *string
	AccountSuffix *string
	// TransactionDate is the in-body date when one was found, otherwise the
	// message timestamp.
	TransactionDate time.Time
	// RawMessage always equals the input body, retained verbatim for audit.
	RawMessage string
}

// Equal reports whether two records are structurally identical.
func (r *Record) Equal(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}
	return eqStr(r.Amount, other.Amount) &&
		r.Direction == other.Direction &&
		eqStr(r.Merchant, other.Merchant) &&
		eqStr(r.Counterparty, other.Counterparty) &&
		eqStr(r.ReferenceID, other.ReferenceID) &&
		eqStr(r.Balance, other.Balance) &&
		eqStr(r.Institution, other.Institution) &&
		eqStr(r.AccountSuffix, other.AccountSuffix) &&
		r.TransactionDate.Equal(other.TransactionDate) &&
		r.RawMessage == other.RawMessage
}

func eqStr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
