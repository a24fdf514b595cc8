// Package parse wires the classifier, validator, bank dispatch and fallback
// extractor into the one-message pipeline. The pipeline is a pure function of
// its input: no I/O, no mutable state, safe to call concurrently.
package parse

import (
	"github.com/avishkarn/smsledger/internal/domain/message"
	"github.com/avishkarn/smsledger/internal/domain/parse/banks"
	"github.com/avishkarn/smsledger/internal/domain/parse/classify"
	"github.com/avishkarn/smsledger/internal/domain/parse/extract"
	"github.com/avishkarn/smsledger/internal/domain/parse/registry"
	"github.com/avishkarn/smsledger/internal/domain/transaction"
)

// Reject says why the pipeline produced no record. Rejection is the expected
// steady-state outcome for most real-world input, not an error.
type Reject int

const (
	RejectNone Reject = iota
	// RejectBadInput marks garbled input: empty body or missing timestamp.
	RejectBadInput
	// RejectNotFinancial means the message did not look like it came from a
	// financial institution.
	RejectNotFinancial
	// RejectPromotional means the message carried marketing language from an
	// unrecognized sender.
	RejectPromotional
	// RejectNotCompleted means the message described a request, reminder or
	// pending action rather than settled money movement.
	RejectNotCompleted
)

// String returns the metric label for the rejection reason.
func (r Reject) String() string {
	switch r {
	case RejectNone:
		return "accepted"
	case RejectBadInput:
		return "bad_input"
	case RejectNotFinancial:
		return "not_financial"
	case RejectPromotional:
		return "promotional"
	case RejectNotCompleted:
		return "not_completed"
	default:
		return "unknown"
	}
}

// Pipeline classifies one message and extracts a transaction record from it.
type Pipeline struct {
	dispatcher *banks.Dispatcher
}

// New returns a pipeline with the built-in bank strategies.
func New() *Pipeline {
	return &Pipeline{dispatcher: banks.NewDispatcher()}
}

// Parse runs the full pipeline on one message. It returns either exactly one
// record and RejectNone, or no record and the stage that vetoed. Parsing the
// same message twice yields structurally equal results.
func (p *Pipeline) Parse(msg message.RawMessage) (*transaction.Record, Reject) {
	if msg.Body == "" || msg.Timestamp.IsZero() {
		return nil, RejectBadInput
	}

	table := registry.Current()
	_, trustedSender := table.MatchInstitution(msg.Sender, msg.Address)

	if !classify.IsFinancial(table, msg.Body, msg.Sender, msg.Address) {
		if !trustedSender && classify.HasAmount(msg.Body) && classify.LooksPromotional(table, msg.Body) {
			return nil, RejectPromotional
		}
		return nil, RejectNotFinancial
	}

	if !classify.IsCompleted(table, msg.Body, trustedSender) {
		if !trustedSender && classify.LooksPromotional(table, msg.Body) {
			return nil, RejectPromotional
		}
		return nil, RejectNotCompleted
	}

	if rec, ok := p.dispatcher.Dispatch(table, msg.Body, msg.Sender, msg.Address, msg.Timestamp); ok {
		return rec, RejectNone
	}
	return extract.Extract(table, msg.Body, msg.Sender, msg.Address, msg.Timestamp), RejectNone
}
