// Package banks holds per-institution extraction strategies. A strategy
// understands its institution's documented message templates precisely and
// either fully resolves a record or abstains; it never returns a best-effort
// half-record, so the generic fallback is not shadowed by a confidently wrong
// partial result.
package banks

import (
	"time"

	"github.com/avishkarn/smsledger/internal/domain/parse/registry"
	"github.com/avishkarn/smsledger/internal/domain/transaction"
)

// Strategy is one institution's template parser. Parse returns (record, true)
// only when the body matched a known template end to end; (nil, false) means
// the strategy declines and the fallback extractor takes over.
type Strategy interface {
	Institution() string
	Parse(body string, ts time.Time) (*transaction.Record, bool)
}

// Dispatcher selects a strategy by the institution detected from the sender.
type Dispatcher struct {
	strategies map[string]Strategy
}

// NewDispatcher returns a dispatcher with the built-in strategies registered.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{strategies: make(map[string]Strategy)}
	d.Register(sbiStrategy{})
	d.Register(hdfcStrategy{})
	d.Register(iciciStrategy{})
	d.Register(axisStrategy{})
	return d
}

// Register adds or replaces the strategy for its institution.
func (d *Dispatcher) Register(s Strategy) {
	d.strategies[s.Institution()] = s
}

// Dispatch matches the sender against the institution table and runs that
// institution's strategy. It returns (nil, false) when no institution matched,
// no strategy is registered for it, or the strategy declined.
func (d *Dispatcher) Dispatch(t *registry.Table, body, sender, address string, ts time.Time) (*transaction.Record, bool) {
	inst, ok := t.MatchInstitution(sender, address)
	if !ok {
		return nil, false
	}
	strategy, ok := d.strategies[inst]
	if !ok {
		return nil, false
	}
	rec, ok := strategy.Parse(body, ts)
	if !ok {
		return nil, false
	}
	rec.Institution = &inst
	return rec, true
}
