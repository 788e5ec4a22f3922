package filter

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/dshills/tablesearch-mcp/pkg/types"
)

// Logic combines the conditions of a Composite
type Logic int

const (
	LogicAnd Logic = iota
	LogicOr
)

// String returns "AND" or "OR"
func (l Logic) String() string {
	if l == LogicOr {
		return "OR"
	}
	return "AND"
}

// ParseLogic resolves "AND" / "OR" case-insensitively; empty means AND
func ParseLogic(name string) (Logic, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", "AND":
		return LogicAnd, nil
	case "OR":
		return LogicOr, nil
	}
	return LogicAnd, fmt.Errorf("%w: %q", ErrUnknownLogic, name)
}

// CompositeStats reports how often a Composite was evaluated and how often
// AND evaluation stopped early
type CompositeStats struct {
	Evaluations   int64
	ShortCircuits int64
}

// ShortCircuitRate returns shortCircuits / evaluations, or 0 before any evaluation
func (s CompositeStats) ShortCircuitRate() float64 {
	if s.Evaluations == 0 {
		return 0
	}
	return float64(s.ShortCircuits) / float64(s.Evaluations)
}

// Composite combines conditions with AND or OR logic, evaluated left to
// right in insertion order. Condition order changes the short-circuit count
// but never the result.
//
// Matches may be called concurrently; Add and reset may not run alongside it.
type Composite struct {
	logic         Logic
	conditions    []*Condition
	evaluations   atomic.Int64
	shortCircuits atomic.Int64
}

// NewComposite creates a composite filter with the given conditions
func NewComposite(logic Logic, conditions ...*Condition) *Composite {
	c := &Composite{logic: logic}
	c.conditions = append(c.conditions, conditions...)
	return c
}

// Logic returns the combining logic
func (c *Composite) Logic() Logic {
	return c.logic
}

// Add appends a condition
func (c *Composite) Add(cond *Condition) {
	c.conditions = append(c.conditions, cond)
}

// Len returns the number of conditions
func (c *Composite) Len() int {
	return len(c.conditions)
}

// Conditions returns a copy of the condition list
func (c *Composite) Conditions() []*Condition {
	out := make([]*Condition, len(c.conditions))
	copy(out, c.conditions)
	return out
}

// Matches evaluates the row. Every call counts as one evaluation. AND stops
// at the first failing condition and counts a short-circuit; OR stops at
// the first satisfied condition without counting one. With no conditions
// AND matches everything and OR matches nothing.
func (c *Composite) Matches(row types.Row) bool {
	c.evaluations.Add(1)

	if c.logic == LogicOr {
		for _, cond := range c.conditions {
			if cond.Matches(row) {
				return true
			}
		}
		return false
	}

	for _, cond := range c.conditions {
		if !cond.Matches(row) {
			c.shortCircuits.Add(1)
			return false
		}
	}
	return true
}

// Stats returns the evaluation counters
func (c *Composite) Stats() CompositeStats {
	return CompositeStats{
		Evaluations:   c.evaluations.Load(),
		ShortCircuits: c.shortCircuits.Load(),
	}
}

// ResetStats zeroes the evaluation counters
func (c *Composite) ResetStats() {
	c.evaluations.Store(0)
	c.shortCircuits.Store(0)
}

// reset swaps the logic and conditions, keeping the counters
func (c *Composite) reset(logic Logic, conditions []*Condition) {
	c.logic = logic
	c.conditions = conditions
}
