// Package filter evaluates structured row predicates.
//
// A Condition tests one field with one operator. A Composite combines
// conditions with AND or OR and counts evaluations and AND short-circuits.
// Advanced adds column-value sets, date ranges and numeric ranges on top of
// a Composite and caches results by a canonical key of the active filters.
//
// # Operators
//
//	eq            strict equality; numbers compare by value, never with strings
//	contains      case-insensitive substring of the stringified value
//	gt gte lt lte numeric comparison
//	between       numeric, inclusive [min, max]
//	in            exact membership in a list
//	date-between  inclusive [start, end] on parsed dates
//
// Numeric operators use NaN semantics: a row value that is missing or does
// not parse as a number fails the comparison. It is neither an error nor
// zero. Malformed operands (unknown operator, wrong arity) are rejected when
// the condition is built, so a scan never starts with a bad filter.
//
// # Pipeline
//
//	adv := filter.NewAdvanced(20)
//	res, err := adv.Apply(rows, filter.Spec{
//	    Conditions:    []filter.ConditionSpec{{Field: "code", Operator: "contains", Value: "A"}},
//	    NumericRanges: map[string]filter.NumericRange{"points": {Min: 100, Max: 150}},
//	})
//
// Stages run in a fixed order, each narrowing the previous one's output:
// composite conditions, column sets, date ranges, numeric ranges.
package filter
