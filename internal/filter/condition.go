package filter

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/tablesearch-mcp/pkg/types"
)

// Common errors. All of them are raised while a filter is constructed,
// never while rows are evaluated.
var (
	ErrUnknownOperator = errors.New("unknown filter operator")
	ErrUnknownLogic    = errors.New("unknown filter logic")
	ErrInvalidArity    = errors.New("operator expects a [min, max] pair")
	ErrInvalidValue    = errors.New("invalid filter value")
	ErrInvalidRange    = errors.New("range start is after range end")
	ErrEmptyField      = errors.New("filter field cannot be empty")
)

// Operator is the closed set of condition operators
type Operator int

const (
	OpEq Operator = iota + 1
	OpContains
	OpGt
	OpGte
	OpLt
	OpLte
	OpBetween
	OpIn
	OpDateBetween
)

var operatorNames = [...]string{
	OpEq:          "eq",
	OpContains:    "contains",
	OpGt:          "gt",
	OpGte:         "gte",
	OpLt:          "lt",
	OpLte:         "lte",
	OpBetween:     "between",
	OpIn:          "in",
	OpDateBetween: "date-between",
}

// Operators lists every operator in declaration order
func Operators() []Operator {
	return []Operator{OpEq, OpContains, OpGt, OpGte, OpLt, OpLte, OpBetween, OpIn, OpDateBetween}
}

// String returns the wire name of the operator
func (op Operator) String() string {
	if op.Valid() {
		return operatorNames[op]
	}
	return fmt.Sprintf("Operator(%d)", int(op))
}

// Valid reports whether op is a known operator
func (op Operator) Valid() bool {
	return op >= OpEq && op <= OpDateBetween
}

// ParseOperator resolves an operator name. Names are case-insensitive and
// "date_between" is accepted as an alias of "date-between".
func ParseOperator(name string) (Operator, error) {
	norm := strings.ToLower(strings.TrimSpace(name))
	if norm == "date_between" {
		norm = "date-between"
	}
	for _, op := range Operators() {
		if operatorNames[op] == norm {
			return op, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOperator, name)
}

// Condition is a single-field row predicate. Operands are parsed once at
// construction; Matches is read-only and safe for concurrent use.
//
// Numeric operators (gt, gte, lt, lte, between) compare with NaN semantics:
// a missing or non-numeric row value, or a non-numeric operand, never
// matches. It is not an error and is not treated as zero, so rows with gaps
// in numeric columns drop out of numeric filters instead of failing them.
type Condition struct {
	Field string
	Op    Operator
	Value any

	num    float64   // gt, gte, lt, lte
	lo, hi float64   // between
	from   time.Time // date-between
	to     time.Time
	set    []any  // in
	needle string // contains, case folded
}

// NewCondition validates the operand shape for op and builds a condition
func NewCondition(field string, op Operator, value any) (*Condition, error) {
	if strings.TrimSpace(field) == "" {
		return nil, ErrEmptyField
	}

	c := &Condition{Field: field, Op: op, Value: value}

	switch op {
	case OpEq:
		if _, isList := toList(value); isList {
			return nil, fmt.Errorf("%w: eq expects a scalar for %s", ErrInvalidValue, field)
		}
	case OpContains:
		c.needle = strings.ToLower(types.FormatValue(value))
	case OpGt, OpGte, OpLt, OpLte:
		c.num = types.ToNumber(value)
	case OpBetween:
		pair, err := toPair(op, field, value)
		if err != nil {
			return nil, err
		}
		c.lo, c.hi = types.ToNumber(pair[0]), types.ToNumber(pair[1])
	case OpIn:
		list, isList := toList(value)
		if !isList {
			return nil, fmt.Errorf("%w: in expects a list for %s", ErrInvalidValue, field)
		}
		c.set = list
	case OpDateBetween:
		pair, err := toPair(op, field, value)
		if err != nil {
			return nil, err
		}
		from, ok := types.ToTime(pair[0])
		if !ok {
			return nil, fmt.Errorf("%w: %v is not a date", ErrInvalidValue, pair[0])
		}
		to, ok := types.ToTime(pair[1])
		if !ok {
			return nil, fmt.Errorf("%w: %v is not a date", ErrInvalidValue, pair[1])
		}
		c.from, c.to = from, to
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownOperator, op)
	}

	return c, nil
}

// ParseCondition is NewCondition with the operator given by name
func ParseCondition(field, op string, value any) (*Condition, error) {
	parsed, err := ParseOperator(op)
	if err != nil {
		return nil, err
	}
	return NewCondition(field, parsed, value)
}

// Matches evaluates the condition against one row
func (c *Condition) Matches(row types.Row) bool {
	v := row[c.Field]

	switch c.Op {
	case OpEq:
		return types.ValuesEqual(v, c.Value)
	case OpContains:
		return strings.Contains(strings.ToLower(types.FormatValue(v)), c.needle)
	case OpGt:
		return types.ToNumber(v) > c.num
	case OpGte:
		return types.ToNumber(v) >= c.num
	case OpLt:
		return types.ToNumber(v) < c.num
	case OpLte:
		return types.ToNumber(v) <= c.num
	case OpBetween:
		n := types.ToNumber(v)
		return n >= c.lo && n <= c.hi
	case OpIn:
		for _, allowed := range c.set {
			if types.ValuesEqual(v, allowed) {
				return true
			}
		}
		return false
	case OpDateBetween:
		t, ok := types.ToTime(v)
		return ok && !t.Before(c.from) && !t.After(c.to)
	}

	// Unreachable for conditions built by NewCondition
	return false
}

// Key returns the canonical field:operator:value form of the condition
func (c *Condition) Key() string {
	return keyField(c.Field) + ":" + c.Op.String() + ":" + keyOperand(c.Value)
}

// String implements fmt.Stringer
func (c *Condition) String() string {
	return c.Key()
}

func toPair(op Operator, field string, value any) ([]any, error) {
	list, isList := toList(value)
	if !isList || len(list) != 2 {
		return nil, fmt.Errorf("%w: %s on %s got %v", ErrInvalidArity, op, field, value)
	}
	return list, nil
}

// toList flattens any slice or array into []any
func toList(value any) ([]any, bool) {
	if list, ok := value.([]any); ok {
		return list, true
	}

	rv := reflect.ValueOf(value)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	// Byte slices are scalar blobs, not lists
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}

	list := make([]any, rv.Len())
	for i := range list {
		list[i] = rv.Index(i).Interface()
	}
	return list, true
}

// keyFieldEscaper escapes the characters that delimit the parts of a key
var keyFieldEscaper = strings.NewReplacer(`\`, `\\`, `:`, `\:`, `|`, `\|`, `,`, `\,`)

func keyField(field string) string {
	return keyFieldEscaper.Replace(field)
}

// keyOperand renders a filter operand for canonical keys. Strings are
// quoted and lists bracketed, so "100" and 100 or ["a,b"] and ["a","b"]
// never share a key. Numbers render alike whatever their Go type, matching
// types.ValuesEqual.
func keyOperand(value any) string {
	if list, ok := toList(value); ok {
		parts := make([]string, len(list))
		for i, item := range list {
			parts[i] = keyOperand(item)
		}
		return "[" + strings.Join(parts, ",") + "]"
	}

	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return "@" + v.UTC().Format(time.RFC3339Nano)
	}
	if types.IsNumeric(value) {
		return formatFloat(types.ToNumber(value))
	}
	return fmt.Sprintf("%T(%s)", value, strconv.Quote(types.FormatValue(value)))
}
