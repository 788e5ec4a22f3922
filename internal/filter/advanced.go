package filter

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dshills/tablesearch-mcp/internal/cache"
	"github.com/dshills/tablesearch-mcp/pkg/types"
)

// keySeparator joins the parts of a canonical filter key
const keySeparator = "|"

// DateRange is an inclusive [Start, End] window
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// NumericRange is an inclusive [Min, Max] interval
type NumericRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether n falls inside the range. NaN never does.
func (r NumericRange) Contains(n float64) bool {
	return n >= r.Min && n <= r.Max
}

// ConditionSpec is the declarative form of a Condition
type ConditionSpec struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// DateRangeSpec is the declarative form of a DateRange. Bounds may be
// anything types.ToTime understands.
type DateRangeSpec struct {
	Start any `json:"start"`
	End   any `json:"end"`
}

// Spec declares a complete set of active filters
type Spec struct {
	Logic         string                   `json:"logic,omitempty"`
	Conditions    []ConditionSpec          `json:"conditions,omitempty"`
	ColumnFilters map[string][]any         `json:"column_filters,omitempty"`
	DateRanges    map[string]DateRangeSpec `json:"date_ranges,omitempty"`
	NumericRanges map[string]NumericRange  `json:"numeric_ranges,omitempty"`
}

// Result is the outcome of one Filter call
type Result struct {
	Indices []int
	Elapsed time.Duration
	Cached  bool
	Key     string
}

// AdvancedStats reports the state of an Advanced filter
type AdvancedStats struct {
	Conditions    int
	ColumnFilters int
	DateRanges    int
	NumericRanges int
	Composite     CompositeStats
	Cache         cache.Stats
}

// Advanced layers column-value sets, date ranges and numeric ranges on top
// of a Composite and caches results under a canonical key of the active
// filters. It owns all of that state; every method is serialised.
type Advanced struct {
	mu        sync.Mutex
	composite *Composite
	columns   map[string][]any
	dates     map[string]DateRange
	numerics  map[string]NumericRange
	cache     *cache.FilterCache[[]int]
}

// NewAdvanced creates an empty AND filter whose result cache holds cacheSize
// entries (cache.DefaultSize when <= 0)
func NewAdvanced(cacheSize int) *Advanced {
	return &Advanced{
		composite: NewComposite(LogicAnd),
		columns:   make(map[string][]any),
		dates:     make(map[string]DateRange),
		numerics:  make(map[string]NumericRange),
		cache:     cache.NewFilterCache[[]int](cacheSize),
	}
}

// SetLogic changes how registered conditions are combined
func (a *Advanced) SetLogic(logic Logic) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.composite.reset(logic, a.composite.conditions)
}

// AddCondition appends a condition to the composite stage
func (a *Advanced) AddCondition(cond *Condition) {
	if cond == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.composite.Add(cond)
}

// ClearConditions drops every composite condition, keeping the logic
func (a *Advanced) ClearConditions() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.composite.reset(a.composite.logic, nil)
}

// SetColumnFilter restricts field to the allowed values. An empty list
// removes the filter.
func (a *Advanced) SetColumnFilter(field string, values []any) error {
	if strings.TrimSpace(field) == "" {
		return ErrEmptyField
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if len(values) == 0 {
		delete(a.columns, field)
		return nil
	}
	a.columns[field] = append([]any(nil), values...)
	return nil
}

// RemoveColumnFilter drops the column filter on field
func (a *Advanced) RemoveColumnFilter(field string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.columns, field)
}

// SetDateRange restricts field to the inclusive window [start, end]
func (a *Advanced) SetDateRange(field string, start, end any) error {
	r, err := newDateRange(field, start, end)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.dates[field] = r
	return nil
}

// RemoveDateRange drops the date range on field
func (a *Advanced) RemoveDateRange(field string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.dates, field)
}

// SetNumericRange restricts field to the inclusive interval [min, max]
func (a *Advanced) SetNumericRange(field string, lo, hi float64) error {
	r, err := newNumericRange(field, NumericRange{Min: lo, Max: hi})
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.numerics[field] = r
	return nil
}

// RemoveNumericRange drops the numeric range on field
func (a *Advanced) RemoveNumericRange(field string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.numerics, field)
}

// Clear removes every active filter and resets the logic to AND. Cached
// results and counters are kept.
func (a *Advanced) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clearLocked()
}

func (a *Advanced) clearLocked() {
	a.composite.reset(LogicAnd, nil)
	clear(a.columns)
	clear(a.dates)
	clear(a.numerics)
}

// Load replaces the active filters with spec. The whole spec is validated
// first; on error the current filters are left untouched.
func (a *Advanced) Load(spec Spec) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loadLocked(spec)
}

func (a *Advanced) loadLocked(spec Spec) error {
	logic, err := ParseLogic(spec.Logic)
	if err != nil {
		return err
	}

	conditions := make([]*Condition, 0, len(spec.Conditions))
	for i, cs := range spec.Conditions {
		cond, err := ParseCondition(cs.Field, cs.Operator, cs.Value)
		if err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
		conditions = append(conditions, cond)
	}

	columns := make(map[string][]any, len(spec.ColumnFilters))
	for field, values := range spec.ColumnFilters {
		if strings.TrimSpace(field) == "" {
			return ErrEmptyField
		}
		if len(values) > 0 {
			columns[field] = append([]any(nil), values...)
		}
	}

	dates := make(map[string]DateRange, len(spec.DateRanges))
	for field, ds := range spec.DateRanges {
		r, err := newDateRange(field, ds.Start, ds.End)
		if err != nil {
			return err
		}
		dates[field] = r
	}

	numerics := make(map[string]NumericRange, len(spec.NumericRanges))
	for field, ns := range spec.NumericRanges {
		r, err := newNumericRange(field, ns)
		if err != nil {
			return err
		}
		numerics[field] = r
	}

	a.composite.reset(logic, conditions)
	a.columns = columns
	a.dates = dates
	a.numerics = numerics
	return nil
}

// CanonicalKey returns the cache key of the active filters
func (a *Advanced) CanonicalKey() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.keyLocked()
}

// keyLocked serialises the active filters. Every group is sorted so the
// key depends only on the active set, not on how it was assembled.
func (a *Advanced) keyLocked() string {
	var parts []string

	if a.composite.Len() > 0 {
		conds := make([]string, 0, a.composite.Len())
		for _, c := range a.composite.conditions {
			conds = append(conds, c.Key())
		}
		sort.Strings(conds)
		parts = append(parts, "logic:"+a.composite.logic.String())
		parts = append(parts, conds...)
	}

	for _, field := range sortedKeys(a.columns) {
		values := make([]string, len(a.columns[field]))
		for i, v := range a.columns[field] {
			values[i] = keyOperand(v)
		}
		sort.Strings(values)
		parts = append(parts, keyField(field)+":in:["+strings.Join(values, ",")+"]")
	}

	for _, field := range sortedKeys(a.dates) {
		r := a.dates[field]
		parts = append(parts, fmt.Sprintf("%s:date-between:%d-%d", keyField(field), r.Start.UnixMilli(), r.End.UnixMilli()))
	}

	for _, field := range sortedKeys(a.numerics) {
		r := a.numerics[field]
		parts = append(parts, keyField(field)+":numeric:"+formatFloat(r.Min)+"-"+formatFloat(r.Max))
	}

	return strings.Join(parts, keySeparator)
}

// Filter returns the indices of rows passing every active filter, in row
// order. Stages run as separate narrowing passes: composite conditions,
// then column sets, then date ranges, then numeric ranges. A repeated key
// is served from the cache without scanning.
func (a *Advanced) Filter(rows []types.Row) Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.filterLocked(rows)
}

// Apply loads spec and filters rows as one step
func (a *Advanced) Apply(rows []types.Row, spec Spec) (Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.loadLocked(spec); err != nil {
		return Result{}, err
	}
	return a.filterLocked(rows), nil
}

func (a *Advanced) filterLocked(rows []types.Row) Result {
	start := time.Now()
	key := a.keyLocked()

	if cached, ok := a.cache.Get(key); ok {
		return Result{
			Indices: append([]int(nil), cached...),
			Elapsed: time.Since(start),
			Cached:  true,
			Key:     key,
		}
	}

	working := make([]int, len(rows))
	for i := range working {
		working[i] = i
	}

	if a.composite.Len() > 0 {
		working = narrow(working, rows, a.composite.Matches)
	}

	for _, field := range sortedKeys(a.columns) {
		allowed := a.columns[field]
		working = narrow(working, rows, func(row types.Row) bool {
			v := row[field]
			for _, want := range allowed {
				if types.ValuesEqual(v, want) {
					return true
				}
			}
			return false
		})
	}

	for _, field := range sortedKeys(a.dates) {
		r := a.dates[field]
		working = narrow(working, rows, func(row types.Row) bool {
			t, ok := types.ToTime(row[field])
			return ok && r.Contains(t)
		})
	}

	for _, field := range sortedKeys(a.numerics) {
		r := a.numerics[field]
		working = narrow(working, rows, func(row types.Row) bool {
			return r.Contains(types.ToNumber(row[field]))
		})
	}

	a.cache.Set(key, append([]int(nil), working...))

	return Result{
		Indices: working,
		Elapsed: time.Since(start),
		Key:     key,
	}
}

// Stats returns the active filter counts, evaluation counters and cache stats
func (a *Advanced) Stats() AdvancedStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AdvancedStats{
		Conditions:    a.composite.Len(),
		ColumnFilters: len(a.columns),
		DateRanges:    len(a.dates),
		NumericRanges: len(a.numerics),
		Composite:     a.composite.Stats(),
		Cache:         a.cache.Stats(),
	}
}

// InvalidateCache drops every cached result. Results are only valid for
// the rows they were computed on.
func (a *Advanced) InvalidateCache() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache.Clear()
}

// narrow keeps the indices whose rows satisfy keep, reusing the slice
func narrow(indices []int, rows []types.Row, keep func(types.Row) bool) []int {
	out := indices[:0]
	for _, i := range indices {
		if keep(rows[i]) {
			out = append(out, i)
		}
	}
	return out
}

func newDateRange(field string, start, end any) (DateRange, error) {
	if strings.TrimSpace(field) == "" {
		return DateRange{}, ErrEmptyField
	}
	from, ok := types.ToTime(start)
	if !ok {
		return DateRange{}, fmt.Errorf("%w: %s start %v is not a date", ErrInvalidValue, field, start)
	}
	to, ok := types.ToTime(end)
	if !ok {
		return DateRange{}, fmt.Errorf("%w: %s end %v is not a date", ErrInvalidValue, field, end)
	}
	if from.After(to) {
		return DateRange{}, fmt.Errorf("%w: %s", ErrInvalidRange, field)
	}
	return DateRange{Start: from, End: to}, nil
}

func newNumericRange(field string, r NumericRange) (NumericRange, error) {
	if strings.TrimSpace(field) == "" {
		return NumericRange{}, ErrEmptyField
	}
	if math.IsNaN(r.Min) || math.IsNaN(r.Max) {
		return NumericRange{}, fmt.Errorf("%w: %s range bound is NaN", ErrInvalidValue, field)
	}
	if r.Min > r.Max {
		return NumericRange{}, fmt.Errorf("%w: %s", ErrInvalidRange, field)
	}
	return r, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
