package alert

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"
)

const dateLayout = "2006-01-02"

// Evaluator decides which rules fire for a recipient.
//
// It is cheap to construct; the dispatch driver builds one per run around
// that run's store session.
type Evaluator struct {
	src Source
	th  Thresholds
	loc *time.Location
}

// NewEvaluator returns an evaluator reading from src. loc is the timezone used
// for the sales-summary day boundary and rendered dates (nil means time.Local).
func NewEvaluator(src Source, th Thresholds, loc *time.Location) *Evaluator {
	if loc == nil {
		loc = time.Local
	}
	return &Evaluator{src: src, th: th.withDefaults(), loc: loc}
}

func (e *Evaluator) Thresholds() Thresholds { return e.th }

// EvaluateAll evaluates every rule the recipient opted into, in Order.
// now must be captured once by the caller and is shared by all rules.
//
// The first data error aborts the evaluation; no partial result is returned.
func (e *Evaluator) EvaluateAll(ctx context.Context, prefs Preferences, now time.Time) ([]Result, error) {
	out := make([]Result, 0, len(Order))
	for _, r := range Order {
		if !r.Enabled(prefs) {
			continue
		}
		res, err := e.Evaluate(ctx, r, prefs, now)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// Evaluate runs a single rule. A rule whose preference is disabled never fires.
func (e *Evaluator) Evaluate(ctx context.Context, rule Rule, prefs Preferences, now time.Time) (Result, error) {
	res := Result{Rule: rule, Rank: rank(rule)}
	if !rule.Enabled(prefs) {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	var err error
	switch rule {
	case RuleLowStock:
		res.Fragment, res.Fired, err = e.lowStock(ctx)
	case RuleExpiry:
		res.Fragment, res.Fired, err = e.expiry(ctx, now)
	case RuleSalesSummary:
		res.Fragment, res.Fired, err = e.salesSummary(ctx, now)
	default:
		return res, fmt.Errorf("unknown rule %d", int(rule))
	}
	if err != nil {
		return Result{Rule: rule, Rank: res.Rank}, fmt.Errorf("%s rule: %w", rule, err)
	}
	return res, nil
}

func (e *Evaluator) lowStock(ctx context.Context) (Fragment, bool, error) {
	items, err := e.src.LowStockItems(ctx, e.th.LowStockQuantity, e.th.ItemLimit)
	if err != nil {
		return Fragment{}, false, err
	}
	items = filterItems(items, func(it InventoryItem) bool { return it.Quantity < e.th.LowStockQuantity })
	if len(items) == 0 {
		return Fragment{}, false, nil
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Quantity != items[j].Quantity {
			return items[i].Quantity < items[j].Quantity
		}
		return items[i].Name < items[j].Name
	})
	if len(items) > e.th.ItemLimit {
		items = items[:e.th.ItemLimit]
	}

	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, it.Name+": only "+strconv.Itoa(it.Quantity)+" left")
	}
	return Fragment{Title: "Low Stock Alert", Lines: lines}, true, nil
}

func (e *Evaluator) expiry(ctx context.Context, now time.Time) (Fragment, bool, error) {
	to := now.Add(e.th.ExpiryWindow)
	items, err := e.src.ExpiringItems(ctx, now, to, e.th.ItemLimit)
	if err != nil {
		return Fragment{}, false, err
	}
	items = filterItems(items, func(it InventoryItem) bool {
		return !it.ExpiryDate.IsZero() && it.ExpiryDate.After(now) && it.ExpiryDate.Before(to)
	})
	if len(items) == 0 {
		return Fragment{}, false, nil
	}
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].ExpiryDate.Equal(items[j].ExpiryDate) {
			return items[i].ExpiryDate.Before(items[j].ExpiryDate)
		}
		return items[i].Name < items[j].Name
	})
	if len(items) > e.th.ItemLimit {
		items = items[:e.th.ItemLimit]
	}

	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, it.Name+": expires on "+it.ExpiryDate.In(e.loc).Format(dateLayout))
	}
	return Fragment{Title: "Expiry Alert", Lines: lines}, true, nil
}

func (e *Evaluator) salesSummary(ctx context.Context, now time.Time) (Fragment, bool, error) {
	n, err := e.src.CountTransactionsSince(ctx, StartOfDay(now, e.loc))
	if err != nil {
		return Fragment{}, false, err
	}
	return Fragment{
		Title: "Daily Sales Summary",
		Lines: []string{"Total transactions today: " + strconv.Itoa(n)},
	}, true, nil
}

// StartOfDay returns local midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// Fired filters results down to those that fired, preserving order.
func Fired(results []Result) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Fired {
			out = append(out, r)
		}
	}
	return out
}

// filterItems copies the active items matching keep; the source slice is left untouched.
func filterItems(items []InventoryItem, keep func(InventoryItem) bool) []InventoryItem {
	out := make([]InventoryItem, 0, len(items))
	for _, it := range items {
		if it.Active && keep(it) {
			out = append(out, it)
		}
	}
	return out
}

func rank(r Rule) int {
	for i, o := range Order {
		if o == r {
			return i + 1
		}
	}
	return len(Order) + 1
}
