package alert

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"
)

// fakeSource answers queries from in-memory slices the same way the SQL
// stores do: active only, strict bounds, ordered, limited.
type fakeSource struct {
	items []InventoryItem
	txns  []time.Time

	errLow, errExp, errTx error
	calls                 []string
}

func (f *fakeSource) LowStockItems(_ context.Context, below, limit int) ([]InventoryItem, error) {
	f.calls = append(f.calls, "low")
	if f.errLow != nil {
		return nil, f.errLow
	}
	var out []InventoryItem
	for _, it := range f.items {
		if it.Active && it.Quantity < below {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Quantity < out[j].Quantity })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSource) ExpiringItems(_ context.Context, from, to time.Time, limit int) ([]InventoryItem, error) {
	f.calls = append(f.calls, "exp")
	if f.errExp != nil {
		return nil, f.errExp
	}
	var out []InventoryItem
	for _, it := range f.items {
		if it.Active && it.ExpiryDate.After(from) && it.ExpiryDate.Before(to) {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExpiryDate.Before(out[j].ExpiryDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSource) CountTransactionsSince(_ context.Context, since time.Time) (int, error) {
	f.calls = append(f.calls, "tx")
	if f.errTx != nil {
		return 0, f.errTx
	}
	n := 0
	for _, at := range f.txns {
		if !at.Before(since) {
			n++
		}
	}
	return n, nil
}

var allOn = Preferences{EmailAlertsEnabled: true, LowStockAlertsEnabled: true, ExpiryAlertsEnabled: true, SalesSummaryEnabled: true}

func fixedNow() time.Time {
	return time.Date(2025, time.March, 14, 9, 0, 0, 0, time.UTC)
}

func TestLowStockFiresAndCaps(t *testing.T) {
	t.Parallel()
	src := &fakeSource{items: []InventoryItem{
		{Name: "A", Quantity: 9, Active: true},
		{Name: "B", Quantity: 0, Active: true},
		{Name: "C", Quantity: 10, Active: true},
		{Name: "D", Quantity: 3, Active: false},
		{Name: "E", Quantity: 1, Active: true},
		{Name: "F", Quantity: 2, Active: true},
		{Name: "G", Quantity: 5, Active: true},
		{Name: "H", Quantity: 7, Active: true},
	}}
	ev := NewEvaluator(src, DefaultThresholds(), time.UTC)

	res, err := ev.Evaluate(context.Background(), RuleLowStock, allOn, fixedNow())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Fired {
		t.Fatal("expected low stock rule to fire")
	}
	want := []string{"B: only 0 left", "E: only 1 left", "F: only 2 left", "G: only 5 left", "H: only 7 left"}
	if strings.Join(res.Fragment.Lines, "|") != strings.Join(want, "|") {
		t.Fatalf("lines = %v, want %v", res.Fragment.Lines, want)
	}
	for _, l := range res.Fragment.Lines {
		if strings.HasPrefix(l, "C:") || strings.HasPrefix(l, "D:") {
			t.Fatalf("unexpected item listed: %s", l)
		}
	}
}

func TestLowStockSingleAndEmpty(t *testing.T) {
	t.Parallel()
	ev := NewEvaluator(&fakeSource{items: []InventoryItem{{Name: "X", Quantity: 3, Active: true}}}, DefaultThresholds(), time.UTC)
	res, err := ev.Evaluate(context.Background(), RuleLowStock, allOn, fixedNow())
	if err != nil || !res.Fired || len(res.Fragment.Lines) != 1 || res.Fragment.Lines[0] != "X: only 3 left" {
		t.Fatalf("single item: fired=%v lines=%v err=%v", res.Fired, res.Fragment.Lines, err)
	}

	ev = NewEvaluator(&fakeSource{items: []InventoryItem{{Name: "Y", Quantity: 50, Active: true}}}, DefaultThresholds(), time.UTC)
	res, err = ev.Evaluate(context.Background(), RuleLowStock, allOn, fixedNow())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Fired {
		t.Fatal("low stock must not fire on an empty match set")
	}
}

func TestCustomThresholds(t *testing.T) {
	t.Parallel()
	src := &fakeSource{items: []InventoryItem{
		{Name: "A", Quantity: 2, Active: true},
		{Name: "B", Quantity: 4, Active: true},
		{Name: "C", Quantity: 1, Active: true},
	}}
	ev := NewEvaluator(src, Thresholds{LowStockQuantity: 3, ItemLimit: 1}, time.UTC)
	res, err := ev.Evaluate(context.Background(), RuleLowStock, allOn, fixedNow())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(res.Fragment.Lines) != 1 || res.Fragment.Lines[0] != "C: only 1 left" {
		t.Fatalf("lines = %v", res.Fragment.Lines)
	}
	if ev.Thresholds().ExpiryWindow != DefaultExpiryWindow {
		t.Fatalf("zero expiry window should default, got %v", ev.Thresholds().ExpiryWindow)
	}
}

func TestExpiryWindowBounds(t *testing.T) {
	t.Parallel()
	now := fixedNow()
	day := 24 * time.Hour
	src := &fakeSource{items: []InventoryItem{
		{Name: "now", Quantity: 50, ExpiryDate: now, Active: true},
		{Name: "past", Quantity: 50, ExpiryDate: now.Add(-day), Active: true},
		{Name: "d29", Quantity: 50, ExpiryDate: now.Add(29 * day), Active: true},
		{Name: "d31", Quantity: 50, ExpiryDate: now.Add(31 * day), Active: true},
		{Name: "d30", Quantity: 50, ExpiryDate: now.Add(30 * day), Active: true},
		{Name: "inactive", Quantity: 50, ExpiryDate: now.Add(2 * day), Active: false},
		{Name: "noexpiry", Quantity: 50, Active: true},
	}}
	ev := NewEvaluator(src, DefaultThresholds(), time.UTC)
	res, err := ev.Evaluate(context.Background(), RuleExpiry, allOn, now)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Fired {
		t.Fatal("expected expiry rule to fire")
	}
	if len(res.Fragment.Lines) != 1 {
		t.Fatalf("lines = %v, want only d29", res.Fragment.Lines)
	}
	if res.Fragment.Lines[0] != "d29: expires on 2025-04-12" {
		t.Fatalf("line = %q", res.Fragment.Lines[0])
	}
}

func TestExpiryNotFiredWhenNothingInWindow(t *testing.T) {
	t.Parallel()
	now := fixedNow()
	src := &fakeSource{items: []InventoryItem{{Name: "late", ExpiryDate: now.Add(90 * 24 * time.Hour), Active: true}}}
	res, err := NewEvaluator(src, DefaultThresholds(), time.UTC).Evaluate(context.Background(), RuleExpiry, allOn, now)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Fired {
		t.Fatalf("expiry should not fire, got %v", res.Fragment.Lines)
	}
}

func TestSalesSummaryCountsSinceMidnight(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+7", 7*3600)
	now := time.Date(2025, time.March, 14, 9, 0, 0, 0, loc)
	midnight := time.Date(2025, time.March, 14, 0, 0, 0, 0, loc)
	src := &fakeSource{txns: []time.Time{
		midnight,
		midnight.Add(-time.Nanosecond),
		midnight.Add(3 * time.Hour),
		now.Add(-25 * time.Hour),
	}}
	res, err := NewEvaluator(src, DefaultThresholds(), loc).Evaluate(context.Background(), RuleSalesSummary, allOn, now.UTC())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Fired || res.Fragment.Lines[0] != "Total transactions today: 2" {
		t.Fatalf("fired=%v lines=%v", res.Fired, res.Fragment.Lines)
	}
}

func TestSalesSummaryZero(t *testing.T) {
	t.Parallel()
	res, err := NewEvaluator(&fakeSource{}, DefaultThresholds(), time.UTC).Evaluate(context.Background(), RuleSalesSummary, allOn, fixedNow())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Fired || res.Fragment.Lines[0] != "Total transactions today: 0" {
		t.Fatalf("fired=%v lines=%v", res.Fired, res.Fragment.Lines)
	}
}

func TestEvaluateAllOrderAndPreferences(t *testing.T) {
	t.Parallel()
	now := fixedNow()
	src := &fakeSource{items: []InventoryItem{
		{Name: "X", Quantity: 3, ExpiryDate: now.Add(48 * time.Hour), Active: true},
	}}
	ev := NewEvaluator(src, DefaultThresholds(), time.UTC)

	results, err := ev.EvaluateAll(context.Background(), allOn, now)
	if err != nil {
		t.Fatalf("EvaluateAll: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	for i, want := range Order {
		if results[i].Rule != want || results[i].Rank != i+1 {
			t.Fatalf("results[%d] = %v rank %d, want %v rank %d", i, results[i].Rule, results[i].Rank, want, i+1)
		}
	}

	src.calls = nil
	only := Preferences{EmailAlertsEnabled: true, LowStockAlertsEnabled: true}
	results, err = ev.EvaluateAll(context.Background(), only, now)
	if err != nil {
		t.Fatalf("EvaluateAll: %v", err)
	}
	if len(results) != 1 || results[0].Rule != RuleLowStock {
		t.Fatalf("results = %+v", results)
	}
	if strings.Join(src.calls, ",") != "low" {
		t.Fatalf("disabled rules must not query the store, calls=%v", src.calls)
	}
}

func TestEvaluateDisabledRuleNeverFires(t *testing.T) {
	t.Parallel()
	src := &fakeSource{items: []InventoryItem{{Name: "X", Quantity: 1, Active: true}}}
	res, err := NewEvaluator(src, DefaultThresholds(), time.UTC).Evaluate(context.Background(), RuleLowStock, Preferences{EmailAlertsEnabled: true}, fixedNow())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Fired || len(src.calls) != 0 {
		t.Fatalf("fired=%v calls=%v", res.Fired, src.calls)
	}
}

func TestEvaluateAllAbortsOnFetchError(t *testing.T) {
	t.Parallel()
	boom := errors.New("db down")
	src := &fakeSource{errExp: boom}
	_, err := NewEvaluator(src, DefaultThresholds(), time.UTC).EvaluateAll(context.Background(), allOn, fixedNow())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
	if !strings.Contains(err.Error(), "expiry rule") {
		t.Fatalf("error should name the rule: %v", err)
	}
	if strings.Join(src.calls, ",") != "low,exp" {
		t.Fatalf("evaluation should stop at the failing rule, calls=%v", src.calls)
	}
}

func TestFiredFilter(t *testing.T) {
	t.Parallel()
	in := []Result{{Rule: RuleLowStock}, {Rule: RuleExpiry, Fired: true}, {Rule: RuleSalesSummary, Fired: true}}
	out := Fired(in)
	if len(out) != 2 || out[0].Rule != RuleExpiry || out[1].Rule != RuleSalesSummary {
		t.Fatalf("Fired = %+v", out)
	}
}

func TestStartOfDay(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("X", -5*3600)
	// 03:00 UTC is 22:00 of the previous day at UTC-5.
	got := StartOfDay(time.Date(2025, 1, 2, 3, 0, 0, 0, time.UTC), loc)
	want := time.Date(2025, 1, 1, 0, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("StartOfDay = %v, want %v", got, want)
	}
}

func TestRecipientEligibility(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		r    Recipient
		want bool
	}{
		{"eligible", Recipient{Active: true, Preferences: &allOn}, true},
		{"inactive", Recipient{Active: false, Preferences: &allOn}, false},
		{"no prefs", Recipient{Active: true}, false},
		{"email off", Recipient{Active: true, Preferences: &Preferences{LowStockAlertsEnabled: true}}, false},
	}
	for _, tt := range tests {
		if got := tt.r.Eligible(); got != tt.want {
			t.Fatalf("%s: Eligible = %v, want %v", tt.name, got, tt.want)
		}
	}
	if (Recipient{Email: "a@b.c"}).DisplayName() != "a@b.c" {
		t.Fatal("DisplayName should fall back to email")
	}
}
