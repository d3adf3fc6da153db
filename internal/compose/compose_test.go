package compose

import (
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"stockalert/internal/alert"
)

var now = time.Date(2025, time.March, 14, 9, 0, 0, 0, time.UTC)

func dana() alert.Recipient {
	return alert.Recipient{ID: "u1", Name: "Dana", Email: "dana@example.com", Active: true}
}

func lowStock(lines ...string) alert.Result {
	return alert.Result{Rule: alert.RuleLowStock, Rank: 1, Fired: true, Fragment: alert.Fragment{Title: "Low Stock Alert", Lines: lines}}
}

func golden(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestComposeNothingFired(t *testing.T) {
	t.Parallel()
	c := New("", time.UTC)
	msg, err := c.Compose(dana(), nil, now)
	if err != nil || msg != nil {
		t.Fatalf("Compose(nil) = %v, %v; want nil, nil", msg, err)
	}
	msg, err = c.Compose(dana(), []alert.Result{{Rule: alert.RuleLowStock}, {Rule: alert.RuleExpiry}}, now)
	if err != nil || msg != nil {
		t.Fatalf("Compose(not fired) = %v, %v; want nil, nil", msg, err)
	}
}

func TestComposeSubjectIsConstant(t *testing.T) {
	t.Parallel()
	c := New("", time.UTC)
	a, err := c.Compose(dana(), []alert.Result{lowStock("X: only 3 left")}, now)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	b, err := c.Compose(dana(), []alert.Result{{Rule: alert.RuleSalesSummary, Rank: 3, Fired: true, Fragment: alert.Fragment{Title: "Daily Sales Summary", Lines: []string{"Total transactions today: 4"}}}}, now)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if a.Subject != DefaultSubject || b.Subject != DefaultSubject {
		t.Fatalf("subjects = %q, %q", a.Subject, b.Subject)
	}
	if a.To != "dana@example.com" {
		t.Fatalf("To = %q", a.To)
	}
	if New("Stock report", nil).Subject() != "Stock report" {
		t.Fatal("custom subject not kept")
	}
}

func TestComposeLowStockOnly(t *testing.T) {
	t.Parallel()
	msg, err := New("", time.UTC).Compose(dana(), []alert.Result{lowStock("X: only 3 left")}, now)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if len(msg.Rules) != 1 || msg.Rules[0] != alert.RuleLowStock {
		t.Fatalf("Rules = %v", msg.Rules)
	}
	if strings.Contains(msg.HTML, "<hr>") {
		t.Fatal("single fragment must not carry a divider")
	}
	g := golden(t)
	g.Assert(t, "low_stock_only.html", []byte(msg.HTML))
	g.Assert(t, "low_stock_only.txt", []byte(msg.Text))
}

func TestComposeAllRulesInOrder(t *testing.T) {
	t.Parallel()
	results := []alert.Result{
		lowStock("X: only 3 left", "Y: only 7 left"),
		{Rule: alert.RuleExpiry, Rank: 2, Fired: true, Fragment: alert.Fragment{Title: "Expiry Alert", Lines: []string{"Milk: expires on 2025-03-20"}}},
		{Rule: alert.RuleSalesSummary, Rank: 3, Fired: true, Fragment: alert.Fragment{Title: "Daily Sales Summary", Lines: []string{"Total transactions today: 0"}}},
	}
	msg, err := New("", time.UTC).Compose(dana(), results, now)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if strings.Count(msg.HTML, "<hr>") != 2 {
		t.Fatalf("expected 2 dividers, got %d", strings.Count(msg.HTML, "<hr>"))
	}
	lo := strings.Index(msg.Text, "Low Stock Alert")
	ex := strings.Index(msg.Text, "Expiry Alert")
	ss := strings.Index(msg.Text, "Daily Sales Summary")
	if !(lo >= 0 && lo < ex && ex < ss) {
		t.Fatalf("fragments out of order: %d %d %d", lo, ex, ss)
	}
	g := golden(t)
	g.Assert(t, "all_rules.html", []byte(msg.HTML))
	g.Assert(t, "all_rules.txt", []byte(msg.Text))
}

func TestComposeEscapesMarkup(t *testing.T) {
	t.Parallel()
	r := dana()
	r.Name = "<b>Eve</b>"
	msg, err := New("", time.UTC).Compose(r, []alert.Result{lowStock("<script>: only 1 left")}, now)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if strings.Contains(msg.HTML, "<script>") || strings.Contains(msg.HTML, "<b>Eve") {
		t.Fatalf("html body not escaped:\n%s", msg.HTML)
	}
	if !strings.Contains(msg.Text, "Hello <b>Eve</b>,") {
		t.Fatalf("text body should carry the raw name:\n%s", msg.Text)
	}
}

func TestComposeGreetingFallsBackToEmail(t *testing.T) {
	t.Parallel()
	r := dana()
	r.Name = ""
	msg, err := New("", time.UTC).Compose(r, []alert.Result{lowStock("X: only 3 left")}, now)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if !strings.HasPrefix(msg.Text, "Hello dana@example.com,") {
		t.Fatalf("greeting = %q", strings.SplitN(msg.Text, "\n", 2)[0])
	}
}
