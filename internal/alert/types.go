package alert

import (
	"context"
	"time"
)

// Preferences is the per-recipient alert preference record.
type Preferences struct {
	EmailAlertsEnabled    bool `json:"emailAlertsEnabled" bson:"emailAlertsEnabled"`
	LowStockAlertsEnabled bool `json:"lowStockAlertsEnabled" bson:"lowStockAlertsEnabled"`
	ExpiryAlertsEnabled   bool `json:"expiryAlertsEnabled" bson:"expiryAlertsEnabled"`
	SalesSummaryEnabled   bool `json:"salesSummaryEnabled" bson:"salesSummaryEnabled"`
}

// Recipient is an addressable party. Preferences is nil when the store has no
// preference record for it.
type Recipient struct {
	ID          string
	Name        string
	Email       string
	Active      bool
	Preferences *Preferences
}

// DisplayName returns the name used in greetings.
func (r Recipient) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Email
}

// Eligible reports whether the recipient may receive any notification at all.
func (r Recipient) Eligible() bool {
	return r.Active && r.Preferences != nil && r.Preferences.EmailAlertsEnabled
}

type InventoryItem struct {
	Name       string
	Quantity   int
	ExpiryDate time.Time // zero when the item does not expire
	Active     bool
}

// Source is the read-only data access the rules need.
//
// Implementations must only return active items. limit <= 0 means no limit.
type Source interface {
	// LowStockItems returns items with Quantity < below, lowest quantity first.
	LowStockItems(ctx context.Context, below, limit int) ([]InventoryItem, error)
	// ExpiringItems returns items with from < ExpiryDate < to, soonest first.
	ExpiringItems(ctx context.Context, from, to time.Time, limit int) ([]InventoryItem, error)
	// CountTransactionsSince counts transaction records created at or after since.
	CountTransactionsSince(ctx context.Context, since time.Time) (int, error)
}

type Rule int

const (
	RuleLowStock Rule = iota + 1
	RuleExpiry
	RuleSalesSummary
)

// Order is the fixed evaluation order; it also fixes the fragment order in a message.
var Order = []Rule{RuleLowStock, RuleExpiry, RuleSalesSummary}

func (r Rule) String() string {
	switch r {
	case RuleLowStock:
		return "low_stock"
	case RuleExpiry:
		return "expiry"
	case RuleSalesSummary:
		return "sales_summary"
	default:
		return "unknown"
	}
}

// Enabled reports whether the recipient opted into this rule.
func (r Rule) Enabled(p Preferences) bool {
	switch r {
	case RuleLowStock:
		return p.LowStockAlertsEnabled
	case RuleExpiry:
		return p.ExpiryAlertsEnabled
	case RuleSalesSummary:
		return p.SalesSummaryEnabled
	default:
		return false
	}
}

// Fragment is the rendered content a fired rule contributes to a message.
type Fragment struct {
	Title string
	Lines []string
}

// Result is the outcome of evaluating one rule. Never persisted.
type Result struct {
	Rule     Rule
	Fired    bool
	Rank     int
	Fragment Fragment
}
