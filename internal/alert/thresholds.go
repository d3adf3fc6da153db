package alert

import "time"

const (
	DefaultLowStockQuantity = 10
	DefaultItemLimit        = 5
	DefaultExpiryWindow     = 30 * 24 * time.Hour
)

// Thresholds are the fixed rule parameters. They apply to every recipient.
type Thresholds struct {
	// LowStockQuantity: items with quantity strictly below this are low.
	LowStockQuantity int
	// ItemLimit caps how many items a low-stock or expiry fragment lists.
	ItemLimit int
	// ExpiryWindow: items expiring in (now, now+ExpiryWindow) are reported.
	ExpiryWindow time.Duration
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		LowStockQuantity: DefaultLowStockQuantity,
		ItemLimit:        DefaultItemLimit,
		ExpiryWindow:     DefaultExpiryWindow,
	}
}

// withDefaults fills zero fields.
func (t Thresholds) withDefaults() Thresholds {
	if t.LowStockQuantity <= 0 {
		t.LowStockQuantity = DefaultLowStockQuantity
	}
	if t.ItemLimit <= 0 {
		t.ItemLimit = DefaultItemLimit
	}
	if t.ExpiryWindow <= 0 {
		t.ExpiryWindow = DefaultExpiryWindow
	}
	return t
}
