// Package alert holds the recipient/inventory model and the rule evaluator.
//
// Three rules are evaluated per recipient in a fixed order:
//   - low stock: active items below a quantity threshold
//   - expiry: active items expiring inside a forward window
//   - sales summary: number of transactions since local midnight
//
// Rules read data through the Source interface so the evaluator can be driven
// by any storage backend or by an in-memory fake in tests.
package alert
