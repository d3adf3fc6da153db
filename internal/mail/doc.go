// Package mail delivers composed notifications.
//
// Sender is the delivery contract. Implementations:
//   - Postmark for production delivery
//   - DevSender, which writes each message as HTML and JSON files to a directory
//   - Unconfigured, which fails every send with ErrNotConfigured
//
// RateLimited wraps any Sender with a token bucket.
//
// All senders validate Params before doing any work. Errors can be checked
// with errors.Is against the package sentinels.
package mail
