// Package scheduler registers named schedules and turns each trigger into a
// task on the engine. It never runs jobs itself.
//
// Schedules are evaluated in one configured time zone, so "09:00" means nine in
// the morning wherever the operator says the business is.
package scheduler
