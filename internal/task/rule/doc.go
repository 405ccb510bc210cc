// Package rule holds the schedule data model: a Rule is a set of calendar
// field constraints plus the work to run when they match, and a Compiled rule
// is its immutable bitmask form used by the evaluation loop.
//
// Rules are built from functional options (value lists, cron text, or a single
// instant) and validated when each option is applied. A rule added to a
// runtime stays bound to it, so later Set calls recompile it in place.
package rule
