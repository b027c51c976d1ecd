// Package scheduler fires named jobs on cron expressions, fixed intervals or
// once at a given time.
//
// Cron expressions accept the classic five-field form and an optional leading
// seconds field ("0 9 * * *" and "0 0 9 * * *" both mean 09:00 daily), plus
// descriptors such as "@daily" and "@every 1h". A job whose previous
// invocation is still running is skipped rather than stacked.
package scheduler
