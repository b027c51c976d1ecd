// Package shout posts a message to the shoutbox of each selected tracker site
// and folds the per-site outcomes into a report.
//
// A run resolves the selected site ids against the registry, sends one GET to
// <site>/shoutbox.php per site through a bounded worker pool, records each
// outcome with the health recorder and notifies the operator. Per-site errors
// never escape a run; they only show up in the report, the log and the
// notifications.
package shout
