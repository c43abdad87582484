// Package retention prunes old lifecycle events from the journal on a cron
// schedule.
package retention
