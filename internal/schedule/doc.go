// Package schedule turns a schedule string into a robfig/cron Schedule.
//
// The watcher never lets cron fire jobs on its own: it asks the schedule for
// the next activation after a cycle has fully finished, so cycles cannot
// overlap no matter how long one runs.
package schedule
