// Package ledger is the durable "seen" record of every feed activity.
//
// It keeps:
//   - one seen_activities row per activity id (last observed snapshot,
//     first/last seen timestamps, notified flag)
//   - an append-only activity_log audit trail
//
// Every write commits before returning; the next poll cycle classifies
// against exactly what is on disk.
package ledger
