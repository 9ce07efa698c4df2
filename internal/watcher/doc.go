// Package watcher turns successive feed snapshots into "new activity"
// notifications.
//
// A Classifier splits a batch into new and already-seen items against the
// ledger. IsNotifiable decides which new items are worth a message. The
// Poller drives both on a schedule: it starts in BOOTSTRAP, where whatever
// the feed currently lists is recorded as already notified, then alternates
// between IDLE and POLLING until its context is cancelled or the ledger
// becomes unusable (FATAL).
//
// Delivery is at most once. When a delivery fails the affected items stay
// unnotified in the ledger but are never retried, because later cycles only
// ever see them as already-seen.
package watcher
