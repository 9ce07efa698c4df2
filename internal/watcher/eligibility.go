package watcher

import "volowatch/internal/activity"

// IsNotifiable reports whether a new activity should be sent out.
//
// Drop-ins are skipped only when the feed explicitly says no male-eligible
// spots remain; an unknown count passes.
func IsNotifiable(a activity.Activity) bool {
	switch a.NormalizedType() {
	case activity.TypePickup:
		return true
	case activity.TypeDropIn, "DROPIN":
		return a.MaleEligibleSpots == nil || *a.MaleEligibleSpots > 0
	default:
		return true
	}
}

// FilterNotifiable returns the notifiable subset of as, order preserved.
func FilterNotifiable(as []activity.Activity) []activity.Activity {
	out := make([]activity.Activity, 0, len(as))
	for _, a := range as {
		if IsNotifiable(a) {
			out = append(out, a)
		}
	}
	return out
}
