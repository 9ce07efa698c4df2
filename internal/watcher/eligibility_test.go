package watcher

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"volowatch/internal/activity"
)

func TestIsNotifiable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		typ  string
		male *int
		want bool
	}{
		{name: "pickup", typ: "PICKUP", want: true},
		{name: "pickup lower case", typ: "pickup", want: true},
		{name: "pickup ignores male spots", typ: "PICKUP", male: activity.IntPtr(0), want: true},
		{name: "drop-in unknown male spots", typ: "DROP-IN", want: true},
		{name: "drop-in male spots open", typ: "DROP-IN", male: activity.IntPtr(2), want: true},
		{name: "drop-in no male spots", typ: "DROP-IN", male: activity.IntPtr(0), want: false},
		{name: "dropin spelling", typ: "dropin", male: activity.IntPtr(0), want: false},
		{name: "drop-in padded", typ: " Drop-In ", male: activity.IntPtr(0), want: false},
		{name: "clinic", typ: "CLINIC", male: activity.IntPtr(0), want: true},
		{name: "practice", typ: "PRACTICE", want: true},
		{name: "empty type", typ: "", want: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := activity.Activity{ID: "x", Type: tt.typ, MaleEligibleSpots: tt.male}
			if got := IsNotifiable(a); got != tt.want {
				t.Fatalf("IsNotifiable(%q, %v) = %v, want %v", tt.typ, tt.male, got, tt.want)
			}
		})
	}
}

func TestFilterNotifiableKeepsOrder(t *testing.T) {
	t.Parallel()
	in := []activity.Activity{
		{ID: "a", Type: "PICKUP"},
		{ID: "b", Type: "DROP-IN", MaleEligibleSpots: activity.IntPtr(0)},
		{ID: "c", Type: "CLINIC"},
		{ID: "d", Type: "DROP-IN"},
	}
	got := activity.IDs(FilterNotifiable(in))
	if diff := cmp.Diff([]string{"a", "c", "d"}, got); diff != "" {
		t.Fatalf("filtered ids (-want +got):\n%s", diff)
	}
	if got := FilterNotifiable(nil); len(got) != 0 {
		t.Fatalf("FilterNotifiable(nil) = %v", got)
	}
}
