// Package activity holds the feed record types shared by the feed client,
// the ledger and the watcher.
//
// Raw mirrors one row of the upstream "discover daily" feed as decoded from
// JSON. Activity is the normalized, display-ready form; optional numeric
// fields are pointers so "absent" never collapses into zero.
package activity

import (
	"fmt"
	"strings"
)

// Program types reported by the feed. Matching is case-insensitive.
const (
	TypePickup   = "PICKUP"
	TypeDropIn   = "DROP-IN"
	TypePractice = "PRACTICE"
	TypeClinic   = "CLINIC"
)

// Activity is one normalized feed item.
type Activity struct {
	ID       string `json:"id"`
	LeagueID string `json:"league_id,omitempty"`
	GameID   string `json:"game_id,omitempty"`

	Type  string `json:"type"`
	Sport string `json:"sport"`
	Name  string `json:"name"`

	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`

	Venue        string `json:"venue"`
	Address      string `json:"address,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty"`

	SpotsAvailable    *int `json:"spots_available,omitempty"`
	MaxSpots          *int `json:"max_spots,omitempty"`
	Registrants       *int `json:"registrants,omitempty"`
	MaleEligibleSpots *int `json:"male_eligible_spots,omitempty"`

	URL string `json:"url,omitempty"`
}

// Details is the short description written to the audit log.
func (a Activity) Details() string {
	return a.Sport + ": " + a.Name
}

// NormalizedType returns Type upper-cased and trimmed.
func (a Activity) NormalizedType() string {
	return strings.ToUpper(strings.TrimSpace(a.Type))
}

// SpotsLabel renders spots for humans ("3 spots available" / "Spots unknown").
func (a Activity) SpotsLabel() string {
	if a.SpotsAvailable == nil {
		return "Spots unknown"
	}
	return fmt.Sprintf("%d spots available", *a.SpotsAvailable)
}

// IDs returns the ids of as in order.
func IDs(as []Activity) []string {
	out := make([]string, 0, len(as))
	for _, a := range as {
		out = append(out, a.ID)
	}
	return out
}

// IntPtr is a convenience for building optionals.
func IntPtr(v int) *int { return &v }
