package feed

import (
	"strings"
	"time"

	"volowatch/internal/activity"
)

const (
	leagueURLPrefix = "https://www.volosports.com/l/"
	dropInURLPrefix = "https://www.volosports.com/d/"

	dateLayout = "Mon Jan 02"
	timeLayout = "3:04 PM"
	unknown    = "?"
)

// Normalizer turns feed rows into display-ready activities. Times carrying
// a UTC offset are rendered in Location.
type Normalizer struct {
	Location *time.Location
}

// NewNormalizer loads tz ("" means UTC).
func NewNormalizer(tz string) (Normalizer, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return Normalizer{Location: time.UTC}, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Normalizer{}, err
	}
	return Normalizer{Location: loc}, nil
}

// Normalize maps one row. It fails only when the row has no id or is
// neither a league nor a game row.
func (n Normalizer) Normalize(r activity.Raw) (activity.Activity, error) {
	id := strings.TrimSpace(r.ID)
	if id == "" {
		return activity.Activity{}, &activity.NormalizationError{Reason: "missing _id"}
	}

	a := activity.Activity{
		ID:        id,
		LeagueID:  deref(r.LeagueID),
		GameID:    deref(r.GameID),
		Date:      r.EventStartDate,
		StartTime: r.EventStartTimeStr,
		EndTime:   r.EventEndTimeStr,
	}

	switch {
	case r.League != nil:
		n.fromLeague(&a, r.League)
	case r.Game != nil:
		n.fromGame(&a, r.Game)
	default:
		return activity.Activity{}, &activity.NormalizationError{ID: id, Reason: "row has neither league nor game"}
	}

	a.Date = n.formatDate(a.Date)
	a.StartTime = n.formatTime(a.StartTime)
	a.EndTime = n.formatTime(a.EndTime)
	return a, nil
}

func (n Normalizer) fromLeague(a *activity.Activity, l *activity.RawLeague) {
	a.Type = l.ProgramType
	a.Name = l.DisplayName
	if a.Name == "" {
		a.Name = l.Name
	}
	if l.Sport != nil {
		a.Sport = l.Sport.Name
	}
	leagueID := a.LeagueID
	if leagueID == "" {
		leagueID = l.ID
	}
	a.URL = leagueURLPrefix + leagueID

	if l.Venue != nil {
		a.Venue = l.Venue.ShorthandName
		a.Address = l.Venue.FormattedAddress
	}
	if l.Neighborhood != nil {
		a.Neighborhood = l.Neighborhood.Name
	}
	if reg := l.Registration; reg != nil {
		a.SpotsAvailable = reg.AvailableSpots
		a.MaxSpots = reg.MaxRegistrationSize
	}
	if l.Registrants != nil {
		c := l.Registrants.Aggregate.Count
		a.Registrants = &c
	}
}

func (n Normalizer) fromGame(a *activity.Activity, g *activity.RawGame) {
	a.Type = activity.TypeDropIn
	gameID := a.GameID
	if gameID == "" {
		gameID = g.ID
	}
	a.URL = dropInURLPrefix + gameID

	if g.League != nil {
		if g.League.Sport != nil {
			a.Sport = g.League.Sport.Name
		}
		sport := a.Sport
		if sport == "" {
			sport = "Activity"
		}
		a.Name = sport + " Drop-In Game"
	}
	if v := g.Venue; v != nil {
		a.Venue = v.ShorthandName
		a.Address = v.FormattedAddress
		if v.Neighborhood != nil {
			a.Neighborhood = v.Neighborhood.Name
		}
	}
	if g.DropInCapacity != nil {
		a.SpotsAvailable = g.DropInCapacity.TotalAvailableSpots
	}
	// Game times are full timestamps; prefer them over the row's strings.
	if g.StartTime != "" {
		a.StartTime = g.StartTime
	}
	if g.EndTime != "" {
		a.EndTime = g.EndTime
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
}

// parseTimestamp accepts ISO timestamps with or without offset. Offset-less
// values are taken as already local to n.Location.
func (n Normalizer) parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if strings.Contains(layout, "Z07:00") {
				return t.In(n.loc()), true
			}
			return t, true
		}
	}
	return time.Time{}, false
}

func (n Normalizer) formatTime(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknown
	}
	// Already "HH:MM".
	if len(s) <= 5 && strings.Contains(s, ":") {
		return s
	}
	t, ok := n.parseTimestamp(s)
	if !ok {
		return s
	}
	return t.Format(timeLayout)
}

func (n Normalizer) formatDate(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknown
	}
	if t, err := time.Parse("2006-01-02", strings.TrimSpace(s)); err == nil {
		return t.Format(dateLayout)
	}
	t, ok := n.parseTimestamp(s)
	if !ok {
		return s
	}
	return t.Format(dateLayout)
}

func (n Normalizer) loc() *time.Location {
	if n.Location == nil {
		return time.UTC
	}
	return n.Location
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
