package activity

// Raw is one "discover_daily" row. Exactly one of League or Game is
// normally set: league rows are pickups/practices/clinics, game rows are
// drop-ins into an existing league game.
type Raw struct {
	ID                string  `json:"_id"`
	LeagueID          *string `json:"league_id"`
	GameID            *string `json:"game_id"`
	EventStartDate    string  `json:"event_start_date"`
	EventStartTimeStr string  `json:"event_start_time_str"`
	EventEndTimeStr   string  `json:"event_end_time_str"`

	League *RawLeague `json:"league"`
	Game   *RawGame   `json:"game"`
}

type RawLeague struct {
	ID           string `json:"_id"`
	Name         string `json:"name"`
	DisplayName  string `json:"display_name"`
	ProgramType  string `json:"program_type"`
	StartDate    string `json:"start_date"`
	Sport        *Named `json:"sportBySport"`
	Venue        *Venue `json:"venueByVenue"`
	Neighborhood *Named `json:"neighborhoodByNeighborhood"`

	Registration *Registration `json:"registrationByRegistration"`
	Registrants  *Aggregate    `json:"registrants_aggregate"`
}

type RawGame struct {
	ID             string      `json:"_id"`
	StartTime      string      `json:"start_time"`
	EndTime        string      `json:"end_time"`
	Venue          *Venue      `json:"venueByVenue"`
	DropInCapacity *Capacity   `json:"drop_in_capacity"`
	League         *GameLeague `json:"leagueByLeague"`
}

type GameLeague struct {
	ID          string `json:"_id"`
	ProgramType string `json:"program_type"`
	Sport       *Named `json:"sportBySport"`
}

type Named struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

type Venue struct {
	ID               string `json:"_id"`
	ShorthandName    string `json:"shorthand_name"`
	FormattedAddress string `json:"formatted_address"`
	// Game venues carry their neighborhood under a different key.
	Neighborhood *Named `json:"neighborhoodByNeighborhoodId"`
}

type Registration struct {
	ID                  string `json:"_id"`
	MaxRegistrationSize *int   `json:"max_registration_size"`
	MinRegistrationSize *int   `json:"min_registration_size"`
	AvailableSpots      *int   `json:"available_spots"`
}

type Capacity struct {
	ID                  string `json:"_id"`
	TotalAvailableSpots *int   `json:"total_available_spots"`
}

type Aggregate struct {
	Aggregate struct {
		Count int `json:"count"`
	} `json:"aggregate"`
}
