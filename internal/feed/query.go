package feed

import "time"

const discoverDailyQuery = `
query DiscoverDaily($where: discover_daily_bool_exp!, $limit: Int = 100, $offset: Int = 0) {
  discover_daily(
    where: $where
    order_by: [{event_start_date: asc}, {event_start_time_str: asc}, {event_end_time_str: asc}, {_id: asc}]
    limit: $limit
    offset: $offset
  ) {
    _id
    game_id
    game {
      _id
      start_time
      end_time
      venueByVenue {
        _id
        shorthand_name
        formatted_address
        neighborhoodByNeighborhoodId { _id name }
      }
      drop_in_capacity { _id total_available_spots }
      leagueByLeague {
        _id
        program_type
        sportBySport { _id name }
      }
    }
    league_id
    league {
      _id
      name
      display_name
      program_type
      start_date
      sportBySport { _id name }
      registrants_aggregate { aggregate { count } }
      registrationByRegistration {
        _id
        max_registration_size
        min_registration_size
        available_spots
      }
      neighborhoodByNeighborhood { _id name }
      venueByVenue { _id shorthand_name formatted_address }
    }
    event_start_date
    event_start_time_str
    event_end_time_str
  }
  discover_daily_aggregate(where: $where) {
    aggregate { count }
  }
}`

// Filter narrows the feed query.
type Filter struct {
	Organization string
	Sports       []string // empty means every sport
	ProgramTypes []string
}

type m = map[string]any

// buildVariables returns the GraphQL variables for one page.
//
// Rows match either an open league registration (pickups, practices,
// clinics) or a future league game that has drop-in capacity.
func buildVariables(f Filter, now time.Time, limit, offset int) m {
	ts := now.UTC().Format(time.RFC3339Nano)

	league := m{
		"organizationByOrganization": m{"name": m{"_eq": f.Organization}},
		"start_date":                 m{"_gte": ts},
		"program_type":               m{"_in": f.ProgramTypes},
		"status":                     m{"_eq": "registration_open"},
		"registrationByRegistration": m{
			"available_spots":         m{"_gte": 1},
			"registration_close_date": m{"_gte": "now()"},
		},
	}
	gameLeague := m{
		"organizationByOrganization": m{"name": m{"_eq": f.Organization}},
	}
	if len(f.Sports) > 0 {
		league["sportBySport"] = m{"name": m{"_in": f.Sports}}
		gameLeague["sportBySport"] = m{"name": m{"_in": f.Sports}}
	}
	game := m{
		"start_time":       m{"_gte": ts},
		"drop_in_capacity": m{},
		"leagueByLeague":   gameLeague,
	}

	return m{
		"limit":  limit,
		"offset": offset,
		"where": m{
			"_or": []any{
				m{"league_id": m{"_is_null": false}, "league": league},
				m{"game_id": m{"_is_null": false}, "game": game},
			},
		},
	}
}
