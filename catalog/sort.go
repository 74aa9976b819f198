package catalog

import (
	"strings"

	"github.com/erikbos/stashfin/stash"
)

const defaultSortField = "date"

// sortFields maps client sort names (lowercased) to backend scene sort fields.
var sortFields = map[string]string{
	"name":            "title",
	"sortname":        "title",
	"premieredate":    "date",
	"productionyear":  "date",
	"datecreated":     "created_at",
	"dateplayed":      "last_played_at",
	"random":          "random",
	"runtime":         "duration",
	"communityrating": "rating",
	"criticrating":    "rating",
	"playcount":       "play_count",
}

// Sort is a backend sort field and direction.
type Sort struct {
	// Field is a backend scene sort field.
	Field     string
	Direction string
	// Explicit is set when the client asked for a recognised field.
	Explicit bool
}

// ParseSort maps comma separated client sortBy names and a sortOrder
// ("Ascending" or "Descending") to a backend sort. The first recognised
// name wins; unrecognised input sorts by date, descending by default.
func ParseSort(sortBy, sortOrder string) Sort {
	s := Sort{Field: defaultSortField, Direction: stash.SortDesc}
	for _, name := range strings.Split(sortBy, ",") {
		if field, ok := sortFields[strings.ToLower(strings.TrimSpace(name))]; ok {
			s.Field = field
			s.Explicit = true
			break
		}
	}
	order := strings.ToLower(strings.TrimSpace(strings.Split(sortOrder, ",")[0]))
	if strings.HasPrefix(order, "asc") {
		s.Direction = stash.SortAsc
	}
	return s
}

// forEntities adapts a scene sort to studio, performer, group and tag
// listings, which are alphabetical unless asked otherwise.
func (s Sort) forEntities() Sort {
	if !s.Explicit {
		return Sort{Field: "name", Direction: stash.SortAsc}
	}
	switch s.Field {
	case "created_at", "random":
		return s
	case "rating":
		return Sort{Field: "rating", Direction: s.Direction, Explicit: true}
	}
	return Sort{Field: "name", Direction: s.Direction, Explicit: true}
}

func (s Sort) findFilter(page, perPage int) stash.FindFilter {
	return stash.FindFilter{
		Page:      page,
		PerPage:   perPage,
		Sort:      s.Field,
		Direction: s.Direction,
	}
}
