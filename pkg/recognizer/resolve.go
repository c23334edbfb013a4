package recognizer

import (
	"errors"
	"fmt"
	"time"
)

// DateCategory is the entity category carrying date expressions.
const DateCategory = "Date"

// DestinationCategory is the entity category carrying destinations.
const DestinationCategory = "Destination"

// ErrMissingEntity signals that a required entity category is absent. The
// caller must treat it as "insufficient information", not route onward.
var ErrMissingEntity = errors.New("missing required entity")

// ResolveDates rewrites the surface text of date entities from their
// resolutions: a single-point resolution replaces the text with its
// resolved value, a span resolution with a synthesized "from X to Y"
// string. Later resolutions win, matching the order the service returns
// them. Entities without resolutions pass through untouched.
func ResolveDates(entities []Entity) []Entity {
	out := make([]Entity, len(entities))
	copy(out, entities)
	for i := range out {
		if out[i].Category != DateCategory || len(out[i].Resolutions) == 0 {
			continue
		}
		for _, res := range out[i].Resolutions {
			switch res.ResolutionKind {
			case DateTimeResolution:
				out[i].Text = res.Value
			case TemporalSpanResolution:
				out[i].Text = fmt.Sprintf("from %s to %s", res.Begin, res.End)
			}
		}
	}
	return out
}

// Collapse keeps only the highest-confidence entity per category,
// preserving first-appearance order. It is idempotent: collapsing a
// collapsed list is a no-op.
func Collapse(entities []Entity) []Entity {
	best := make(map[string]int)
	var order []string
	for i, e := range entities {
		j, seen := best[e.Category]
		if !seen {
			best[e.Category] = i
			order = append(order, e.Category)
			continue
		}
		if e.Confidence > entities[j].Confidence {
			best[e.Category] = i
		}
	}
	out := make([]Entity, 0, len(order))
	for _, cat := range order {
		out = append(out, entities[best[cat]])
	}
	return out
}

// BookingDetails is the structured payload handed to the booking flow.
type BookingDetails struct {
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	TravelDate    string `json:"travelDate"`
	MultipleDates bool   `json:"multipleDates"`
}

// singleDateLayouts are the calendar forms a resolved date value may take.
var singleDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

func parsesAsSingleDate(text string) bool {
	for _, layout := range singleDateLayouts {
		if _, err := time.Parse(layout, text); err == nil {
			return true
		}
	}
	return false
}

// IsDefiniteDate reports whether text is a single calendar date rather
// than a span or an unresolvable expression. Dialogs use it to decide
// whether a date slot still needs disambiguation.
func IsDefiniteDate(text string) bool { return parsesAsSingleDate(text) }

// ExtractBooking runs the full pipeline on raw classifier entities and
// synthesizes a booking payload. Both a Destination and a Date entity are
// required; their absence is a signal, not a crash. MultipleDates is set
// when the date text does not parse as a single calendar date — a proxy
// for span expressions that is known to be format-sensitive.
func ExtractBooking(entities []Entity) (*BookingDetails, error) {
	collapsed := Collapse(ResolveDates(entities))

	var destination, date *Entity
	for i := range collapsed {
		switch collapsed[i].Category {
		case DestinationCategory:
			destination = &collapsed[i]
		case DateCategory:
			date = &collapsed[i]
		}
	}
	if destination == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingEntity, DestinationCategory)
	}
	if date == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingEntity, DateCategory)
	}

	return &BookingDetails{
		Destination:   destination.Text,
		TravelDate:    date.Text,
		MultipleDates: !parsesAsSingleDate(date.Text),
	}, nil
}
