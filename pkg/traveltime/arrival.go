package traveltime

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ParseWeekday parses a full English weekday name ("Tuesday").
func ParseWeekday(name string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), name) {
			return d, nil
		}
	}
	return 0, eris.Errorf("traveltime: unknown weekday %q", name)
}

// NextArrival returns the next occurrence of the given weekday at the given
// local time ("HH:MM") in the named timezone. When today is the requested
// weekday, today's date is used, matching the cache-key semantics: the
// resulting weekday and time-of-day identify the request, not the concrete
// date.
func NextArrival(weekday time.Weekday, hhmm, tzName string) (time.Time, error) {
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "traveltime: load timezone %q", tzName)
	}

	clock, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "traveltime: parse arrival time %q", hhmm)
	}

	now := time.Now().In(loc)
	daysAhead := (int(weekday) - int(now.Weekday()) + 7) % 7

	arrival := time.Date(
		now.Year(), now.Month(), now.Day()+daysAhead,
		clock.Hour(), clock.Minute(), 0, 0, loc,
	)
	return arrival, nil
}
