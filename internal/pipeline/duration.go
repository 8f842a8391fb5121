package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	day   = 24 * time.Hour
	week  = 7 * day
	month = 30 * day
	year  = 365 * day
)

var durationUnits = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": day, "day": day, "days": day,
	"w": week, "wk": week, "wks": week, "week": week, "weeks": week,
	"mo": month, "mos": month, "month": month, "months": month,
	"y": year, "yr": year, "yrs": year, "year": year, "years": year,
}

var durationTerm = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*([a-z]*)`)

// ParseDuration parses human durations such as "30 mins", "1 week",
// "2 days and 3 hours" or Go syntax like "90m". A bare number is seconds.
func ParseDuration(s string) (time.Duration, error) {
	in := strings.ToLower(strings.TrimSpace(s))
	if in == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if d, err := time.ParseDuration(in); err == nil {
		return d, nil
	}

	rest := strings.NewReplacer(",", " ", " and ", " ").Replace(in)
	matches := durationTerm.FindAllStringSubmatchIndex(rest, -1)
	if matches == nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	var total time.Duration
	consumed := 0
	for _, m := range matches {
		if strings.TrimSpace(rest[consumed:m[0]]) != "" {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		consumed = m[1]

		n, err := strconv.ParseFloat(rest[m[2]:m[3]], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		unit := time.Second
		if name := rest[m[4]:m[5]]; name != "" {
			u, ok := durationUnits[name]
			if !ok {
				return 0, fmt.Errorf("invalid duration %q: unknown unit %q", s, name)
			}
			unit = u
		}
		total += time.Duration(n * float64(unit))
	}
	if strings.TrimSpace(rest[consumed:]) != "" {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return total, nil
}
