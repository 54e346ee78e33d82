// Package clock centralizes timezone handling and timestamp formatting.
package clock

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Clock formats and parses timestamps in the configured timezone.
type Clock struct {
	loc *time.Location
}

// New creates a Clock for the named IANA timezone, falling back to UTC when
// the name cannot be resolved.
func New(timezone string) *Clock {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		slog.Warn("unknown timezone, falling back to UTC", "timezone", timezone, "error", err)
		loc = time.UTC
	}
	return &Clock{loc: loc}
}

// Location returns the clock's timezone.
func (c *Clock) Location() *time.Location {
	return c.loc
}

// Now returns the current time in the clock's timezone.
func (c *Clock) Now() time.Time {
	return time.Now().In(c.loc)
}

// NowStamp returns the current time as "2006-01-02 15:04:05 MST".
func (c *Clock) NowStamp() string {
	return c.Now().Format("2006-01-02 15:04:05 MST")
}

// FormatStamp renders a Unix timestamp as "2006-01-02 15:04:05".
// A zero timestamp renders as "N/A".
func (c *Clock) FormatStamp(ts int64) string {
	if ts == 0 {
		return "N/A"
	}
	return time.Unix(ts, 0).In(c.loc).Format("2006-01-02 15:04:05")
}

// FormatDate renders a Unix timestamp as "2006-01-02".
func (c *Clock) FormatDate(ts int64) string {
	if ts == 0 {
		return "N/A"
	}
	return time.Unix(ts, 0).In(c.loc).Format("2006-01-02")
}

// RangeLabel renders a summary time span: "[start ~ end]", collapsing to
// "[start]" when both ends format identically.
func (c *Clock) RangeLabel(first, last int64) string {
	start := c.FormatStamp(first)
	end := c.FormatStamp(last)
	if start == end {
		return "[" + start + "]"
	}
	return "[" + start + " ~ " + end + "]"
}

var relativeRe = regexp.MustCompile(`(?i)^in\s+(\d+)\s*(s|sec|secs|second|seconds|m|min|mins|minute|minutes|h|hr|hrs|hour|hours|d|day|days|w|week|weeks)$`)

// ParseTimeExpression resolves a trigger time expression to a Unix
// timestamp. Accepted forms, tried in order: a raw Unix timestamp, an
// absolute datetime ("2006-01-02 15:04:05", "2006-01-02T15:04:05",
// RFC 3339, or a bare date), a relative offset ("in 30m", "in 2 hours"),
// and the words "tomorrow" / "next week".
func (c *Clock) ParseTimeExpression(expr string, now time.Time) (int64, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return 0, fmt.Errorf("empty time expression")
	}

	// Raw Unix timestamp, sanity-bounded to one year ahead.
	if ts, err := strconv.ParseInt(expr, 10, 64); err == nil {
		if ts >= 0 && ts <= now.Unix()+365*24*3600 {
			return ts, nil
		}
		return 0, fmt.Errorf("timestamp %d out of range", ts)
	}

	// Absolute datetime. Layouts without a zone are taken in the clock's
	// timezone.
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if t, err := time.ParseInLocation(layout, expr, c.loc); err == nil {
			return t.Unix(), nil
		}
	}

	// Relative offset.
	if m := relativeRe.FindStringSubmatch(expr); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, fmt.Errorf("parse relative amount %q: %w", m[1], err)
		}
		var unit time.Duration
		switch strings.ToLower(m[2])[0] {
		case 's':
			unit = time.Second
		case 'm':
			unit = time.Minute
		case 'h':
			unit = time.Hour
		case 'd':
			unit = 24 * time.Hour
		case 'w':
			unit = 7 * 24 * time.Hour
		}
		return now.Add(time.Duration(n) * unit).Unix(), nil
	}

	switch strings.ToLower(expr) {
	case "tomorrow":
		return now.Unix() + 86400, nil
	case "next week":
		return now.Unix() + 604800, nil
	}

	return 0, fmt.Errorf("unrecognized time expression %q", expr)
}

// FormatRelative renders how long ago a timestamp was, in the coarsest
// sensible unit.
func FormatRelative(ts int64, now time.Time) string {
	diff := now.Unix() - ts
	if diff < 0 {
		diff = 0
	}
	switch {
	case diff < 60:
		return "just now"
	case diff < 3600:
		return plural(diff/60, "minute") + " ago"
	case diff < 86400:
		return plural(diff/3600, "hour") + " ago"
	case diff < 7*86400:
		return plural(diff/86400, "day") + " ago"
	case diff < 30*86400:
		return plural(diff/(7*86400), "week") + " ago"
	case diff < 365*86400:
		return plural(diff/(30*86400), "month") + " ago"
	default:
		return plural(diff/(365*86400), "year") + " ago"
	}
}

func plural(n int64, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
