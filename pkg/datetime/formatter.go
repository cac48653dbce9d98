package datetime

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Formatter struct {
	location *time.Location
}

func NewFormatter() *Formatter {
	return &Formatter{location: time.UTC}
}

// NewFormatterIn interprets timestamps without a zone in loc.
func NewFormatterIn(loc *time.Location) *Formatter {
	if loc == nil {
		loc = time.UTC
	}
	return &Formatter{location: loc}
}

var timestampFormats = []string{
	time.RFC3339Nano, // "2006-01-02T15:04:05.999999999Z07:00"
	time.RFC3339,     // "2006-01-02T15:04:05Z07:00"
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04", // datetime-local form input
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC1123Z,
	time.RFC1123,
	"Mon Jan 02 2006 15:04:05 GMT-0700",
	"2006/01/02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses an election timestamp. Unix milliseconds are
// accepted as digits-only strings.
func (f *Formatter) ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	if ms, ok := parseUnixMillis(value); ok {
		return time.UnixMilli(ms).UTC(), nil
	}

	// Strip the "(West Africa Standard Time)" suffix JS Date.toString adds.
	if i := strings.Index(value, " ("); i > 0 {
		value = value[:i]
	}

	for _, format := range timestampFormats {
		if parsed, err := time.ParseInLocation(format, value, f.location); err == nil {
			return parsed.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}

func parseUnixMillis(value string) (int64, bool) {
	if len(value) < 10 {
		return 0, false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false
	}
	return ms, true
}

// FormatCountdown renders the distance from now to t, e.g. "2d 3h",
// "5h 12m", "45s". Past instants render as "0s".
func (f *Formatter) FormatCountdown(now, t time.Time) string {
	d := t.Sub(now)
	if d <= 0 {
		return "0s"
	}

	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes := int(d / time.Minute)
	d -= time.Duration(minutes) * time.Minute
	seconds := int(d / time.Second)

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

func (f *Formatter) FormatForDisplay(t time.Time) string {
	return t.In(f.location).Format("January 2, 2006 at 3:04 PM MST")
}
