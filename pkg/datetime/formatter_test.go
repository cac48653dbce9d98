package datetime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	f := NewFormatter()
	want := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	inputs := []string{
		"2026-03-01T09:30:00Z",
		"2026-03-01T10:30:00+01:00",
		"2026-03-01T09:30:00.000Z",
		"2026-03-01T09:30",
		"2026-03-01 09:30:00",
		"1772357400000",
		"Sun Mar 01 2026 10:30:00 GMT+0100 (West Africa Standard Time)",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			got, err := f.ParseTimestamp(in)
			require.NoError(t, err)
			assert.True(t, want.Equal(got), "got %s", got)
		})
	}
}

func TestParseTimestampRejectsOverlongMillis(t *testing.T) {
	f := NewFormatter()

	got, err := f.ParseTimestamp("99999999999999999999")
	assert.Error(t, err)
	assert.True(t, got.IsZero())

	_, ok := parseUnixMillis("9223372036854775807")
	assert.True(t, ok, "max int64 still parses")
	_, ok = parseUnixMillis("9223372036854775808")
	assert.False(t, ok)
}

func TestParseTimestampInLocation(t *testing.T) {
	lagos := time.FixedZone("WAT", 3600)
	f := NewFormatterIn(lagos)

	got, err := f.ParseTimestamp("2026-03-01T10:30")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC), got)
}

func TestParseTimestampRejectsGarbage(t *testing.T) {
	f := NewFormatter()

	_, err := f.ParseTimestamp("")
	assert.Error(t, err)

	_, err = f.ParseTimestamp("next tuesday")
	assert.Error(t, err)
}

func TestFormatCountdown(t *testing.T) {
	f := NewFormatter()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, "0s", f.FormatCountdown(now, now.Add(-time.Minute)))
	assert.Equal(t, "45s", f.FormatCountdown(now, now.Add(45*time.Second)))
	assert.Equal(t, "3m 5s", f.FormatCountdown(now, now.Add(3*time.Minute+5*time.Second)))
	assert.Equal(t, "2h 5m", f.FormatCountdown(now, now.Add(2*time.Hour+5*time.Minute)))
	assert.Equal(t, "1d 4h", f.FormatCountdown(now, now.Add(28*time.Hour)))
}
