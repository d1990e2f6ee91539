package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, Date{Year: 2024, Month: time.February, Day: 29}, d)
	assert.Equal(t, "2024-02-29", d.String())
	assert.Equal(t, time.Thursday, d.Weekday())

	for _, bad := range []string{"", "2024-13-01", "2023-02-29", "15/01/2024", "tomorrow"} {
		_, err := ParseDate(bad)
		assert.Truef(t, errors.Is(err, ErrInvalidDate), "expected ErrInvalidDate for %q", bad)
	}
}

func TestDate_Ordering(t *testing.T) {
	d := Date{Year: 2024, Month: time.December, Day: 31}

	assert.Equal(t, Date{Year: 2025, Month: time.January, Day: 1}, d.AddDays(1))
	assert.True(t, d.Before(d.AddDays(1)))
	assert.False(t, d.Before(d))
}

func TestToday_UsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	now := time.Date(2024, 1, 15, 20, 0, 0, 0, time.UTC)

	assert.Equal(t, Date{Year: 2024, Month: time.January, Day: 15}, Today(now, time.UTC))
	assert.Equal(t, Date{Year: 2024, Month: time.January, Day: 16}, Today(now, loc))
	assert.Equal(t, Today(now, time.UTC), Today(now, nil))
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, Clock(9, 30), tod)
	assert.Equal(t, 9, tod.Hour())
	assert.Equal(t, 30, tod.Minute())
	assert.Equal(t, "09:30", tod.String())
	assert.Equal(t, 9*time.Hour+30*time.Minute, tod.Duration())
	assert.Equal(t, tod, TimeOfDayFromDuration(tod.Duration()))

	for _, bad := range []string{"", "9:30", "24:00", "12:60", "ab:cd", "09:30:00"} {
		_, err := ParseTimeOfDay(bad)
		assert.Truef(t, errors.Is(err, ErrInvalidTime), "expected ErrInvalidTime for %q", bad)
	}
}

func TestTextRoundTrip(t *testing.T) {
	var d Date
	require.NoError(t, d.UnmarshalText([]byte("2024-01-15")))
	b, _ := d.MarshalText()
	assert.Equal(t, "2024-01-15", string(b))

	var tod TimeOfDay
	require.NoError(t, tod.UnmarshalText([]byte("16:30")))
	b, _ = tod.MarshalText()
	assert.Equal(t, "16:30", string(b))
	assert.Error(t, tod.UnmarshalText([]byte("4pm")))
}
