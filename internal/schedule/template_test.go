package schedule

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2024-01-15 is a Monday.
var monday = Date{Year: 2024, Month: time.January, Day: 15}

func mondayMorning() Specialist {
	return Specialist{
		ID: uuid.New(),
		Template: WeeklyTemplate{
			time.Monday: {{Start: Clock(9, 0), End: Clock(11, 0)}},
		},
		SlotDurationMinutes: 30,
		AcceptingPatients:   true,
	}
}

func starts(slots []Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Start.String())
	}
	return out
}

func TestResolveSlots_MondayMorning(t *testing.T) {
	slots := ResolveSlots(mondayMorning(), monday, monday)

	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30"}, starts(slots))
	for _, s := range slots {
		assert.Equal(t, monday, s.Date)
		assert.Equal(t, 30, s.DurationMinutes)
	}
	assert.Equal(t, "11:00", slots[len(slots)-1].End().String())
}

func TestResolveSlots_EmptyCases(t *testing.T) {
	sp := mondayMorning()

	t.Run("closed weekday", func(t *testing.T) {
		assert.Empty(t, ResolveSlots(sp, monday.AddDays(1), monday))
	})

	t.Run("past date", func(t *testing.T) {
		assert.Empty(t, ResolveSlots(sp, monday, monday.AddDays(1)))
	})

	t.Run("non-positive duration", func(t *testing.T) {
		broken := sp
		broken.SlotDurationMinutes = 0
		assert.Empty(t, ResolveSlots(broken, monday, monday))
	})

	t.Run("no template", func(t *testing.T) {
		bare := sp
		bare.Template = nil
		assert.Empty(t, ResolveSlots(bare, monday, monday))
	})
}

func TestResolveSlots_SplitDayAndPartialTail(t *testing.T) {
	sp := Specialist{
		Template: WeeklyTemplate{
			time.Monday: {
				{Start: Clock(14, 0), End: Clock(15, 10)},
				{Start: Clock(9, 0), End: Clock(10, 0)},
			},
		},
		SlotDurationMinutes: 30,
	}

	// intervals are sorted; the 15:00 start would overrun 15:10 so it is dropped
	assert.Equal(t, []string{"09:00", "09:30", "14:00", "14:30"}, starts(ResolveSlots(sp, monday, monday)))
}

func TestResolveSlots_OverlappingIntervalsDoNotDuplicate(t *testing.T) {
	sp := Specialist{
		Template: WeeklyTemplate{
			time.Monday: {
				{Start: Clock(9, 0), End: Clock(10, 0)},
				{Start: Clock(9, 30), End: Clock(10, 30)},
			},
		},
		SlotDurationMinutes: 30,
	}

	assert.Equal(t, []string{"09:00", "09:30", "10:00"}, starts(ResolveSlots(sp, monday, monday)))
}

func TestDefaultTemplate_MatchesLegacyGrid(t *testing.T) {
	sp := Specialist{Template: DefaultTemplate(), SlotDurationMinutes: 30}

	assert.Equal(t, []string{
		"09:00", "09:30", "10:00", "10:30", "11:00", "11:30",
		"14:00", "14:30", "15:00", "15:30", "16:00", "16:30",
	}, starts(ResolveSlots(sp, monday, monday)))

	saturday := monday.AddDays(5)
	assert.Empty(t, ResolveSlots(sp, saturday, monday))
}

func TestOffers(t *testing.T) {
	sp := mondayMorning()

	assert.True(t, Offers(sp, monday, monday, Clock(9, 30)))
	assert.False(t, Offers(sp, monday, monday, Clock(9, 15)))
	assert.False(t, Offers(sp, monday, monday, Clock(11, 0)))
}

func TestWeeklyTemplate_JSON(t *testing.T) {
	raw := `{"monday":[{"start":"09:00","end":"11:00"}],"Friday":[{"start":"14:00","end":"16:00"}]}`

	var tpl WeeklyTemplate
	require.NoError(t, json.Unmarshal([]byte(raw), &tpl))

	assert.Equal(t, []Interval{{Start: Clock(9, 0), End: Clock(11, 0)}}, tpl[time.Monday])
	assert.Equal(t, []Interval{{Start: Clock(14, 0), End: Clock(16, 0)}}, tpl[time.Friday])

	out, err := json.Marshal(tpl)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"friday":[{"start":"14:00","end":"16:00"}]`)
}

func TestWeeklyTemplate_RejectsBadInput(t *testing.T) {
	var tpl WeeklyTemplate

	assert.Error(t, json.Unmarshal([]byte(`{"funday":[]}`), &tpl))
	assert.Error(t, json.Unmarshal([]byte(`{"monday":[{"start":"11:00","end":"09:00"}]}`), &tpl))
	assert.Error(t, json.Unmarshal([]byte(`{"monday":[{"start":"9am","end":"11:00"}]}`), &tpl))
}
