package schedule

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Interval is a half-open working period [Start, End).
type Interval struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

func (i Interval) Valid() bool { return i.Start < i.End }

// WeeklyTemplate maps each weekday to its working intervals.
// JSON form: {"monday":[{"start":"09:00","end":"11:30"}]}.
type WeeklyTemplate map[time.Weekday][]Interval

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func (w WeeklyTemplate) MarshalJSON() ([]byte, error) {
	out := make(map[string][]Interval, len(w))
	for day, intervals := range w {
		out[strings.ToLower(day.String())] = intervals
	}
	return json.Marshal(out)
}

func (w *WeeklyTemplate) UnmarshalJSON(b []byte) error {
	var raw map[string][]Interval
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	tpl := make(WeeklyTemplate, len(raw))
	for name, intervals := range raw {
		day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return fmt.Errorf("unknown weekday %q in template", name)
		}
		for _, iv := range intervals {
			if !iv.Valid() {
				return fmt.Errorf("interval %s-%s on %s ends before it starts", iv.Start, iv.End, name)
			}
		}
		tpl[day] = append(tpl[day], intervals...)
	}
	*w = tpl
	return nil
}

// DefaultTemplate is the weekday grid used when a specialist carries no template:
// 09:00-12:00 and 14:00-17:00, Monday to Friday.
func DefaultTemplate() WeeklyTemplate {
	day := []Interval{
		{Start: Clock(9, 0), End: Clock(12, 0)},
		{Start: Clock(14, 0), End: Clock(17, 0)},
	}
	tpl := WeeklyTemplate{}
	for d := time.Monday; d <= time.Friday; d++ {
		tpl[d] = append([]Interval(nil), day...)
	}
	return tpl
}

// Specialist is the read-only scheduling view of a care provider.
type Specialist struct {
	ID                  uuid.UUID      `json:"id"`
	Name                string         `json:"name,omitempty"`
	Specialty           string         `json:"specialty,omitempty"`
	Template            WeeklyTemplate `json:"weekly_template"`
	SlotDurationMinutes int            `json:"slot_duration_minutes"`
	AcceptingPatients   bool           `json:"accepting_patients"`
}

// Slot is a bookable unit derived from a specialist's template. Never stored.
type Slot struct {
	Date            Date      `json:"date"`
	Start           TimeOfDay `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
}

func (s Slot) End() TimeOfDay { return s.Start.Add(s.DurationMinutes) }

// ResolveSlots returns the ordered candidate grid for sp on date. Days before today,
// weekdays without hours and non-positive slot durations all yield an empty grid.
func ResolveSlots(sp Specialist, date, today Date) []Slot {
	if date.Before(today) || sp.SlotDurationMinutes <= 0 {
		return nil
	}
	intervals := mergeIntervals(sp.Template[date.Weekday()])
	if len(intervals) == 0 {
		return nil
	}

	step := sp.SlotDurationMinutes
	var slots []Slot
	for _, iv := range intervals {
		for start := iv.Start; start.Add(step) <= iv.End; start = start.Add(step) {
			slots = append(slots, Slot{Date: date, Start: start, DurationMinutes: step})
		}
	}
	return slots
}

// Offers reports whether t is one of the grid start times of sp on date.
func Offers(sp Specialist, date, today Date, t TimeOfDay) bool {
	for _, s := range ResolveSlots(sp, date, today) {
		if s.Start == t {
			return true
		}
	}
	return false
}

// mergeIntervals sorts and coalesces overlapping intervals, dropping invalid ones.
func mergeIntervals(in []Interval) []Interval {
	valid := make([]Interval, 0, len(in))
	for _, iv := range in {
		if iv.Valid() {
			valid = append(valid, iv)
		}
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i].Start < valid[j].Start })

	var out []Interval
	for _, iv := range valid {
		if n := len(out); n > 0 && iv.Start <= out[n-1].End {
			if iv.End > out[n-1].End {
				out[n-1].End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}
