package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const DateLayout = "2006-01-02"

// BlackoutWeekday is the one weekday nothing can be booked on.
const BlackoutWeekday = time.Saturday

// TimeSlots is the full universe of bookable labels, in day order.
var TimeSlots = []string{
	"9:00 AM", "10:00 AM", "11:00 AM", "12:00 PM",
	"1:00 PM", "2:00 PM", "3:00 PM", "4:00 PM", "5:00 PM",
}

var slotOrder = func() map[string]int {
	m := make(map[string]int, len(TimeSlots))
	for i, s := range TimeSlots {
		m[s] = i
	}
	return m
}()

func IsTimeSlot(label string) bool {
	_, ok := slotOrder[label]
	return ok
}

// SlotIndex orders labels within a day; unknown labels sort last.
func SlotIndex(label string) int {
	if i, ok := slotOrder[label]; ok {
		return i
	}
	return len(TimeSlots)
}

// Clock supplies "now". Tests pin it; production uses SystemClock.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// CalendarDate drops the time of day, keeping the calendar day t falls on
// in its own location, as midnight UTC.
func CalendarDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, validationError("date must be YYYY-MM-DD")
	}
	return d, nil
}

func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// checkBookableDate enforces the date floor (strictly after today in loc)
// and then the blackout weekday.
func checkBookableDate(date, now time.Time, loc *time.Location) error {
	today := CalendarDate(now.In(loc))
	if !date.After(today) {
		return ErrDateInPast
	}
	if date.Weekday() == BlackoutWeekday {
		return ErrBlackoutDay
	}
	return nil
}

// SlotKey names the lock guarding one (therapist, date, time) slot.
func SlotKey(therapistID uuid.UUID, date time.Time, label string) string {
	return fmt.Sprintf("%s:%s:%s", therapistID, FormatDate(date), label)
}

// availabilityVersionTTL outlives any cached view, so a version counter that
// expires and restarts at zero cannot resurrect an old entry.
const availabilityVersionTTL = 7 * 24 * time.Hour

// Cached views are keyed by a per-day version that every write bumps. A view
// computed before a write is stored under the old version and never read.
func availabilityKey(therapistID uuid.UUID, date time.Time, version int64) string {
	return fmt.Sprintf("availability:%s:%s:v%d", therapistID, FormatDate(date), version)
}

func availabilityVersionKey(therapistID uuid.UUID, date time.Time) string {
	return fmt.Sprintf("availability:%s:%s:version", therapistID, FormatDate(date))
}
