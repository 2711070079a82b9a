package dates

import "time"

// DayFormat is the wire format for attendance and leave dates.
const DayFormat = "2006-01-02"

// Day truncates t to day granularity in UTC. All attendance and leave
// comparisons happen on the truncated value.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string into a day-truncated time.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DayFormat, s)
	if err != nil {
		return time.Time{}, err
	}
	return Day(t), nil
}

// WeekdayLabel returns the English weekday name stored alongside each
// attendance row ("Monday", "Tuesday", ...).
func WeekdayLabel(t time.Time) string {
	return Day(t).Weekday().String()
}

// Today returns the current day truncated to day granularity.
func Today() time.Time {
	return Day(time.Now())
}
