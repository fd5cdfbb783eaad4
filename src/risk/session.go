package risk

import (
	"time"
	_ "time/tzdata"
)

// Session is the liquidity period of the FX market at an instant, used to label
// entries in logs and notifications.
type Session string

const (
	SessionWeekend   Session = "weekend"
	SessionUSHoliday Session = "us_holiday"
	SessionDeadZone  Session = "dead_zone"
	SessionAsia      Session = "asia_session"
	SessionLondon    Session = "london_session"
	SessionUS        Session = "us_session"
)

var newYork = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SessionAt classifies t by New York wall time.
func SessionAt(t time.Time) Session {
	et := t.In(newYork)
	switch {
	case et.Weekday() == time.Saturday,
		et.Weekday() == time.Sunday && et.Hour() < 17,
		et.Weekday() == time.Friday && et.Hour() >= 17:
		return SessionWeekend
	case isUSHoliday(et):
		return SessionUSHoliday
	}

	h := et.Hour()
	switch {
	case h >= 17 && h < 20:
		return SessionDeadZone
	case h >= 20 || h < 3:
		return SessionAsia
	case h < 9:
		return SessionLondon
	default:
		return SessionUS
	}
}

// ThinLiquidity is true for periods where spreads are usually wide.
func (s Session) ThinLiquidity() bool {
	return s == SessionWeekend || s == SessionUSHoliday || s == SessionDeadZone
}

func isUSHoliday(t time.Time) bool {
	y := t.Year()
	holidays := []time.Time{
		observed(time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)),
		nthWeekday(y, time.January, time.Monday, 3),
		nthWeekday(y, time.February, time.Monday, 3),
		lastWeekday(y, time.May, time.Monday),
		observed(time.Date(y, time.July, 4, 0, 0, 0, 0, time.UTC)),
		nthWeekday(y, time.September, time.Monday, 1),
		nthWeekday(y, time.November, time.Thursday, 4),
		observed(time.Date(y, time.December, 25, 0, 0, 0, 0, time.UTC)),
	}
	key := t.Format("2006-01-02")
	for _, d := range holidays {
		if d.Format("2006-01-02") == key {
			return true
		}
	}
	return false
}

// observed moves a Sunday holiday to Monday.
func observed(d time.Time) time.Time {
	if d.Weekday() == time.Sunday {
		return d.AddDate(0, 0, 1)
	}
	return d
}

func nthWeekday(year int, month time.Month, wd time.Weekday, n int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(wd) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+(n-1)*7)
}

func lastWeekday(year int, month time.Month, wd time.Weekday) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
	offset := (int(last.Weekday()) - int(wd) + 7) % 7
	return last.AddDate(0, 0, -offset)
}
