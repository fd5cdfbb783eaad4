package tradingtime

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

const (
	DefaultTimezone = "Asia/Tokyo"
	DefaultBuffer   = 5 * time.Second
)

// DefaultBoundary is the time-of-day at which a new trading day starts.
var DefaultBoundary = TimeOfDay{Hour: 6}

// Calendar anchors wall-clock schedule times to absolute instants.
// Every instant it produces carries Location.
type Calendar struct {
	Location *time.Location
	Boundary TimeOfDay
	Buffer   time.Duration
}

func NewCalendar(loc *time.Location, boundary TimeOfDay, buffer time.Duration) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{Location: loc, Boundary: boundary, Buffer: buffer}
}

// NewCalendarFromConfig resolves the configured timezone and boundary.
func NewCalendarFromConfig(cfg Config) (*Calendar, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	boundary, err := ParseTime(cfg.DayBoundary)
	if err != nil {
		return nil, fmt.Errorf("trading day boundary: %w", err)
	}
	if cfg.Buffer < 0 {
		return nil, fmt.Errorf("schedule buffer must not be negative: %s", cfg.Buffer)
	}
	return NewCalendar(loc, boundary, cfg.Buffer), nil
}

// TradingDayOf returns midnight of the trading date t belongs to. Instants whose
// time-of-day falls before the boundary belong to the previous date.
func (c *Calendar) TradingDayOf(t time.Time) time.Time {
	lt := t.In(c.Location)
	day := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, c.Location)
	if Of(lt).Before(c.Boundary) {
		day = day.AddDate(0, 0, -1)
	}
	return day
}

// At combines a date with a time-of-day in the calendar location.
func (c *Calendar) At(day time.Time, tod TimeOfDay) time.Time {
	d := day.In(c.Location)
	return time.Date(d.Year(), d.Month(), d.Day(), tod.Hour, tod.Minute, tod.Second, 0, c.Location)
}

// WindowFor places entry and exit on the trading day of ref.
func (c *Calendar) WindowFor(entry, exit TimeOfDay, ref time.Time) Window {
	return c.WindowOn(c.TradingDayOf(ref), entry, exit)
}

// WindowOn places entry and exit on the date of day. An exit that is not after
// the entry on the same date moves to the next calendar date, so a DST change
// in between keeps the wall-clock times.
func (c *Calendar) WindowOn(day time.Time, entry, exit TimeOfDay) Window {
	entryAt := c.At(day, entry)
	exitAt := c.At(day, exit)
	if !exitAt.After(entryAt) {
		exitAt = c.At(day.AddDate(0, 0, 1), exit)
	}
	return Window{Entry: entryAt, Exit: exitAt, Buffer: c.Buffer}
}

// DateKey formats a trading day as YYYY-MM-DD.
func (c *Calendar) DateKey(t time.Time) string {
	return c.TradingDayOf(t).Format("2006-01-02")
}
