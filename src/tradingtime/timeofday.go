package tradingtime

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// FormatError reports a time string that cannot be turned into a TimeOfDay.
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid time %q: %s", e.Input, e.Reason)
}

// ParseTime accepts "H:M" or "H:M:S". Missing seconds default to zero.
func ParseTime(s string) (TimeOfDay, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return TimeOfDay{}, &FormatError{Input: s, Reason: "empty"}
	}

	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, &FormatError{Input: s, Reason: "expected H:M or H:M:S"}
	}

	values := [3]int{}
	for i, p := range parts {
		n, err := parseUnsigned(p)
		if err != nil {
			return TimeOfDay{}, &FormatError{Input: s, Reason: err.Error()}
		}
		values[i] = n
	}

	t := TimeOfDay{Hour: values[0], Minute: values[1], Second: values[2]}
	if t.Hour > 23 {
		return TimeOfDay{}, &FormatError{Input: s, Reason: "hour out of range"}
	}
	if t.Minute > 59 {
		return TimeOfDay{}, &FormatError{Input: s, Reason: "minute out of range"}
	}
	if t.Second > 59 {
		return TimeOfDay{}, &FormatError{Input: s, Reason: "second out of range"}
	}
	return t, nil
}

// MustParseTime is ParseTime for constants and tests.
func MustParseTime(s string) TimeOfDay {
	t, err := ParseTime(s)
	if err != nil {
		panic(err)
	}
	return t
}

func parseUnsigned(p string) (int, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return 0, fmt.Errorf("empty component")
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("non numeric component %q", p)
		}
	}
	return strconv.Atoi(p)
}

// Of returns the wall-clock time of t in its own location.
func Of(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}
}

// Offset is the duration since midnight.
func (t TimeOfDay) Offset() time.Duration {
	return time.Duration(t.Hour)*time.Hour +
		time.Duration(t.Minute)*time.Minute +
		time.Duration(t.Second)*time.Second
}

func (t TimeOfDay) Before(o TimeOfDay) bool {
	return t.Offset() < o.Offset()
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}
