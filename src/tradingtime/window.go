package tradingtime

import "time"

// Window is one absolute occurrence of a trade instruction.
type Window struct {
	Entry  time.Time
	Exit   time.Time
	Buffer time.Duration
}

// IsOpen reports whether now lies inside [entry-buffer, exit+buffer].
func (w Window) IsOpen(now time.Time) bool {
	return !now.Before(w.Entry.Add(-w.Buffer)) && !now.After(w.Exit.Add(w.Buffer))
}

// Contains reports whether now lies inside [entry, exit] without tolerance.
func (w Window) Contains(now time.Time) bool {
	return !now.Before(w.Entry) && !now.After(w.Exit)
}

func (w Window) IsEntryPoint(now time.Time) bool {
	return within(now, w.Entry, w.Buffer)
}

func (w Window) IsExitPoint(now time.Time) bool {
	return within(now, w.Exit, w.Buffer)
}

// Shift moves both instants by d.
func (w Window) Shift(d time.Duration) Window {
	return Window{Entry: w.Entry.Add(d), Exit: w.Exit.Add(d), Buffer: w.Buffer}
}

func (w Window) Duration() time.Duration {
	return w.Exit.Sub(w.Entry)
}

func within(now, target time.Time, buffer time.Duration) bool {
	diff := now.Sub(target)
	if diff < 0 {
		diff = -diff
	}
	return diff <= buffer
}
