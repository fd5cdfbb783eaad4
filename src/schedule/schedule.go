package schedule

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"fxscheduler/src/model"
	"fxscheduler/src/tradingtime"
)

// Occurrence is an instruction placed on an absolute window.
type Occurrence struct {
	Index       int
	Instruction model.TradeInstruction
	Window      tradingtime.Window
}

// Key identifies the occurrence across entry and exit handling. Two occurrences
// of the same instruction on different trading days never share a key.
func (o Occurrence) Key() string {
	return fmt.Sprintf("%d@%s", o.Index, o.Window.Entry.Format(time.RFC3339))
}

func (o Occurrence) String() string {
	return fmt.Sprintf("#%s %s %s %s-%s lot:%s",
		o.Instruction.TradeNumber,
		o.Instruction.Symbol,
		o.Instruction.Side.Label(),
		o.Window.Entry.Format("01-02 15:04:05"),
		o.Window.Exit.Format("01-02 15:04:05"),
		o.Instruction.LotLabel(),
	)
}

// Schedule holds the instructions of the operating day and answers the
// temporal queries of the orchestration loop.
type Schedule struct {
	cal          *tradingtime.Calendar
	instructions []model.TradeInstruction
	rejected     []*RowError
}

func New(cal *tradingtime.Calendar, instructions []model.TradeInstruction) *Schedule {
	return &Schedule{cal: cal, instructions: append([]model.TradeInstruction(nil), instructions...)}
}

func (s *Schedule) Calendar() *tradingtime.Calendar {
	return s.cal
}

func (s *Schedule) Instructions() []model.TradeInstruction {
	return append([]model.TradeInstruction(nil), s.instructions...)
}

func (s *Schedule) Len() int {
	return len(s.instructions)
}

// Rejected lists the rows skipped while loading.
func (s *Schedule) Rejected() []*RowError {
	return s.rejected
}

// Symbols returns the distinct symbols in input order.
func (s *Schedule) Symbols() []string {
	seen := map[string]bool{}
	var out []string
	for _, ins := range s.instructions {
		if !seen[ins.Symbol] {
			seen[ins.Symbol] = true
			out = append(out, ins.Symbol)
		}
	}
	return out
}

// windowOn places ins on the trading day of ref shifted by days calendar
// dates.
func (s *Schedule) windowOn(ins model.TradeInstruction, ref time.Time, days int) tradingtime.Window {
	day := s.cal.TradingDayOf(ref).AddDate(0, 0, days)
	return s.cal.WindowOn(day, ins.Entry, ins.Exit)
}

// TradesForToday places every instruction on the trading day of now and rolls
// occurrences that already started forward by whole days, so no returned entry
// lies in the past. Ordered by entry, ties keep input order.
func (s *Schedule) TradesForToday(now time.Time) []Occurrence {
	out := make([]Occurrence, 0, len(s.instructions))
	for i, ins := range s.instructions {
		w := s.windowOn(ins, now, 0)
		for days := 1; w.Entry.Before(now); days++ {
			w = s.windowOn(ins, now, days)
		}
		out = append(out, Occurrence{Index: i, Instruction: ins, Window: w})
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Window.Entry.Before(out[b].Window.Entry)
	})
	return out
}

// around returns the occurrences of every instruction on the trading day of now
// and on both neighbouring days.
func (s *Schedule) around(now time.Time) []Occurrence {
	out := make([]Occurrence, 0, 3*len(s.instructions))
	for i, ins := range s.instructions {
		for _, days := range []int{-1, 0, 1} {
			out = append(out, Occurrence{Index: i, Instruction: ins, Window: s.windowOn(ins, now, days)})
		}
	}
	return out
}

// EntriesDue returns occurrences whose entry instant is within the buffer of now.
func (s *Schedule) EntriesDue(now time.Time) []Occurrence {
	var out []Occurrence
	for _, occ := range s.around(now) {
		if occ.Window.IsEntryPoint(now) {
			out = append(out, occ)
		}
	}
	return out
}

// ExitsDue returns occurrences whose exit instant is within the buffer of now.
func (s *Schedule) ExitsDue(now time.Time) []Occurrence {
	var out []Occurrence
	for _, occ := range s.around(now) {
		if occ.Window.IsExitPoint(now) {
			out = append(out, occ)
		}
	}
	return out
}

// ShouldEnter is true while now is within the buffer of any entry instant. It
// stays true across consecutive polls; callers guard against acting twice.
func (s *Schedule) ShouldEnter(now time.Time) bool {
	return len(s.EntriesDue(now)) > 0
}

func (s *Schedule) ShouldExit(now time.Time) bool {
	return len(s.ExitsDue(now)) > 0
}

// NextTrade is the first upcoming occurrence.
func (s *Schedule) NextTrade(now time.Time) (Occurrence, bool) {
	trades := s.TradesForToday(now)
	if len(trades) == 0 {
		return Occurrence{}, false
	}
	return trades[0], true
}

// ActiveTrades returns occurrences whose [entry, exit] window contains now.
func (s *Schedule) ActiveTrades(now time.Time) []Occurrence {
	seen := map[int]bool{}
	var out []Occurrence
	for _, occ := range s.around(now) {
		if seen[occ.Index] || !occ.Window.Contains(now) {
			continue
		}
		seen[occ.Index] = true
		out = append(out, occ)
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Window.Entry.Before(out[b].Window.Entry)
	})
	return out
}

// InSchedule reports whether any window is open at now.
func (s *Schedule) InSchedule(now time.Time) bool {
	return len(s.ActiveTrades(now)) > 0
}

// NearScheduleTime reports whether now is within buffer of any entry or exit.
func (s *Schedule) NearScheduleTime(now time.Time, buffer time.Duration) bool {
	for _, occ := range s.around(now) {
		w := occ.Window
		w.Buffer = buffer
		if w.IsEntryPoint(now) || w.IsExitPoint(now) {
			return true
		}
	}
	return false
}

// Describe renders the upcoming schedule for operators.
func (s *Schedule) Describe(now time.Time) string {
	trades := s.TradesForToday(now)
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Schedule for trading day %s\n", s.cal.DateKey(now)))
	if len(trades) == 0 {
		sb.WriteString("no trades scheduled\n")
		return sb.String()
	}
	for _, occ := range trades {
		sb.WriteString(occ.String())
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("total: %d", len(trades)))
	if len(s.rejected) > 0 {
		sb.WriteString(fmt.Sprintf(", rejected rows: %d", len(s.rejected)))
	}
	return sb.String()
}
