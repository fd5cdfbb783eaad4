package telegram

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"fxscheduler/src/controller"
	"fxscheduler/src/executors"
	"fxscheduler/src/model"
	"fxscheduler/src/report"
	"fxscheduler/src/schedule"
)

// Target is the runner the bot operates on.
type Target interface {
	Status() executors.Status
	Schedule() *schedule.Schedule
	Kill(ctx context.Context) (controller.CloseSummary, error)
	Stop(ctx context.Context) (controller.CloseSummary, error)
}

type resultSource interface {
	Results(date string) []model.TradeResult
}

type command struct {
	purpose string
	run     func(ctx context.Context, args []string) (string, error)
}

// Dispatcher maps slash commands to runner operations.
type Dispatcher struct {
	target   Target
	results  resultSource
	now      func() time.Time
	commands map[string]command
}

func NewDispatcher(target Target, results resultSource) *Dispatcher {
	d := &Dispatcher{target: target, results: results, now: time.Now}
	d.commands = map[string]command{
		"status":      {"Runner state and open positions", d.status},
		"positions":   {"Positions held by this process", d.positions},
		"schedule":    {"Upcoming trades of the trading day", d.schedule},
		"performance": {"Metrics of a trading date (default today)", d.performance},
		"kill":        {"Close every position, keep running", d.kill},
		"stop":        {"Close every position and stop", d.stop},
		"help":        {"List commands", d.help},
	}
	return d
}

// Names returns the command names, sorted.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.commands))
	for name := range d.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Dispatcher) Purpose(name string) string {
	return d.commands[name].purpose
}

// Handle runs one message such as "/performance 2024-03-12".
func (d *Dispatcher) Handle(ctx context.Context, text string) (string, error) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", fmt.Errorf("not a command, try /help")
	}
	name := strings.TrimPrefix(fields[0], "/")
	// "/status@my_bot" in group chats
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	cmd, ok := d.commands[strings.ToLower(name)]
	if !ok {
		return "", fmt.Errorf("unknown command /%s, try /help", name)
	}
	return cmd.run(ctx, fields[1:])
}

func (d *Dispatcher) help(context.Context, []string) (string, error) {
	var sb strings.Builder
	for _, name := range d.Names() {
		fmt.Fprintf(&sb, "/%s - %s\n", name, d.commands[name].purpose)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (d *Dispatcher) status(ctx context.Context, args []string) (string, error) {
	st := d.target.Status()
	var sb strings.Builder
	fmt.Fprintf(&sb, "trading day %s, %d instruction(s)\n", st.TradingDate, st.Instructions)
	if !st.LastTick.IsZero() {
		fmt.Fprintf(&sb, "last tick %s\n", st.LastTick.Format("15:04:05"))
	}
	if st.NextTrade != "" {
		fmt.Fprintf(&sb, "next: %s\n", st.NextTrade)
	}
	for _, a := range st.Active {
		fmt.Fprintf(&sb, "active: %s\n", a)
	}
	fmt.Fprintf(&sb, "open positions: %d", len(st.Positions))
	if st.Stopping {
		sb.WriteString("\nstopping")
	}
	return sb.String(), nil
}

func (d *Dispatcher) positions(context.Context, []string) (string, error) {
	positions := d.target.Status().Positions
	if len(positions) == 0 {
		return "no open positions", nil
	}
	var sb strings.Builder
	for _, p := range positions {
		fmt.Fprintf(&sb, "#%s %s %s %s @%s exit %s\n",
			p.TradeNumber, p.Symbol, p.Side.Label(), p.Size.String(),
			p.EntryPrice.String(), p.ScheduledExit.Format("15:04:05"))
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (d *Dispatcher) schedule(context.Context, []string) (string, error) {
	sched := d.target.Schedule()
	if sched == nil {
		return "no schedule loaded", nil
	}
	return sched.Describe(d.now()), nil
}

func (d *Dispatcher) performance(_ context.Context, args []string) (string, error) {
	date := d.target.Status().TradingDate
	if len(args) > 0 {
		if _, err := time.Parse("2006-01-02", args[0]); err != nil {
			return "", fmt.Errorf("invalid date %q, expected YYYY-MM-DD", args[0])
		}
		date = args[0]
	}
	return report.Compute(d.results.Results(date)).Format("Performance " + date), nil
}

func (d *Dispatcher) kill(ctx context.Context, _ []string) (string, error) {
	summary, err := d.target.Kill(ctx)
	if err != nil {
		return "", fmt.Errorf("kill: %s: %w", summary, err)
	}
	return "kill done: " + summary.String(), nil
}

func (d *Dispatcher) stop(ctx context.Context, _ []string) (string, error) {
	summary, err := d.target.Stop(ctx)
	if err != nil {
		return "", fmt.Errorf("stop: %s: %w", summary, err)
	}
	return "stopped: " + summary.String(), nil
}
