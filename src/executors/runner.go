package executors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"fxscheduler/src/controller"
	"fxscheduler/src/model"
	"fxscheduler/src/notify"
	"fxscheduler/src/report"
	"fxscheduler/src/risk"
	"fxscheduler/src/schedule"
	"fxscheduler/src/tradingtime"
)

// ScheduleLoader reads the schedule from its source.
type ScheduleLoader func() (*schedule.Schedule, error)

var ErrStopped = errors.New("runner stopped")

// Runner is the orchestration loop. Every tick it dispatches the entry and
// exit protocols that are due, each at most once per occurrence.
type Runner struct {
	cfg      Config
	lc       *controller.Lifecycle
	results  *controller.ResultRecorder
	load     ScheduleLoader
	clock    tradingtime.Clock
	cal      *tradingtime.Calendar
	notifier notify.Notifier

	mu        sync.Mutex
	sched     *schedule.Schedule
	done      map[string]time.Time
	day       string
	startedAt time.Time
	lastTick  time.Time
	stopping  bool
	cancel    context.CancelFunc

	inflight sync.WaitGroup
	log      *logger.Entry
}

func NewRunner(
	cfg Config,
	lc *controller.Lifecycle,
	results *controller.ResultRecorder,
	load ScheduleLoader,
	clock tradingtime.Clock,
	cal *tradingtime.Calendar,
	notifier notify.Notifier,
) *Runner {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Runner{
		cfg:      cfg,
		lc:       lc,
		results:  results,
		load:     load,
		clock:    clock,
		cal:      cal,
		notifier: notifier,
		done:     map[string]time.Time{},
		log:      logger.WithField("component", "runner"),
	}
}

// Load (re)reads the schedule. On failure the previous schedule stays active.
func (r *Runner) Load(ctx context.Context) error {
	sched, err := r.load()
	if err != nil {
		notify.Notifyf(ctx, r.notifier, "[SCHEDULE] reload failed, keeping the previous schedule: %v", err)
		return err
	}
	if rejected := sched.Rejected(); len(rejected) > 0 {
		lines := make([]string, 0, len(rejected))
		for _, re := range rejected {
			lines = append(lines, re.Error())
		}
		notify.Notifyf(ctx, r.notifier, "[SCHEDULE] %d row(s) skipped:\n%s", len(rejected), strings.Join(lines, "\n"))
	}

	r.mu.Lock()
	r.sched = sched
	r.mu.Unlock()

	r.log.WithFields(map[string]interface{}{
		"instructions": sched.Len(),
		"symbols":      sched.Symbols(),
	}).Info("Schedule active")
	return nil
}

func (r *Runner) Schedule() *schedule.Schedule {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sched
}

func (r *Runner) Lifecycle() *controller.Lifecycle {
	return r.lc
}

func (r *Runner) Results() *controller.ResultRecorder {
	return r.results
}

// Run loads the schedule and ticks until ctx is cancelled or Stop is called.
// Open positions are left untouched on return.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	r.cancel = cancel
	r.startedAt = r.clock.Now()
	r.mu.Unlock()

	if err := r.Load(ctx); err != nil {
		return fmt.Errorf("load schedule: %w", err)
	}
	r.mu.Lock()
	r.day = r.cal.DateKey(r.clock.Now())
	r.mu.Unlock()

	var background sync.WaitGroup
	background.Add(2)
	go func() {
		defer background.Done()
		r.lc.Monitor(ctx)
	}()
	go func() {
		defer background.Done()
		r.sweepLoop(ctx)
	}()

	notify.Notifyf(ctx, r.notifier, "[START] %d instruction(s), broker %s", r.Schedule().Len(), r.lc.Broker().Name())
	r.log.WithField("period", r.cfg.LoopPeriod).Info("Runner started")

	ticker := time.NewTicker(r.cfg.LoopPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("Runner stopping, waiting for in-flight protocols")
			r.inflight.Wait()
			r.lc.Wait()
			background.Wait()
			r.log.Info("Runner stopped")
			return nil
		case <-ticker.C:
			if err := r.safeTick(ctx); err != nil {
				r.log.WithError(err).Error("Tick failed, backing off")
				select {
				case <-ctx.Done():
				case <-time.After(r.cfg.ErrorBackoff):
				}
			}
		}
	}
}

func (r *Runner) safeTick(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in tick: %v", rec)
		}
		if err != nil {
			controller.Capture(ctx, newExceptionRepo(), controller.Service, "runner", "Tick", controller.LevelError, err, nil)
		}
	}()
	return r.Tick(ctx)
}

// Tick runs one pass of the loop at the clock's current instant.
func (r *Runner) Tick(ctx context.Context) error {
	now := r.clock.Now()

	r.mu.Lock()
	stopping := r.stopping
	r.lastTick = now
	r.mu.Unlock()
	if stopping {
		return nil
	}

	r.rollover(ctx, now)

	sched := r.Schedule()
	if sched == nil {
		return errors.New("no schedule loaded")
	}

	for _, occ := range sched.EntriesDue(now) {
		if !r.markOnce("entry:"+occ.Key(), now) {
			continue
		}
		if r.cfg.SkipThinLiquidity {
			if session := risk.SessionAt(occ.Window.Entry); session.ThinLiquidity() {
				r.log.WithField("occurrence", occ.String()).Warn("Thin liquidity, entry skipped")
				notify.Notifyf(ctx, r.notifier, "[SKIP] %s: %s", occ, session)
				continue
			}
		}
		r.dispatch(ctx, "entry", occ, r.lc.Enter)
	}
	for _, occ := range sched.ExitsDue(now) {
		if !r.markOnce("exit:"+occ.Key(), now) {
			continue
		}
		r.dispatch(ctx, "exit", occ, r.lc.Exit)
	}
	return nil
}

// markOnce records key and reports whether it was new.
func (r *Runner) markOnce(key string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.done[key]; ok {
		return false
	}
	r.done[key] = now
	return true
}

func (r *Runner) dispatch(ctx context.Context, kind string, occ schedule.Occurrence, protocol func(context.Context, schedule.Occurrence) error) {
	log := r.log.WithFields(map[string]interface{}{
		"protocol":   kind,
		"occurrence": occ.String(),
	})
	log.Info("Dispatching")

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		defer func() {
			if rec := recover(); rec != nil {
				err := fmt.Errorf("panic in %s protocol: %v", kind, rec)
				controller.Capture(ctx, newExceptionRepo(), controller.Service, "runner", kind, controller.LevelCritical, err, map[string]interface{}{
					"symbol":       occ.Instruction.Symbol,
					"trade_number": occ.Instruction.TradeNumber,
				})
			}
		}()
		if err := protocol(ctx, occ); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Warn("Protocol finished with error")
		}
	}()
}

// Wait blocks until every dispatched protocol has returned.
func (r *Runner) Wait() {
	r.inflight.Wait()
}

// rollover runs once when the trading day changes: daily summary, schedule
// reload and pruning of old markers.
func (r *Runner) rollover(ctx context.Context, now time.Time) {
	day := r.cal.DateKey(now)

	r.mu.Lock()
	prev := r.day
	if prev == day {
		r.mu.Unlock()
		return
	}
	r.day = day
	for key, at := range r.done {
		if now.Sub(at) > r.cfg.GuardRetention {
			delete(r.done, key)
		}
	}
	r.mu.Unlock()

	if prev == "" {
		return
	}
	r.log.WithFields(map[string]interface{}{
		"previous": prev,
		"current":  day,
	}).Info("Trading day rollover")

	if r.results != nil {
		m := report.Compute(r.results.Results(prev))
		r.notifier.Notify(ctx, m.Format("[DAILY] "+prev))
		r.results.Prune(day)
	}
	if err := r.Load(ctx); err != nil {
		r.log.WithError(err).Error("Schedule reload failed")
	}
}

func (r *Runner) sweepLoop(ctx context.Context) {
	interval := r.lc.Config().PositionCheckInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sched := r.Schedule()
			if sched == nil {
				continue
			}
			if _, err := r.lc.SweepOutOfSchedule(ctx, sched); err != nil {
				r.log.WithError(err).Warn("Out-of-schedule sweep failed")
			}
		}
	}
}

// Kill closes every position and keeps the loop running.
func (r *Runner) Kill(ctx context.Context) (controller.CloseSummary, error) {
	return r.lc.CloseAll(ctx, model.CloseReasonKill)
}

// Stop closes every position, then ends Run.
func (r *Runner) Stop(ctx context.Context) (controller.CloseSummary, error) {
	r.mu.Lock()
	r.stopping = true
	cancel := r.cancel
	r.mu.Unlock()

	summary, err := r.lc.CloseAll(ctx, model.CloseReasonKill)
	if cancel != nil {
		cancel()
	}
	return summary, err
}

// Status is a point-in-time view of the runner for operators.
type Status struct {
	StartedAt    time.Time                 `json:"started_at"`
	LastTick     time.Time                 `json:"last_tick"`
	TradingDate  string                    `json:"trading_date"`
	Instructions int                       `json:"instructions"`
	NextTrade    string                    `json:"next_trade,omitempty"`
	Active       []string                  `json:"active,omitempty"`
	Positions    []model.MonitoredPosition `json:"positions"`
	Stopping     bool                      `json:"stopping"`
}

func (r *Runner) Status() Status {
	now := r.clock.Now()
	r.mu.Lock()
	st := Status{
		StartedAt:   r.startedAt,
		LastTick:    r.lastTick,
		TradingDate: r.cal.DateKey(now),
		Stopping:    r.stopping,
	}
	sched := r.sched
	r.mu.Unlock()

	if sched != nil {
		st.Instructions = sched.Len()
		if next, ok := sched.NextTrade(now); ok {
			st.NextTrade = next.String()
		}
		for _, occ := range sched.ActiveTrades(now) {
			st.Active = append(st.Active, occ.String())
		}
	}
	st.Positions = r.lc.Positions().Snapshot()
	return st
}
