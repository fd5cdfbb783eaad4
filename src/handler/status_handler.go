package handler

import (
	"context"
	"net/http"
	"os"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/process"
	logger "github.com/sirupsen/logrus"

	"fxscheduler/src/auth"
	"fxscheduler/src/executors"
	"fxscheduler/src/model"
)

type statusSource interface {
	Status() executors.Status
}

type balanceSource interface {
	Name() string
	GetBalance(ctx context.Context) (model.Balance, error)
}

// SystemStats is the host footprint of the process.
type SystemStats struct {
	RSSBytes      uint64  `json:"rss_bytes"`
	DiskFreeBytes uint64  `json:"disk_free_bytes"`
	DiskUsedPct   float64 `json:"disk_used_percent"`
}

// readSystemStats is replaced in tests.
var readSystemStats = defaultReadSystemStats

func defaultReadSystemStats(ctx context.Context) (SystemStats, error) {
	var stats SystemStats
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return stats, err
	}
	mem, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return stats, err
	}
	stats.RSSBytes = mem.RSS

	usage, err := disk.UsageWithContext(ctx, ".")
	if err != nil {
		return stats, err
	}
	stats.DiskFreeBytes = usage.Free
	stats.DiskUsedPct = usage.UsedPercent
	return stats, nil
}

type statusResponse struct {
	Operator string           `json:"operator,omitempty"`
	Broker   string           `json:"broker"`
	Balance  *model.Balance   `json:"balance,omitempty"`
	Runner   executors.Status `json:"runner"`
	System   *SystemStats     `json:"system,omitempty"`
	Errors   []string         `json:"errors,omitempty"`
}

// StatusHandler reports the runner state, the broker balance and the host
// footprint. Broker and host failures are reported inline, the endpoint itself
// stays up.
func StatusHandler(runner statusSource, broker balanceSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := statusResponse{
			Broker: broker.Name(),
			Runner: runner.Status(),
		}
		if op, ok := auth.GetOperatorFromContext(r.Context()); ok && op != nil {
			resp.Operator = op.Name
		}

		if balance, err := broker.GetBalance(r.Context()); err != nil {
			logger.WithError(err).Warn("status: balance unavailable")
			resp.Errors = append(resp.Errors, "balance: "+err.Error())
		} else {
			resp.Balance = &balance
		}

		if stats, err := readSystemStats(r.Context()); err != nil {
			resp.Errors = append(resp.Errors, "system: "+err.Error())
		} else {
			resp.System = &stats
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
