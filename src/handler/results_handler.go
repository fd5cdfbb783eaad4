package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	logger "github.com/sirupsen/logrus"

	"fxscheduler/src/model"
	"fxscheduler/src/report"
)

type resultFinder interface {
	FindByTradingDate(ctx context.Context, date string) ([]model.TradeResult, error)
	Recent(ctx context.Context, limit int) ([]model.TradeResult, error)
}

type memoryResults interface {
	Results(date string) []model.TradeResult
}

type resultsResponse struct {
	Date    string              `json:"date,omitempty"`
	Metrics report.Metrics      `json:"metrics"`
	Results []model.TradeResult `json:"results"`
}

// ResultsHandler lists closed trades with their metrics. Supports date
// (YYYY-MM-DD) and limit. Without a database only the in-memory results of a
// date are available; today is the default date then.
func ResultsHandler(repo resultFinder, mem memoryResults, today func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date := r.URL.Query().Get("date")
		if date != "" {
			if _, err := time.Parse("2006-01-02", date); err != nil {
				http.Error(w, "invalid date", http.StatusBadRequest)
				return
			}
		}

		limit := 50
		if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
			parsed, err := strconv.Atoi(limitParam)
			if err != nil || parsed <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		var (
			results []model.TradeResult
			err     error
		)
		switch {
		case repo != nil && date != "":
			results, err = repo.FindByTradingDate(r.Context(), date)
		case repo != nil:
			results, err = repo.Recent(r.Context(), limit)
		default:
			if date == "" {
				date = today()
			}
			results = mem.Results(date)
		}
		if err != nil {
			logger.WithError(err).Error("failed to load trade results")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if results == nil {
			results = []model.TradeResult{}
		}

		writeJSON(w, http.StatusOK, resultsResponse{
			Date:    date,
			Metrics: report.Compute(results),
			Results: results,
		})
	}
}
