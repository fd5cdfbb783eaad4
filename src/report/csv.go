package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"fxscheduler/src/model"
)

const timeLayout = "2006-01-02 15:04:05"

var header = []string{"date", "symbol", "side", "entry", "exit", "lot", "pips", "amount", "entry_time", "exit_time"}

// DailyCSV appends results to one CSV file per trading date:
// <dir>/daily_results_YYYY-MM-DD.csv.
type DailyCSV struct {
	dir string
	loc *time.Location
	mu  sync.Mutex
}

func NewDailyCSV(dir string, loc *time.Location) (*DailyCSV, error) {
	if dir == "" {
		return nil, errors.New("empty results dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &DailyCSV{dir: dir, loc: loc}, nil
}

func (c *DailyCSV) Path(date string) string {
	return filepath.Join(c.dir, fmt.Sprintf("daily_results_%s.csv", date))
}

func (c *DailyCSV) Append(r model.TradeResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.Path(r.TradingDate)
	_, statErr := os.Stat(path)
	isNew := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write(header); err != nil {
			return err
		}
	}
	rec := []string{
		r.TradingDate,
		r.Symbol,
		string(r.Side),
		r.EntryPrice.String(),
		r.ExitPrice.String(),
		r.Lot.String(),
		r.ProfitPips.StringFixed(1),
		r.ProfitAmount.StringFixed(0),
		r.EntryTime.In(c.loc).Format(timeLayout),
		r.ExitTime.In(c.loc).Format(timeLayout),
	}
	if err := w.Write(rec); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"component": "report",
		"file":      path,
		"symbol":    r.Symbol,
	}).Debug("Trade result appended")
	return nil
}

// ReadDay loads the results of one trading date. A missing file is an empty
// day.
func (c *DailyCSV) ReadDay(date string) ([]model.TradeResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.Open(c.Path(date))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.Path(date), err)
	}

	var out []model.TradeResult
	for i, row := range rows {
		if i == 0 && row[0] == header[0] {
			continue
		}
		res, err := c.parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", c.Path(date), i+1, err)
		}
		out = append(out, res)
	}
	return out, nil
}

func (c *DailyCSV) parseRow(row []string) (model.TradeResult, error) {
	res := model.TradeResult{TradingDate: row[0], Symbol: row[1], Side: model.Side(row[2])}
	decs := []*decimal.Decimal{&res.EntryPrice, &res.ExitPrice, &res.Lot, &res.ProfitPips, &res.ProfitAmount}
	for i, dst := range decs {
		v, err := decimal.NewFromString(row[3+i])
		if err != nil {
			return res, fmt.Errorf("column %s: %w", header[3+i], err)
		}
		*dst = v
	}
	var err error
	if res.EntryTime, err = time.ParseInLocation(timeLayout, row[8], c.loc); err != nil {
		return res, err
	}
	if res.ExitTime, err = time.ParseInLocation(timeLayout, row[9], c.loc); err != nil {
		return res, err
	}
	return res, nil
}
