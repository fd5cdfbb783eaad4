package schedule

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"fxscheduler/src/mapper"
	"fxscheduler/src/model"
	"fxscheduler/src/tradingtime"
)

// CommentMarker starts a row that is ignored.
const CommentMarker = "#"

// RowError is a schedule row that could not be loaded. Err is a
// *tradingtime.FormatError for bad times.
type RowError struct {
	Line int
	Raw  []string
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("schedule line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// LoadFile reads a schedule CSV from disk.
func LoadFile(path string, cal *tradingtime.Calendar) (*Schedule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open schedule %q: %w", path, err)
	}
	defer f.Close()
	return Load(f, cal)
}

// Load parses rows of [trade_number, direction, symbol, entry, exit, lot?].
// A leading header row is skipped. Malformed rows are logged and collected in
// Rejected; they never prevent the remaining rows from loading. The error is
// only set when the source itself cannot be read.
func Load(r io.Reader, cal *tradingtime.Calendar) (*Schedule, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	s := &Schedule{cal: cal}
	first := true
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				s.reject(&RowError{Line: pe.StartLine, Err: err})
				first = false
				continue
			}
			return nil, fmt.Errorf("read schedule: %w", err)
		}

		if skipRow(record) {
			continue
		}
		line, _ := reader.FieldPos(0)
		if first {
			first = false
			if isHeader(record) {
				continue
			}
		}

		ins, err := parseRow(record)
		if err != nil {
			s.reject(&RowError{Line: line, Raw: record, Err: err})
			continue
		}
		s.instructions = append(s.instructions, ins)
	}

	logger.WithFields(map[string]interface{}{
		"component":    "schedule",
		"instructions": len(s.instructions),
		"rejected":     len(s.rejected),
	}).Info("Schedule loaded")
	return s, nil
}

func (s *Schedule) reject(e *RowError) {
	logger.WithFields(map[string]interface{}{
		"component": "schedule",
		"line":      e.Line,
		"row":       strings.Join(e.Raw, ","),
	}).WithError(e.Err).Warn("Skipping malformed schedule row")
	s.rejected = append(s.rejected, e)
}

func skipRow(record []string) bool {
	if len(record) == 0 {
		return true
	}
	if strings.HasPrefix(strings.TrimSpace(record[0]), CommentMarker) {
		return true
	}
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// isHeader treats the first row as a header unless it looks like data: a
// known direction, or a time in the entry or exit column. A data-looking row
// with a broken field is rejected with a diagnostic instead of dropped.
func isHeader(record []string) bool {
	if len(record) > 1 {
		if _, err := model.ParseSide(record[1]); err == nil {
			return false
		}
	}
	for _, i := range []int{3, 4} {
		if len(record) > i {
			if _, err := tradingtime.ParseTime(record[i]); err == nil {
				return false
			}
		}
	}
	return true
}

func parseRow(record []string) (model.TradeInstruction, error) {
	if len(record) < 5 {
		return model.TradeInstruction{}, fmt.Errorf("expected at least 5 columns, got %d", len(record))
	}
	fields := make([]string, len(record))
	for i, f := range record {
		fields[i] = strings.TrimSpace(f)
	}
	for i, name := range []string{"trade_number", "direction", "symbol", "entry_time", "exit_time"} {
		if fields[i] == "" {
			return model.TradeInstruction{}, fmt.Errorf("%s is empty", name)
		}
	}

	side, err := model.ParseSide(fields[1])
	if err != nil {
		return model.TradeInstruction{}, err
	}
	symbol, err := mapper.NormalizeSymbol(fields[2])
	if err != nil {
		return model.TradeInstruction{}, err
	}
	entry, err := tradingtime.ParseTime(fields[3])
	if err != nil {
		return model.TradeInstruction{}, err
	}
	exit, err := tradingtime.ParseTime(fields[4])
	if err != nil {
		return model.TradeInstruction{}, err
	}

	ins := model.TradeInstruction{
		TradeNumber: fields[0],
		Side:        side,
		Symbol:      symbol,
		Entry:       entry,
		Exit:        exit,
	}

	if len(fields) > 5 {
		lot, err := parseLot(fields[5])
		if err != nil {
			return model.TradeInstruction{}, err
		}
		ins.Lot = lot
	}
	return ins, nil
}

func parseLot(raw string) (*decimal.Decimal, error) {
	switch strings.ToLower(raw) {
	case "", "auto", "自動":
		return nil, nil
	}
	lot, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid lot size %q", raw)
	}
	if !lot.IsPositive() {
		return nil, fmt.Errorf("lot size must be positive, got %s", raw)
	}
	return &lot, nil
}
