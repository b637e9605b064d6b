package series

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/quantfoundry/backtest/internal/types"
	"github.com/quantfoundry/backtest/pkg/errors"
)

var requiredColumns = []string{"time", "open", "high", "low", "close", "volume"}

// LoadCSV reads a bar series from a CSV file with a header row containing at
// least time, open, high, low, close, volume. Timestamps are RFC3339 or
// YYYY-MM-DD. Missing columns or unparsable rows are fatal data errors.
func LoadCSV(path, symbol string) (*Series, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeDataParseFailed, err, "failed to open %s", path)
	}
	defer file.Close()

	return ReadCSV(file, symbol)
}

// ReadCSV parses CSV bar data from a reader. Separated from LoadCSV so tests
// can feed in-memory data.
func ReadCSV(r io.Reader, symbol string) (*Series, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataParseFailed, "failed to read CSV header", err)
	}

	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[strings.ToLower(strings.TrimSpace(name))] = i
	}

	for _, col := range requiredColumns {
		if _, ok := colIdx[col]; !ok {
			return nil, errors.Newf(errors.ErrCodeMissingColumn, "required column %q not found in header", col)
		}
	}

	var bars []types.Bar

	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeDataParseFailed, err, "failed to read CSV row %d", row)
		}

		bar, err := parseBar(record, colIdx, symbol)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeDataParseFailed, err, "failed to parse CSV row %d", row)
		}

		bars = append(bars, bar)
		row++
	}

	return New(symbol, bars), nil
}

func parseBar(record []string, colIdx map[string]int, symbol string) (types.Bar, error) {
	field := func(name string) string {
		return strings.TrimSpace(record[colIdx[name]])
	}

	ts, err := parseTime(field("time"))
	if err != nil {
		return types.Bar{}, err
	}

	values := make(map[string]float64, 5)

	for _, name := range []string{"open", "high", "low", "close", "volume"} {
		v, err := strconv.ParseFloat(field(name), 64)
		if err != nil {
			return types.Bar{}, errors.Wrapf(errors.ErrCodeDataParseFailed, err, "invalid %s value %q", name, field(name))
		}

		values[name] = v
	}

	return types.Bar{
		Symbol: symbol,
		Time:   ts,
		Open:   values["open"],
		High:   values["high"],
		Low:    values["low"],
		Close:  values["close"],
		Volume: values["volume"],
	}, nil
}

func parseTime(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}

	return time.Time{}, errors.Newf(errors.ErrCodeDataParseFailed, "unrecognized timestamp %q", value)
}
