// Package backtest implements the BacktestDriver (spec §4.6): given a
// finite ordered bar sequence and a parameter set, it replays them through
// the same Engine state machine live trading uses, fed by a simulated
// broker, and reports a deterministic BacktestResult.
package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"meanrevert/internal/market"
)

// LoadCSV reads a generic OHLCV CSV (time|timestamp, open, high, low,
// close, volume headers, case-insensitive, RFC3339 or Unix-seconds
// timestamps), grounded directly on the teacher's backtest.go: loadCSV and
// parseTimeFlexible. Rows missing a required field are skipped rather than
// failing the whole load, matching the teacher's tolerance for messy CSVs.
func LoadCSV(path string) ([]market.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var out []market.Bar
	var headers []string
	rowIdx := 0

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if rowIdx == 0 {
			headers = rec
			rowIdx++
			continue
		}
		row := map[string]string{}
		for j, h := range headers {
			k := strings.ToLower(strings.TrimSpace(h))
			if j < len(rec) {
				row[k] = strings.TrimSpace(rec[j])
			}
		}
		ts := firstNonEmpty(row, "time", "timestamp")
		op := firstNonEmpty(row, "open")
		cp := firstNonEmpty(row, "close")
		if ts == "" || op == "" || cp == "" {
			continue
		}
		tt, err := parseTimeFlexible(ts)
		if err != nil {
			continue
		}
		o, _ := strconv.ParseFloat(op, 64)
		h, _ := strconv.ParseFloat(firstNonEmpty(row, "high"), 64)
		l, _ := strconv.ParseFloat(firstNonEmpty(row, "low"), 64)
		c, _ := strconv.ParseFloat(cp, 64)
		v, _ := strconv.ParseFloat(firstNonEmpty(row, "volume", "vol"), 64)
		out = append(out, market.Bar{Time: tt, Open: o, High: h, Low: l, Close: c, Volume: int64(v)})
		rowIdx++
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func parseTimeFlexible(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("backtest: bad time %q", s)
}

func firstNonEmpty(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := m[k]; v != "" {
			return v
		}
	}
	return ""
}
