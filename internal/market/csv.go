package market

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"anchor-rebalancer/internal/models"
)

// LoadCandlesCSV reads a historical bar file with the columns
// timestamp,open,high,low,close,volume. The first row is treated as a
// header if it does not parse as a timestamp.
func LoadCandlesCSV(path string) ([]models.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening bars file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading bars file: %w", err)
	}

	var bars []models.Candle
	for i, rec := range records {
		if len(rec) < 6 {
			return nil, fmt.Errorf("row %d: expected 6 columns, got %d", i+1, len(rec))
		}
		ts, err := parseTimestamp(rec[0])
		if err != nil {
			if i == 0 {
				continue // header row
			}
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		bar := models.Candle{Timestamp: ts}
		fields := []*float64{&bar.Open, &bar.High, &bar.Low, &bar.Close}
		for j, dst := range fields {
			v, err := strconv.ParseFloat(rec[j+1], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d col %d: %w", i+1, j+2, err)
			}
			*dst = v
		}
		vol, err := strconv.ParseInt(rec[5], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d volume: %w", i+1, err)
		}
		bar.Volume = vol
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
