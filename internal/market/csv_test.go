package market

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"anchor-rebalancer/internal/errors"
	"anchor-rebalancer/internal/models"
)

func writeBars(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bars.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadCandlesCSV(t *testing.T) {
	path := writeBars(t, `timestamp,open,high,low,close,volume
2024-03-01,100.0,102.5,99.5,101.0,50000
2024-03-04 16:00:00,101.0,106.8,100.9,106.0,61000
`)

	bars, err := LoadCandlesCSV(path)
	if err != nil {
		t.Fatalf("LoadCandlesCSV: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("bars = %d, want 2 (header skipped)", len(bars))
	}
	if bars[0].Close != 101 || bars[0].Volume != 50000 {
		t.Errorf("bar[0] = %+v", bars[0])
	}
	want := time.Date(2024, 3, 4, 16, 0, 0, 0, time.UTC)
	if !bars[1].Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", bars[1].Timestamp, want)
	}
}

func TestLoadCandlesCSVWithoutHeader(t *testing.T) {
	path := writeBars(t, "2024-03-01,100,102.5,99.5,101,50000\n")

	bars, err := LoadCandlesCSV(path)
	if err != nil {
		t.Fatalf("LoadCandlesCSV: %v", err)
	}
	if len(bars) != 1 {
		t.Errorf("bars = %d, want 1", len(bars))
	}
}

func TestLoadCandlesCSVRejectsBadRows(t *testing.T) {
	if _, err := LoadCandlesCSV(writeBars(t, "2024-03-01,100,102.5\n")); err == nil {
		t.Error("short row must fail")
	}
	if _, err := LoadCandlesCSV(writeBars(t, "2024-03-01,abc,102.5,99.5,101,50000\n")); err == nil {
		t.Error("non-numeric price must fail")
	}
	if _, err := LoadCandlesCSV(writeBars(t, "header,o,h,l,c,v\nnot-a-date,100,102.5,99.5,101,50000\n")); err == nil {
		t.Error("bad timestamp past the header must fail")
	}
}

func TestCheckFresh(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	quote := &models.Quote{Symbol: "SPY", Price: 100, Timestamp: now.Add(-30 * time.Second)}

	if err := CheckFresh(quote, now, time.Minute); err != nil {
		t.Errorf("fresh quote rejected: %v", err)
	}
	if err := CheckFresh(quote, now.Add(2*time.Minute), time.Minute); !errors.Is(err, errors.ErrStaleQuote) {
		t.Errorf("got %v, want stale quote", err)
	}
	// zero max age disables the check
	if err := CheckFresh(quote, now.Add(time.Hour), 0); err != nil {
		t.Errorf("disabled check rejected: %v", err)
	}
}

func TestBarSourceIterates(t *testing.T) {
	bars := []models.Candle{
		{Timestamp: time.Date(2024, 3, 1, 16, 0, 0, 0, time.UTC), Close: 101},
		{Timestamp: time.Date(2024, 3, 4, 16, 0, 0, 0, time.UTC), Close: 106},
	}
	src := NewBarSource("SPY", bars)
	ctx := context.Background()

	q, ok, err := src.Next(ctx)
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if q.Symbol != "SPY" || q.Price != 101 || q.Session != models.SessionRegular {
		t.Errorf("quote = %+v", q)
	}

	if _, ok, _ := src.Next(ctx); !ok {
		t.Fatal("second bar missing")
	}
	if _, ok, _ := src.Next(ctx); ok {
		t.Error("exhausted source must report ok=false")
	}
}

func TestReplayProviderServesBarsAsLiveQuotes(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	p := NewReplayProvider(func() time.Time { return now })
	ctx := context.Background()

	if _, err := p.GetQuote(ctx, "SPY"); !errors.IsTransient(err) {
		t.Errorf("got %v, want transient error for missing series", err)
	}

	p.AddSeries("SPY", []models.Candle{
		{Timestamp: time.Date(2024, 2, 1, 16, 0, 0, 0, time.UTC), Close: 101},
		{Timestamp: time.Date(2024, 2, 2, 16, 0, 0, 0, time.UTC), Close: 106},
	})

	for i, want := range []float64{101, 106, 106} { // last bar repeats once exhausted
		q, err := p.GetQuote(ctx, "SPY")
		if err != nil {
			t.Fatalf("GetQuote %d: %v", i, err)
		}
		if q.Price != want {
			t.Errorf("poll %d price = %v, want %v", i, q.Price, want)
		}
		// stamped with the clock, not the bar's historical timestamp
		if !q.Timestamp.Equal(now) {
			t.Errorf("poll %d timestamp = %v, want %v", i, q.Timestamp, now)
		}
	}
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider()
	ctx := context.Background()

	if _, err := p.GetQuote(ctx, "SPY"); !errors.IsTransient(err) {
		t.Errorf("got %v, want transient error for missing symbol", err)
	}

	p.SetQuote(models.Quote{Symbol: "SPY", Price: 455, Session: models.SessionRegular})
	q, err := p.GetQuote(ctx, "SPY")
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if q.Price != 455 {
		t.Errorf("price = %v, want 455", q.Price)
	}
}
