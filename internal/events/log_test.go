package events

import (
	"testing"
	"time"

	"anchor-rebalancer/internal/engine"
	"anchor-rebalancer/internal/models"
)

func TestAppendAssignsMonotonicSeq(t *testing.T) {
	l := NewLog()
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		l.Append(models.NewEvent("pos-1", models.EventEvaluate, "t", ts, models.EvaluatePayload{}))
	}
	l.Append(models.NewEvent("pos-2", models.EventEvaluate, "t", ts, models.EvaluatePayload{}))

	evs := l.ForPosition("pos-1")
	if len(evs) != 3 {
		t.Fatalf("events = %d, want 3", len(evs))
	}
	for i, ev := range evs {
		if ev.Seq != int64(i+1) {
			t.Errorf("seq[%d] = %d, want %d", i, ev.Seq, i+1)
		}
		if ev.ID == "" {
			t.Errorf("event %d missing id", i)
		}
	}
	if got := l.ForPosition("pos-2")[0].Seq; got != 1 {
		t.Errorf("pos-2 seq = %d, want an independent sequence starting at 1", got)
	}
}

func TestSeedSeqContinuesPersistedHistory(t *testing.T) {
	l := NewLog()
	l.SeedSeq("pos-1", 41)

	ev := l.Append(models.NewEvent("pos-1", models.EventEvaluate, "t", time.Now(), models.EvaluatePayload{}))
	if ev.Seq != 42 {
		t.Errorf("seq = %d, want 42 after seeding 41", ev.Seq)
	}

	// seeding backwards never rewinds the sequence
	l.SeedSeq("pos-1", 10)
	if ev := l.Append(models.NewEvent("pos-1", models.EventEvaluate, "t", time.Now(), models.EvaluatePayload{})); ev.Seq != 43 {
		t.Errorf("seq = %d, want 43", ev.Seq)
	}
}

// Replaying the log over the seed snapshot must land on the exact live
// state, fills, dividends and anchor resets included.
func TestReplayRebuildsPositionState(t *testing.T) {
	l := NewLog()
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	seed := models.PositionCell{
		ID: "pos-1", TenantID: "t1", Symbol: "SPY",
		Qty: 50, Cash: 30000, AnchorPrice: 455, AvgCost: 450,
		CreatedAt: ts, UpdatedAt: ts,
	}
	live := seed.Clone()
	pol := models.OrderPolicyConfig{ResetAnchorOnFill: true}

	buy := models.Trade{OrderID: "o-1", PositionID: live.ID, Side: models.OrderSideBuy,
		Qty: 5.5, Price: 478.52, Commission: 0.26, ExecutedAt: ts.Add(time.Hour)}
	fr, err := engine.ApplyTrade(&live, buy, pol, "t-1")
	if err != nil {
		t.Fatalf("ApplyTrade: %v", err)
	}
	l.AppendAll(fr.Events)

	div := models.Dividend{ID: "d-1", Symbol: "SPY", DPS: 1.2, WithholdingTaxRate: 0.15,
		ExDate: ts.AddDate(0, 0, 3), PayDate: ts.AddDate(0, 0, 17)}
	_, rcv, evs, err := engine.ProcessDividendAccrual(&live, div, "t-2")
	if err != nil {
		t.Fatalf("ProcessDividendAccrual: %v", err)
	}
	l.AppendAll(evs)

	sell := models.Trade{OrderID: "o-2", PositionID: live.ID, Side: models.OrderSideSell,
		Qty: 10, Price: 490.10, Commission: 0.49, ExecutedAt: ts.AddDate(0, 0, 5)}
	fr, err = engine.ApplyTrade(&live, sell, pol, "t-3")
	if err != nil {
		t.Fatalf("ApplyTrade: %v", err)
	}
	l.AppendAll(fr.Events)

	evs, err = engine.ProcessDividendCredit(&live, rcv, div, pol, "t-4")
	if err != nil {
		t.Fatalf("ProcessDividendCredit: %v", err)
	}
	l.AppendAll(evs)

	evs, err = engine.ManualAnchorReset(&live, 500, "t-5", ts.AddDate(0, 0, 20))
	if err != nil {
		t.Fatalf("ManualAnchorReset: %v", err)
	}
	l.AppendAll(evs)

	replayed, err := Replay(seed, l.ForPosition(seed.ID))
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if replayed != live {
		t.Errorf("replayed state diverges from live state:\nreplayed: %+v\nlive:     %+v", replayed, live)
	}
}

func TestReplaySkipsDecisionEvents(t *testing.T) {
	ts := time.Now()
	seed := models.PositionCell{ID: "pos-1", Qty: 10, Cash: 1000, AnchorPrice: 100}

	evs := []models.Event{
		models.NewEvent(seed.ID, models.EventEvaluate, "t", ts, models.EvaluatePayload{Price: 106}),
		models.NewEvent(seed.ID, models.EventTrigger, "t", ts, models.TriggerPayload{Fired: true, Direction: models.TriggerUp}),
		models.NewEvent(seed.ID, models.EventGuardrail, "t", ts, models.GuardrailPayload{Allowed: false, Reason: "blocked"}),
		models.NewEvent(seed.ID, models.EventOrder, "t", ts, models.OrderPayload{Side: models.OrderSideBuy, Qty: 5}),
	}

	got, err := Replay(seed, evs)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if got != seed {
		t.Errorf("decision events must not change state: %+v", got)
	}
}
