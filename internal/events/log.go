// Package events provides the append-only audit log and state replay.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"anchor-rebalancer/internal/models"
)

// Log is an in-memory arena of immutable events keyed by position id and
// sequence number. Records are never mutated or deleted; they are the sole
// source of historical reconstruction.
type Log struct {
	mu      sync.RWMutex
	entries map[string][]models.Event
	lastSeq map[string]int64
}

// NewLog creates an empty event log.
func NewLog() *Log {
	return &Log{
		entries: make(map[string][]models.Event),
		lastSeq: make(map[string]int64),
	}
}

// SeedSeq sets the last used sequence number for a position, so a process
// resuming from a persisted history continues the sequence instead of
// restarting it.
func (l *Log) SeedSeq(positionID string, lastSeq int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lastSeq > l.lastSeq[positionID] {
		l.lastSeq[positionID] = lastSeq
	}
}

// Append assigns an id and the next per-position sequence number, then
// stores the event. Returns the stored copy.
func (l *Log) Append(ev models.Event) models.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	ev.ID = uuid.NewString()
	l.lastSeq[ev.PositionID]++
	ev.Seq = l.lastSeq[ev.PositionID]
	l.entries[ev.PositionID] = append(l.entries[ev.PositionID], ev)
	return ev
}

// AppendAll appends a batch in order, preserving relative sequence.
func (l *Log) AppendAll(evs []models.Event) []models.Event {
	out := make([]models.Event, 0, len(evs))
	for _, ev := range evs {
		out = append(out, l.Append(ev))
	}
	return out
}

// ForPosition returns a copy of all events for a position in sequence
// order.
func (l *Log) ForPosition(positionID string) []models.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	src := l.entries[positionID]
	out := make([]models.Event, len(src))
	copy(out, src)
	return out
}

// Len returns the number of events stored for a position.
func (l *Log) Len(positionID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries[positionID])
}

// Replay rebuilds position state by applying every state-changing event to
// the seed snapshot the position was created with. Evaluation, trigger,
// guardrail and order events carry no state changes and are skipped.
func Replay(seed models.PositionCell, evs []models.Event) (models.PositionCell, error) {
	pos := seed
	for _, ev := range evs {
		if err := apply(&pos, ev); err != nil {
			return seed, fmt.Errorf("replaying event seq %d: %w", ev.Seq, err)
		}
	}
	return pos, nil
}

func apply(pos *models.PositionCell, ev models.Event) error {
	switch ev.Type {
	case models.EventFill:
		var p models.FillPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		return applyFill(pos, p, ev.Timestamp)
	case models.EventDividend:
		var p models.DividendPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		applyDividend(pos, p)
		return nil
	case models.EventAnchorReset:
		var p models.AnchorResetPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		pos.AnchorPrice = p.NewValue
		return nil
	default:
		return nil
	}
}

func applyFill(pos *models.PositionCell, p models.FillPayload, ts time.Time) error {
	switch p.Side {
	case models.OrderSideBuy:
		pos.AvgCost = (pos.AvgCost*pos.Qty + p.Qty*p.Price) / (pos.Qty + p.Qty)
		pos.Cash -= p.Qty*p.Price + p.Commission
		pos.Qty += p.Qty
	case models.OrderSideSell:
		pos.RealizedPnL += (p.Price - pos.AvgCost) * p.Qty
		pos.Cash += p.Qty*p.Price - p.Commission
		pos.Qty -= p.Qty
	default:
		return fmt.Errorf("unknown fill side %q", p.Side)
	}
	pos.TotalCommissionPaid += p.Commission
	// same float-noise clamp the position mutator applies
	if pos.Cash < 0 && pos.Cash > -1e-6 {
		pos.Cash = 0
	}
	if pos.Qty < 0 && pos.Qty > -1e-6 {
		pos.Qty = 0
	}
	pos.UpdatedAt = ts
	return nil
}

func applyDividend(pos *models.PositionCell, p models.DividendPayload) {
	switch p.Phase {
	case models.DividendAccrued:
		pos.DividendReceivable += p.Net
	case models.DividendCredited:
		pos.Cash += p.Net
		pos.DividendReceivable -= p.Net
		if pos.DividendReceivable < 0 {
			pos.DividendReceivable = 0
		}
		pos.TotalDividendsReceived += p.Net
	}
}
