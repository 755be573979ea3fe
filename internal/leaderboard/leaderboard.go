// Package leaderboard maintains the big-blinds-won-per-hand aggregate for
// every bot that has completed at least one hand, via the scheduler's
// on_hand_completed hook, per spec.md §4.7.
package leaderboard

import (
	"sort"
	"sync"
	"time"

	"github.com/lox/matchengine/internal/handengine"
	"github.com/lox/matchengine/internal/match"
)

// Row is one bot's cumulative standing.
type Row struct {
	BotID       string
	HandsPlayed int
	BBWon       float64
	UpdatedAt   time.Time
}

// BBPerHand is the derived ranking statistic, 0 when no hands are recorded.
func (r Row) BBPerHand() float64 {
	if r.HandsPlayed == 0 {
		return 0
	}
	return r.BBWon / float64(r.HandsPlayed)
}

// Board is an in-memory leaderboard keyed by botId, updated by
// OnHandCompleted and read back via Rows.
type Board struct {
	mu   sync.RWMutex
	rows map[string]*Row
	now  func() time.Time
}

// New returns an empty Board. now defaults to time.Now when nil, and exists
// so tests can supply a deterministic clock.
func New(now func() time.Time) *Board {
	if now == nil {
		now = time.Now
	}
	return &Board{rows: make(map[string]*Row), now: now}
}

// OnHandCompleted implements spec's on_hand_completed(record, seat→botId):
// for every active seat with a known, non-empty botId, derive deltaBB from
// the seat's chip delta and bigBlind, and fold it into that bot's row.
func (b *Board) OnHandCompleted(rec match.HandRecord, seatToBotID map[handengine.SeatID]string, bigBlind int) {
	if bigBlind <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	updatedAt := b.now()
	for _, seat := range rec.ActiveSeats {
		botID := seatToBotID[seat]
		if botID == "" {
			continue
		}
		deltaMajor, ok := rec.DeltasMajor[seat]
		if !ok {
			continue
		}
		deltaBB := (deltaMajor * 100.0) / float64(bigBlind)

		row, exists := b.rows[botID]
		if !exists {
			row = &Row{BotID: botID}
			b.rows[botID] = row
		}
		row.HandsPlayed++
		row.BBWon += deltaBB
		row.UpdatedAt = updatedAt
	}
}

// Rows returns every row ordered by the ranking key from spec.md §4.7:
// bb_per_hand desc, hands_played desc, updated_at desc, bot_id desc.
func (b *Board) Rows() []Row {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Row, 0, len(b.rows))
	for _, r := range b.rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, c := out[i], out[j]
		if a.BBPerHand() != c.BBPerHand() {
			return a.BBPerHand() > c.BBPerHand()
		}
		if a.HandsPlayed != c.HandsPlayed {
			return a.HandsPlayed > c.HandsPlayed
		}
		if !a.UpdatedAt.Equal(c.UpdatedAt) {
			return a.UpdatedAt.After(c.UpdatedAt)
		}
		return a.BotID > c.BotID
	})
	return out
}

// Row looks up a single bot's current standing.
func (b *Board) Row(botID string) (Row, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.rows[botID]
	if !ok {
		return Row{}, false
	}
	return *r, true
}
