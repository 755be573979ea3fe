// Package match owns MatchState and the single background worker that
// iterates hands: lifecycle transitions, button rotation, crash
// containment, and the hand-interval pacing between hands.
package match

import (
	"time"

	"github.com/lox/matchengine/internal/handengine"
)

// Status is one of the four match lifecycle states.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
	StatusStopped Status = "stopped"
)

// MatchState is the scheduler's owned, mutated-only-under-lock state.
type MatchState struct {
	Status      Status
	StartedAt   *time.Time
	HandsPlayed int
	LastHandID  string
	ButtonSeat  handengine.SeatID
}

// HandRecord is the durable, post-hoc summary of one completed hand, kept
// in an append-only in-memory list by the scheduler and mirrored to a
// history text file by the hand store.
type HandRecord struct {
	HandID      string
	CompletedAt time.Time
	Summary     string
	Winners     []handengine.WinnerInfo
	PotMajor    float64
	DeltasMajor map[handengine.SeatID]float64
	HistoryPath string
	ActiveSeats []handengine.SeatID
}

// centsToMajor converts an integer minor-unit chip amount to the major
// ("dollar") unit used in HandRecord and hand-history text, per the fixed
// $<major>.<2dp> money format decided for this engine.
func centsToMajor(units int) float64 {
	return float64(units) / 100.0
}

// SeatSource is the read-only view of Registry the scheduler borrows once
// per hand: the set of currently bound, ready seats. Keeping this as a
// narrow capability interface (rather than a direct Registry dependency)
// is what lets the scheduler be driven and tested without a real registry.
type SeatSource interface {
	ReadySeats() []handengine.Seat
}

// HandWriteInput bundles everything a HandWriter needs to render one
// hand's history text, without the scheduler needing to know that
// format's internals.
type HandWriteInput struct {
	HandNumber  string
	CompletedAt time.Time
	Result      handengine.HandResult
	SeatNames   map[handengine.SeatID]string
	ButtonSeat  handengine.SeatID
	SmallBlind  int
	BigBlind    int
}

// HandWriter is the capability the scheduler borrows to persist a
// completed hand's history text, owned elsewhere (internal/handstore).
type HandWriter interface {
	WriteHand(in HandWriteInput) (path string, err error)
}

// CompletionHook is invoked once per committed hand, after the HandRecord
// is appended in-memory and its history file is written, per spec's
// exactly-once-in-process delivery guarantee.
type CompletionHook func(rec HandRecord)
