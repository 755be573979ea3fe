package match

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/lox/matchengine/internal/handengine"
)

// runWorker is the scheduler's single background worker: while the match
// is running, it plays one hand per iteration (a hand that returns an error
// or panics goes to handleCrash), persists it, and sleeps the
// configured hand interval (or exits early on a shutdown signal), per
// spec.md §4.6's worker loop.
func (s *Scheduler) runWorker(shutdown chan struct{}, done chan struct{}) {
	defer close(done)

	for {
		snapshot, ok := s.prepareHand()
		if !ok {
			return
		}

		result, err := func() (res handengine.HandResult, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("hand panicked: %v", r)
				}
			}()
			return handengine.PlayHand(context.Background(), snapshot.input, s.clock)
		}()
		if err != nil {
			s.handleCrash(err)
			return
		}

		if !s.commitHand(snapshot, result) {
			return
		}

		select {
		case <-shutdown:
			return
		case <-s.clock.After(s.handInterval):
		}
	}
}

type handSnapshot struct {
	input       handengine.HandInput
	handNumber  string
	seatNames   map[handengine.SeatID]string
	activeSeats []handengine.SeatID
	button      handengine.SeatID
}

// prepareHand checks status, computes the next button, and snapshots the
// ready seats under the scheduler lock, per step 1 of the worker loop.
// ok is false if the match is no longer running (the worker should exit).
func (s *Scheduler) prepareHand() (handSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status != StatusRunning {
		return handSnapshot{}, false
	}

	ready := s.seats.ReadySeats()
	if len(ready) < 2 {
		return handSnapshot{}, false
	}

	order := make([]handengine.SeatID, 0, len(ready))
	stacks := map[handengine.SeatID]int{}
	names := map[handengine.SeatID]string{}
	for _, seat := range ready {
		order = append(order, seat.ID)
		stacks[seat.ID] = s.params.StartingStack
		names[seat.ID] = seat.Name
	}
	sortSeatIDs(order)

	button := nextButton(order, s.state.ButtonSeat)
	s.state.ButtonSeat = button

	handID := strconv.Itoa(s.nextHandID)
	s.nextHandID++

	return handSnapshot{
		input: handengine.HandInput{
			HandID:     handID,
			TableID:    "table-1",
			ButtonSeat: button,
			Seats:      ready,
			Stacks:     stacks,
			Params:     s.params,
			Seed:       handSeed(s.baseSeed, handID),
		},
		handNumber:  handID,
		seatNames:   names,
		activeSeats: order,
		button:      button,
	}, true
}

// nextButton computes the next button seat per spec.md §4.6: the first
// active seat (ascending) if there is no previous button (first hand, or
// after a reset), else the next active seat clockwise of the previous
// button.
func nextButton(order []handengine.SeatID, previous handengine.SeatID) handengine.SeatID {
	if previous == "" {
		return order[0]
	}
	for _, s := range order {
		if s == previous {
			return nextSeatID(order, previous)
		}
	}
	// previous button seat is no longer active; restart ascending from
	// the first registered seat (open question 2).
	return order[0]
}

func nextSeatID(order []handengine.SeatID, current handengine.SeatID) handengine.SeatID {
	for i, s := range order {
		if s == current {
			return order[(i+1)%len(order)]
		}
	}
	return order[0]
}

func sortSeatIDs(ids []handengine.SeatID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}

// handSeed derives a deterministic, per-hand deck shuffle seed from the
// scheduler's base seed and the hand number, so a given match/hand-number
// pair always deals the same cards.
func handSeed(baseSeed int64, handID string) int64 {
	n, err := strconv.ParseInt(handID, 10, 64)
	if err != nil {
		n = 0
	}
	return baseSeed*1_000_003 + n
}

// handleCrash implements the crash-containment path from spec.md §4.6: the
// match drops to waiting, startedAt is cleared, and the scheduler drops its
// reference to this worker's shutdown channel (the worker exits on its own),
// so a later lifecycle command never closes that channel.
func (s *Scheduler) handleCrash(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Error().Err(err).Msg("hand failed; containing to waiting state")
	s.state.Status = StatusWaiting
	s.state.StartedAt = nil
	s.shutdown = nil
}

// commitHand appends the HandRecord, persists its history text, and fires
// the completion hook, all under the scheduler lock per spec.md §4.6 step
// 3. It returns false (and leaves the hand uncommitted) if either the
// scheduler was shut down in the meantime or the history write failed,
// which itself is routed through the crash-containment path.
func (s *Scheduler) commitHand(snap handSnapshot, result handengine.HandResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status != StatusRunning {
		return false
	}

	now := time.Now()
	if s.clock != nil {
		now = s.clock.Now()
	}

	deltasMajor := make(map[handengine.SeatID]float64, len(result.Deltas))
	for seat, d := range result.Deltas {
		deltasMajor[seat] = centsToMajor(d)
	}

	rec := HandRecord{
		HandID:      snap.handNumber,
		CompletedAt: now,
		Summary:     summarize(result, snap.seatNames),
		Winners:     result.Winners,
		PotMajor:    centsToMajor(result.PotCents),
		DeltasMajor: deltasMajor,
		ActiveSeats: snap.activeSeats,
	}

	if s.store != nil {
		path, err := s.store.WriteHand(HandWriteInput{
			HandNumber:  snap.handNumber,
			CompletedAt: now,
			Result:      result,
			SeatNames:   snap.seatNames,
			ButtonSeat:  snap.button,
			SmallBlind:  s.params.SmallBlind,
			BigBlind:    s.params.BigBlind,
		})
		if err != nil {
			s.logger.Error().Err(err).Str("hand_id", snap.handNumber).Msg("hand history write failed; containing to waiting state")
			s.state.Status = StatusWaiting
			s.state.StartedAt = nil
			s.shutdown = nil
			return false
		}
		rec.HistoryPath = path
	}

	s.records = append(s.records, rec)
	s.state.HandsPlayed++
	s.state.LastHandID = snap.handNumber
	s.hook(rec)
	return true
}

func summarize(result handengine.HandResult, names map[handengine.SeatID]string) string {
	if len(result.Winners) == 0 {
		return "Hand complete, no winner recorded"
	}
	out := "Seat "
	for i, w := range result.Winners {
		if i > 0 {
			out += ", Seat "
		}
		name := names[w.SeatID]
		if name == "" {
			name = string(w.SeatID)
		}
		out += name + " wins"
	}
	return out
}
