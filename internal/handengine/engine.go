package handengine

import (
	"context"
	"fmt"

	"github.com/coder/quartz"

	"github.com/lox/matchengine/internal/cards"
	"github.com/lox/matchengine/internal/matcherr"
)

// PlayHand deals and plays exactly one hand to completion: blinds, up to
// four betting streets, and (unless every other seat folds first) a
// showdown. clock is used only to timestamp decision payloads; pass nil to
// use the wall clock.
func PlayHand(ctx context.Context, in HandInput, clock quartz.Clock) (HandResult, error) {
	order := make([]SeatID, 0, len(in.Seats))
	seatByID := make(map[SeatID]Seat, len(in.Seats))
	for _, s := range in.Seats {
		order = append(order, s.ID)
		seatByID[s.ID] = s
	}
	sortSeats(order)

	if len(order) < 2 || len(order) > 6 {
		return HandResult{}, matcherr.EngineInvariant("PlayHand", fmt.Errorf("need 2-6 seats, got %d", len(order)))
	}
	for _, s := range order {
		if in.Stacks[s] <= 0 {
			return HandResult{}, matcherr.EngineInvariant("PlayHand", fmt.Errorf("seat %s has no chips to play", s))
		}
	}

	deck := cards.NewDeck(in.Seed)
	deck.Shuffle()

	hole := make(map[SeatID][]cards.Card, len(order))
	for _, s := range order {
		hole[s] = deck.DealN(2)
	}

	stacks := make(map[SeatID]int, len(order))
	for _, s := range order {
		stacks[s] = in.Stacks[s]
	}

	h := &handState{
		in:       in,
		order:    order,
		seatByID: seatByID,
		hole:     hole,
		board:    nil,
		street:   Preflop,
		stacks:   stacks,
		bets:     map[SeatID]int{},
		contrib:  map[SeatID]int{},
		folded:   map[SeatID]bool{},
	}
	h.minRaise = in.Params.BigBlind

	sbSeat, bbSeat, preflopActor, postflopActor := blindSeats(order, in.ButtonSeat)
	h.postBlind(sbSeat, in.Params.SmallBlind)
	h.postBlind(bbSeat, in.Params.BigBlind)
	h.currentBet = h.bets[sbSeat]
	if h.bets[bbSeat] > h.currentBet {
		h.currentBet = h.bets[bbSeat]
	}
	if h.currentBet < in.Params.BigBlind {
		h.currentBet = in.Params.BigBlind
	}

	if err := h.playStreetIfPossible(ctx, preflopActor, clock); err != nil {
		return HandResult{}, err
	}

	streets := []struct {
		street Street
		deal   int
		actor  SeatID
	}{
		{Flop, 3, postflopActor},
		{Turn, 1, postflopActor},
		{River, 1, postflopActor},
	}
	for _, st := range streets {
		if _, done := h.singleSurvivor(); done {
			break
		}
		h.board = append(h.board, deck.DealN(st.deal)...)
		h.beginStreet(st.street)
		if err := h.playStreetIfPossible(ctx, st.actor, clock); err != nil {
			return HandResult{}, err
		}
	}

	var winners []WinnerInfo
	if winner, done := h.singleSurvivor(); done {
		winners = h.foldWin(winner)
	} else {
		for len(h.board) < 5 {
			c, ok := deck.Deal()
			if !ok {
				break
			}
			h.board = append(h.board, c)
		}
		winners = h.resolveShowdown()
	}

	deltas := make(map[SeatID]int, len(order))
	for _, s := range order {
		deltas[s] = h.stacks[s] - in.Stacks[s]
	}

	return HandResult{
		HandID:      in.HandID,
		Winners:     winners,
		PotCents:    h.pot,
		Board:       h.board,
		HoleCards:   h.hole,
		Actions:     h.actions,
		Deltas:      deltas,
		ActiveSeats: h.activeSeats(),
		ButtonSeat:  in.ButtonSeat,
	}, nil
}

// playStreetIfPossible runs a betting round unless at most one seat can
// still voluntarily act (everyone else is folded or all-in), in which case
// the street is dealt with no actions, per standard all-in runout rules.
func (h *handState) playStreetIfPossible(ctx context.Context, start SeatID, clock quartz.Clock) error {
	if _, done := h.singleSurvivor(); done {
		return nil
	}
	if !h.bettingPossible() {
		return nil
	}
	return h.playStreet(ctx, start, clock)
}

// blindSeats computes small blind, big blind, and first-to-act seats for
// both streets, per spec.md §4.5's heads-up vs 3+-handed position rules.
func blindSeats(order []SeatID, button SeatID) (sb, bb, preflopActor, postflopActor SeatID) {
	if len(order) == 2 {
		sb = button
		bb = nextSeat(order, button)
		preflopActor = sb
		postflopActor = bb
		return
	}
	sb = nextSeat(order, button)
	bb = nextSeat(order, sb)
	preflopActor = nextSeat(order, bb)
	postflopActor = sb
	return
}
