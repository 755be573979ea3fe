package handengine

import (
	"context"
	"time"

	"github.com/coder/quartz"

	"github.com/lox/matchengine/internal/protocol"
)

// beginStreet advances to street, clearing this-street wagers and resetting
// the minimum raise size to one big blind.
func (h *handState) beginStreet(street Street) {
	h.street = street
	for s := range h.bets {
		h.bets[s] = 0
	}
	h.currentBet = 0
	h.minRaise = h.in.Params.BigBlind
}

// postBlind takes up to amount from seat's stack (less if the seat is
// short-stacked) and records it as a blind action.
func (h *handState) postBlind(seat SeatID, amount int) {
	post := amount
	if post > h.stacks[seat] {
		post = h.stacks[seat]
	}
	h.stacks[seat] -= post
	h.bets[seat] += post
	h.contrib[seat] += post
	h.pot += post
	h.actions = append(h.actions, ActionEvent{SeatID: seat, Action: ActionBlind, Amount: post, Street: h.street, PotAfter: h.pot})
}

// bettingPossible reports whether more than one seat can still voluntarily
// act this hand (i.e. is neither folded nor already all-in).
func (h *handState) bettingPossible() bool {
	n := 0
	for _, s := range h.order {
		if !h.folded[s] && h.stacks[s] > 0 {
			n++
		}
	}
	return n > 1
}

// singleSurvivor returns the one remaining non-folded seat and true if every
// other seat has folded; the hand ends immediately in that case.
func (h *handState) singleSurvivor() (SeatID, bool) {
	active := h.activeSeats()
	if len(active) == 1 {
		return active[0], true
	}
	return "", false
}

// playStreet drives one betting round to completion: every seat that owes
// action acts exactly once, and a full bet or raise re-owes action to
// everyone else. A short all-in that raises the bet by less than a full
// increment re-owes nothing: seats that already acted on the street are
// not asked again.
func (h *handState) playStreet(ctx context.Context, start SeatID, clock quartz.Clock) error {
	pending := map[SeatID]bool{}
	for _, s := range h.order {
		if !h.folded[s] && h.stacks[s] > 0 {
			pending[s] = true
		}
	}
	if len(pending) == 0 {
		return nil
	}

	actor := start
	if !pending[actor] {
		actor = h.firstPending(start, pending)
	}

	for len(pending) > 0 {
		if _, done := h.singleSurvivor(); done {
			return nil
		}
		if !pending[actor] {
			actor = h.firstPending(actor, pending)
			continue
		}

		rCtx := h.roundContextFor(actor)
		decision := h.askSeat(ctx, actor, rCtx, clock)
		reopens := h.apply(actor, decision, rCtx)

		delete(pending, actor)
		if reopens {
			for _, s := range h.order {
				if s != actor && !h.folded[s] && h.stacks[s] > 0 {
					pending[s] = true
				}
			}
		}
		if len(pending) == 0 {
			break
		}
		actor = h.firstPending(actor, pending)
	}
	return nil
}

// firstPending walks the seating order clockwise from current (exclusive)
// and returns the first seat that still owes action.
func (h *handState) firstPending(current SeatID, pending map[SeatID]bool) SeatID {
	s := current
	for i := 0; i < len(h.order); i++ {
		s = nextSeat(h.order, s)
		if pending[s] {
			return s
		}
	}
	return current
}

// askSeat builds the wire payload, invokes the bot, and normalizes its
// reply into a legal Decision, falling back to the safe default on any
// sandbox failure per spec.md §4.3/§4.4.
func (h *handState) askSeat(ctx context.Context, seat SeatID, rCtx protocol.RoundContext, clock quartz.Clock) protocol.Decision {
	s := h.seatByID[seat]
	now := time.Now()
	if clock != nil {
		now = clock.Now()
	}
	payload, err := h.buildPayload(seat, rCtx, now)
	if err != nil {
		if rCtx.ToCall == 0 {
			return protocol.Decision{Action: protocol.Check}
		}
		return protocol.Decision{Action: protocol.Fold}
	}

	result := s.Handle.Decide(ctx, payload, h.in.Params.DecisionTimeout, h.in.Params.MaxStateBytes)
	if !result.OK() {
		if rCtx.ToCall == 0 {
			return protocol.Decision{Action: protocol.Check}
		}
		return protocol.Decision{Action: protocol.Fold}
	}
	return protocol.NormalizeAction(protocol.Action(result.Action), result.Amount, rCtx)
}

// apply mutates hand state for seat's normalized decision and reports
// whether it reopens action for the other pending seats (true only for a
// bet or a raise that reaches currentBet plus minRaise; a short all-in
// raises currentBet without reopening).
func (h *handState) apply(seat SeatID, d protocol.Decision, rCtx protocol.RoundContext) bool {
	switch d.Action {
	case protocol.Fold:
		h.folded[seat] = true
		h.actions = append(h.actions, ActionEvent{SeatID: seat, Action: ActionFold, Street: h.street, PotAfter: h.pot})
		return false

	case protocol.Check:
		h.actions = append(h.actions, ActionEvent{SeatID: seat, Action: ActionCheck, Street: h.street, PotAfter: h.pot})
		return false

	case protocol.Call:
		amt := d.Amount
		if amt > h.stacks[seat] {
			amt = h.stacks[seat]
		}
		h.stacks[seat] -= amt
		h.bets[seat] += amt
		h.contrib[seat] += amt
		h.pot += amt
		h.actions = append(h.actions, ActionEvent{SeatID: seat, Action: ActionCall, Amount: amt, Street: h.street, PotAfter: h.pot})
		return false

	case protocol.Bet, protocol.Raise:
		target := d.Amount
		delta := target - h.bets[seat]
		if delta > h.stacks[seat] {
			delta = h.stacks[seat]
			target = h.bets[seat] + delta
		}
		h.stacks[seat] -= delta
		h.bets[seat] = target
		h.contrib[seat] += delta
		h.pot += delta

		// An all-in raise that doesn't reach a full raise increment
		// (spec.md §9 open question 1) does not reopen action for
		// players who already closed action at the previous bet level.
		isFullRaise := target >= h.currentBet+h.minRaise
		if target > h.currentBet {
			if isFullRaise {
				h.minRaise = target - h.currentBet
			}
			h.currentBet = target
		}

		kind := ActionBet
		if d.Action == protocol.Raise {
			kind = ActionRaise
		}
		h.actions = append(h.actions, ActionEvent{SeatID: seat, Action: kind, Amount: target, Street: h.street, PotAfter: h.pot})
		return isFullRaise
	}
	return false
}
