package handengine

import (
	"github.com/lox/matchengine/internal/cards"
	"github.com/lox/matchengine/internal/evaluator"
)

// pot is one side pot: an amount and the seats eligible to win it. Grounded
// on the side-pot construction in the teacher's betting engine, generalized
// from its Player-slice form to operate directly on the hand's contribution
// and folded maps.
type pot struct {
	amount   int
	eligible []SeatID
}

// buildPots splits the hand's total contributions into main and side pots.
// Thresholds are the distinct contribution levels among seats still in the
// hand (not folded); a folded seat's chips still fund whichever pots their
// contribution reaches, they're just never eligible to win any of them.
func (h *handState) buildPots() []pot {
	levels := map[int]bool{}
	for _, s := range h.order {
		if !h.folded[s] && h.contrib[s] > 0 {
			levels[h.contrib[s]] = true
		}
	}
	thresholds := make([]int, 0, len(levels))
	for lvl := range levels {
		thresholds = append(thresholds, lvl)
	}
	for i := 1; i < len(thresholds); i++ {
		for j := i; j > 0 && thresholds[j-1] > thresholds[j]; j-- {
			thresholds[j-1], thresholds[j] = thresholds[j], thresholds[j-1]
		}
	}

	pots := make([]pot, 0, len(thresholds))
	prev := 0
	for _, level := range thresholds {
		amount := 0
		eligible := make([]SeatID, 0, len(h.order))
		for _, s := range h.order {
			layer := h.contrib[s] - prev
			if layer > level-prev {
				layer = level - prev
			}
			if layer > 0 {
				amount += layer
			}
			if !h.folded[s] && h.contrib[s] >= level {
				eligible = append(eligible, s)
			}
		}
		if amount > 0 {
			pots = append(pots, pot{amount: amount, eligible: eligible})
		}
		prev = level
	}
	return pots
}

// resolveShowdown evaluates every pot's eligible hands and pays out
// winners, splitting ties evenly and handing any odd remainder chips out
// one per winner in ascending seat order.
func (h *handState) resolveShowdown() []WinnerInfo {
	pots := h.buildPots()
	payouts := map[SeatID]int{}
	var winners []WinnerInfo
	bestCategory := map[SeatID]evaluator.Rank{}

	for _, p := range pots {
		best := evaluator.Rank(-1)
		bestSeats := []SeatID{}
		for _, s := range p.eligible {
			seven := make([]cards.Card, 0, len(h.hole[s])+len(h.board))
			seven = append(seven, h.hole[s]...)
			seven = append(seven, h.board...)
			rank := evaluator.Evaluate(seven)
			bestCategory[s] = rank
			switch {
			case rank > best:
				best = rank
				bestSeats = []SeatID{s}
			case rank == best:
				bestSeats = append(bestSeats, s)
			}
		}
		if len(bestSeats) == 0 {
			continue
		}
		share := p.amount / len(bestSeats)
		remainder := p.amount - share*len(bestSeats)
		sortByOrder(bestSeats, h.order)
		for i, s := range bestSeats {
			amt := share
			if i < remainder {
				amt++
			}
			payouts[s] += amt
		}
	}

	for _, s := range h.order {
		if payouts[s] == 0 {
			continue
		}
		cat := ""
		if r, ok := bestCategory[s]; ok {
			cat = r.Category().String()
		}
		winners = append(winners, WinnerInfo{SeatID: s, Amount: payouts[s], Category: cat})
		h.stacks[s] += payouts[s]
	}
	return winners
}

// foldWin awards the entire pot to the lone remaining seat when everyone
// else has folded, with no showdown.
func (h *handState) foldWin(seat SeatID) []WinnerInfo {
	h.stacks[seat] += h.pot
	return []WinnerInfo{{SeatID: seat, Amount: h.pot}}
}

// orderFromButton returns order rotated to start just after button, the
// standard odd-chip-distribution starting point.
func orderFromButton(order []SeatID, button SeatID) []SeatID {
	out := make([]SeatID, 0, len(order))
	start := button
	for i := 0; i < len(order); i++ {
		start = nextSeat(order, start)
		out = append(out, start)
	}
	return out
}

// sortByOrder reorders seats in place to match the relative order given by
// priority (seats not present in priority keep their relative position at
// the end, stably).
func sortByOrder(seats []SeatID, priority []SeatID) {
	rank := map[SeatID]int{}
	for i, s := range priority {
		rank[s] = i
	}
	for i := 1; i < len(seats); i++ {
		for j := i; j > 0 && rank[seats[j-1]] > rank[seats[j]]; j-- {
			seats[j-1], seats[j] = seats[j], seats[j-1]
		}
	}
}
