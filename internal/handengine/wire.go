package handengine

import (
	"time"

	"github.com/lox/matchengine/internal/cards"
	"github.com/lox/matchengine/internal/protocol"
)

// handState is the full, private view of a hand-in-progress that the
// betting loop mutates street by street.
type handState struct {
	in        HandInput
	order     []SeatID // all seats dealt into the hand, ascending SeatID order
	seatByID  map[SeatID]Seat
	hole      map[SeatID][]cards.Card
	board     []cards.Card
	street    Street
	stacks    map[SeatID]int
	bets      map[SeatID]int // this street's wagered amount, reset each street
	contrib   map[SeatID]int // total contributed across the whole hand
	folded    map[SeatID]bool
	actions   []ActionEvent
	pot       int
	currentBet int
	minRaise  int
}

func notation(cs []cards.Card) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Notation()
	}
	return out
}

// activeSeats returns seats still in the hand (not folded), in table order.
func (h *handState) activeSeats() []SeatID {
	out := make([]SeatID, 0, len(h.order))
	for _, s := range h.order {
		if !h.folded[s] {
			out = append(out, s)
		}
	}
	return out
}

// playersInfo builds the players[] wire view shared by both protocol
// versions, marking isHero for the given seat.
func (h *handState) playersInfo(hero SeatID) []protocol.PlayerInfo {
	out := make([]protocol.PlayerInfo, 0, len(h.order))
	for _, s := range h.order {
		seat := h.seatByID[s]
		out = append(out, protocol.PlayerInfo{
			PlayerID: seat.PlayerID,
			SeatID:   string(s),
			Name:     seat.Name,
			Stack:    h.stacks[s],
			Bet:      h.bets[s],
			Folded:   h.folded[s],
			AllIn:    !h.folded[s] && h.stacks[s] == 0,
			IsHero:   s == hero,
		})
	}
	return out
}

func (h *handState) actionHistory() []protocol.ActionHistoryEntry {
	out := make([]protocol.ActionHistoryEntry, 0, len(h.actions))
	for i, ev := range h.actions {
		seat := h.seatByID[ev.SeatID]
		out = append(out, protocol.ActionHistoryEntry{
			Index:    i,
			Street:   string(ev.Street),
			PlayerID: seat.PlayerID,
			SeatID:   string(ev.SeatID),
			Action:   string(ev.Action),
			Amount:   ev.Amount,
			PotAfter: ev.PotAfter,
		})
	}
	return out
}

// roundContextFor computes the decision bounds for seat at the current
// point in the street, per spec.md §4.4.
func (h *handState) roundContextFor(seat SeatID) protocol.RoundContext {
	toCall := h.currentBet - h.bets[seat]
	if toCall < 0 {
		toCall = 0
	}
	ctx := protocol.RoundContext{
		ToCall:     toCall,
		CurrentBet: h.currentBet,
		MinRaiseTo: h.currentBet + h.minRaise,
		Stack:      h.stacks[seat],
		Bet:        h.bets[seat],
	}
	ctx.LegalActions = protocol.BuildLegalActionsForRound(ctx, h.currentBet)
	return ctx
}

// buildPayload renders the wire state for seat, honoring that seat's
// declared protocol version (spec.md §9 open question 3: undeclared bots
// get the legacy flat shape).
func (h *handState) buildPayload(seat SeatID, ctx protocol.RoundContext, serverTime time.Time) (interface{}, error) {
	s := h.seatByID[seat]
	boardNotation := notation(h.board)

	if s.ProtocolVersion == protocol.V2 {
		table := protocol.TableInfo{
			TableID:    h.in.TableID,
			HandID:     h.in.HandID,
			Street:     string(h.street),
			ButtonSeat: string(h.in.ButtonSeat),
			SmallBlind: h.in.Params.SmallBlind,
			BigBlind:   h.in.Params.BigBlind,
		}
		hero := protocol.HeroInfo{
			PlayerID:   s.PlayerID,
			SeatID:     string(seat),
			Name:       s.Name,
			HoleCards:  notation(h.hole[seat]),
			Stack:      ctx.Stack,
			Bet:        ctx.Bet,
			ToCall:     ctx.ToCall,
			MinRaiseTo: ctx.MinRaiseTo,
			MaxRaiseTo: ctx.Bet + ctx.Stack,
		}
		board := protocol.BoardInfo{Cards: boardNotation, Pot: h.pot}
		return protocol.BuildStateV2(table, hero, h.playersInfo(seat), board, ctx.LegalActions, h.actionHistory(), serverTime.UTC().Format(time.RFC3339))
	}

	return protocol.BuildStateLegacy(
		string(seat), s.Name, string(h.street),
		notation(h.hole[seat]), boardNotation,
		h.pot, ctx.Stack, ctx.ToCall, ctx.MinRaiseTo,
		ctx.LegalActions, h.playersInfo(seat),
		string(h.in.ButtonSeat), h.in.Params.SmallBlind, h.in.Params.BigBlind,
	), nil
}
