// Package protocol builds the decision payload sent to a bot and
// normalizes the bot's reply into a legal engine action, for both the
// canonical 2.0 structured wire shape and the legacy flat shape.
package protocol

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

const (
	// LegacyVersion is the flat-payload protocol, used whenever a bot does
	// not declare a version (spec.md §9 open question 3).
	LegacyVersion = "1.0"
	// V2 is the canonical structured protocol.
	V2 = "2.0"
)

// Action is one of the five engine actions a bot reply normalizes to.
type Action string

const (
	Fold  Action = "fold"
	Check Action = "check"
	Call  Action = "call"
	Bet   Action = "bet"
	Raise Action = "raise"
)

// LegalAction describes one action a hero may take this turn, with its
// amount bounds (zero value for fold/check).
type LegalAction struct {
	Action    Action `json:"action"`
	MinAmount *int   `json:"min_amount,omitempty"`
	MaxAmount *int   `json:"max_amount,omitempty"`
}

// RoundContext is everything the normalizer needs about the current round.
type RoundContext struct {
	ToCall      int
	CurrentBet  int
	MinRaiseTo  int
	Stack       int
	Bet         int
	LegalActions []LegalAction
}

// Decision is a bot's (normalized or raw) reply.
type Decision struct {
	Action Action
	Amount int
	Error  string
}

// legalActionFor returns the bet/raise label for the round's current bet:
// Raise once a bet is open, Bet otherwise.
func legalActionFor(currentBet int) Action {
	if currentBet > 0 {
		return Raise
	}
	return Bet
}

// BuildLegalActionsForRound is the entry point used by the hand state
// machine: it picks bet vs raise based on currentBet and fills min/max per
// spec.md §4.4's "Legal-action entries" rule.
func BuildLegalActionsForRound(ctx RoundContext, currentBet int) []LegalAction {
	actions := []LegalAction{{Action: Fold}}
	if ctx.ToCall == 0 {
		actions = append(actions, LegalAction{Action: Check})
	} else {
		call := ctx.ToCall
		if call > ctx.Stack {
			call = ctx.Stack
		}
		actions = append(actions, LegalAction{Action: Call, MinAmount: &call, MaxAmount: &call})
	}
	minAmt := ctx.MinRaiseTo
	maxAmt := ctx.Bet + ctx.Stack
	if maxAmt >= minAmt {
		actions = append(actions, LegalAction{Action: legalActionFor(currentBet), MinAmount: &minAmt, MaxAmount: &maxAmt})
	}
	return actions
}

// NormalizeAction implements the exact coercion algebra from spec.md §4.4.
// raw is the bot's claimed action/amount; ctx is the round context.
func NormalizeAction(rawAction Action, rawAmount int, ctx RoundContext) Decision {
	fallback := func() Decision {
		if ctx.ToCall == 0 {
			return Decision{Action: Check}
		}
		return Decision{Action: Fold}
	}

	switch rawAction {
	case Fold, Check, Call, Bet, Raise:
	default:
		return fallback()
	}

	action := rawAction
	if action == Bet && ctx.CurrentBet > 0 {
		action = Raise
	} else if action == Raise && ctx.CurrentBet == 0 {
		action = Bet
	}
	if action == Check && ctx.ToCall > 0 {
		action = Call
	} else if action == Call && ctx.ToCall <= 0 {
		action = Check
	}

	if !isLegal(action, ctx.LegalActions) {
		return fallback()
	}

	if action == Fold && ctx.ToCall == 0 {
		action = Check
	}

	switch action {
	case Fold:
		return Decision{Action: Fold}
	case Check:
		return Decision{Action: Check}
	case Call:
		amt := ctx.ToCall
		if amt > ctx.Stack {
			amt = ctx.Stack
		}
		return Decision{Action: Call, Amount: amt}
	case Bet, Raise:
		return normalizeBetOrRaise(action, rawAmount, ctx)
	}
	return fallback()
}

func normalizeBetOrRaise(action Action, target int, ctx RoundContext) Decision {
	maxTarget := ctx.Bet + ctx.Stack

	if maxTarget <= ctx.CurrentBet {
		if ctx.ToCall > 0 {
			amt := ctx.ToCall
			if amt > ctx.Stack {
				amt = ctx.Stack
			}
			return Decision{Action: Call, Amount: amt}
		}
		return Decision{Action: Check}
	}

	clamped := target
	if clamped < ctx.MinRaiseTo {
		if maxTarget >= ctx.MinRaiseTo {
			clamped = ctx.MinRaiseTo
		} else {
			clamped = maxTarget
		}
	}
	if clamped > maxTarget {
		clamped = maxTarget
	}

	if clamped <= ctx.CurrentBet {
		if ctx.ToCall > 0 {
			amt := ctx.ToCall
			if amt > ctx.Stack {
				amt = ctx.Stack
			}
			return Decision{Action: Call, Amount: amt}
		}
		return Decision{Action: Check}
	}

	return Decision{Action: action, Amount: clamped}
}

func isLegal(action Action, legal []LegalAction) bool {
	for _, la := range legal {
		if la.Action == action {
			return true
		}
	}
	return false
}

// --- Wire payload types ---

// TableInfo is the table{} sub-object in the 2.0 payload.
type TableInfo struct {
	TableID    string `json:"table_id"`
	HandID     string `json:"hand_id"`
	Street     string `json:"street"`
	ButtonSeat string `json:"button_seat"`
	SmallBlind int    `json:"small_blind"`
	BigBlind   int    `json:"big_blind"`
}

// HeroInfo is the hero{} sub-object.
type HeroInfo struct {
	PlayerID   string   `json:"player_id"`
	SeatID     string   `json:"seat_id"`
	Name       string   `json:"name"`
	HoleCards  []string `json:"hole_cards"`
	Stack      int      `json:"stack"`
	Bet        int      `json:"bet"`
	ToCall     int      `json:"to_call"`
	MinRaiseTo int      `json:"min_raise_to"`
	MaxRaiseTo int      `json:"max_raise_to"`
}

// PlayerInfo is one entry of players[].
type PlayerInfo struct {
	PlayerID string `json:"player_id"`
	SeatID   string `json:"seat_id"`
	Name     string `json:"name"`
	Stack    int    `json:"stack"`
	Bet      int    `json:"bet"`
	Folded   bool   `json:"folded"`
	AllIn    bool   `json:"all_in"`
	IsHero   bool   `json:"is_hero"`
}

// BoardInfo is the board{} sub-object.
type BoardInfo struct {
	Cards []string `json:"cards"`
	Pot   int      `json:"pot"`
}

// ActionHistoryEntry is one entry of action_history[].
type ActionHistoryEntry struct {
	Index    int    `json:"index"`
	Street   string `json:"street"`
	PlayerID string `json:"player_id"`
	SeatID   string `json:"seat_id"`
	Action   string `json:"action"`
	Amount   int    `json:"amount"`
	PotAfter int    `json:"pot_after"`
}

// Meta is the meta{} sub-object.
type Meta struct {
	ServerTime string `json:"server_time"`
	StateBytes int    `json:"state_bytes"`
}

// StateV2 is the full 2.0 structured decision payload.
type StateV2 struct {
	ProtocolVersion string               `json:"protocol_version"`
	DecisionID      string               `json:"decision_id"`
	Table           TableInfo            `json:"table"`
	Hero            HeroInfo             `json:"hero"`
	Players         []PlayerInfo         `json:"players"`
	Board           BoardInfo            `json:"board"`
	LegalActions    []LegalAction        `json:"legal_actions"`
	ActionHistory   []ActionHistoryEntry `json:"action_history"`
	Meta            Meta                 `json:"meta"`
}

// DecisionID derives the deterministic decision id from
// (table_id, hand_id, street, hero_seat, |history|).
func DecisionID(tableID, handID, street, heroSeat string, historyLen int) string {
	return fmt.Sprintf("%s:%s:%s:%s:%d", tableID, handID, street, heroSeat, historyLen)
}

// BuildStateV2 assembles the full payload and fixes up meta.state_bytes so
// it equals the length of the final serialized form, via the same
// fixed-point re-serialization the original implementation uses: serialize
// with state_bytes starting at zero, and while the encoded length differs
// from state_bytes, set state_bytes to it and serialize again. It makes at
// most three passes and returns an error if the length has not settled by
// then (it settles on the second pass unless the digit count changes).
func BuildStateV2(table TableInfo, hero HeroInfo, players []PlayerInfo, board BoardInfo, legal []LegalAction, history []ActionHistoryEntry, serverTime string) (StateV2, error) {
	state := StateV2{
		ProtocolVersion: V2,
		DecisionID:      DecisionID(table.TableID, table.HandID, table.Street, hero.SeatID, len(history)),
		Table:           table,
		Hero:            hero,
		Players:         players,
		Board:           board,
		LegalActions:    legal,
		ActionHistory:   history,
		Meta:            Meta{ServerTime: serverTime},
	}

	for i := 0; i < 3; i++ {
		encoded, err := json.Marshal(state)
		if err != nil {
			return StateV2{}, fmt.Errorf("serialize decision state: %w", err)
		}
		if state.Meta.StateBytes == len(encoded) {
			return state, nil
		}
		state.Meta.StateBytes = len(encoded)
	}
	return state, fmt.Errorf("state_bytes did not converge")
}

// StateLegacy is the legacy 1.0 flat decision payload.
type StateLegacy struct {
	Seat       string       `json:"seat"`
	SeatName   string       `json:"seat_name"`
	Street     string       `json:"street"`
	HoleCards  []string     `json:"hole_cards"`
	Board      []string     `json:"board"`
	Pot        int          `json:"pot"`
	Stack      int          `json:"stack"`
	ToCall     int          `json:"to_call"`
	MinRaiseTo int          `json:"min_raise_to"`
	LegalActions []LegalAction `json:"legal_actions"`
	Players    []PlayerInfo `json:"players"`
	Button     string       `json:"button"`
	SmallBlind int          `json:"small_blind"`
	BigBlind   int          `json:"big_blind"`
}

// BuildStateLegacy assembles the flat legacy payload.
func BuildStateLegacy(seat, seatName, street string, holeCards, board []string, pot, stack, toCall, minRaiseTo int, legal []LegalAction, players []PlayerInfo, button string, sb, bb int) StateLegacy {
	return StateLegacy{
		Seat: seat, SeatName: seatName, Street: street,
		HoleCards: holeCards, Board: board, Pot: pot, Stack: stack,
		ToCall: toCall, MinRaiseTo: minRaiseTo, LegalActions: legal,
		Players: players, Button: button, SmallBlind: sb, BigBlind: bb,
	}
}

// Serialize returns the canonical JSON bytes for either payload type, used
// both to drive the sandbox RPC and to compute state-size bounds.
func Serialize(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// Digest returns a stable sha256 hex digest of serialized state, for
// diagnostics / dedup of identical repeated decision requests.
func Digest(encoded []byte) string {
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}
