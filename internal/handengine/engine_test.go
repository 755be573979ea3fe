package handengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lox/matchengine/internal/protocol"
	"github.com/lox/matchengine/internal/sandbox"
)

// scriptedBot answers every Decide call with the next entry of a fixed
// script, falling back to fold/check once the script is exhausted.
type scriptedBot struct {
	script []sandbox.Result
	calls  int
}

func (b *scriptedBot) Decide(ctx context.Context, state interface{}, timeout time.Duration, maxStateBytes int) sandbox.Result {
	if b.calls >= len(b.script) {
		return sandbox.Result{Action: "fold"}
	}
	r := b.script[b.calls]
	b.calls++
	return r
}

func (b *scriptedBot) Close() error { return nil }

func foldBot() *scriptedBot {
	return &scriptedBot{script: []sandbox.Result{{Action: "fold"}}}
}

func checkCallBot() *scriptedBot {
	return &scriptedBot{script: []sandbox.Result{
		{Action: "check"}, {Action: "check"}, {Action: "check"}, {Action: "check"},
	}}
}

func baseParams() Params {
	return Params{
		StartingStack:   10000,
		SmallBlind:      50,
		BigBlind:        100,
		DecisionTimeout: time.Second,
		MaxStateBytes:   64 * 1024,
	}
}

func TestPlayHandHeadsUpFold(t *testing.T) {
	sbBot := &scriptedBot{script: []sandbox.Result{{Action: "fold"}}}
	bbBot := checkCallBot()

	in := HandInput{
		HandID:     "h1",
		TableID:    "t1",
		ButtonSeat: "1",
		Seats: []Seat{
			{ID: "1", PlayerID: "p1", Name: "Alice", Handle: sbBot, ProtocolVersion: protocol.V2},
			{ID: "2", PlayerID: "p2", Name: "Bob", Handle: bbBot, ProtocolVersion: protocol.V2},
		},
		Stacks: map[SeatID]int{"1": 10000, "2": 10000},
		Params: baseParams(),
		Seed:   42,
	}

	result, err := PlayHand(context.Background(), in, nil)
	require.NoError(t, err)
	require.Len(t, result.Winners, 1)
	require.Equal(t, SeatID("2"), result.Winners[0].SeatID)
	require.Equal(t, 150, result.Winners[0].Amount) // wins both blinds: 50 (SB) + 100 (BB, their own)

	total := 0
	for _, d := range result.Deltas {
		total += d
	}
	require.Zero(t, total, "chip conservation: deltas must sum to zero")
}

func TestPlayHandShowdownChipConservation(t *testing.T) {
	checkingBot := func() *scriptedBot {
		return &scriptedBot{script: []sandbox.Result{
			{Action: "check"}, {Action: "check"}, {Action: "check"}, {Action: "check"},
		}}
	}

	in := HandInput{
		HandID:     "h2",
		TableID:    "t1",
		ButtonSeat: "1",
		Seats: []Seat{
			{ID: "1", PlayerID: "p1", Name: "Alice", Handle: checkingBot(), ProtocolVersion: protocol.V2},
			{ID: "2", PlayerID: "p2", Name: "Bob", Handle: checkingBot(), ProtocolVersion: protocol.LegacyVersion},
			{ID: "3", PlayerID: "p3", Name: "Carl", Handle: checkingBot(), ProtocolVersion: protocol.V2},
		},
		Stacks: map[SeatID]int{"1": 10000, "2": 10000, "3": 10000},
		Params: baseParams(),
		Seed:   7,
	}

	result, err := PlayHand(context.Background(), in, nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.Winners)
	require.Len(t, result.Board, 5)

	total := 0
	for _, d := range result.Deltas {
		total += d
	}
	require.Zero(t, total, "chip conservation: deltas must sum to zero")

	potTotal := 0
	for _, w := range result.Winners {
		potTotal += w.Amount
	}
	require.Equal(t, result.PotCents, potTotal, "every chip in the pot must be paid out")
}

func TestPlayHandRejectsOutOfRangeSeatCount(t *testing.T) {
	in := HandInput{
		HandID:     "h3",
		TableID:    "t1",
		ButtonSeat: "1",
		Seats: []Seat{
			{ID: "1", PlayerID: "p1", Handle: foldBot(), ProtocolVersion: protocol.V2},
		},
		Stacks: map[SeatID]int{"1": 10000},
		Params: baseParams(),
		Seed:   1,
	}
	_, err := PlayHand(context.Background(), in, nil)
	require.Error(t, err)
}

func TestUndersizedAllInDoesNotReopenMinRaise(t *testing.T) {
	// A prior full bet/raise already set currentBet=200, minRaise=200. A
	// short-stacked seat then goes all-in to 260: that's over currentBet
	// but short of a full raise (260 < 200+200), so it must not reopen
	// action for a seat that already closed on the prior bet.
	h := &handState{
		order:   []SeatID{"1", "2", "3"},
		stacks:  map[SeatID]int{"1": 260, "2": 1000, "3": 1000},
		bets:    map[SeatID]int{"1": 0, "2": 200, "3": 0},
		contrib: map[SeatID]int{},
		folded:  map[SeatID]bool{},
	}
	h.currentBet = 200
	h.minRaise = 200

	ctx := h.roundContextFor("1")
	reopens := h.apply("1", protocol.Decision{Action: protocol.Raise, Amount: 260}, ctx)

	require.False(t, reopens, "an incomplete all-in raise must not reopen action")
	require.Equal(t, 260, h.currentBet)
	require.Equal(t, 200, h.minRaise, "min-raise increment must stay at the prior full-raise size")
	require.Zero(t, h.stacks["1"])

	// By contrast, a full raise (to at least 400) must reopen action.
	h2 := &handState{
		order:   []SeatID{"1", "2", "3"},
		stacks:  map[SeatID]int{"1": 1000, "2": 1000, "3": 1000},
		bets:    map[SeatID]int{"1": 0, "2": 200, "3": 0},
		contrib: map[SeatID]int{},
		folded:  map[SeatID]bool{},
	}
	h2.currentBet = 200
	h2.minRaise = 200
	ctx2 := h2.roundContextFor("1")
	reopens2 := h2.apply("1", protocol.Decision{Action: protocol.Raise, Amount: 400}, ctx2)
	require.True(t, reopens2, "a full raise must reopen action")
}
