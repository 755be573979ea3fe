package handstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lox/matchengine/internal/cards"
	"github.com/lox/matchengine/internal/handengine"
	"github.com/lox/matchengine/internal/match"
)

func sampleInput() match.HandWriteInput {
	board := []cards.Card{
		cards.New(cards.Ace, cards.Spades),
		cards.New(cards.King, cards.Hearts),
		cards.New(cards.Two, cards.Clubs),
		cards.New(cards.Seven, cards.Diamonds),
		cards.New(cards.Nine, cards.Spades),
	}
	result := handengine.HandResult{
		HandID:   "3",
		Winners:  []handengine.WinnerInfo{{SeatID: "2", Amount: 300, Category: "pair of aces"}},
		PotCents: 300,
		Board:    board,
		HoleCards: map[handengine.SeatID][]cards.Card{
			"1": {cards.New(cards.Queen, cards.Clubs), cards.New(cards.Jack, cards.Clubs)},
			"2": {cards.New(cards.Ace, cards.Hearts), cards.New(cards.Ace, cards.Clubs)},
		},
		Actions: []handengine.ActionEvent{
			{SeatID: "1", Action: handengine.ActionBlind, Amount: 50, Street: handengine.Preflop, PotAfter: 50},
			{SeatID: "2", Action: handengine.ActionBlind, Amount: 100, Street: handengine.Preflop, PotAfter: 150},
			{SeatID: "1", Action: handengine.ActionFold, Street: handengine.Preflop, PotAfter: 150},
		},
		Deltas:      map[handengine.SeatID]int{"1": -50, "2": 150},
		ActiveSeats: []handengine.SeatID{"1", "2"},
		ButtonSeat:  "1",
	}
	return match.HandWriteInput{
		HandNumber:  "3",
		CompletedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Result:      result,
		SeatNames:   map[handengine.SeatID]string{"1": "alpha", "2": "bravo"},
		ButtonSeat:  "1",
		SmallBlind:  50,
		BigBlind:    100,
	}
}

func TestWriteHandProducesExpectedFile(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	path, err := store.WriteHand(sampleInput())
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "3.txt"), path)

	text, err := store.LoadHand("3")
	require.NoError(t, err)
	require.Contains(t, text, "Hand #3\n")
	require.Contains(t, text, "Date: 2026-01-02T03:04:05Z\n")
	require.Contains(t, text, "Seat 1: alpha\n")
	require.Contains(t, text, "Seat 2: bravo\n")
	require.Contains(t, text, "Button: Seat 1\n")
	require.Contains(t, text, "*** HOLE CARDS ***\n")
	require.Contains(t, text, "Seat 1: Qc Jc\n")
	require.Contains(t, text, "*** PREFLOP ***\n")
	require.Contains(t, text, "Seat 1: posts blind $0.50\n")
	require.Contains(t, text, "Seat 2: posts blind $1.00\n")
	require.Contains(t, text, "Seat 1: folds\n")
	require.Contains(t, text, "*** SUMMARY ***\n")
	require.Contains(t, text, "Total pot $3.00\n")
	require.Contains(t, text, "Seat 2 won $3.00 with pair of aces\n")
}

func TestLoadHandMissingReturnsStorageError(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	_, err = store.LoadHand("99")
	require.Error(t, err)
}

func TestClearRemovesAllHandFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	in := sampleInput()
	_, err = store.WriteHand(in)
	require.NoError(t, err)
	in.HandNumber = "4"
	_, err = store.WriteHand(in)
	require.NoError(t, err)

	require.NoError(t, store.Clear())
	_, err = store.LoadHand("3")
	require.Error(t, err)
	_, err = store.LoadHand("4")
	require.Error(t, err)
}
