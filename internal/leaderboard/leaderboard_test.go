package leaderboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lox/matchengine/internal/handengine"
	"github.com/lox/matchengine/internal/match"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestOnHandCompletedTracksBBPerHand(t *testing.T) {
	board := New(fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))

	rec := match.HandRecord{
		HandID:      "1",
		ActiveSeats: []handengine.SeatID{"1", "2"},
		DeltasMajor: map[handengine.SeatID]float64{"1": -1.0, "2": 1.0},
	}
	seatToBot := map[handengine.SeatID]string{"1": "bot-a", "2": "bot-b"}

	board.OnHandCompleted(rec, seatToBot, 100) // bigBlind = 100 minor units ($1.00)

	rowA, ok := board.Row("bot-a")
	require.True(t, ok)
	require.Equal(t, 1, rowA.HandsPlayed)
	require.InDelta(t, -1.0, rowA.BBWon, 1e-9)
	require.InDelta(t, -1.0, rowA.BBPerHand(), 1e-9)

	rowB, ok := board.Row("bot-b")
	require.True(t, ok)
	require.InDelta(t, 1.0, rowB.BBWon, 1e-9)
}

func TestOnHandCompletedSkipsSeatsWithoutBotID(t *testing.T) {
	board := New(fixedClock(time.Now()))
	rec := match.HandRecord{
		ActiveSeats: []handengine.SeatID{"1"},
		DeltasMajor: map[handengine.SeatID]float64{"1": 5.0},
	}
	board.OnHandCompleted(rec, map[handengine.SeatID]string{}, 100)

	require.Empty(t, board.Rows())
}

func TestRowsRankingKey(t *testing.T) {
	board := New(fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))

	// bot-a: 2 hands, +4 BB total => 2.0 bb/hand
	board.OnHandCompleted(match.HandRecord{
		ActiveSeats: []handengine.SeatID{"1"},
		DeltasMajor: map[handengine.SeatID]float64{"1": 2.0},
	}, map[handengine.SeatID]string{"1": "bot-a"}, 100)
	board.OnHandCompleted(match.HandRecord{
		ActiveSeats: []handengine.SeatID{"1"},
		DeltasMajor: map[handengine.SeatID]float64{"1": 2.0},
	}, map[handengine.SeatID]string{"1": "bot-a"}, 100)

	// bot-b: 1 hand, +3 BB => 3.0 bb/hand (ranks above bot-a)
	board.OnHandCompleted(match.HandRecord{
		ActiveSeats: []handengine.SeatID{"1"},
		DeltasMajor: map[handengine.SeatID]float64{"1": 3.0},
	}, map[handengine.SeatID]string{"1": "bot-b"}, 100)

	rows := board.Rows()
	require.Len(t, rows, 2)
	require.Equal(t, "bot-b", rows[0].BotID)
	require.Equal(t, "bot-a", rows[1].BotID)
}
