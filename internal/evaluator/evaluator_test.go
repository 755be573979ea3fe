package evaluator

import (
	"testing"

	"github.com/lox/matchengine/internal/cards"
)

func mustParse(t *testing.T, notation ...string) []cards.Card {
	t.Helper()
	out := make([]cards.Card, len(notation))
	for i, n := range notation {
		c, err := cards.Parse(n)
		if err != nil {
			t.Fatalf("parse %q: %v", n, err)
		}
		out[i] = c
	}
	return out
}

func TestEvaluateCategories(t *testing.T) {
	tests := []struct {
		name string
		hand []string
		want Category
	}{
		{"royal flush", []string{"As", "Ks", "Qs", "Js", "Ts"}, StraightFlush},
		{"straight flush", []string{"9h", "8h", "7h", "6h", "5h"}, StraightFlush},
		{"four of a kind", []string{"As", "Ah", "Ad", "Ac", "Ks"}, FourOfAKind},
		{"full house", []string{"Ks", "Kh", "Kd", "2c", "2s"}, FullHouse},
		{"flush", []string{"2s", "5s", "9s", "Js", "Ks"}, Flush},
		{"wheel straight", []string{"As", "2h", "3d", "4c", "5s"}, Straight},
		{"broadway straight", []string{"Ts", "Jh", "Qd", "Kc", "As"}, Straight},
		{"three of a kind", []string{"7s", "7h", "7d", "2c", "9s"}, ThreeOfAKind},
		{"two pair", []string{"Js", "Jh", "4d", "4c", "9s"}, TwoPair},
		{"one pair", []string{"Qs", "Qh", "4d", "7c", "9s"}, OnePair},
		{"high card", []string{"2s", "5h", "9d", "Jc", "Ks"}, HighCard},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rank := Evaluate(mustParse(t, tc.hand...))
			if got := rank.Category(); got != tc.want {
				t.Errorf("Evaluate(%v).Category() = %s, want %s", tc.hand, got, tc.want)
			}
		})
	}
}

func TestEvaluateWheelLosesToSixHighStraight(t *testing.T) {
	wheel := Evaluate(mustParse(t, "As", "2h", "3d", "4c", "5s"))
	sixHigh := Evaluate(mustParse(t, "2s", "3h", "4d", "5c", "6s"))
	if wheel >= sixHigh {
		t.Errorf("wheel straight should rank below a six-high straight")
	}
}

func TestEvaluateSevenCardsPicksBestFive(t *testing.T) {
	// The board holds five spades; the two off-suit hole cards are not used
	// and the best five is the spade flush.
	seven := mustParse(t, "2c", "7d", "As", "Ks", "Qs", "Js", "9s")
	rank := Evaluate(seven)
	if rank.Category() != Flush {
		t.Errorf("Evaluate(7 cards).Category() = %s, want %s", rank.Category(), Flush)
	}
}

func TestEvaluateHigherFourOfAKindBeatsLower(t *testing.T) {
	low := Evaluate(mustParse(t, "2s", "2h", "2d", "2c", "Ks"))
	high := Evaluate(mustParse(t, "3s", "3h", "3d", "3c", "2s"))
	if high <= low {
		t.Errorf("quad threes should beat quad twos")
	}
}

func TestEvaluatePanicsOnTooFewCards(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected Evaluate to panic with fewer than 5 cards")
		}
	}()
	Evaluate(mustParse(t, "As", "Ks", "Qs", "Js"))
}
