package cards

import (
	"math/rand/v2"

	"github.com/lox/matchengine/internal/randutil"
)

// Deck is a 52-card deck with an injectable deterministic RNG, so a hand's
// shuffle can be reproduced from its seed for debugging and tests.
type Deck struct {
	cards []Card
	rng   *rand.Rand
}

// NewDeck returns a freshly built, shuffled 52-card deck seeded from seed.
func NewDeck(seed int64) *Deck {
	d := &Deck{rng: randutil.New(seed)}
	d.reset()
	d.Shuffle()
	return d
}

func (d *Deck) reset() {
	d.cards = make([]Card, 0, 52)
	for suit := Spades; suit <= Clubs; suit++ {
		for rank := Two; rank <= Ace; rank++ {
			d.cards = append(d.cards, Card{Rank: rank, Suit: suit})
		}
	}
}

// Shuffle performs a Fisher-Yates shuffle using the deck's RNG.
func (d *Deck) Shuffle() {
	d.rng.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
}

// Deal removes and returns the top card. ok is false if the deck is empty.
func (d *Deck) Deal() (Card, bool) {
	if len(d.cards) == 0 {
		return Card{}, false
	}
	c := d.cards[0]
	d.cards = d.cards[1:]
	return c, true
}

// DealN deals up to n cards, stopping early if the deck runs out.
func (d *Deck) DealN(n int) []Card {
	out := make([]Card, 0, n)
	for i := 0; i < n; i++ {
		c, ok := d.Deal()
		if !ok {
			break
		}
		out = append(out, c)
	}
	return out
}

// Remaining returns the number of undealt cards.
func (d *Deck) Remaining() int {
	return len(d.cards)
}
