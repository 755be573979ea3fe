// Package handstore renders and persists one hand-history text file per
// played hand, and serves them back by id, per spec.md §4.7.
package handstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lox/matchengine/internal/cards"
	"github.com/lox/matchengine/internal/fileutil"
	"github.com/lox/matchengine/internal/handengine"
	"github.com/lox/matchengine/internal/match"
	"github.com/lox/matchengine/internal/matcherr"
)

// gameTag is the fixed game-identity line every hand history carries.
const gameTag = "No Limit Hold'em"

// Store writes and reads hand-history text files, one per hand, under a
// single directory. It implements match.HandWriter.
type Store struct {
	dir string
}

// New creates (if needed) dir and returns a Store rooted there.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, matcherr.Storage("create hands directory", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(handID string) string {
	return filepath.Join(s.dir, handID+".txt")
}

// WriteHand implements match.HandWriter: it renders in to canonical
// history text and writes it atomically to <handId>.txt.
func (s *Store) WriteHand(in match.HandWriteInput) (string, error) {
	text := render(in)
	path := s.path(in.HandNumber)
	if err := fileutil.WriteFileAtomic(path, []byte(text), 0o644); err != nil {
		return "", matcherr.Storage("write hand history", err)
	}
	return path, nil
}

// LoadHand returns the stored text for handID, per spec's load_hand(id).
func (s *Store) LoadHand(handID string) (string, error) {
	data, err := os.ReadFile(s.path(handID))
	if err != nil {
		return "", matcherr.Storage("load hand history", err)
	}
	return string(data), nil
}

// Clear removes every stored hand file, per spec's clear().
func (s *Store) Clear() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return matcherr.Storage("clear hand directory", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			return matcherr.Storage("clear hand directory", err)
		}
	}
	return nil
}

// money formats an integer minor-unit (cent) amount as the fixed
// "$<major>.<2dp>" non-locale format decided for this engine.
func money(cents int) string {
	return fmt.Sprintf("$%.2f", float64(cents)/100.0)
}

func notation(cs []cards.Card) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.Notation()
	}
	return strings.Join(parts, " ")
}

// render builds the canonical, deterministic hand-history text for in.
func render(in match.HandWriteInput) string {
	result := in.Result
	var b strings.Builder

	fmt.Fprintf(&b, "Hand #%s\n", in.HandNumber)
	fmt.Fprintf(&b, "Date: %s\n", in.CompletedAt.UTC().Format("2006-01-02T15:04:05Z"))
	fmt.Fprintf(&b, "%s ($%.2f/$%.2f)\n", gameTag, float64(in.SmallBlind)/100.0, float64(in.BigBlind)/100.0)

	seats := append([]handengine.SeatID(nil), result.ActiveSeats...)
	sort.Slice(seats, func(i, j int) bool { return seats[i] < seats[j] })
	for _, seat := range seats {
		name := in.SeatNames[seat]
		if name == "" {
			name = string(seat)
		}
		fmt.Fprintf(&b, "Seat %s: %s\n", seat, name)
	}
	fmt.Fprintf(&b, "Button: Seat %s\n", in.ButtonSeat)

	b.WriteString("*** HOLE CARDS ***\n")
	for _, seat := range seats {
		if hole, ok := result.HoleCards[seat]; ok {
			fmt.Fprintf(&b, "Seat %s: %s\n", seat, notation(hole))
		}
	}

	board := result.Board
	streets := []handengine.Street{handengine.Preflop, handengine.Flop, handengine.Turn, handengine.River}
	for _, street := range streets {
		actions := actionsForStreet(result.Actions, street)
		writeStreetHeader(&b, street, board)
		for _, a := range actions {
			writeAction(&b, a)
		}
	}

	b.WriteString("*** SUMMARY ***\n")
	fmt.Fprintf(&b, "Total pot %s\n", money(result.PotCents))
	if len(board) > 0 {
		fmt.Fprintf(&b, "Board [%s]\n", notation(board))
	}
	for _, w := range result.Winners {
		if w.Category != "" {
			fmt.Fprintf(&b, "Seat %s won %s with %s\n", w.SeatID, money(w.Amount), w.Category)
		} else {
			fmt.Fprintf(&b, "Seat %s won %s\n", w.SeatID, money(w.Amount))
		}
	}

	return b.String()
}

func actionsForStreet(actions []handengine.ActionEvent, street handengine.Street) []handengine.ActionEvent {
	var out []handengine.ActionEvent
	for _, a := range actions {
		if a.Street == street {
			out = append(out, a)
		}
	}
	return out
}

func writeStreetHeader(b *strings.Builder, street handengine.Street, board []cards.Card) {
	switch street {
	case handengine.Preflop:
		b.WriteString("*** PREFLOP ***\n")
	case handengine.Flop:
		if len(board) >= 3 {
			fmt.Fprintf(b, "*** FLOP [%s] ***\n", notation(board[:3]))
		} else {
			b.WriteString("*** FLOP ***\n")
		}
	case handengine.Turn:
		if len(board) >= 4 {
			fmt.Fprintf(b, "*** TURN [%s] [%s] ***\n", notation(board[:3]), notation(board[3:4]))
		} else {
			b.WriteString("*** TURN ***\n")
		}
	case handengine.River:
		if len(board) >= 5 {
			fmt.Fprintf(b, "*** RIVER [%s] [%s] ***\n", notation(board[:4]), notation(board[4:5]))
		} else {
			b.WriteString("*** RIVER ***\n")
		}
	}
}

func writeAction(b *strings.Builder, a handengine.ActionEvent) {
	switch a.Action {
	case handengine.ActionBlind:
		fmt.Fprintf(b, "Seat %s: posts blind %s\n", a.SeatID, money(a.Amount))
	case handengine.ActionFold:
		fmt.Fprintf(b, "Seat %s: folds\n", a.SeatID)
	case handengine.ActionCheck:
		fmt.Fprintf(b, "Seat %s: checks\n", a.SeatID)
	case handengine.ActionCall:
		fmt.Fprintf(b, "Seat %s: calls %s\n", a.SeatID, money(a.Amount))
	case handengine.ActionBet:
		fmt.Fprintf(b, "Seat %s: bets %s\n", a.SeatID, money(a.Amount))
	case handengine.ActionRaise:
		fmt.Fprintf(b, "Seat %s: raises to %s\n", a.SeatID, money(a.Amount))
	}
}
