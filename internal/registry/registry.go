// Package registry owns the six fixed seat slots and the BotHandle bound
// to each: register/replace/release, and the read-only snapshot the match
// scheduler borrows once per hand.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lox/matchengine/internal/handengine"
	"github.com/lox/matchengine/internal/matcherr"
	"github.com/lox/matchengine/internal/sandbox"
)

const seatCount = 6

// Seat is one of the six fixed table positions.
type Seat struct {
	ID          handengine.SeatID
	Ready       bool
	BotName     string
	BotID       string
	ArtifactRef string
	UploadedAt  time.Time

	handle          sandbox.BotHandle
	protocolVersion string
}

// Loader resolves a validated, on-disk bot artifact into a live BotHandle,
// bound to the Sandbox Runtime backend configured for this engine
// instance. The concrete loaders are in this package's loader.go:
// InProcessLoader (pre-linked bots) and SubprocessLoader (a subprocess
// spawner pointed at the extracted artifact directory).
type Loader interface {
	Load(ctx context.Context, artifactRef string) (handle sandbox.BotHandle, protocolVersion string, err error)
}

// Registry holds the six seat slots behind its own sync.RWMutex. New takes
// only a Loader, so this lock is not shared with the scheduler's MatchState
// mutex.
type Registry struct {
	mu     sync.RWMutex
	seats  map[handengine.SeatID]*Seat
	loader Loader
}

func seatIDs() []handengine.SeatID {
	return []handengine.SeatID{"1", "2", "3", "4", "5", "6"}
}

// New builds a Registry with all six seats empty.
func New(loader Loader) *Registry {
	r := &Registry{seats: make(map[handengine.SeatID]*Seat, seatCount), loader: loader}
	for _, id := range seatIDs() {
		r.seats[id] = &Seat{ID: id}
	}
	return r
}

func validSeatID(id handengine.SeatID) bool {
	for _, s := range seatIDs() {
		if s == id {
			return true
		}
	}
	return false
}

// RegisterBot implements spec.md §4.8's register_bot: validate the seat id,
// resolve the artifact into a BotHandle, release any existing handle on
// that seat, then mark the seat ready.
func (r *Registry) RegisterBot(ctx context.Context, seatID handengine.SeatID, name, artifactRef, botID string) (Seat, error) {
	if !validSeatID(seatID) {
		return Seat{}, matcherr.BotLoad("registerBot", fmt.Errorf("unknown seat %q", seatID))
	}

	handle, protocolVersion, err := r.loader.Load(ctx, artifactRef)
	if err != nil {
		return Seat{}, matcherr.BotLoad("registerBot", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seat := r.seats[seatID]
	if seat.handle != nil {
		seat.handle.Close()
	}
	seat.Ready = true
	seat.BotName = name
	seat.BotID = botID
	seat.ArtifactRef = artifactRef
	seat.UploadedAt = time.Now()
	seat.handle = handle
	seat.protocolVersion = protocolVersion

	return *seat, nil
}

// GetSeats returns a snapshot of all six seats, ascending by id.
func (r *Registry) GetSeats() []Seat {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Seat, 0, seatCount)
	for _, id := range seatIDs() {
		out = append(out, *r.seats[id])
	}
	return out
}

// ReadySeats implements match.SeatSource: the bound, ready seats in
// handengine.Seat form, ascending by id.
func (r *Registry) ReadySeats() []handengine.Seat {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]handengine.Seat, 0, seatCount)
	for _, id := range seatIDs() {
		seat := r.seats[id]
		if !seat.Ready || seat.handle == nil {
			continue
		}
		out = append(out, handengine.Seat{
			ID:              seat.ID,
			PlayerID:        seat.BotID,
			Name:            seat.BotName,
			Handle:          seat.handle,
			ProtocolVersion: seat.protocolVersion,
		})
	}
	return out
}

// ResetMatch releases every bound BotHandle and clears all six slots.
func (r *Registry) ResetMatch() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range seatIDs() {
		seat := r.seats[id]
		if seat.handle != nil {
			seat.handle.Close()
		}
		r.seats[id] = &Seat{ID: id}
	}
}
