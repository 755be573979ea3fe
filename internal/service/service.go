// Package service wires Scheduler, Registry, HandStore and the leaderboard
// into the single construction-time value spec.md §9 calls MatchService:
// external API layers receive it by reference instead of reaching for
// module-global singletons.
package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/lox/matchengine/internal/handengine"
	"github.com/lox/matchengine/internal/handstore"
	"github.com/lox/matchengine/internal/leaderboard"
	"github.com/lox/matchengine/internal/match"
	"github.com/lox/matchengine/internal/registry"
)

// MatchService owns every stateful component of one match and exposes the
// control surface spec.md §6 lists for an external API layer to drive.
type MatchService struct {
	Registry    *registry.Registry
	Scheduler   *match.Scheduler
	Store       *handstore.Store
	Leaderboard *leaderboard.Board

	bigBlind int
}

// Config bundles MatchService's construction-time dependencies.
type Config struct {
	Loader       registry.Loader
	Store        *handstore.Store
	Params       handengine.Params
	BaseSeed     int64
	HandInterval time.Duration
	JoinTimeout  time.Duration
	Logger       zerolog.Logger
}

// New builds a MatchService with all six seats empty and the match in
// waiting. The leaderboard hook is wired to observe every committed hand
// exactly once, per spec.md's on_hand_completed guarantee.
func New(cfg Config) *MatchService {
	reg := registry.New(cfg.Loader)
	board := leaderboard.New(nil)

	svc := &MatchService{
		Registry:    reg,
		Store:       cfg.Store,
		Leaderboard: board,
		bigBlind:    cfg.Params.BigBlind,
	}

	svc.Scheduler = match.New(match.Config{
		Seats:        reg,
		Store:        cfg.Store,
		Params:       cfg.Params,
		BaseSeed:     cfg.BaseSeed,
		HandInterval: cfg.HandInterval,
		JoinTimeout:  cfg.JoinTimeout,
		Logger:       cfg.Logger,
		Hook:         svc.onHandCompleted,
	})
	return svc
}

// onHandCompleted is the scheduler's CompletionHook: it derives the
// seat→botId mapping from the registry's current seats (the bots occupying
// those seats at commit time) and folds the hand into the leaderboard.
func (s *MatchService) onHandCompleted(rec match.HandRecord) {
	seatToBot := map[handengine.SeatID]string{}
	for _, seat := range s.Registry.GetSeats() {
		if seat.BotID != "" {
			seatToBot[seat.ID] = seat.BotID
		}
	}
	s.Leaderboard.OnHandCompleted(rec, seatToBot, s.bigBlind)
}

// RegisterBot implements spec.md §4.8's register_bot.
func (s *MatchService) RegisterBot(ctx context.Context, seatID handengine.SeatID, name, artifactRef, botID string) (registry.Seat, error) {
	return s.Registry.RegisterBot(ctx, seatID, name, artifactRef, botID)
}

// GetSeats returns a snapshot of all six seats.
func (s *MatchService) GetSeats() []registry.Seat { return s.Registry.GetSeats() }

// GetMatch returns the current MatchState snapshot.
func (s *MatchService) GetMatch() match.MatchState { return s.Scheduler.GetMatch() }

// StartMatch, PauseMatch, ResumeMatch, and EndMatch forward directly to the
// Scheduler; only ResetMatch needs to additionally release registry state.
func (s *MatchService) StartMatch() error  { return s.Scheduler.StartMatch() }
func (s *MatchService) PauseMatch() error  { return s.Scheduler.PauseMatch() }
func (s *MatchService) ResumeMatch() error { return s.Scheduler.ResumeMatch() }
func (s *MatchService) EndMatch() error    { return s.Scheduler.EndMatch() }

// ResetMatch implements spec.md §4.8's reset_match: release every
// BotHandle and reset all seat slots, and return the scheduler to waiting
// with no hand history.
func (s *MatchService) ResetMatch() error {
	if err := s.Scheduler.ResetMatch(); err != nil {
		return err
	}
	s.Registry.ResetMatch()
	return nil
}

// ListHands implements list_hands(page, page_size, max_hand_id?).
func (s *MatchService) ListHands(page, pageSize int, maxHandID string) []match.HandRecord {
	return s.Scheduler.Hands(page, pageSize, maxHandID)
}

// GetHand returns one hand's persisted history text by id.
func (s *MatchService) GetHand(handID string) (string, error) {
	return s.Store.LoadHand(handID)
}

// ListPnl implements list_pnl(since_hand_id?): every committed hand's
// per-seat chip deltas, from oldest to newest, optionally cut to hands
// after sinceHandID.
func (s *MatchService) ListPnl(sinceHandID string) []match.HandRecord {
	all := s.Scheduler.Hands(1, 0, "")
	// Hands() returns newest-first; PnL streams oldest-first.
	out := make([]match.HandRecord, len(all))
	for i, r := range all {
		out[len(all)-1-i] = r
	}
	if sinceHandID == "" {
		return out
	}
	for i, r := range out {
		if r.HandID == sinceHandID {
			return out[i+1:]
		}
	}
	return out
}

// GetLeaderboard returns the current standings, best bb-per-hand first.
func (s *MatchService) GetLeaderboard() []leaderboard.Row {
	return s.Leaderboard.Rows()
}
