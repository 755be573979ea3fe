package match

import (
	"strconv"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/lox/matchengine/internal/handengine"
	"github.com/lox/matchengine/internal/matcherr"
)

// Scheduler owns MatchState and runs the single background worker that
// iterates hands while the match is running, grounded on the teacher's
// mutex-guarded pool/game-manager concurrency idiom and the original
// match-service lifecycle.
type Scheduler struct {
	mu    sync.Mutex
	state MatchState

	seats   SeatSource
	store   HandWriter
	clock   quartz.Clock
	params  handengine.Params
	baseSeed int64
	hook    CompletionHook
	logger  zerolog.Logger

	handInterval time.Duration
	joinTimeout  time.Duration

	records    []HandRecord
	nextHandID int

	shutdown   chan struct{}
	workerDone chan struct{}
}

// Config bundles Scheduler's construction-time dependencies.
type Config struct {
	Seats        SeatSource
	Store        HandWriter
	Clock        quartz.Clock
	Params       handengine.Params
	BaseSeed     int64
	HandInterval time.Duration
	JoinTimeout  time.Duration // minimum 2s per spec; zero defaults to 2s
	Hook         CompletionHook
	Logger       zerolog.Logger
}

// New builds a Scheduler in the waiting state with no hands played yet.
func New(cfg Config) *Scheduler {
	clock := cfg.Clock
	if clock == nil {
		clock = quartz.NewReal()
	}
	joinTimeout := cfg.JoinTimeout
	if joinTimeout < 2*time.Second {
		joinTimeout = 2 * time.Second
	}
	hook := cfg.Hook
	if hook == nil {
		hook = func(HandRecord) {}
	}
	return &Scheduler{
		state:        MatchState{Status: StatusWaiting},
		seats:        cfg.Seats,
		store:        cfg.Store,
		clock:        clock,
		params:       cfg.Params,
		baseSeed:     cfg.BaseSeed,
		hook:         hook,
		logger:       cfg.Logger.With().Str("component", "match.scheduler").Logger(),
		handInterval: cfg.HandInterval,
		joinTimeout:  joinTimeout,
		nextHandID:   1,
	}
}

// GetMatch returns a snapshot of the current MatchState.
func (s *Scheduler) GetMatch() MatchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Hands returns the in-memory hand records, newest first, a page at a
// time, snapshotted to min(handsPlayed, maxHandID) per spec.md §4.7.
func (s *Scheduler) Hands(page, pageSize int, maxHandID string) []HandRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.records
	if maxHandID != "" {
		if cap64, err := strconv.Atoi(maxHandID); err == nil {
			cut := len(records)
			for i, r := range records {
				if n, err := strconv.Atoi(r.HandID); err == nil && n > cap64 {
					cut = i
					break
				}
			}
			records = records[:cut]
		}
	}

	// newest first
	reversed := make([]HandRecord, len(records))
	for i, r := range records {
		reversed[len(records)-1-i] = r
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = len(reversed)
	}
	start := (page - 1) * pageSize
	if start >= len(reversed) {
		return nil
	}
	end := start + pageSize
	if end > len(reversed) {
		end = len(reversed)
	}
	return reversed[start:end]
}

// StartMatch transitions waiting|stopped → running, spawning the worker.
func (s *Scheduler) StartMatch() error {
	return s.transition("start", func() error {
		switch s.state.Status {
		case StatusWaiting, StatusStopped:
			if !s.hasEnoughReadySeats() {
				return matcherr.Transition("startMatch", errNotEnoughSeats)
			}
			now := time.Now()
			s.state.Status = StatusRunning
			s.state.StartedAt = &now
			s.spawnWorkerLocked()
			return nil
		default:
			return matcherr.Transition("startMatch", errIllegalTransition(s.state.Status, "start"))
		}
	})
}

// PauseMatch transitions running → paused, signaling the worker to exit
// before its next hand.
func (s *Scheduler) PauseMatch() error {
	return s.transition("pause", func() error {
		if s.state.Status != StatusRunning {
			return matcherr.Transition("pauseMatch", errIllegalTransition(s.state.Status, "pause"))
		}
		s.state.Status = StatusPaused
		s.signalShutdownLocked()
		return nil
	})
}

// ResumeMatch transitions paused → running, spawning a fresh worker.
func (s *Scheduler) ResumeMatch() error {
	return s.transition("resume", func() error {
		if s.state.Status != StatusPaused {
			return matcherr.Transition("resumeMatch", errIllegalTransition(s.state.Status, "resume"))
		}
		if !s.hasEnoughReadySeats() {
			return matcherr.Transition("resumeMatch", errNotEnoughSeats)
		}
		s.state.Status = StatusRunning
		s.spawnWorkerLocked()
		return nil
	})
}

// EndMatch transitions running|paused → stopped.
func (s *Scheduler) EndMatch() error {
	return s.transition("end", func() error {
		switch s.state.Status {
		case StatusRunning, StatusPaused:
			s.state.Status = StatusStopped
			s.signalShutdownLocked()
			return nil
		default:
			return matcherr.Transition("endMatch", errIllegalTransition(s.state.Status, "end"))
		}
	})
}

// ResetMatch clears all match state and returns to waiting from any state.
func (s *Scheduler) ResetMatch() error {
	return s.transition("reset", func() error {
		s.signalShutdownLocked()
		s.state = MatchState{Status: StatusWaiting}
		s.records = nil
		s.nextHandID = 1
		return nil
	})
}

// transition runs fn under the scheduler lock, then joins any worker that
// was asked to shut down, outside the lock and with a bounded timeout, per
// spec.md §4.6 ("do not join from within the worker itself").
func (s *Scheduler) transition(name string, fn func() error) error {
	s.mu.Lock()
	prevDone := s.workerDone
	err := fn()
	s.mu.Unlock()

	if err == nil && prevDone != nil {
		select {
		case <-prevDone:
		case <-time.After(s.joinTimeout):
			s.logger.Warn().Str("transition", name).Msg("worker join timed out")
		}
	}
	return err
}

func (s *Scheduler) hasEnoughReadySeats() bool {
	ready := 0
	for _, seat := range s.seats.ReadySeats() {
		if seat.Handle != nil {
			ready++
		}
	}
	return ready >= 2
}

// signalShutdownLocked closes the shutdown channel for the running worker,
// if any. Must be called with s.mu held.
func (s *Scheduler) signalShutdownLocked() {
	if s.shutdown != nil {
		close(s.shutdown)
		s.shutdown = nil
	}
}

// spawnWorkerLocked starts a fresh worker goroutine. Must be called with
// s.mu held.
func (s *Scheduler) spawnWorkerLocked() {
	shutdown := make(chan struct{})
	done := make(chan struct{})
	s.shutdown = shutdown
	s.workerDone = done
	go s.runWorker(shutdown, done)
}

type transitionError struct {
	from Status
	cmd  string
}

func (e transitionError) Error() string {
	return "illegal transition: " + e.cmd + " from " + string(e.from)
}

func errIllegalTransition(from Status, cmd string) error { return transitionError{from, cmd} }

type notEnoughSeatsError struct{}

func (notEnoughSeatsError) Error() string { return "need at least 2 ready seats with a loaded bot" }

var errNotEnoughSeats = notEnoughSeatsError{}
