package sandbox

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rs/zerolog"
)

// Bot is an in-process bot implementation: trusted code that runs in the
// same process as the engine (no archive sandboxing). act receives the
// already-serialized state and must return raw JSON bytes shaped like
// rawReply, or an error to signal a crash.
type Bot interface {
	Act(ctx context.Context, state []byte) ([]byte, error)
}

// InProcessPool bounds concurrent Decide calls across every InProcessHandle
// sharing it to a small worker count, per spec.md §4.3/§5 ("small shared
// pool (≤ 4 workers)").
type InProcessPool struct {
	sem *semaphore.Weighted
}

// NewInProcessPool builds a pool with the given worker bound.
func NewInProcessPool(workers int64) *InProcessPool {
	return &InProcessPool{sem: semaphore.NewWeighted(workers)}
}

// InProcessHandle is a BotHandle backed by a trusted in-process Bot,
// isolated from the hand loop only by a timeout and a panic recovery, not by
// process boundaries.
type InProcessHandle struct {
	bot    Bot
	pool   *InProcessPool
	logger zerolog.Logger
}

// NewInProcessHandle wraps bot with pool-bounded, timeout-bounded isolation.
func NewInProcessHandle(bot Bot, pool *InProcessPool, logger zerolog.Logger) *InProcessHandle {
	return &InProcessHandle{bot: bot, pool: pool, logger: newLogger(logger, "sandbox.inprocess")}
}

func (h *InProcessHandle) Decide(ctx context.Context, state interface{}, timeout time.Duration, maxStateBytes int) Result {
	encoded, fallback, ok := serializeState(state, maxStateBytes)
	if !ok {
		return fallback
	}

	if err := h.pool.sem.Acquire(ctx, 1); err != nil {
		return Result{Action: "fold", Amount: 0, Error: "timeout"}
	}
	defer h.pool.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		raw []byte
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		raw, err := h.runBot(callCtx, encoded)
		select {
		case done <- outcome{raw, err}:
		default:
		}
	}()

	select {
	case <-callCtx.Done():
		return Result{Action: "fold", Amount: 0, Error: "timeout"}
	case out := <-done:
		if out.err != nil {
			h.logger.Debug().Err(out.err).Msg("bot act failed")
			return Result{Action: "fold", Amount: 0, Error: "error:" + out.err.Error()}
		}
		return normalizeReply(out.raw)
	}
}

// runBot recovers a panicking bot so a single misbehaving bot can never take
// down the worker goroutine or poison subsequent decisions on the same
// handle.
func (h *InProcessHandle) runBot(ctx context.Context, state []byte) (raw []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{r}
		}
	}()
	return h.bot.Act(ctx, state)
}

type panicError struct{ v interface{} }

func (p panicError) Error() string {
	if e, ok := p.v.(error); ok {
		return e.Error()
	}
	return "panic"
}

func (h *InProcessHandle) Close() error { return nil }
