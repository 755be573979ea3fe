// Package sandbox provides the bot decision RPC: a single, timeout- and
// size-bounded Decide operation, isolating whatever a bot does (hang, crash,
// return garbage) from the hand state machine that calls it.
package sandbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// Result is the bounded outcome of a single Decide call. Error is empty on
// success; on failure it carries one of the BotRuntimeError kinds from
// spec.md §4.3/§7 ("timeout", "state_too_large", "invalid_state",
// "invalid_response", "error:<msg>", "runtime_failure",
// "runtime_malformed_output").
type Result struct {
	Action string
	Amount int
	Error  string
}

// OK reports whether the sandbox call itself succeeded (Error == "").
// A Decide call that returns OK()==false still carries a safe fallback
// Action chosen by the caller, per spec.md §4.3/§7.
func (r Result) OK() bool { return r.Error == "" }

const maxStateBytesDefault = 64 * 1024

// BotHandle is the capability the hand state machine drives: a single,
// bounded Decide operation bound to one loaded bot. Multiple backends
// (in-process, subprocess, container) implement the same contract.
type BotHandle interface {
	// Decide serializes state, invokes the bot, and returns a normalized
	// Result within ctx's deadline. It never panics and never blocks past
	// the context deadline plus a small grace period.
	Decide(ctx context.Context, state interface{}, timeout time.Duration, maxStateBytes int) Result
	// Close releases the handle's resources (subprocess children, pool
	// slot reservations). Idempotent.
	Close() error
}

// rawReply is the shape a bot's JSON reply must conform to.
type rawReply struct {
	Action string      `json:"action"`
	Amount json.Number `json:"amount"`
}

func serializeState(state interface{}, maxStateBytes int) ([]byte, Result, bool) {
	encoded, err := json.Marshal(state)
	if err != nil {
		return nil, Result{Action: "fold", Amount: 0, Error: "invalid_state"}, false
	}
	if len(encoded) > maxStateBytes {
		return nil, Result{Action: "fold", Amount: 0, Error: "state_too_large"}, false
	}
	return encoded, Result{}, true
}

// normalizeReply turns raw bot output bytes into a Result, applying the
// "must be a mapping with string action and integer-convertible amount"
// rule from spec.md §4.3.
func normalizeReply(raw []byte) Result {
	var reply rawReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return Result{Action: "fold", Amount: 0, Error: "invalid_response"}
	}
	switch reply.Action {
	case "fold", "check", "call", "bet", "raise":
	default:
		return Result{Action: "fold", Amount: 0, Error: "invalid_response"}
	}
	amount := 0
	if reply.Amount != "" {
		f, err := reply.Amount.Float64()
		if err != nil {
			return Result{Action: "fold", Amount: 0, Error: "invalid_response"}
		}
		amount = int(f)
	}
	return Result{Action: reply.Action, Amount: amount}
}

func newLogger(base zerolog.Logger, component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}
