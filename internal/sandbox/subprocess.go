package sandbox

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// whitelistedEnvVars is the subprocess environment hygiene rule from spec.md
// §4.3: only PATH, locale, and TZ pass through; no user-site packages.
var whitelistedEnvVars = []string{"PATH", "LANG", "LC_ALL", "LC_CTYPE", "TZ"}

// SubprocessSpec describes how to launch a bot's out-of-process child.
type SubprocessSpec struct {
	Command          string   // e.g. "python3"
	Args             []string // e.g. {"-m", "sandbox_runner", "--bot-dir", dir}
	WorkDir          string   // the artifact directory
	MemoryLimitBytes int64    // virtual address space cap
	CPUSeconds       int      // CPU-time cap, typically ceil(timeout)+1
}

// SubprocessHandle is a BotHandle that forks a child per Decide call,
// writes the serialized state to its stdin, and reads exactly one JSON
// object from its stdout, in the envelope shape
// {"result": {...}} | {"error": "<kind>:<detail>"}.
type SubprocessHandle struct {
	spec   SubprocessSpec
	logger zerolog.Logger
	mu     sync.Mutex // serializes Decide calls on this handle
}

// NewSubprocessHandle builds a subprocess-backed handle.
func NewSubprocessHandle(spec SubprocessSpec, logger zerolog.Logger) *SubprocessHandle {
	return &SubprocessHandle{spec: spec, logger: newLogger(logger, "sandbox.subprocess")}
}

func (h *SubprocessHandle) Decide(ctx context.Context, state interface{}, timeout time.Duration, maxStateBytes int) Result {
	encoded, fallback, ok := serializeState(state, maxStateBytes)
	if !ok {
		return fallback
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// subprocess.run's timeout in the original implementation adds a
	// quarter-second grace period over the logical decision timeout.
	grace := timeout + 250*time.Millisecond
	callCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	id := uuid.NewString()[:8]
	cmd := h.buildCommand(callCtx)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return Result{Action: "fold", Amount: 0, Error: "runtime_failure"}
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		h.logger.Error().Err(err).Str("call_id", id).Msg("failed to start bot subprocess")
		return Result{Action: "fold", Amount: 0, Error: "runtime_failure"}
	}

	if _, err := stdin.Write(encoded); err != nil {
		h.logger.Debug().Err(err).Str("call_id", id).Msg("failed to write decision state to bot stdin")
	}
	stdin.Close()

	waitErr := cmd.Wait()

	if callCtx.Err() == context.DeadlineExceeded {
		return Result{Action: "fold", Amount: 0, Error: "timeout"}
	}
	if waitErr != nil {
		h.logger.Debug().Err(waitErr).Str("call_id", id).Str("stderr", stderr.String()).Msg("bot subprocess exited with error")
		return Result{Action: "fold", Amount: 0, Error: "runtime_failure"}
	}

	return h.parseEnvelope(stdout.Bytes())
}

// buildCommand wraps the configured command in a `sh -c ulimit ...; exec`
// shell preamble so the resource bounds (§4.3: virtual memory and CPU time)
// apply to the child even though the standard library exposes no portable
// rlimit knob on exec.Cmd.
func (h *SubprocessHandle) buildCommand(ctx context.Context) *exec.Cmd {
	memKB := h.spec.MemoryLimitBytes / 1024
	cpuSec := h.spec.CPUSeconds

	quoted := make([]string, 0, len(h.spec.Args)+1)
	quoted = append(quoted, shellQuote(h.spec.Command))
	for _, a := range h.spec.Args {
		quoted = append(quoted, shellQuote(a))
	}
	script := fmt.Sprintf("ulimit -v %d; ulimit -t %d; exec %s", memKB, cpuSec, joinSpace(quoted))

	cmd := exec.CommandContext(ctx, "sh", "-c", script)
	cmd.Dir = h.spec.WorkDir
	cmd.Env = sandboxEnv()
	return cmd
}

func joinSpace(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += " " + p
	}
	return out
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// sandboxEnv whitelists PATH/locale/TZ, disables user-site packages, and
// carries nothing else from the parent environment.
func sandboxEnv() []string {
	env := make([]string, 0, len(whitelistedEnvVars)+1)
	for _, name := range whitelistedEnvVars {
		if v, ok := os.LookupEnv(name); ok {
			env = append(env, name+"="+v)
		}
	}
	env = append(env, "PYTHONNOUSERSITE=1")
	return env
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func (h *SubprocessHandle) parseEnvelope(out []byte) Result {
	line := firstLine(out)
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Result{Action: "fold", Amount: 0, Error: "runtime_malformed_output"}
	}
	if env.Error != "" {
		return Result{Action: "fold", Amount: 0, Error: env.Error}
	}
	if len(env.Result) == 0 {
		return Result{Action: "fold", Amount: 0, Error: "runtime_malformed_output"}
	}
	return normalizeReply(env.Result)
}

func firstLine(out []byte) []byte {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) > 0 {
			return append([]byte(nil), line...)
		}
	}
	return nil
}

func (h *SubprocessHandle) Close() error { return nil }
