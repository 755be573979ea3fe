package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/lox/matchengine/internal/archive"
	"github.com/lox/matchengine/internal/protocol"
	"github.com/lox/matchengine/internal/sandbox"
)

// SandboxRunnerModule is the Python module the subprocess backend execs to
// bridge stdin/stdout JSON to a bot's PokerBot.act, mirroring the
// extraction artifact contract in spec.md §6.
const SandboxRunnerModule = "matchengine_sandbox_runner"

// SubprocessLoaderConfig bundles the knobs SubprocessLoader needs to spawn
// a bot's child process.
type SubprocessLoaderConfig struct {
	PythonCommand    string // e.g. "python3"
	MemoryLimitBytes int64
	CPUSeconds       int
	Logger           zerolog.Logger
}

// SubprocessLoader resolves an artifact directory (an already-extracted,
// validated bot archive) into a SubprocessHandle, detecting the bot's
// declared protocol version from its entrypoint source.
type SubprocessLoader struct {
	cfg SubprocessLoaderConfig
}

// NewSubprocessLoader builds a Loader backed by the subprocess sandbox.
func NewSubprocessLoader(cfg SubprocessLoaderConfig) *SubprocessLoader {
	if cfg.PythonCommand == "" {
		cfg.PythonCommand = "python3"
	}
	return &SubprocessLoader{cfg: cfg}
}

// Load implements registry.Loader.
func (l *SubprocessLoader) Load(ctx context.Context, artifactDir string) (sandbox.BotHandle, string, error) {
	entrypoint, err := findEntrypoint(artifactDir)
	if err != nil {
		return nil, "", fmt.Errorf("locate bot entrypoint under %s: %w", artifactDir, err)
	}
	source, err := os.ReadFile(entrypoint)
	if err != nil {
		return nil, "", fmt.Errorf("read bot entrypoint %s: %w", entrypoint, err)
	}
	declared, err := archive.DetectDeclaredProtocol(source)
	if err != nil {
		return nil, "", err
	}
	protocolVersion := declared
	if protocolVersion == "" {
		protocolVersion = protocol.LegacyVersion
	}

	spec := sandbox.SubprocessSpec{
		Command:          l.cfg.PythonCommand,
		Args:             []string{"-m", SandboxRunnerModule, "--bot-dir", artifactDir},
		WorkDir:          artifactDir,
		MemoryLimitBytes: l.cfg.MemoryLimitBytes,
		CPUSeconds:       l.cfg.CPUSeconds,
	}
	return sandbox.NewSubprocessHandle(spec, l.cfg.Logger), protocolVersion, nil
}

// findEntrypoint walks artifactDir looking for bot.py, either at the root
// or in a single top-level directory, mirroring the archive validator's
// unique-entrypoint rule against an already-extracted tree.
func findEntrypoint(artifactDir string) (string, error) {
	root := filepath.Join(artifactDir, "bot.py")
	if _, err := os.Stat(root); err == nil {
		return root, nil
	}

	entries, err := os.ReadDir(artifactDir)
	if err != nil {
		return "", err
	}
	var found string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		candidate := filepath.Join(artifactDir, e.Name(), "bot.py")
		if _, err := os.Stat(candidate); err == nil {
			if found != "" {
				return "", fmt.Errorf("multiple bot.py candidates under %s", artifactDir)
			}
			found = candidate
		}
	}
	if found == "" {
		return "", fmt.Errorf("no bot.py found under %s", artifactDir)
	}
	return found, nil
}

// InProcessLoader resolves an artifact into an in-process BotHandle backed
// by a registry of trusted, pre-linked Bot implementations keyed by
// artifactRef (used for built-in reference bots and tests, never for
// untrusted uploads).
type InProcessLoader struct {
	pool  *sandbox.InProcessPool
	bots  map[string]sandbox.Bot
	protos map[string]string
	logger zerolog.Logger
}

// NewInProcessLoader builds a Loader over a fixed set of trusted bots.
func NewInProcessLoader(pool *sandbox.InProcessPool, bots map[string]sandbox.Bot, protocolVersions map[string]string, logger zerolog.Logger) *InProcessLoader {
	return &InProcessLoader{pool: pool, bots: bots, protos: protocolVersions, logger: logger}
}

func (l *InProcessLoader) Load(ctx context.Context, artifactRef string) (sandbox.BotHandle, string, error) {
	bot, ok := l.bots[artifactRef]
	if !ok {
		return nil, "", fmt.Errorf("no in-process bot registered for %q", artifactRef)
	}
	version := l.protos[artifactRef]
	if version == "" {
		version = protocol.LegacyVersion
	}
	return sandbox.NewInProcessHandle(bot, l.pool, l.logger), version, nil
}
