package main

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lox/matchengine/internal/archive"
	"github.com/lox/matchengine/internal/config"
	"github.com/lox/matchengine/internal/handengine"
	"github.com/lox/matchengine/internal/handstore"
	"github.com/lox/matchengine/internal/registry"
	"github.com/lox/matchengine/internal/sandbox"
	"github.com/lox/matchengine/internal/service"
)

// ServeCmd constructs a MatchService from config and runs it headlessly
// until interrupted: no HTTP transport is part of this core (spec.md's
// external API layer is a separate, out-of-scope concern).
type ServeCmd struct {
	Config string   `kong:"default='matchengine.hcl',help='Path to the HCL configuration file'"`
	Debug  bool     `kong:"help='Enable debug logging'"`
	Seed   int64    `kong:"default='0',help='Base seed for per-hand deck shuffling (0 = derive cryptographically)'"`
	Seats  []string `kong:"help='seatId=/path/to/bot.zip pairs to register before starting',placeholder='1=./bots/a.zip'"`
	Start  bool     `kong:"help='Start the match immediately once enough seats are ready'"`
}

// cryptoSeed draws a fresh base seed from crypto/rand, the default per
// spec.md §4.5 ("shuffled using a provided RNG (default: cryptographic)").
func cryptoSeed() (int64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("derive cryptographic seed: %w", err)
	}
	seed := int64(binary.LittleEndian.Uint64(buf[:]))
	if seed == 0 {
		seed = 1
	}
	return seed, nil
}

func (c *ServeCmd) Run() error {
	logger := setupLogger(c.Debug)

	cfg, err := config.Load(c.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	store, err := handstore.New(cfg.Storage.HandsDir)
	if err != nil {
		return fmt.Errorf("open hand store: %w", err)
	}

	loader, err := buildLoader(cfg, logger)
	if err != nil {
		return fmt.Errorf("build bot loader: %w", err)
	}

	seed := c.Seed
	if seed == 0 {
		seed, err = cryptoSeed()
		if err != nil {
			return fmt.Errorf("seed match: %w", err)
		}
		logger.Debug().Msg("no --seed given, derived a cryptographic base seed")
	}

	svc := service.New(service.Config{
		Loader:       loader,
		Store:        store,
		BaseSeed:     seed,
		HandInterval: time.Duration(cfg.Match.HandIntervalSeconds) * time.Second,
		Params: handengine.Params{
			StartingStack:   cfg.Match.StartingStackUnits,
			SmallBlind:      cfg.Match.SmallBlindUnits,
			BigBlind:        cfg.Match.BigBlindUnits,
			DecisionTimeout: time.Duration(cfg.Match.DecisionTimeoutSeconds) * time.Second,
			MaxStateBytes:   cfg.Sandbox.MaxStateBytes,
		},
		Logger: logger,
	})

	validator, err := archive.NewValidator(archive.Limits{
		MaxUploadBytes:              cfg.Archive.MaxUploadBytes,
		MaxArchiveMembers:           cfg.Archive.MaxArchiveMembers,
		MaxArchiveFileBytes:         cfg.Archive.MaxArchiveFileBytes,
		MaxArchiveUncompressedBytes: cfg.Archive.MaxArchiveUncompressedBytes,
		MaxBotSourceBytes:           cfg.Archive.MaxBotSourceBytes,
		MaxRequirementsBytes:        cfg.Archive.MaxRequirementsBytes,
	}, 64)
	if err != nil {
		return fmt.Errorf("build archive validator: %w", err)
	}

	ctx := setupSignalHandler(logger)
	for _, spec := range c.Seats {
		seatID, zipPath, ok := strings.Cut(spec, "=")
		if !ok {
			return fmt.Errorf("invalid --seats entry %q, want seatId=path", spec)
		}
		artifactDir, err := uploadArtifact(validator, "runtime", seatID, zipPath)
		if err != nil {
			logger.Error().Err(err).Str("seat", seatID).Msg("bot upload rejected")
			continue
		}
		if _, err := svc.RegisterBot(ctx, handengine.SeatID(seatID), zipPath, artifactDir, seatID); err != nil {
			logger.Error().Err(err).Str("seat", seatID).Msg("registerBot failed")
			continue
		}
		logger.Info().Str("seat", seatID).Str("artifact", artifactDir).Msg("bot registered")
	}

	if c.Start {
		if err := svc.StartMatch(); err != nil {
			logger.Error().Err(err).Msg("startMatch failed")
		} else {
			logger.Info().Msg("match started")
		}
	}

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	_ = svc.EndMatch()
	return nil
}

// buildLoader selects the seat→BotHandle resolver named by
// cfg.Sandbox.Backend ("in_process" | "subprocess"), per spec.md §9's
// capability-abstraction redesign.
func buildLoader(cfg *config.Config, logger zerolog.Logger) (registry.Loader, error) {
	switch cfg.Sandbox.Backend {
	case "subprocess":
		return registry.NewSubprocessLoader(registry.SubprocessLoaderConfig{
			MemoryLimitBytes: cfg.Sandbox.MemoryLimitBytes,
			CPUSeconds:       cfg.Sandbox.CPUSeconds,
			Logger:           logger,
		}), nil
	default:
		pool := sandbox.NewInProcessPool(int64(cfg.Sandbox.MaxInProcessWorkers))
		return registry.NewInProcessLoader(pool, map[string]sandbox.Bot{}, map[string]string{}, logger), nil
	}
}
