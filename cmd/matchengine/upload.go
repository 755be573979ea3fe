package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lox/matchengine/internal/archive"
	"github.com/lox/matchengine/internal/gameid"
)

// stageUpload copies an on-disk zip into the transient per-seat uploads
// area at <runtime>/uploads/<seatId>/<uuid>_<filename>.zip, per spec.md §6's
// persisted-state layout. The uuid component disambiguates repeated
// uploads of the same filename for one seat before validation runs.
func stageUpload(runtimeDir, seatID, zipPath string) (string, error) {
	data, err := os.ReadFile(zipPath)
	if err != nil {
		return "", fmt.Errorf("read archive %s: %w", zipPath, err)
	}

	dir := filepath.Join(runtimeDir, "uploads", seatID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("stage upload dir: %w", err)
	}
	staged := filepath.Join(dir, gameid.Generate()+"_"+filepath.Base(zipPath))
	if err := os.WriteFile(staged, data, 0o644); err != nil {
		return "", fmt.Errorf("stage upload: %w", err)
	}
	return staged, nil
}

// uploadArtifact stages an on-disk zip, validates it, and extracts it to
// the content-addressed layout spec.md §6 names:
// <runtime>/artifacts/<botId>/<sha256>/<filename>.zip (here: unpacked to a
// same-named directory, since the registry's Loader resolves an artifact
// directory rather than a zip byte stream).
func uploadArtifact(validator *archive.Validator, runtimeDir, botID, zipPath string) (artifactDir string, err error) {
	seatTag := botID
	if seatTag == "" {
		seatTag = "anonymous"
	}
	staged, err := stageUpload(runtimeDir, seatTag, zipPath)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(staged)
	if err != nil {
		return "", fmt.Errorf("read staged archive %s: %w", staged, err)
	}

	result, err := validator.Validate(data, filepath.Base(zipPath))
	if err != nil {
		return "", err
	}

	dest := filepath.Join(runtimeDir, "artifacts", seatTag, result.SHA256, filepath.Base(zipPath))
	if err := validator.ExtractSafely(data, dest); err != nil {
		return "", err
	}
	return dest, nil
}
