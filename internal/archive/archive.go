// Package archive validates uploaded bot zip archives: shape, size, path
// safety, and entrypoint/protocol-version discovery, and performs safe
// extraction of validated archives to disk.
package archive

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	lru "github.com/opencoff/golang-lru"

	"github.com/lox/matchengine/internal/matcherr"
)

// Limits bounds archive intake. Mirrors config.ArchiveSettings field-for-field.
type Limits struct {
	MaxUploadBytes              int64
	MaxArchiveMembers           int
	MaxArchiveFileBytes         int64
	MaxArchiveUncompressedBytes int64
	MaxBotSourceBytes           int64
	MaxRequirementsBytes        int64
}

// DefaultLimits returns the spec's documented defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxUploadBytes:              10 * 1024 * 1024,
		MaxArchiveMembers:           128,
		MaxArchiveFileBytes:         1 * 1024 * 1024,
		MaxArchiveUncompressedBytes: 2 * 1024 * 1024,
		MaxBotSourceBytes:           256 * 1024,
		MaxRequirementsBytes:        32 * 1024,
	}
}

// Result is the successful outcome of validating an archive.
type Result struct {
	SHA256                  string
	EntrypointRelPath       string
	DeclaredProtocolVersion string // empty if not declared
}

const entrypointName = "bot.py"

// SupportedDeclaredProtocols is the set of protocol versions a bot archive
// may declare via BOT_PROTOCOL_VERSION / protocol_version.
var SupportedDeclaredProtocols = map[string]bool{"2.0": true}

// Validator validates bot archives and memoizes results by content hash, so
// a byte-identical re-upload (the content-addressed artifact model) skips
// re-walking the zip.
type Validator struct {
	limits Limits
	cache  *lru.Cache
}

// NewValidator builds a Validator with an LRU cache of the given size
// (validated results keyed by archive sha256).
func NewValidator(limits Limits, cacheSize int) (*Validator, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create archive validation cache: %w", err)
	}
	return &Validator{limits: limits, cache: cache}, nil
}

// Validate runs the full check sequence from §4.2, failing on the first
// violation encountered. filename is the declared upload filename.
func (v *Validator) Validate(data []byte, filename string) (Result, error) {
	if len(data) == 0 {
		return Result{}, matcherr.Validation("validate archive", fmt.Errorf("empty upload"))
	}
	if int64(len(data)) > v.limits.MaxUploadBytes {
		return Result{}, matcherr.Validation("validate archive", fmt.Errorf("upload exceeds %d bytes", v.limits.MaxUploadBytes))
	}
	if !strings.HasSuffix(strings.ToLower(filename), ".zip") {
		return Result{}, matcherr.Validation("validate archive", fmt.Errorf("filename %q does not end in .zip", filename))
	}

	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	if cached, ok := v.cache.Get(digest); ok {
		res := cached.(Result)
		return res, nil
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Result{}, matcherr.Validation("validate archive", fmt.Errorf("not a valid zip: %w", err))
	}

	if len(zr.File) > v.limits.MaxArchiveMembers {
		return Result{}, matcherr.Validation("validate archive", fmt.Errorf("archive has %d members, max %d", len(zr.File), v.limits.MaxArchiveMembers))
	}

	seen := make(map[string]bool, len(zr.File))
	var totalUncompressed int64
	for _, f := range zr.File {
		norm, err := normalizeMember(f.Name)
		if err != nil {
			return Result{}, matcherr.Validation("validate archive", err)
		}
		if seen[norm] {
			return Result{}, matcherr.Validation("validate archive", fmt.Errorf("duplicate archive member %q", norm))
		}
		seen[norm] = true

		if isSymlink(f) {
			return Result{}, matcherr.Validation("validate archive", fmt.Errorf("archive member %q is a symlink", norm))
		}

		size := int64(f.UncompressedSize64)
		if size > v.limits.MaxArchiveFileBytes {
			return Result{}, matcherr.Validation("validate archive", fmt.Errorf("archive member %q exceeds %d bytes", norm, v.limits.MaxArchiveFileBytes))
		}
		totalUncompressed += size
		if totalUncompressed > v.limits.MaxArchiveUncompressedBytes {
			return Result{}, matcherr.Validation("validate archive", fmt.Errorf("archive exceeds %d total uncompressed bytes", v.limits.MaxArchiveUncompressedBytes))
		}
	}

	entrypoint, err := locateEntrypoint(zr.File)
	if err != nil {
		return Result{}, matcherr.Validation("validate archive", err)
	}

	var entrypointFile *zip.File
	for _, f := range zr.File {
		n, _ := normalizeMember(f.Name)
		if n == entrypoint {
			entrypointFile = f
			break
		}
	}

	source, err := readMember(entrypointFile, v.limits.MaxBotSourceBytes)
	if err != nil {
		return Result{}, matcherr.Validation("validate archive", fmt.Errorf("entrypoint %q: %w", entrypoint, err))
	}

	if !utf8Valid(source) {
		return Result{}, matcherr.Validation("validate archive", fmt.Errorf("entrypoint %q is not valid UTF-8", entrypoint))
	}

	if err := checkParses(source); err != nil {
		return Result{}, matcherr.Validation("validate archive", fmt.Errorf("entrypoint %q: %w", entrypoint, err))
	}

	if !declaresPokerBotClass(source) {
		return Result{}, matcherr.Validation("validate archive", fmt.Errorf("entrypoint %q does not define class PokerBot", entrypoint))
	}

	for _, f := range zr.File {
		norm, _ := normalizeMember(f.Name)
		if norm != "requirements.txt" && !strings.HasSuffix(norm, "/requirements.txt") {
			continue
		}
		reqSource, err := readMember(f, v.limits.MaxRequirementsBytes)
		if err != nil {
			return Result{}, matcherr.Validation("validate archive", fmt.Errorf("requirements.txt: %w", err))
		}
		if !utf8Valid(reqSource) {
			return Result{}, matcherr.Validation("validate archive", fmt.Errorf("requirements.txt is not valid UTF-8"))
		}
		break
	}

	declared, err := extractDeclaredProtocol(source)
	if err != nil {
		return Result{}, matcherr.Validation("validate archive", err)
	}

	res := Result{SHA256: digest, EntrypointRelPath: entrypoint, DeclaredProtocolVersion: declared}
	v.cache.Add(digest, res)
	return res, nil
}

// ExtractSafely streams the zip's members to destination, re-enforcing the
// same path and size rules during extraction (it never trusts a prior
// Validate call against the same byte slice).
func (v *Validator) ExtractSafely(data []byte, destination string) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("extract archive: %w", err)
	}

	if len(zr.File) > v.limits.MaxArchiveMembers {
		return fmt.Errorf("extract archive: too many members")
	}

	var totalUncompressed int64
	for _, f := range zr.File {
		norm, err := normalizeMember(f.Name)
		if err != nil {
			return fmt.Errorf("extract archive: %w", err)
		}
		if isSymlink(f) {
			return fmt.Errorf("extract archive: member %q is a symlink", norm)
		}
		size := int64(f.UncompressedSize64)
		if size > v.limits.MaxArchiveFileBytes {
			return fmt.Errorf("extract archive: member %q too large", norm)
		}
		totalUncompressed += size
		if totalUncompressed > v.limits.MaxArchiveUncompressedBytes {
			return fmt.Errorf("extract archive: total uncompressed size too large")
		}

		destPath := filepath.Join(destination, filepath.FromSlash(norm))
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return fmt.Errorf("extract archive: %w", err)
		}
		if f.FileInfo().IsDir() {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("extract archive: open %q: %w", norm, err)
		}
		out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			rc.Close()
			return fmt.Errorf("extract archive: create %q: %w", norm, err)
		}
		_, copyErr := io.CopyN(out, rc, size+1) // +1 to catch size-limit lies
		rc.Close()
		closeErr := out.Close()
		if copyErr != nil && copyErr != io.EOF {
			return fmt.Errorf("extract archive: write %q: %w", norm, copyErr)
		}
		if closeErr != nil {
			return fmt.Errorf("extract archive: close %q: %w", norm, closeErr)
		}
	}

	return nil
}

// normalizeMember rejects unsafe paths and returns the normalized
// (forward-slash, relative) form of a zip member name.
func normalizeMember(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty archive member name")
	}
	if strings.Contains(name, "\\") {
		return "", fmt.Errorf("archive member %q contains a backslash", name)
	}
	if strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("archive member %q is an absolute path", name)
	}
	clean := path.Clean(name)
	for _, part := range strings.Split(clean, "/") {
		if part == "." || part == ".." {
			return "", fmt.Errorf("archive member %q contains an unsafe path component", name)
		}
	}
	return clean, nil
}

// isSymlink checks the Unix mode bits packed into a zip entry's external
// attributes for the symlink bit (S_IFLNK = 0120000).
func isSymlink(f *zip.File) bool {
	const sIFLNK = 0o120000
	mode := (f.ExternalAttrs >> 16) & 0o170000
	return mode == sIFLNK
}

func readMember(f *zip.File, maxBytes int64) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("member not found")
	}
	if int64(f.UncompressedSize64) > maxBytes {
		return nil, fmt.Errorf("exceeds %d bytes", maxBytes)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, maxBytes+1))
}

func utf8Valid(b []byte) bool {
	return utf8.Valid(b)
}

// locateEntrypoint implements the rule: bot.py at root, or as the sole
// bot.py inside exactly one top-level directory. Multiple candidates reject.
func locateEntrypoint(files []*zip.File) (string, error) {
	var candidates []string
	for _, f := range files {
		norm, err := normalizeMember(f.Name)
		if err != nil {
			continue
		}
		base := path.Base(norm)
		if base != entrypointName {
			continue
		}
		candidates = append(candidates, norm)
	}

	if len(candidates) == 0 {
		return "", fmt.Errorf("archive does not contain %s", entrypointName)
	}

	for _, c := range candidates {
		if c == entrypointName {
			if len(candidates) > 1 {
				return "", fmt.Errorf("archive contains multiple %s candidates", entrypointName)
			}
			return c, nil
		}
	}

	// Not at root: must be the sole bot.py inside exactly one top-level dir.
	topDirs := make(map[string]bool)
	for _, c := range candidates {
		parts := strings.SplitN(c, "/", 2)
		if len(parts) != 2 {
			return "", fmt.Errorf("archive contains multiple %s candidates", entrypointName)
		}
		topDirs[parts[0]] = true
	}
	if len(topDirs) != 1 || len(candidates) != 1 {
		return "", fmt.Errorf("archive contains multiple %s candidates", entrypointName)
	}
	return candidates[0], nil
}

var classDefRe = regexp.MustCompile(`(?m)^class\s+PokerBot\s*(\(|:)`)

func declaresPokerBotClass(source []byte) bool {
	return classDefRe.Match(source)
}

// checkParses is a conservative syntactic sanity check: Go cannot invoke a
// Python parser, so this verifies balanced brackets/quotes and rejects
// binary/null-byte content, the Go-idiomatic stand-in for the original's
// ast.parse() gate.
func checkParses(source []byte) error {
	if bytes.ContainsRune(source, 0) {
		return fmt.Errorf("contains a NUL byte")
	}
	depth := 0
	for _, r := range string(source) {
		switch r {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth < 0 {
				return fmt.Errorf("unbalanced brackets")
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("unbalanced brackets")
	}
	return nil
}

var (
	moduleProtocolRe = regexp.MustCompile(`(?m)^BOT_PROTOCOL_VERSION\s*=\s*["']([^"']+)["']`)
	classProtocolRe  = regexp.MustCompile(`(?m)^\s+protocol_version\s*=\s*["']([^"']+)["']`)
)

// DetectDeclaredProtocol exposes extractDeclaredProtocol for callers outside
// this package that need to re-derive a bot's declared protocol version from
// its already-extracted source, such as the registry's loader binding an
// artifact directory to a running BotHandle.
func DetectDeclaredProtocol(source []byte) (string, error) {
	return extractDeclaredProtocol(source)
}

// extractDeclaredProtocol mirrors the original's AST-based static extraction:
// a module-level BOT_PROTOCOL_VERSION constant takes precedence over a
// PokerBot.protocol_version class attribute. Returns "" if neither is present.
func extractDeclaredProtocol(source []byte) (string, error) {
	if m := moduleProtocolRe.FindSubmatch(source); m != nil {
		v := string(m[1])
		if !SupportedDeclaredProtocols[v] {
			return "", fmt.Errorf("unsupported declared protocol version %q", v)
		}
		return v, nil
	}
	if m := classProtocolRe.FindSubmatch(source); m != nil {
		v := string(m[1])
		if !SupportedDeclaredProtocols[v] {
			return "", fmt.Errorf("unsupported declared protocol version %q", v)
		}
		return v, nil
	}
	return "", nil
}

// SplitArchiveName is a small helper used by artifact path construction:
// splits "bot123.zip" into ("bot123", ".zip").
func SplitArchiveName(filename string) (string, string) {
	ext := path.Ext(filename)
	return strings.TrimSuffix(filename, ext), ext
}
