// Package wheel synthesizes minimal, installer-valid wheel archives entirely
// in memory, plus the simple-index fragments that describe them. Archives are
// rebuilt per request; byte-determinism for a given (name, version) pair is
// the contract that makes that cheap and keeps client-side hash checks happy.
package wheel

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/wheelstub/wheelstub/internal/pypi"
)

// universalTag marks a pure-Python wheel installable on any interpreter and
// platform.
const universalTag = "py3-none-any"

// buildStamp is the timestamp for every archive entry. The zip format cannot
// represent times before 1980, and determinism requires a constant.
var buildStamp = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// filenameVersionPattern extracts the version segment of a wheel filename.
var filenameVersionPattern = regexp.MustCompile(`-(\d+\.\d+\.\d+[^-]*)-`)

// Artifact is one synthesized wheel: identity plus deterministic content.
type Artifact struct {
	Package  string // normalized project name
	Version  string
	Filename string
	Content  []byte
	SHA256   string // hex digest of Content
}

// DistName escapes a normalized project name into the distribution segment
// used in wheel filenames and as the importable module directory ('-' → '_').
func DistName(name string) string {
	return strings.ReplaceAll(pypi.Normalize(name), "-", "_")
}

// Filename derives the deterministic wheel filename for a (name, version)
// pair, e.g. `torch-2.1.2-py3-none-any.whl`.
func Filename(name, version string) string {
	return fmt.Sprintf("%s-%s-%s.whl", DistName(name), version, universalTag)
}

// VersionFromFilename pulls an explicit version out of a requested wheel
// filename. Source archives and malformed names report false; the caller
// then falls back to the policy-resolved version.
func VersionFromFilename(filename string) (string, bool) {
	match := filenameVersionPattern.FindStringSubmatch(filename)
	if match == nil {
		return "", false
	}
	return match[1], true
}

// DistFromFilename returns the distribution segment of a wheel filename,
// i.e. the text before the first dash. Non-wheel filenames report false.
// The result still needs PEP 503 normalization before registry lookups.
func DistFromFilename(filename string) (string, bool) {
	if !strings.HasSuffix(filename, ".whl") {
		return "", false
	}
	dist, _, found := strings.Cut(filename, "-")
	if !found || dist == "" {
		return "", false
	}
	return dist, true
}

// Build synthesizes the wheel archive for (name, version). The result
// installs cleanly and exposes exactly one attribute, __version__; anything
// else a caller imports from the stub fails with an attribute error instead
// of silently pretending to work.
func Build(name, version string) (*Artifact, error) {
	normalized := pypi.Normalize(name)
	version = strings.TrimSpace(version)
	if normalized == "" {
		return nil, errors.New("wheel: empty package name")
	}
	if version == "" {
		return nil, fmt.Errorf("wheel: empty version for %s", normalized)
	}

	dist := strings.ReplaceAll(normalized, "-", "_")
	infoDir := fmt.Sprintf("%s-%s.dist-info", dist, version)

	initPy := fmt.Sprintf("\"\"\"Stub %s module generated by wheelstub; only __version__ is real.\"\"\"\n__version__ = %q\n", normalized, version)

	metadata := strings.Join([]string{
		"Metadata-Version: 2.1",
		"Name: " + normalized,
		"Version: " + version,
		"Summary: Stub distribution standing in for " + normalized,
		"Home-page: https://example.com",
		"Author: wheelstub",
		"License: MIT",
		"Requires-Python: >=3.6",
		"",
	}, "\n")

	wheelInfo := strings.Join([]string{
		"Wheel-Version: 1.0",
		"Generator: wheelstub",
		"Root-Is-Purelib: true",
		"Tag: " + universalTag,
		"",
	}, "\n")

	// Entry order is part of the determinism contract; RECORD lists every
	// entry including itself, with hash and size fields left empty.
	entries := []struct {
		path string
		body string
	}{
		{dist + "/__init__.py", initPy},
		{infoDir + "/METADATA", metadata},
		{infoDir + "/WHEEL", wheelInfo},
		{infoDir + "/top_level.txt", dist + "\n"},
	}
	record := &strings.Builder{}
	for _, entry := range entries {
		fmt.Fprintf(record, "%s,,\n", entry.path)
	}
	fmt.Fprintf(record, "%s,,\n", infoDir+"/RECORD")
	entries = append(entries, struct {
		path string
		body string
	}{infoDir + "/RECORD", record.String()})

	buf := &bytes.Buffer{}
	archive := zip.NewWriter(buf)
	for _, entry := range entries {
		header := &zip.FileHeader{
			Name:     entry.path,
			Method:   zip.Deflate,
			Modified: buildStamp,
		}
		header.SetMode(0o644)
		w, err := archive.CreateHeader(header)
		if err != nil {
			return nil, fmt.Errorf("wheel: add %s: %w", entry.path, err)
		}
		if _, err := w.Write([]byte(entry.body)); err != nil {
			return nil, fmt.Errorf("wheel: write %s: %w", entry.path, err)
		}
	}
	if err := archive.Close(); err != nil {
		return nil, fmt.Errorf("wheel: finalize archive: %w", err)
	}

	content := buf.Bytes()
	digest := sha256.Sum256(content)
	return &Artifact{
		Package:  normalized,
		Version:  version,
		Filename: Filename(normalized, version),
		Content:  content,
		SHA256:   hex.EncodeToString(digest[:]),
	}, nil
}
