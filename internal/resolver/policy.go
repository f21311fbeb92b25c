package resolver

import (
	"errors"
	"fmt"
	"strings"

	pep440 "github.com/aquasecurity/go-pep440-version"
)

const autoSentinel = "auto"

// Policy is the version policy of one substituted package: either a pinned
// literal version or auto-detection of the upstream's latest stable release.
// The zero value is invalid; construct via Pinned/AutoDetect/ParsePolicy.
type Policy struct {
	auto    bool
	version string
}

// AutoDetect returns the policy that resolves against the upstream registry.
func AutoDetect() Policy { return Policy{auto: true} }

// Pinned returns the policy that always yields the given literal version.
func Pinned(version string) Policy { return Policy{version: version} }

// ParsePolicy interprets a configuration value: the sentinel "auto"
// (case-insensitive) or a literal version, which must be a valid version
// string so that malformed pins die at startup instead of at install time.
func ParsePolicy(raw string) (Policy, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Policy{}, errors.New("empty version policy")
	}
	if strings.EqualFold(trimmed, autoSentinel) {
		return AutoDetect(), nil
	}
	if _, err := pep440.Parse(trimmed); err != nil {
		return Policy{}, fmt.Errorf("invalid literal version %q: %w", trimmed, err)
	}
	return Pinned(trimmed), nil
}

// IsAuto reports whether the policy asks for upstream auto-detection.
func (p Policy) IsAuto() bool { return p.auto }

// Literal returns the pinned version and whether the policy carries one.
func (p Policy) Literal() (string, bool) {
	return p.version, !p.auto && p.version != ""
}

func (p Policy) String() string {
	if p.auto {
		return autoSentinel
	}
	return p.version
}
