package resolver

import (
	"errors"
	"regexp"
	"sort"
	"strings"

	pep440 "github.com/aquasecurity/go-pep440-version"

	"github.com/wheelstub/wheelstub/internal/pypi"
)

// prereleasePattern matches the trailing pre/dev segment of a version string
// (local part already stripped). Ordering is the version library's job;
// detection only decides whether a release counts as stable.
var prereleasePattern = regexp.MustCompile(`(?i)[._-]?(?:a|b|c|rc|alpha|beta|pre|preview|dev)[._-]?\d*$`)

func isPrerelease(version string) bool {
	base, _, _ := strings.Cut(version, "+")
	return prereleasePattern.MatchString(base)
}

type candidate struct {
	release pypi.Release
	parsed  pep440.Version
}

// usableCandidates parses the release list, dropping versions the scheme
// cannot order. Yanked releases are excluded unless that would leave nothing
// to choose from. The result is sorted highest-first.
func usableCandidates(available []pypi.Release) []candidate {
	parse := func(includeYanked bool) []candidate {
		out := make([]candidate, 0, len(available))
		for _, release := range available {
			if release.Yanked && !includeYanked {
				continue
			}
			parsed, err := pep440.Parse(release.Version)
			if err != nil {
				continue
			}
			out = append(out, candidate{release: release, parsed: parsed})
		}
		return out
	}
	candidates := parse(false)
	if len(candidates) == 0 {
		candidates = parse(true)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[j].parsed.LessThan(candidates[i].parsed)
	})
	return candidates
}

// LatestStable picks the highest non-prerelease version from the release
// list, falling back to the highest overall when every release is a
// prerelease, and to the metadata block's own latest version when the
// release list is empty or entirely unparsable.
func LatestStable(project *pypi.Project) (string, error) {
	candidates := usableCandidates(project.ReleaseList())
	for _, c := range candidates {
		if !isPrerelease(c.release.Version) {
			return c.release.Version, nil
		}
	}
	if len(candidates) > 0 {
		return candidates[0].release.Version, nil
	}
	if v := strings.TrimSpace(project.Info.Version); v != "" {
		return v, nil
	}
	return "", errors.New("no usable releases")
}

// MatchConstraint selects from the available releases the best version for a
// declared specifier set: the highest stable release satisfying every
// specifier, else the highest satisfying release including prereleases, else
// the latest available release flagged as non-conforming. An unparsable
// specifier is treated like an unsatisfiable one rather than an error —
// install-time compatibility beats strictness here. The error return only
// fires when there is nothing to choose from at all.
func MatchConstraint(specifier string, available []pypi.Release) (version string, conforming bool, err error) {
	candidates := usableCandidates(available)
	if len(candidates) == 0 {
		return "", false, errors.New("no usable releases")
	}

	specifier = strings.TrimSpace(specifier)
	if specifier == "" {
		for _, c := range candidates {
			if !isPrerelease(c.release.Version) {
				return c.release.Version, true, nil
			}
		}
		return candidates[0].release.Version, true, nil
	}

	specs, parseErr := pep440.NewSpecifiers(specifier)
	if parseErr == nil {
		for _, c := range candidates {
			if !isPrerelease(c.release.Version) && specs.Check(c.parsed) {
				return c.release.Version, true, nil
			}
		}
		for _, c := range candidates {
			if specs.Check(c.parsed) {
				return c.release.Version, true, nil
			}
		}
	}
	return candidates[0].release.Version, false, nil
}
