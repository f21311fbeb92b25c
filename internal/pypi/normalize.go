package pypi

import (
	"regexp"
	"strings"
)

var separatorRuns = regexp.MustCompile(`[-_.]+`)

// Normalize canonicalizes a project name: lowercase, with runs of `-`, `_`
// and `.` collapsed to a single dash. Registry indexes and this proxy's
// substitution table are keyed by the canonical form, so `Torch`, `torch`
// and `my_package` compare equal to `torch` / `my-package`.
func Normalize(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ""
	}
	return strings.ToLower(separatorRuns.ReplaceAllString(trimmed, "-"))
}
