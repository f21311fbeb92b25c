package pypi

import (
	"fmt"
	"regexp"
	"strings"
)

// requirementPattern matches the leading project name (and optional extras
// bracket) of a PEP 508 dependency string.
var requirementPattern = regexp.MustCompile(`^([A-Za-z0-9][-A-Za-z0-9._]*[A-Za-z0-9]|[A-Za-z0-9])(\s*\[.*?\])?`)

// Requirement is one parsed dependency declaration from requires_dist.
type Requirement struct {
	Name      string   // normalized project name
	Extras    []string // requested extras, empty when none
	Specifier string   // comma-joined version constraints, "" when unconstrained
	Marker    string   // raw environment marker after ";", "" when absent
}

// ExtraOnly reports whether the requirement is guarded by an `extra ==`
// environment marker, i.e. only pulled in when an extra is requested. The
// analyzer skips such rows: they are not direct install-time dependencies.
func (r Requirement) ExtraOnly() bool {
	return strings.Contains(r.Marker, "extra ==")
}

// ParseRequirement splits a PEP 508 dependency string into name, extras,
// version specifier and environment marker. Parenthesized specifiers are
// unwrapped. Direct URL references (`name @ https://…`) are rejected; the
// registry does not serve them and the resolver cannot match against one.
func ParseRequirement(raw string) (Requirement, error) {
	head, marker, _ := strings.Cut(raw, ";")
	head = strings.TrimSpace(head)
	marker = strings.TrimSpace(marker)
	if head == "" {
		return Requirement{}, fmt.Errorf("pypi: empty requirement %q", raw)
	}

	match := requirementPattern.FindStringSubmatch(head)
	if match == nil {
		return Requirement{}, fmt.Errorf("pypi: unparsable requirement %q", raw)
	}

	req := Requirement{Name: Normalize(match[1]), Marker: marker}
	if bracket := strings.TrimSpace(match[2]); bracket != "" {
		for _, extra := range strings.Split(strings.Trim(bracket, "[]"), ",") {
			if extra = strings.TrimSpace(extra); extra != "" {
				req.Extras = append(req.Extras, extra)
			}
		}
	}

	rest := strings.TrimSpace(head[len(match[0]):])
	if strings.HasPrefix(rest, "@") {
		return Requirement{}, fmt.Errorf("pypi: direct reference unsupported in %q", raw)
	}
	rest = strings.TrimSpace(strings.Trim(rest, "()"))
	req.Specifier = rest
	return req, nil
}
