// Package analyzer walks a package's declared requirements and reports which
// concrete versions the upstream registry can satisfy them with. It is a
// read-only reporting path that shares the resolver's constraint matching and
// never touches the substitution table or the process version cache.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/wheelstub/wheelstub/internal/pypi"
	"github.com/wheelstub/wheelstub/internal/resolver"
)

// fetchConcurrency bounds parallel metadata lookups per report.
const fetchConcurrency = 4

// Dependency is one row of the report table.
type Dependency struct {
	Name       string
	Constraint string // declared specifier set, empty when unconstrained
	Resolved   string // best matching upstream version, empty on fetch failure
	Conforming bool
	Note       string // failure or mismatch remark, empty when clean
}

// Report captures the analysis of one package at one version.
type Report struct {
	Package      string
	Version      string
	Dependencies []Dependency
}

// Analyzer fetches dependency metadata and matches declared constraints
// against the releases actually available upstream.
type Analyzer struct {
	client *pypi.Client
}

// New builds an analyzer on top of the shared metadata client.
func New(client *pypi.Client) *Analyzer {
	return &Analyzer{client: client}
}

// Analyze fetches the package's latest metadata and resolves every direct
// requirement. Requirements only active under an extra marker are skipped;
// the rest are fetched with bounded concurrency while the table keeps the
// declaration order.
func (a *Analyzer) Analyze(ctx context.Context, name string) (*Report, error) {
	normalized := pypi.Normalize(name)
	if normalized == "" {
		return nil, errors.New("analyzer: empty package name")
	}

	project, err := a.client.Project(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("analyzer: fetch %s: %w", normalized, err)
	}

	version, err := resolver.LatestStable(project)
	if err != nil {
		version = project.Info.Version
	}

	rows := make([]Dependency, 0, len(project.Info.RequiresDist))
	pending := make([]int, 0, len(project.Info.RequiresDist))
	for _, raw := range project.Info.RequiresDist {
		req, parseErr := pypi.ParseRequirement(raw)
		if parseErr != nil {
			rows = append(rows, Dependency{Name: strings.TrimSpace(raw), Note: "unparsed requirement"})
			continue
		}
		if req.ExtraOnly() {
			continue
		}
		rows = append(rows, Dependency{Name: req.Name, Constraint: req.Specifier})
		pending = append(pending, len(rows)-1)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(fetchConcurrency)
	for _, idx := range pending {
		group.Go(func() error {
			a.resolveRow(groupCtx, &rows[idx])
			return nil
		})
	}
	_ = group.Wait()

	return &Report{Package: normalized, Version: version, Dependencies: rows}, nil
}

// resolveRow fills in the resolved version for one dependency. Failures are
// recorded on the row instead of aborting the whole report.
func (a *Analyzer) resolveRow(ctx context.Context, row *Dependency) {
	project, err := a.client.Project(ctx, row.Name)
	if err != nil {
		if errors.Is(err, pypi.ErrNotFound) {
			row.Note = "not found upstream"
		} else {
			row.Note = "metadata unavailable"
		}
		return
	}

	version, conforming, err := resolver.MatchConstraint(row.Constraint, project.ReleaseList())
	if err != nil {
		row.Note = "no usable releases"
		return
	}
	row.Resolved = version
	row.Conforming = conforming
	if !conforming {
		row.Note = "constraint not satisfiable, using latest"
	}
}
