// Package resolver maps version policies to concrete version strings and
// implements the constraint matching shared with the dependency analyzer.
package resolver

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/wheelstub/wheelstub/internal/cache"
	"github.com/wheelstub/wheelstub/internal/pypi"
)

// ResolutionError reports a failed auto-detection: upstream metadata was
// unreachable or the package is unknown there. Wraps the underlying cause
// so callers can distinguish not-found from transport failures.
type ResolutionError struct {
	Package string
	Err     error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Package, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Resolver turns (package, policy) pairs into concrete versions. Auto
// resolutions go through the shared version cache, so a version picked once
// stays pinned for the process lifetime.
type Resolver struct {
	client   *pypi.Client
	versions *cache.VersionCache
	fallback string
	logger   *logrus.Logger
}

// New builds a resolver. fallback may be empty; when set, a failed auto
// resolution yields it (and caches it, keeping the session stable) instead
// of an error.
func New(client *pypi.Client, versions *cache.VersionCache, fallback string, logger *logrus.Logger) *Resolver {
	return &Resolver{client: client, versions: versions, fallback: fallback, logger: logger}
}

// Resolve maps a substituted package to the version its artifacts should
// carry. Pinned policies return immediately with no network traffic. Auto
// policies consult the upstream registry at most once per package per
// process.
func (r *Resolver) Resolve(ctx context.Context, name string, policy Policy) (string, error) {
	if !policy.IsAuto() {
		if version, ok := policy.Literal(); ok {
			return version, nil
		}
		return "", &ResolutionError{Package: name, Err: fmt.Errorf("unset version policy")}
	}

	entry, err := r.versions.Resolve(name, func() (string, error) {
		return r.detect(ctx, name)
	})
	if err != nil {
		return "", err
	}
	return entry.Version, nil
}

// detect queries upstream for the package's latest stable release. On
// failure with a configured fallback the fallback version is returned as a
// normal result so that it, too, gets cached and stays stable for the rest
// of the session.
func (r *Resolver) detect(ctx context.Context, name string) (string, error) {
	project, err := r.client.Project(ctx, name)
	if err == nil {
		var version string
		if version, err = LatestStable(project); err == nil {
			return version, nil
		}
	}
	if r.fallback != "" {
		r.logger.WithFields(logrus.Fields{
			"action":   "resolve_fallback",
			"package":  name,
			"fallback": r.fallback,
		}).WithError(err).Warn("auto resolution failed, using configured fallback version")
		return r.fallback, nil
	}
	return "", &ResolutionError{Package: name, Err: err}
}
