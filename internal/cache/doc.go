// Package cache holds the process-scoped resolved-version cache. Once an
// auto-detect package resolves to a concrete version, every later request in
// the same process must see that exact version: package managers issue many
// requests per install session and a version flip between them breaks their
// dependency resolution. Entries therefore never expire and there is no
// teardown beyond process exit. Per-key coalescing guarantees that two
// concurrent first requests for the same package trigger a single upstream
// resolution and observe the same result.
package cache
