// Package workpool bounds how many stage+compile+run pipelines run at
// once, so a burst of slow compiles cannot starve the HTTP listener or
// exhaust the machine running the toolchain subprocess (spec.md §9's
// fourth open question: move compile+execute off the request
// goroutine).
//
// Grounded on github.com/sourcegraph/conc's pool.Pool, seen wired into
// the dependency manifests of several retrieved repos (e.g.
// githubnext-gh-aw, madstone-tech-loko): a single long-lived Pool
// created with WithMaxGoroutines caps concurrent Go() calls across the
// whole process lifetime, unlike constructing a fresh pool per request.
package workpool

import (
	"context"

	"github.com/sourcegraph/conc/pool"
)

// Pool dispatches work under a fixed concurrency ceiling.
type Pool struct {
	inner *pool.Pool
}

// New creates a Pool that runs at most maxConcurrent submitted jobs at
// once. It is meant to be created once, at server startup, and shared
// across every request.
func New(maxConcurrent int) *Pool {
	return &Pool{inner: pool.New().WithMaxGoroutines(maxConcurrent)}
}

// Wait blocks until every job submitted via Do has returned. Intended
// for graceful shutdown; a running server never calls it mid-traffic.
func (p *Pool) Wait() {
	p.inner.Wait()
}

// Do submits fn to the pool and blocks the caller until fn completes or
// ctx is done, whichever happens first. Submission itself blocks while
// every pool slot is busy, and ctx is not observed during that wait: it
// only cuts the caller loose once fn has started. If ctx is done first, fn still
// runs to completion in the background and occupies its pool slot until
// then — an in-flight compile is never cancelled just because the HTTP
// client went away, matching the reference's documented cleanup rule.
// The second return value is false when ctx won the race.
func Do[T any](ctx context.Context, p *Pool, fn func() T) (T, bool) {
	resultCh := make(chan T, 1)
	p.inner.Go(func() {
		resultCh <- fn()
	})

	select {
	case r := <-resultCh:
		return r, true
	case <-ctx.Done():
		var zero T
		return zero, false
	}
}
