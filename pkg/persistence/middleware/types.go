// Package middleware wraps a ports.Repository with cross-cutting behavior:
// slot encryption at rest, PII masking and latency metrics.
package middleware

import "github.com/aretw0/choreo/pkg/ports"

// Middleware allows wrapping a Repository to add behavior.
type Middleware func(ports.Repository) ports.Repository

// Chain applies mws to repo. The first middleware is the outermost.
func Chain(repo ports.Repository, mws ...Middleware) ports.Repository {
	for i := len(mws) - 1; i >= 0; i-- {
		repo = mws[i](repo)
	}
	return repo
}
