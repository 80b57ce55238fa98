// Package identity maps opaque Slack user ids to display names. Resolution
// is always best effort: lookup failures degrade to a deterministic
// placeholder and never fail the pipeline.
package identity

import (
	"context"

	"github.com/chanvault/chanvault/archiver/source"
	Logger "github.com/chanvault/chanvault/utils/log"
)

// Fallback is the deterministic placeholder used when an author id cannot
// be resolved. Same input, same output, across repeated calls.
func Fallback(authorId string) string {
	return "User " + authorId
}

// Resolver caches resolutions for the duration of one sync run so each
// distinct author id hits the identity endpoint at most once, even when the
// first resolution fell back. No retry storms against a failing endpoint.
type Resolver struct {
	source source.IdentitySource
	shared SharedCache
	cache  map[string]string
}

// SharedCache is an optional cross-run cache in front of the identity
// endpoint. A nil SharedCache is valid.
type SharedCache interface {
	Get(ctx context.Context, authorId string) (string, bool)
	Set(ctx context.Context, authorId string, displayName string)
}

func NewResolver(src source.IdentitySource, shared SharedCache) *Resolver {
	return &Resolver{
		source: src,
		shared: shared,
		cache:  map[string]string{},
	}
}

// DisplayName resolves one author id. Never returns an error.
func (r *Resolver) DisplayName(ctx context.Context, authorId string) string {
	if name, ok := r.cache[authorId]; ok {
		return name
	}

	name := r.lookup(ctx, authorId)
	r.cache[authorId] = name
	return name
}

// ResolveAll resolves a set of author ids into a map for the renderer.
func (r *Resolver) ResolveAll(ctx context.Context, authorIds []string) map[string]string {
	resolved := make(map[string]string, len(authorIds))
	for _, id := range authorIds {
		resolved[id] = r.DisplayName(ctx, id)
	}
	return resolved
}

func (r *Resolver) lookup(ctx context.Context, authorId string) string {
	if r.shared != nil {
		if name, ok := r.shared.Get(ctx, authorId); ok {
			return name
		}
	}

	name, err := r.source.Resolve(ctx, authorId)
	if err != nil || name == "" {
		Logger.Log.Warnf("fail to resolve identity %s, using fallback: %v", authorId, err)
		return Fallback(authorId)
	}

	if r.shared != nil {
		r.shared.Set(ctx, authorId, name)
	}
	return name
}
