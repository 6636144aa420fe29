package selector

import (
	"context"
	"maps"
)

type forcedKey struct{}

// WithForced returns a context in which operations of family use impl.
// The override is visible to every evaluation started with the returned
// context and to nothing else.
func WithForced(ctx context.Context, family Family, impl Impl) context.Context {
	prev, _ := ctx.Value(forcedKey{}).(map[Family]Impl)
	next := make(map[Family]Impl, len(prev)+1)
	maps.Copy(next, prev)
	next[family] = impl
	return context.WithValue(ctx, forcedKey{}, next)
}

// WithoutForced returns a context in which family has no override.
func WithoutForced(ctx context.Context, family Family) context.Context {
	prev, _ := ctx.Value(forcedKey{}).(map[Family]Impl)
	if _, ok := prev[family]; !ok {
		return ctx
	}
	next := maps.Clone(prev)
	delete(next, family)
	return context.WithValue(ctx, forcedKey{}, next)
}

// Forced returns the implementation forced for family in ctx.
func Forced(ctx context.Context, family Family) (Impl, bool) {
	m, _ := ctx.Value(forcedKey{}).(map[Family]Impl)
	impl, ok := m[family]
	return impl, ok
}
