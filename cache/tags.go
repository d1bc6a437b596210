package cache

import "context"

type entityRefsContextKey struct{}

// WithEntityRefs attaches additional entity references to ctx. A cached call
// populated under ctx is indexed under these references as well as those
// extracted from its result, and an invalidating call invalidates them too.
func WithEntityRefs(ctx context.Context, refs ...EntityRef) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(refs) == 0 {
		return ctx
	}

	combined := dedupeRefs(append(entityRefsFromContext(ctx), refs...))
	return context.WithValue(ctx, entityRefsContextKey{}, combined)
}

func entityRefsFromContext(ctx context.Context) []EntityRef {
	if ctx == nil {
		return nil
	}
	if refs, ok := ctx.Value(entityRefsContextKey{}).([]EntityRef); ok {
		return append([]EntityRef(nil), refs...)
	}
	return nil
}

func dedupeRefs(refs []EntityRef) []EntityRef {
	seen := make(map[EntityRef]struct{}, len(refs))
	out := refs[:0]
	for _, ref := range refs {
		if ref.Type == "" {
			continue
		}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	return out
}
