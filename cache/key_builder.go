package cache

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const noArgsSegment = "noargs"

// Kwargs carries keyword arguments of a call. Any Kwargs value passed among
// the positional arguments of a wrapped call is treated as keyword arguments
// instead; several Kwargs merge with the later value winning.
type Kwargs map[string]any

// KeySpec describes how the key of one cached function is built.
type KeySpec struct {
	// Identity names the function; it prefixes the key unless Override is set.
	Identity string
	// Override replaces Identity in the key prefix.
	Override string
	// Normalize makes the key independent of keyword order, of positional
	// versus keyword form when ParamNames is set, and of the order of
	// elements inside collections of scalars.
	Normalize bool
	// ParamNames names positional parameters in declaration order.
	ParamNames []string
}

func (s KeySpec) prefix() string {
	if s.Override != "" {
		return s.Override
	}
	return s.Identity
}

// KeyBuilder derives every backend key used by a cache instance.
//
// Keys take the forms
//
//	<ns>:cache:<identity>:<hash>   cached results
//	<ns>:entity:<type>:<id>        entity index sets
//	<ns>:fn:<identity>             function key sets
type KeyBuilder struct {
	namespace string
	plain     KeySerializer
	canonical KeySerializer
}

// NewKeyBuilder returns a builder for namespace.
func NewKeyBuilder(namespace string) *KeyBuilder {
	return &KeyBuilder{
		namespace: namespace,
		plain:     NewDefaultKeySerializer(),
		canonical: NewCanonicalKeySerializer(),
	}
}

// Namespace returns the key namespace.
func (b *KeyBuilder) Namespace() string { return b.namespace }

// Build returns the cache key for a call. Identical inputs always yield the
// same key. Strings are quoted before hashing, so distinct inputs yield
// distinct keys up to hash collisions. Integers of different widths, and a
// pointer and the value it points to, share a key.
func (b *KeyBuilder) Build(spec KeySpec, args ...any) string {
	positional, named := splitKwargs(args)

	if spec.Normalize && len(spec.ParamNames) > 0 && len(positional) > 0 {
		if named == nil {
			named = make(map[string]any, len(positional))
		}
		rest := positional[:0:0]
		for i, v := range positional {
			if i < len(spec.ParamNames) {
				if _, dup := named[spec.ParamNames[i]]; !dup {
					named[spec.ParamNames[i]] = v
					continue
				}
			}
			rest = append(rest, v)
		}
		positional = rest
	}

	return b.join("cache", spec.prefix(), b.argsSegment(spec.Normalize, positional, named))
}

func (b *KeyBuilder) argsSegment(normalize bool, positional []any, named map[string]any) string {
	if len(positional) == 0 && len(named) == 0 {
		return noArgsSegment
	}

	serializer := b.plain
	if normalize {
		serializer = b.canonical
	}

	var sb strings.Builder
	sb.WriteString(serializer.SerializeKey("args", positional...))
	if len(named) > 0 {
		names := make([]string, 0, len(named))
		for name := range named {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			sb.WriteString(KeySeparator)
			sb.WriteString(strconv.Quote(name))
			sb.WriteByte('=')
			sb.WriteString(serializer.SerializeKey("", named[name]))
		}
	}

	return strconv.FormatUint(xxhash.Sum64String(sb.String()), 16)
}

// EntityKey returns the index set key of ref.
func (b *KeyBuilder) EntityKey(ref EntityRef) string {
	return b.join("entity", ref.Type, ref.ID)
}

// FunctionKey returns the key set of every cached entry of identity.
func (b *KeyBuilder) FunctionKey(identity string) string {
	return b.join("fn", identity)
}

// NamespacePattern matches every key owned by the namespace.
func (b *KeyBuilder) NamespacePattern() string {
	return b.namespace + ":*"
}

func (b *KeyBuilder) join(parts ...string) string {
	return b.namespace + ":" + strings.Join(parts, ":")
}

func splitKwargs(args []any) ([]any, map[string]any) {
	var named map[string]any
	positional := make([]any, 0, len(args))
	for _, arg := range args {
		kw, ok := arg.(Kwargs)
		if !ok {
			positional = append(positional, arg)
			continue
		}
		if named == nil {
			named = make(map[string]any, len(kw))
		}
		for k, v := range kw {
			named[k] = v
		}
	}
	return positional, named
}
