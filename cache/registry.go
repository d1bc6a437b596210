package cache

import (
	"sort"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// registration is the immutable configuration of one cached function.
type registration struct {
	identity string
	entity   string
	key      KeySpec
	ttl      time.Duration
	x        extractor
}

type registry struct {
	entries *xsync.MapOf[string, *registration]
}

func newRegistry() *registry {
	return &registry{entries: xsync.NewMapOf[string, *registration]()}
}

// register stores reg unless the identity is already known. The stored
// registration is returned along with whether it was already present.
func (r *registry) register(reg *registration) (*registration, bool) {
	return r.entries.LoadOrStore(reg.identity, reg)
}

func (r *registry) lookup(identity string) (*registration, bool) {
	return r.entries.Load(identity)
}

func (r *registry) identities() []string {
	var out []string
	r.entries.Range(func(identity string, _ *registration) bool {
		out = append(out, identity)
		return true
	})
	sort.Strings(out)
	return out
}

func sameRegistration(a, b *registration) bool {
	return a.entity == b.entity &&
		a.ttl == b.ttl &&
		a.key.Override == b.key.Override &&
		a.key.Normalize == b.key.Normalize &&
		a.x.key.String() == b.x.key.String()
}
