package tracing

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// GroupInput names the category or categories an event is tagged with. Call
// sites supply either a single [Category], an ordered [Categories] list, or
// a previously interned [*CategoryGroup]; all three resolve to the same
// canonical comma-joined key.
type GroupInput interface {
	groupKey() string
	groupNames() []string
}

// Category is a single category name.
type Category string

func (c Category) groupKey() string     { return string(c) }
func (c Category) groupNames() []string { return []string{string(c)} }

// Categories is an ordered list of category names, joined with commas into
// one group key.
type Categories []string

func (c Categories) groupKey() string     { return strings.Join(c, ",") }
func (c Categories) groupNames() []string { return c }

// EnabledSet is a point-in-time copy of the category configuration: each
// configured category name, mapped to whether it is currently enabled.
type EnabledSet map[string]bool

//
//
//

// CategoryGroup is an interned category-group key. Two interning calls that
// resolve to the same joined key return the same *CategoryGroup, so hot-path
// code compares groups by pointer rather than by content. Groups cache the
// result of their last enabled check against a registry generation, making
// the steady-state check one atomic load and compare.
type CategoryGroup struct {
	key   string
	names []string

	// cached packs the registry generation (high bits) with the enabled
	// flag (low bit). One word, so a reader can never observe a flag paired
	// with a generation it was not computed for.
	cached atomic.Uint64
}

var _ GroupInput = (*CategoryGroup)(nil)

func (g *CategoryGroup) groupKey() string     { return g.key }
func (g *CategoryGroup) groupNames() []string { return g.names }

// Key returns the canonical comma-joined form of the group.
func (g *CategoryGroup) Key() string { return g.key }

// Names returns a copy of the constituent category names, in input order.
func (g *CategoryGroup) Names() []string {
	return append([]string(nil), g.names...)
}

// String returns the group key.
func (g *CategoryGroup) String() string { return g.key }

//
//
//

// Registry owns the set of enabled categories and the intern pool of
// category-group keys. The intern pool never evicts: group keys originate
// from a small and effectively static set of call sites, so it grows to a
// fixed size in practice and lives for the life of the process.
//
// The read side of the enabled set is a whole map swapped behind an atomic
// pointer. Readers observe either the entirely-old or entirely-new set,
// never a partial update.
type Registry struct {
	groupsMtx sync.RWMutex
	groups    map[string]*CategoryGroup

	mtx        sync.Mutex
	configured []string // last applied category names, deduped, order kept

	enabled atomic.Pointer[map[string]struct{}]
	gen     atomic.Uint64
}

// NewRegistry returns an empty registry with no categories enabled.
func NewRegistry() *Registry {
	r := &Registry{
		groups: map[string]*CategoryGroup{},
	}
	r.enabled.Store(&noCategories)
	r.gen.Store(1) // zero-valued groups must read as stale
	return r
}

var noCategories = map[string]struct{}{}

// InternGroup resolves the input to its canonical interned group. The first
// call for a given joined key creates the group; every subsequent call with
// an equal key returns the same pointer. Empty input, or an empty name
// within the input, fails with [ErrInvalidArgument].
func (r *Registry) InternGroup(in GroupInput) (*CategoryGroup, error) {
	if in == nil {
		return nil, fmt.Errorf("intern group: %w: no categories", ErrInvalidArgument)
	}

	if g, ok := in.(*CategoryGroup); ok {
		return g, nil
	}

	key := in.groupKey()
	if key == "" {
		return nil, fmt.Errorf("intern group: %w: no categories", ErrInvalidArgument)
	}

	r.groupsMtx.RLock()
	g, ok := r.groups[key]
	r.groupsMtx.RUnlock()
	if ok {
		return g, nil
	}

	names := in.groupNames()
	if len(names) == 0 {
		return nil, fmt.Errorf("intern group: %w: no categories", ErrInvalidArgument)
	}
	for _, name := range names {
		if name == "" {
			return nil, fmt.Errorf("intern group %q: %w: empty category name", key, ErrInvalidArgument)
		}
	}

	r.groupsMtx.Lock()
	defer r.groupsMtx.Unlock()

	if g, ok := r.groups[key]; ok { // first writer wins
		return g, nil
	}

	g = &CategoryGroup{
		key:   key,
		names: append([]string(nil), names...),
	}
	r.groups[key] = g
	return g, nil
}

// GroupEnabled reports whether at least one of the group's constituent
// categories is in the current enabled set. The result is cached on the
// group until the registry's enabled set changes.
func (r *Registry) GroupEnabled(g *CategoryGroup) bool {
	if g == nil {
		return false
	}

	gen := r.gen.Load()
	if c := g.cached.Load(); c>>1 == gen {
		return c&1 == 1
	}

	// The set is loaded after the generation, so it is at least as new as
	// gen. Caching a newer result under an older generation is benign: the
	// next check sees a stale generation and recomputes.
	set := *r.enabled.Load()

	var on bool
	for _, name := range g.names {
		if _, ok := set[name]; ok {
			on = true
			break
		}
	}

	c := gen << 1
	if on {
		c |= 1
	}
	g.cached.Store(c)
	return on
}

// SetCategories replaces the configured category names wholesale, and
// reports whether the configured set actually changed, so that duplicate
// calls can be suppressed. It does not touch the read side: the caller
// decides when the configuration becomes visible, via publish.
func (r *Registry) SetCategories(names []string) (changed bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	next := dedupeNames(names)
	changed = !sameNameSet(r.configured, next)
	r.configured = next
	return changed
}

// ToggleCategory adds or removes one category name from the configured set,
// reporting whether anything changed.
func (r *Registry) ToggleCategory(name string, enable bool) (changed bool) {
	if name == "" {
		return false
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()

	idx := -1
	for i, have := range r.configured {
		if have == name {
			idx = i
			break
		}
	}

	switch {
	case enable && idx < 0:
		r.configured = append(r.configured, name)
		return true
	case !enable && idx >= 0:
		r.configured = append(r.configured[:idx], r.configured[idx+1:]...)
		return true
	default:
		return false
	}
}

// Configured returns a copy of the configured category names, in the order
// they were applied. Configured names persist across publish(false), so a
// stopped pipeline restarts with the same categories.
func (r *Registry) Configured() []string {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return append([]string(nil), r.configured...)
}

// Snapshot returns a copy of the category configuration: every configured
// name, with its current enabled state. The returned map is the caller's.
func (r *Registry) Snapshot() EnabledSet {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	set := *r.enabled.Load()
	out := make(EnabledSet, len(r.configured))
	for _, name := range r.configured {
		_, on := set[name]
		out[name] = on
	}
	return out
}

// publish swaps the read-side enabled set: the configured names when active,
// the empty set otherwise. The agent calls publish(true) only after the
// buffer and writer exist, and publish(false) before tearing them down, so
// a producer can never observe a category as enabled while the pipeline is
// not running.
func (r *Registry) publish(active bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	set := &noCategories
	if active && len(r.configured) > 0 {
		m := make(map[string]struct{}, len(r.configured))
		for _, name := range r.configured {
			m[name] = struct{}{}
		}
		set = &m
	}

	r.enabled.Store(set)
	r.gen.Add(1)
}

//
//
//

func dedupeNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

func sameNameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
