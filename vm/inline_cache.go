package vm

import (
	"sync/atomic"
)

// Inline Caching for Method Dispatch
//
// Each call site owns one cell. A cell records up to MaxPICEntries
// (class, generation, method) bindings and moves through
//
//	Empty -> Monomorphic -> Polymorphic -> Megamorphic
//
// never backwards. Once megamorphic the cell is bypassed for good and
// every dispatch resolves through the method tables.
//
// Cells are shared by every goroutine executing the same code. The
// state and entries live in an immutable snapshot published with
// compare-and-swap; a writer that loses the race simply drops its
// update, which costs one extra miss later and never a wrong dispatch.
// Readers revalidate each entry's generation stamp against the class's
// current generation, so stale entries are never trusted.

// CacheState represents the current state of an inline cache.
type CacheState uint8

const (
	CacheEmpty       CacheState = iota // No cached lookup yet
	CacheMonomorphic                   // Single (class, method) cached
	CachePolymorphic                   // 2..capacity entries
	CacheMegamorphic                   // Too many types, use full lookup
)

func (s CacheState) String() string {
	switch s {
	case CacheMonomorphic:
		return "monomorphic"
	case CachePolymorphic:
		return "polymorphic"
	case CacheMegamorphic:
		return "megamorphic"
	}
	return "empty"
}

// MaxPICEntries is the default capacity of a polymorphic inline cache.
const MaxPICEntries = 6

// InlineCacheEntry holds a single cached method lookup result.
type InlineCacheEntry struct {
	Class      *Class // receiver class
	Start      *Class // starting class for super sites, nil otherwise
	Generation uint64 // Class.Generation() observed before resolution
	Method     Method
}

type cacheSnapshot struct {
	state   CacheState
	entries []InlineCacheEntry
}

var emptySnapshot = &cacheSnapshot{state: CacheEmpty}

// InlineCache is the cache cell of a single call site.
type InlineCache struct {
	snap     atomic.Pointer[cacheSnapshot]
	capacity int

	// Statistics for profiling
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewInlineCache creates an empty cell holding at most capacity entries.
func NewInlineCache(capacity int) *InlineCache {
	if capacity < 1 {
		capacity = 1
	}
	ic := &InlineCache{capacity: capacity}
	ic.snap.Store(emptySnapshot)
	return ic
}

// State returns the current state.
func (ic *InlineCache) State() CacheState {
	return ic.snap.Load().state
}

// Count returns the number of recorded entries, valid or stale.
func (ic *InlineCache) Count() int {
	return len(ic.snap.Load().entries)
}

// Entries returns a copy of the recorded entries.
func (ic *InlineCache) Entries() []InlineCacheEntry {
	return append([]InlineCacheEntry(nil), ic.snap.Load().entries...)
}

// Hits returns the number of lookups that found a valid entry.
func (ic *InlineCache) Hits() uint64 { return ic.hits.Load() }

// Misses returns the number of lookups that did not.
func (ic *InlineCache) Misses() uint64 { return ic.misses.Load() }

// Lookup returns the cached method for (class, start) if an entry exists
// whose generation still matches the class, nil otherwise.
func (ic *InlineCache) Lookup(class, start *Class) Method {
	s := ic.snap.Load()
	if s.state != CacheMegamorphic {
		gen := class.Generation()
		for i := range s.entries {
			e := &s.entries[i]
			if e.Class == class && e.Start == start && e.Generation == gen {
				ic.hits.Add(1)
				return e.Method
			}
		}
	}
	ic.misses.Add(1)
	return nil
}

// Update records a resolution made at generation gen. The generation
// must be read before resolving so that a concurrent redefinition leaves
// the new entry stale rather than wrong.
func (ic *InlineCache) Update(class, start *Class, gen uint64, method Method) {
	if method == nil {
		return // Don't cache failed lookups
	}
	old := ic.snap.Load()
	next := ic.advance(old, InlineCacheEntry{Class: class, Start: start, Generation: gen, Method: method})
	if next == nil {
		return
	}
	if ic.snap.CompareAndSwap(old, next) && next.state != old.state {
		logTransition(old.state, next.state, method.Name())
	}
}

// advance computes the snapshot that follows old once e is recorded, or
// nil when nothing changes.
func (ic *InlineCache) advance(old *cacheSnapshot, e InlineCacheEntry) *cacheSnapshot {
	switch old.state {
	case CacheEmpty:
		return &cacheSnapshot{state: CacheMonomorphic, entries: []InlineCacheEntry{e}}

	case CacheMonomorphic, CachePolymorphic:
		for i, cur := range old.entries {
			if cur.Class == e.Class && cur.Start == e.Start {
				if cur.Generation >= e.Generation {
					return nil // Already cached, or a newer binding won
				}
				// Stale binding for the same key: overwrite in place.
				entries := append([]InlineCacheEntry(nil), old.entries...)
				entries[i] = e
				return &cacheSnapshot{state: old.state, entries: entries}
			}
		}
		if len(old.entries) >= ic.capacity {
			// Too many types - go megamorphic for good
			return &cacheSnapshot{state: CacheMegamorphic}
		}
		entries := make([]InlineCacheEntry, len(old.entries), len(old.entries)+1)
		copy(entries, old.entries)
		return &cacheSnapshot{state: CachePolymorphic, entries: append(entries, e)}

	case CacheMegamorphic:
		// Stay megamorphic, don't cache anything
	}
	return nil
}

// HitRate returns the cache hit rate as a percentage (0-100).
func (ic *InlineCache) HitRate() float64 {
	hits, misses := ic.Hits(), ic.Misses()
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) * 100 / float64(total)
}

// Reset clears the cache back to empty state.
func (ic *InlineCache) Reset() {
	ic.snap.Store(emptySnapshot)
	ic.hits.Store(0)
	ic.misses.Store(0)
}

// ---------------------------------------------------------------------------
// CacheArena: the cells of one compiled body
// ---------------------------------------------------------------------------

// CacheArena holds the cache cells of a compiled body, indexed by the
// slot numbers assigned at emission time.
type CacheArena struct {
	cells    []atomic.Pointer[InlineCache]
	capacity int
}

// NewCacheArena creates an arena with n slots whose cells hold at most
// capacity entries each.
func NewCacheArena(n, capacity int) *CacheArena {
	if capacity < 1 {
		capacity = MaxPICEntries
	}
	return &CacheArena{cells: make([]atomic.Pointer[InlineCache], n), capacity: capacity}
}

// Len returns the number of slots.
func (a *CacheArena) Len() int {
	return len(a.cells)
}

// Capacity returns the per-cell entry limit.
func (a *CacheArena) Capacity() int {
	return a.capacity
}

// GetOrCreate returns the cell for slot, creating it on first use.
func (a *CacheArena) GetOrCreate(slot int) *InlineCache {
	p := &a.cells[slot]
	if ic := p.Load(); ic != nil {
		return ic
	}
	ic := NewInlineCache(a.capacity)
	if p.CompareAndSwap(nil, ic) {
		return ic
	}
	return p.Load()
}

// Get returns the cell for slot, or nil if it was never used.
func (a *CacheArena) Get(slot int) *InlineCache {
	if slot < 0 || slot >= len(a.cells) {
		return nil
	}
	return a.cells[slot].Load()
}

// Stats returns aggregate statistics for the call sites of the arena.
// Only primary cells (even slots) count; method_missing cells are
// reported by MissingCells.
func (a *CacheArena) Stats() (mono, poly, mega, empty int, totalHits, totalMisses uint64) {
	for i := 0; i < len(a.cells); i += 2 {
		ic := a.cells[i].Load()
		if ic == nil {
			empty++
			continue
		}
		switch ic.State() {
		case CacheMonomorphic:
			mono++
		case CachePolymorphic:
			poly++
		case CacheMegamorphic:
			mega++
		case CacheEmpty:
			empty++
		}
		totalHits += ic.Hits()
		totalMisses += ic.Misses()
	}
	return
}

// MissingCells returns how many sites have resolved method_missing.
func (a *CacheArena) MissingCells() int {
	n := 0
	for i := 1; i < len(a.cells); i += 2 {
		if a.cells[i].Load() != nil {
			n++
		}
	}
	return n
}

// Reset clears every cell in the arena.
func (a *CacheArena) Reset() {
	for i := range a.cells {
		if ic := a.cells[i].Load(); ic != nil {
			ic.Reset()
		}
	}
}

// ICStats holds aggregate inline cache statistics.
type ICStats struct {
	TotalCallSites  int     `yaml:"call_sites"`
	Monomorphic     int     `yaml:"monomorphic"`
	Polymorphic     int     `yaml:"polymorphic"`
	Megamorphic     int     `yaml:"megamorphic"`
	Empty           int     `yaml:"empty"`
	MethodMissing   int     `yaml:"method_missing"`
	TotalHits       uint64  `yaml:"hits"`
	TotalMisses     uint64  `yaml:"misses"`
	HitRate         float64 `yaml:"hit_rate"`
	MonomorphicRate float64 `yaml:"monomorphic_rate"`
}

// CollectICStats gathers inline cache statistics from a body and every
// block nested in it.
func CollectICStats(codes ...*Code) ICStats {
	var stats ICStats
	var walk func(c *Code)
	walk = func(c *Code) {
		if a := c.Caches(); a != nil {
			mono, poly, mega, empty, hits, misses := a.Stats()
			stats.Monomorphic += mono
			stats.Polymorphic += poly
			stats.Megamorphic += mega
			stats.Empty += empty
			stats.TotalHits += hits
			stats.TotalMisses += misses
			stats.TotalCallSites += mono + poly + mega + empty
			stats.MethodMissing += a.MissingCells()
		}
		for _, b := range c.Blocks {
			walk(b)
		}
	}
	for _, c := range codes {
		walk(c)
	}

	total := stats.TotalHits + stats.TotalMisses
	if total > 0 {
		stats.HitRate = float64(stats.TotalHits) * 100 / float64(total)
	}
	nonEmpty := stats.TotalCallSites - stats.Empty
	if nonEmpty > 0 {
		stats.MonomorphicRate = float64(stats.Monomorphic) * 100 / float64(nonEmpty)
	}
	return stats
}
