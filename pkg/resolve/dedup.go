package resolve

import (
	"sort"
	"sync"

	rjssemver "github.com/rjspm/rjs/pkg/semver"
)

// versionEntry is one version placed for a package name, plus every range
// that has so far been satisfied by it.
type versionEntry struct {
	version *rjssemver.Version
	ranges  []*rjssemver.Range
	seq     int // claim order, for first-claimant hoisting
}

// dedupIndex is the shared per-name placement index §4.D describes: for
// each package name, the list of versions already placed plus the ranges
// that matched each one. claim looks up the highest already-placed version
// compatible with a new range before ever creating another, so the crawl
// itself stays minimal. compact is the independent post-pass §4.E requires
// regardless of how placement works: a second sweep over the finished
// index that folds any placed version whose full range set turns out to
// be satisfied by a higher surviving one, guaranteeing the final graph
// never carries more resolved versions of a name than the recorded ranges
// actually demand.
type dedupIndex struct {
	mu       sync.Mutex
	entries  map[string][]*versionEntry // package name -> placed versions
	resolved map[string]bool            // "name@version" -> node already queued for processing
	nextSeq  int
}

func newDedupIndex() *dedupIndex {
	return &dedupIndex{
		entries:  make(map[string][]*versionEntry),
		resolved: make(map[string]bool),
	}
}

// claim resolves name@rng against candidate (the highest published version
// satisfying rng). It first looks for an already-placed version of name
// that rng also accepts - preferring the highest such version - and reuses
// it rather than creating a second node. Only when no placed version
// satisfies rng does it place candidate as a new entry. isNew is true
// exactly once per distinct "name@version" key across the whole resolve;
// the caller for which it is true is responsible for processing that
// node's own dependencies.
func (d *dedupIndex) claim(name string, rng *rjssemver.Range, candidate *rjssemver.Version) (chosen *rjssemver.Version, isNew bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries := d.entries[name]
	if best := findCompatible(entries, rng); best != nil {
		best.ranges = append(best.ranges, rng)
		return best.version, false
	}

	key := name + "@" + candidate.String()
	if d.resolved[key] {
		// Two concurrent, mutually incompatible ranges both landed on the
		// same registry-computed candidate (e.g. both want whatever the
		// registry currently calls latest). Attach rng to the existing
		// entry instead of placing a duplicate.
		for _, e := range entries {
			if e.version.Equal(candidate) {
				e.ranges = append(e.ranges, rng)
				break
			}
		}
		return candidate, false
	}
	d.resolved[key] = true
	d.nextSeq++
	d.entries[name] = append(entries, &versionEntry{
		version: candidate,
		ranges:  []*rjssemver.Range{rng},
		seq:     d.nextSeq,
	})
	return candidate, true
}

// findCompatible returns the entry with the highest version in entries
// that rng matches, or nil if none do.
func findCompatible(entries []*versionEntry, rng *rjssemver.Range) *versionEntry {
	var best *versionEntry
	for _, e := range entries {
		if !rng.Matches(e.version) {
			continue
		}
		if best == nil || e.version.GreaterThan(best.version) {
			best = e
		}
	}
	return best
}

// compact runs the post-pass deduplication step: for every package name
// with more than one placed version, it checks whether a lower version's
// full set of recorded ranges is also satisfied by a higher surviving
// version, and if so folds it away. Processing highest-to-lowest and only
// ever merging into an entry already kept makes this a fixed point after
// one pass - a kept entry's ranges are, by construction, not fully
// satisfiable by any higher kept entry, so a second pass could not merge
// it further. Returns a remap of every dropped "name@version" key to the
// key it was folded into, so the caller can drop the corresponding graph
// nodes.
func (d *dedupIndex) compact() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()

	remap := make(map[string]string)
	for name, entries := range d.entries {
		if len(entries) < 2 {
			continue
		}
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].version.GreaterThan(entries[j].version)
		})

		kept := entries[:0:0]
		for _, e := range entries {
			if into := absorb(kept, e); into != nil {
				into.ranges = append(into.ranges, e.ranges...)
				remap[name+"@"+e.version.String()] = name + "@" + into.version.String()
				continue
			}
			kept = append(kept, e)
		}
		d.entries[name] = kept
	}
	return remap
}

// absorb returns the kept entry that every one of e's ranges also matches,
// or nil if no single kept entry covers them all.
func absorb(kept []*versionEntry, e *versionEntry) *versionEntry {
	for _, k := range kept {
		if allMatch(k.version, e.ranges) {
			return k
		}
	}
	return nil
}

func allMatch(v *rjssemver.Version, ranges []*rjssemver.Range) bool {
	for _, rng := range ranges {
		if !rng.Matches(v) {
			return false
		}
	}
	return true
}

// snapshot returns the current name -> "name@version" hoisted mapping: for
// each name, the first-claimed surviving entry (lowest seq). Claim order is
// not recorded in the lockfile, so lockfile.hoistFirstClaimant picks by key
// order instead and can hoist a different version of a name that has
// several.
func (d *dedupIndex) snapshot() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]string, len(d.entries))
	for name, entries := range d.entries {
		if len(entries) == 0 {
			continue
		}
		first := entries[0]
		for _, e := range entries[1:] {
			if e.seq < first.seq {
				first = e
			}
		}
		out[name] = name + "@" + first.version.String()
	}
	return out
}
