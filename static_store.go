package tessera

import (
	"errors"
)

// ErrStaticSlabFull is returned when adding a static body would exceed the
// configured capacity. The add is not applied.
var ErrStaticSlabFull = errors.New("static body slab full")

type staticEntry struct {
	body StaticBody
	dead bool
}

// StaticBodyStore holds immovable world geometry. Entries are append-style:
// removal marks a slot dead and sets the dirty flag rather than compacting,
// so static indices handed out earlier stay valid for the rest of the
// session. The cached AABB array and the spatial hash are rebuilt lazily on
// the next query after any change.
type StaticBodyStore struct {
	entries []staticEntry
	byID    map[BodyID]int
	aabbs   []AABB

	hash          *SpatialHash
	dirty         bool
	live          int
	capacity      int
	scanThreshold int
}

func NewStaticBodyStore(cfg *Config) *StaticBodyStore {
	return &StaticBodyStore{
		byID:          make(map[BodyID]int),
		hash:          NewSpatialHash(cfg.CoarseCellSize, cfg.FineCellSize, cfg.SubdivideThreshold),
		capacity:      cfg.MaxStaticBodies,
		scanThreshold: cfg.StaticScanThreshold,
	}
}

// Add appends a static body and returns its storage index.
func (s *StaticBodyStore) Add(body StaticBody) (int, error) {
	if idx, ok := s.byID[body.ID]; ok {
		// Same id re-added replaces in place.
		s.entries[idx] = staticEntry{body: body}
		s.dirty = true
		return idx, nil
	}
	if s.capacity > 0 && s.live >= s.capacity {
		return -1, ErrStaticSlabFull
	}
	idx := len(s.entries)
	s.entries = append(s.entries, staticEntry{body: body})
	s.byID[body.ID] = idx
	s.live++
	s.dirty = true
	return idx, nil
}

// Remove marks the body's slot dead. Indices of other bodies are unaffected.
func (s *StaticBodyStore) Remove(id BodyID) bool {
	idx, ok := s.byID[id]
	if !ok {
		return false
	}
	s.entries[idx].dead = true
	delete(s.byID, id)
	s.live--
	s.dirty = true
	return true
}

// Clear drops the entire static set, used on world reload.
func (s *StaticBodyStore) Clear() {
	s.entries = s.entries[:0]
	s.aabbs = s.aabbs[:0]
	s.byID = make(map[BodyID]int)
	s.hash.Clear()
	s.live = 0
	s.dirty = false
}

func (s *StaticBodyStore) Len() int { return s.live }

// Get returns the body at a storage index. Dead slots report not found.
func (s *StaticBodyStore) Get(index int) (StaticBody, bool) {
	if index < 0 || index >= len(s.entries) || s.entries[index].dead {
		return StaticBody{}, false
	}
	return s.entries[index].body, true
}

func (s *StaticBodyStore) IndexOf(id BodyID) (int, bool) {
	idx, ok := s.byID[id]
	return idx, ok
}

// Bounds returns the cached AABB for a storage index, rebuilding the cache if
// the set changed.
func (s *StaticBodyStore) Bounds(index int) (AABB, bool) {
	s.ensureCache()
	if index < 0 || index >= len(s.entries) || s.entries[index].dead {
		return AABB{}, false
	}
	return s.aabbs[index], true
}

// QueryCandidates appends the storage indices of statics whose cells overlap
// area. Below the scan threshold the contiguous AABB array is scanned
// directly; above it the spatial hash is queried. Either way the result may
// contain non-overlapping candidates and callers re-test exact bounds.
func (s *StaticBodyStore) QueryCandidates(area AABB, out []int) []int {
	s.ensureCache()
	if s.live < s.scanThreshold {
		for i := range s.entries {
			if s.entries[i].dead {
				continue
			}
			if area.Intersects(s.aabbs[i]) {
				out = append(out, i)
			}
		}
		return out
	}
	return s.hash.QueryRegion(area, out)
}

// EachLive visits every live static body with its cached bounds.
func (s *StaticBodyStore) EachLive(fn func(index int, body StaticBody, bounds AABB)) {
	s.ensureCache()
	for i := range s.entries {
		if s.entries[i].dead {
			continue
		}
		fn(i, s.entries[i].body, s.aabbs[i])
	}
}

// ensureCache rebuilds the AABB array and the static spatial hash after any
// add/remove/clear. Dead slots keep a zero box and never enter the hash.
func (s *StaticBodyStore) ensureCache() {
	if !s.dirty {
		return
	}
	if cap(s.aabbs) < len(s.entries) {
		s.aabbs = make([]AABB, len(s.entries))
	} else {
		s.aabbs = s.aabbs[:len(s.entries)]
	}
	s.hash.Clear()
	for i := range s.entries {
		if s.entries[i].dead {
			s.aabbs[i] = AABB{}
			continue
		}
		b := s.entries[i].body.Bounds()
		s.aabbs[i] = b
		s.hash.Insert(i, b)
	}
	s.dirty = false
}
