package tessera

import (
	"github.com/go-gl/mathgl/mgl32"
)

// SimulationTier classifies how much simulation attention an entity gets,
// assigned by distance from a reference point.
type SimulationTier uint8

const (
	TierActive SimulationTier = iota
	TierBackground
	TierHibernated
)

func (t SimulationTier) String() string {
	switch t {
	case TierActive:
		return "Active"
	case TierBackground:
		return "Background"
	case TierHibernated:
		return "Hibernated"
	}
	return "Unknown"
}

// Transform is the per-entity spatial state read each frame.
type Transform struct {
	Position mgl32.Vec2
	Velocity mgl32.Vec2
}

// HotData is the per-entity collision-relevant payload kept alongside the
// transform.
type HotData struct {
	HalfExtent       mgl32.Vec2
	Layer            Layer
	CollidesWith     Layer
	CollisionEnabled bool
}

// EntityData is the external store the collision core reads from and writes
// positions back into. The store owns position and half extents; the core
// holds only generation-checked handles.
type EntityData interface {
	// ActiveIndicesWithCollision returns the ordered indices of entities in
	// the Active tier with collision enabled. The returned slice is valid
	// until the next mutation of the store.
	ActiveIndicesWithCollision() []int32
	// Resolve validates a handle and returns its live index.
	Resolve(h EntityHandle) (int32, bool)
	TransformByIndex(index int32) (Transform, bool)
	HotDataByIndex(index int32) (HotData, bool)
	SetTransform(h EntityHandle, position, velocity mgl32.Vec2) bool
	SetHalfExtent(h EntityHandle, halfExtent mgl32.Vec2) bool
	// PrepareForStateTransition clears every entity and bumps all
	// generations so outstanding handles go stale.
	PrepareForStateTransition()
}

type entitySlot struct {
	transform Transform
	hot       HotData
	tier      SimulationTier
	alive     bool
}

// EntityStore is the reference in-memory EntityData implementation. It is
// single-writer: the owner mutates it between frames, the collision pass only
// reads.
type EntityStore struct {
	slots       []entitySlot
	generations []uint32
	free        []int32

	activeCache []int32
	cacheDirty  bool
}

func NewEntityStore() *EntityStore {
	return &EntityStore{}
}

// CreateEntity allocates a slot and returns a handle to it. The entity starts
// in the Active tier.
func (s *EntityStore) CreateEntity(position, halfExtent mgl32.Vec2, layer, collidesWith Layer) EntityHandle {
	var idx int32
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		idx = int32(len(s.slots))
		s.slots = append(s.slots, entitySlot{})
		s.generations = append(s.generations, 1)
	}
	s.slots[idx] = entitySlot{
		transform: Transform{Position: position},
		hot: HotData{
			HalfExtent:       halfExtent,
			Layer:            layer,
			CollidesWith:     collidesWith,
			CollisionEnabled: true,
		},
		tier:  TierActive,
		alive: true,
	}
	s.cacheDirty = true
	return EntityHandle{Index: idx, Generation: s.generations[idx]}
}

// DestroyEntity frees the slot and invalidates every handle pointing at it.
func (s *EntityStore) DestroyEntity(h EntityHandle) bool {
	idx, ok := s.Resolve(h)
	if !ok {
		return false
	}
	s.slots[idx].alive = false
	s.generations[idx]++
	if s.generations[idx] == 0 {
		s.generations[idx] = 1
	}
	s.free = append(s.free, idx)
	s.cacheDirty = true
	return true
}

func (s *EntityStore) Resolve(h EntityHandle) (int32, bool) {
	if h.Index < 0 || int(h.Index) >= len(s.slots) {
		return 0, false
	}
	if s.generations[h.Index] != h.Generation || !s.slots[h.Index].alive {
		return 0, false
	}
	return h.Index, true
}

func (s *EntityStore) TransformByIndex(index int32) (Transform, bool) {
	if index < 0 || int(index) >= len(s.slots) || !s.slots[index].alive {
		return Transform{}, false
	}
	return s.slots[index].transform, true
}

func (s *EntityStore) HotDataByIndex(index int32) (HotData, bool) {
	if index < 0 || int(index) >= len(s.slots) || !s.slots[index].alive {
		return HotData{}, false
	}
	return s.slots[index].hot, true
}

func (s *EntityStore) SetTransform(h EntityHandle, position, velocity mgl32.Vec2) bool {
	idx, ok := s.Resolve(h)
	if !ok {
		return false
	}
	s.slots[idx].transform.Position = position
	s.slots[idx].transform.Velocity = velocity
	return true
}

func (s *EntityStore) SetHalfExtent(h EntityHandle, halfExtent mgl32.Vec2) bool {
	idx, ok := s.Resolve(h)
	if !ok {
		return false
	}
	s.slots[idx].hot.HalfExtent = halfExtent
	return true
}

func (s *EntityStore) SetLayer(h EntityHandle, layer, collidesWith Layer) bool {
	idx, ok := s.Resolve(h)
	if !ok {
		return false
	}
	s.slots[idx].hot.Layer = layer
	s.slots[idx].hot.CollidesWith = collidesWith
	return true
}

func (s *EntityStore) SetCollisionEnabled(h EntityHandle, enabled bool) bool {
	idx, ok := s.Resolve(h)
	if !ok {
		return false
	}
	if s.slots[idx].hot.CollisionEnabled != enabled {
		s.slots[idx].hot.CollisionEnabled = enabled
		s.cacheDirty = true
	}
	return true
}

func (s *EntityStore) SetTier(h EntityHandle, tier SimulationTier) bool {
	idx, ok := s.Resolve(h)
	if !ok {
		return false
	}
	if s.slots[idx].tier != tier {
		s.slots[idx].tier = tier
		s.cacheDirty = true
	}
	return true
}

func (s *EntityStore) Tier(h EntityHandle) (SimulationTier, bool) {
	idx, ok := s.Resolve(h)
	if !ok {
		return 0, false
	}
	return s.slots[idx].tier, true
}

// UpdateSimulationTiers reassigns tiers by distance from ref. Entities within
// activeRadius are Active, within backgroundRadius Background, beyond that
// Hibernated.
func (s *EntityStore) UpdateSimulationTiers(ref mgl32.Vec2, activeRadius, backgroundRadius float32) {
	if backgroundRadius < activeRadius {
		backgroundRadius = activeRadius
	}
	activeSq := float64(activeRadius) * float64(activeRadius)
	backgroundSq := float64(backgroundRadius) * float64(backgroundRadius)
	for i := range s.slots {
		if !s.slots[i].alive {
			continue
		}
		d := s.slots[i].transform.Position.Sub(ref)
		distSq := float64(d.X())*float64(d.X()) + float64(d.Y())*float64(d.Y())
		var tier SimulationTier
		switch {
		case distSq <= activeSq:
			tier = TierActive
		case distSq <= backgroundSq:
			tier = TierBackground
		default:
			tier = TierHibernated
		}
		if s.slots[i].tier != tier {
			s.slots[i].tier = tier
			s.cacheDirty = true
		}
	}
}

// ActiveIndicesWithCollision rebuilds the cached index list if anything
// changed since the last call. The list is ordered by slot index.
func (s *EntityStore) ActiveIndicesWithCollision() []int32 {
	if s.cacheDirty {
		s.activeCache = s.activeCache[:0]
		for i := range s.slots {
			if s.slots[i].alive && s.slots[i].tier == TierActive && s.slots[i].hot.CollisionEnabled {
				s.activeCache = append(s.activeCache, int32(i))
			}
		}
		s.cacheDirty = false
	}
	return s.activeCache
}

func (s *EntityStore) Len() int {
	return len(s.slots) - len(s.free)
}

// PrepareForStateTransition drops every entity in one step. The active cache
// is cleared, not merely marked dirty, and every generation is bumped so
// handles created before the transition fail to resolve. Slot capacity is
// retained; generations survive so a reused slot never resurrects an old
// handle.
func (s *EntityStore) PrepareForStateTransition() {
	s.free = s.free[:0]
	for i := len(s.slots) - 1; i >= 0; i-- {
		s.slots[i] = entitySlot{}
		s.generations[i]++
		if s.generations[i] == 0 {
			s.generations[i] = 1
		}
		s.free = append(s.free, int32(i))
	}
	s.activeCache = s.activeCache[:0]
	s.cacheDirty = false
}
