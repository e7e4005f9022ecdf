package tessera

import (
	"encoding/binary"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// BodyID uniquely identifies a collision body across its lifetime.
type BodyID uint64

// NewBodyID derives a fresh non-zero identifier from a random UUID.
func NewBodyID() BodyID {
	u := uuid.New()
	id := BodyID(binary.BigEndian.Uint64(u[:8]))
	if id == 0 {
		id = BodyID(binary.BigEndian.Uint64(u[8:]))
	}
	if id == 0 {
		id = 1
	}
	return id
}

type BodyType uint8

const (
	BodyStatic BodyType = iota
	BodyKinematic
	BodyDynamic
)

func (t BodyType) String() string {
	switch t {
	case BodyStatic:
		return "Static"
	case BodyKinematic:
		return "Kinematic"
	case BodyDynamic:
		return "Dynamic"
	}
	return "Unknown"
}

// Layer is a collision-filter bitmask. A pair is considered only when each
// side's CollidesWith mask intersects the other side's Layer.
type Layer uint32

const (
	LayerDefault     Layer = 1 << 0
	LayerPlayer      Layer = 1 << 1
	LayerEnemy       Layer = 1 << 2
	LayerEnvironment Layer = 1 << 3
	LayerProjectile  Layer = 1 << 4
	LayerTrigger     Layer = 1 << 5

	LayerAll  Layer = 0xFFFFFFFF
	LayerNone Layer = 0
)

type TriggerTag uint8

const (
	TagNone TriggerTag = iota
	TagWater
	TagPortal
	TagCheckpoint
	TagDamage
	TagCustom
)

type TriggerType uint8

const (
	// TriggerBlocking volumes still produce solid collision records.
	TriggerBlocking TriggerType = iota
	// TriggerEventOnly volumes only produce enter/exit notifications.
	TriggerEventOnly
)

// EntityHandle is a generation-checked weak reference into the external
// entity data store. A lookup with a stale generation fails instead of
// reading a slot that has been reused.
type EntityHandle struct {
	Index      int32
	Generation uint32
}

func (h EntityHandle) Valid() bool { return h.Index >= 0 && h.Generation != 0 }

// RefKind tags which storage array a BodyRef index points into.
type RefKind uint8

const (
	RefMovable RefKind = iota
	RefStatic
)

// BodyRef is a tagged storage index: either a slot in the live movable array
// or a slot in the static body store. Carrying the tag next to the index
// keeps the dual-index scheme explicit at every call site.
type BodyRef struct {
	Kind  RefKind
	Index int
}

// CollisionBody is the movable-body record. It owns identity, classification
// and filter bits only; position and half extents live in the external entity
// store and are read by handle each frame.
type CollisionBody struct {
	ID             BodyID
	Entity         EntityHandle
	Type           BodyType
	Layer          Layer
	CollidesWith   Layer
	Enabled        bool
	IsTrigger      bool
	DetectTriggers bool
	TriggerTag     TriggerTag
	TriggerType    TriggerType
}

// StaticBody is an immovable world body (tile, obstacle, trigger volume).
// Unlike movables it owns its geometry.
type StaticBody struct {
	ID           BodyID
	Center       mgl32.Vec2
	HalfExtent   mgl32.Vec2
	Layer        Layer
	CollidesWith Layer
	IsTrigger    bool
	TriggerTag   TriggerTag
	TriggerType  TriggerType
	DataIndex    int
}

func (b StaticBody) Bounds() AABB {
	return AABB{Center: b.Center, Half: b.HalfExtent}
}

// CollisionRecord is one confirmed overlap. RefA/RefB carry the storage
// indices of both participants so downstream dispatch needs no second lookup.
// For event-only trigger pairs Normal and Penetration are zeroed.
type CollisionRecord struct {
	IDA, IDB    BodyID
	RefA, RefB  BodyRef
	Normal      mgl32.Vec2
	Penetration float32
	IsTrigger   bool
}

// KinematicUpdate is one entry of a batched position/velocity update,
// typically produced by the AI system for its whole NPC set.
type KinematicUpdate struct {
	ID       BodyID
	Position mgl32.Vec2
	Velocity mgl32.Vec2
}
