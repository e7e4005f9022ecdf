package tessera

import (
	"github.com/go-gl/mathgl/mgl32"
)

// layersCompatible applies the pair filter. Both directions must agree: each
// side's mask has to intersect the other side's layer. Checked before any
// overlap test.
func layersCompatible(layerA, maskA, layerB, maskB Layer) bool {
	return maskA&layerB != 0 && maskB&layerA != 0
}

// resolveOverlap computes penetration depth and contact normal for a
// confirmed pair. The normal points from a toward b along the axis of
// minimum penetration, tie-broken toward x. Reports false when the boxes
// only touch or do not overlap; solid contacts always have penetration > 0.
func resolveOverlap(a, b AABB) (mgl32.Vec2, float32, bool) {
	dx := b.Center.X() - a.Center.X()
	dy := b.Center.Y() - a.Center.Y()
	adx, ady := dx, dy
	if adx < 0 {
		adx = -adx
	}
	if ady < 0 {
		ady = -ady
	}
	xOverlap := a.Half.X() + b.Half.X() - adx
	yOverlap := a.Half.Y() + b.Half.Y() - ady
	if xOverlap <= 0 || yOverlap <= 0 {
		return mgl32.Vec2{}, 0, false
	}
	if xOverlap <= yOverlap {
		if dx < 0 {
			return mgl32.Vec2{-1, 0}, xOverlap, true
		}
		return mgl32.Vec2{1, 0}, xOverlap, true
	}
	if dy < 0 {
		return mgl32.Vec2{0, -1}, yOverlap, true
	}
	return mgl32.Vec2{0, 1}, yOverlap, true
}

// narrowphase confirms one candidate pair and assembles the record. Trigger
// pairs (either side event-only) skip the penetration computation and carry
// zeroed normal and depth.
func narrowphase(idA, idB BodyID, refA, refB BodyRef, boundsA, boundsB AABB, trigger bool) (CollisionRecord, bool) {
	if trigger {
		if !boundsA.Intersects(boundsB) {
			return CollisionRecord{}, false
		}
		return CollisionRecord{
			IDA: idA, IDB: idB,
			RefA: refA, RefB: refB,
			IsTrigger: true,
		}, true
	}
	normal, pen, ok := resolveOverlap(boundsA, boundsB)
	if !ok {
		return CollisionRecord{}, false
	}
	return CollisionRecord{
		IDA: idA, IDB: idB,
		RefA: refA, RefB: refB,
		Normal:      normal,
		Penetration: pen,
	}, true
}
