package tessera

import (
	"github.com/go-gl/mathgl/mgl32"
)

// AABB is an axis-aligned box stored as world center plus half extents.
// Zero half extents are legal; such a box behaves as a point.
type AABB struct {
	Center mgl32.Vec2
	Half   mgl32.Vec2
}

func NewAABB(cx, cy, hw, hh float32) AABB {
	return AABB{Center: mgl32.Vec2{cx, cy}, Half: mgl32.Vec2{hw, hh}}
}

// AABBFromBounds builds a box from min/max corners.
func AABBFromBounds(minX, minY, maxX, maxY float32) AABB {
	return AABB{
		Center: mgl32.Vec2{(minX + maxX) * 0.5, (minY + maxY) * 0.5},
		Half:   mgl32.Vec2{(maxX - minX) * 0.5, (maxY - minY) * 0.5},
	}
}

func (b AABB) Left() float32   { return b.Center.X() - b.Half.X() }
func (b AABB) Right() float32  { return b.Center.X() + b.Half.X() }
func (b AABB) Top() float32    { return b.Center.Y() - b.Half.Y() }
func (b AABB) Bottom() float32 { return b.Center.Y() + b.Half.Y() }

func (b AABB) Min() mgl32.Vec2 { return b.Center.Sub(b.Half) }
func (b AABB) Max() mgl32.Vec2 { return b.Center.Add(b.Half) }

// Intersects reports overlap including shared edges.
func (b AABB) Intersects(o AABB) bool {
	dx := b.Center.X() - o.Center.X()
	if dx < 0 {
		dx = -dx
	}
	dy := b.Center.Y() - o.Center.Y()
	if dy < 0 {
		dy = -dy
	}
	return dx <= b.Half.X()+o.Half.X() && dy <= b.Half.Y()+o.Half.Y()
}

func (b AABB) Contains(p mgl32.Vec2) bool {
	return p.X() >= b.Left() && p.X() <= b.Right() &&
		p.Y() >= b.Top() && p.Y() <= b.Bottom()
}

// ClosestPoint projects p onto the box surface or interior.
func (b AABB) ClosestPoint(p mgl32.Vec2) mgl32.Vec2 {
	x := clampf(p.X(), b.Left(), b.Right())
	y := clampf(p.Y(), b.Top(), b.Bottom())
	return mgl32.Vec2{x, y}
}

// Expanded returns the box grown by eps on every side.
func (b AABB) Expanded(eps float32) AABB {
	return AABB{Center: b.Center, Half: mgl32.Vec2{b.Half.X() + eps, b.Half.Y() + eps}}
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
