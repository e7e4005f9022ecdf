package tessera

import (
	"math"
)

// Cell coordinates are clamped so that extreme or non-finite body positions
// hash to the edge of the addressable grid instead of overflowing.
const (
	maxCellCoord = math.MaxInt32 / 2
	minCellCoord = -maxCellCoord
	maxCellSpan  = 4096
)

type cellCoord struct {
	x, y int32
}

// region is one coarse cell. It keeps a flat occupant list until the
// occupant count crosses the split threshold, then subdivides into fine
// cells for better query locality.
type region struct {
	bodies []int
	fine   map[cellCoord][]int
	count  int
	split  bool
}

type bodyLocation struct {
	bounds AABB
	lo, hi cellCoord // coarse cell range occupied
}

// SpatialHash is a two-resolution uniform grid mapping body identifiers to
// the set of cells their AABB overlaps. Identifiers are storage indices:
// the caller decides which array they refer to.
type SpatialHash struct {
	coarseSize float32
	fineSize   float32
	splitAt    int

	regions   map[cellCoord]*region
	locations map[int]bodyLocation
}

func NewSpatialHash(coarseSize, fineSize float32, splitThreshold int) *SpatialHash {
	if coarseSize <= 0 {
		coarseSize = 128
	}
	if fineSize <= 0 || fineSize > coarseSize {
		fineSize = coarseSize / 4
	}
	if splitThreshold < 2 {
		splitThreshold = 2
	}
	return &SpatialHash{
		coarseSize: coarseSize,
		fineSize:   fineSize,
		splitAt:    splitThreshold,
		regions:    make(map[cellCoord]*region),
		locations:  make(map[int]bodyLocation),
	}
}

func (h *SpatialHash) Len() int { return len(h.locations) }

func (h *SpatialHash) Clear() {
	h.regions = make(map[cellCoord]*region)
	h.locations = make(map[int]bodyLocation)
}

// Insert registers id under every coarse cell its bounds overlap.
// Re-inserting an existing id replaces its previous placement.
func (h *SpatialHash) Insert(id int, bounds AABB) {
	if _, ok := h.locations[id]; ok {
		h.Remove(id)
	}
	lo, hi := h.coarseRange(bounds)
	// Location goes in first: a subdivision triggered by this insert reads
	// it to place existing occupants.
	h.locations[id] = bodyLocation{bounds: bounds, lo: lo, hi: hi}
	for x := lo.x; x <= hi.x; x++ {
		for y := lo.y; y <= hi.y; y++ {
			key := cellCoord{x, y}
			r := h.regions[key]
			if r == nil {
				r = &region{}
				h.regions[key] = r
			}
			h.insertIntoRegion(r, key, id, bounds)
		}
	}
}

// Remove deletes id from every cell it occupies. Unknown ids are ignored.
func (h *SpatialHash) Remove(id int) {
	loc, ok := h.locations[id]
	if !ok {
		return
	}
	for x := loc.lo.x; x <= loc.hi.x; x++ {
		for y := loc.lo.y; y <= loc.hi.y; y++ {
			key := cellCoord{x, y}
			r := h.regions[key]
			if r == nil {
				continue
			}
			h.removeFromRegion(r, key, id, loc.bounds)
			if r.count == 0 {
				delete(h.regions, key)
			}
		}
	}
	delete(h.locations, id)
}

// Update repositions id. When the body stays within the same coarse cell
// range only fine-cell membership is patched; otherwise it falls back to a
// full remove+insert.
func (h *SpatialHash) Update(id int, bounds AABB) {
	loc, ok := h.locations[id]
	if !ok {
		h.Insert(id, bounds)
		return
	}
	lo, hi := h.coarseRange(bounds)
	if lo != loc.lo || hi != loc.hi {
		h.Remove(id)
		h.Insert(id, bounds)
		return
	}
	// Cheap path: same coarse cells, refresh fine membership only.
	for x := lo.x; x <= hi.x; x++ {
		for y := lo.y; y <= hi.y; y++ {
			key := cellCoord{x, y}
			r := h.regions[key]
			if r == nil || !r.split {
				continue
			}
			h.eraseFine(r, key, id, loc.bounds)
			h.addFine(r, key, id, bounds)
		}
	}
	loc.bounds = bounds
	h.locations[id] = loc
}

// QueryRegion appends every id whose cells overlap area to out, each exactly
// once, and returns the extended slice.
func (h *SpatialHash) QueryRegion(area AABB, out []int) []int {
	lo, hi := h.coarseRange(area)
	seen := make(map[int]struct{})
	for x := lo.x; x <= hi.x; x++ {
		for y := lo.y; y <= hi.y; y++ {
			key := cellCoord{x, y}
			r := h.regions[key]
			if r == nil {
				continue
			}
			if !r.split {
				for _, id := range r.bodies {
					if _, dup := seen[id]; !dup {
						seen[id] = struct{}{}
						out = append(out, id)
					}
				}
				continue
			}
			flo, fhi := h.fineRange(area, key)
			for fx := flo.x; fx <= fhi.x; fx++ {
				for fy := flo.y; fy <= fhi.y; fy++ {
					for _, id := range r.fine[cellCoord{fx, fy}] {
						if _, dup := seen[id]; !dup {
							seen[id] = struct{}{}
							out = append(out, id)
						}
					}
				}
			}
		}
	}
	return out
}

func (h *SpatialHash) insertIntoRegion(r *region, key cellCoord, id int, bounds AABB) {
	r.count++
	if !r.split {
		r.bodies = append(r.bodies, id)
		if r.count > h.splitAt {
			h.subdivide(r, key)
		}
		return
	}
	h.addFine(r, key, id, bounds)
}

func (h *SpatialHash) removeFromRegion(r *region, key cellCoord, id int, bounds AABB) {
	r.count--
	if !r.split {
		for i, v := range r.bodies {
			if v == id {
				last := len(r.bodies) - 1
				r.bodies[i] = r.bodies[last]
				r.bodies = r.bodies[:last]
				break
			}
		}
		return
	}
	h.eraseFine(r, key, id, bounds)
	if r.count <= h.splitAt/2 {
		h.unsubdivide(r)
	}
}

// subdivide promotes a crowded coarse cell to fine-cell buckets.
func (h *SpatialHash) subdivide(r *region, key cellCoord) {
	r.split = true
	r.fine = make(map[cellCoord][]int)
	for _, id := range r.bodies {
		loc := h.locations[id]
		h.addFine(r, key, id, loc.bounds)
	}
	r.bodies = nil
}

func (h *SpatialHash) unsubdivide(r *region) {
	seen := make(map[int]struct{}, r.count)
	r.bodies = r.bodies[:0]
	for _, ids := range r.fine {
		for _, id := range ids {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				r.bodies = append(r.bodies, id)
			}
		}
	}
	r.fine = nil
	r.split = false
}

func (h *SpatialHash) addFine(r *region, key cellCoord, id int, bounds AABB) {
	lo, hi := h.fineRange(bounds, key)
	for x := lo.x; x <= hi.x; x++ {
		for y := lo.y; y <= hi.y; y++ {
			fk := cellCoord{x, y}
			r.fine[fk] = append(r.fine[fk], id)
		}
	}
}

func (h *SpatialHash) eraseFine(r *region, key cellCoord, id int, bounds AABB) {
	lo, hi := h.fineRange(bounds, key)
	for x := lo.x; x <= hi.x; x++ {
		for y := lo.y; y <= hi.y; y++ {
			fk := cellCoord{x, y}
			ids := r.fine[fk]
			for i, v := range ids {
				if v == id {
					last := len(ids) - 1
					ids[i] = ids[last]
					r.fine[fk] = ids[:last]
					break
				}
			}
			if len(r.fine[fk]) == 0 {
				delete(r.fine, fk)
			}
		}
	}
}

func (h *SpatialHash) coarseRange(bounds AABB) (cellCoord, cellCoord) {
	lo := cellCoord{
		x: cellIndex(bounds.Left(), h.coarseSize),
		y: cellIndex(bounds.Top(), h.coarseSize),
	}
	hi := cellCoord{
		x: cellIndex(bounds.Right(), h.coarseSize),
		y: cellIndex(bounds.Bottom(), h.coarseSize),
	}
	return clampSpan(lo, hi)
}

// fineRange yields the fine cells within a single coarse region that bounds
// overlaps, clipped to that region.
func (h *SpatialHash) fineRange(bounds AABB, coarse cellCoord) (cellCoord, cellCoord) {
	finePerCoarse := int32(h.coarseSize / h.fineSize)
	if finePerCoarse < 1 {
		finePerCoarse = 1
	}
	base := cellCoord{coarse.x * finePerCoarse, coarse.y * finePerCoarse}
	lo := cellCoord{
		x: maxi32(cellIndex(bounds.Left(), h.fineSize), base.x),
		y: maxi32(cellIndex(bounds.Top(), h.fineSize), base.y),
	}
	hi := cellCoord{
		x: mini32(cellIndex(bounds.Right(), h.fineSize), base.x+finePerCoarse-1),
		y: mini32(cellIndex(bounds.Bottom(), h.fineSize), base.y+finePerCoarse-1),
	}
	if hi.x < lo.x {
		hi.x = lo.x
	}
	if hi.y < lo.y {
		hi.y = lo.y
	}
	return lo, hi
}

// cellIndex maps a world coordinate to a grid index, tolerating NaN and
// infinities by clamping into the addressable range.
func cellIndex(v, size float32) int32 {
	f := float64(v) / float64(size)
	if math.IsNaN(f) {
		return 0
	}
	if f >= float64(maxCellCoord) {
		return maxCellCoord
	}
	if f <= float64(minCellCoord) {
		return minCellCoord
	}
	return int32(math.Floor(f))
}

func clampSpan(lo, hi cellCoord) (cellCoord, cellCoord) {
	if hi.x < lo.x {
		lo.x, hi.x = hi.x, lo.x
	}
	if hi.y < lo.y {
		lo.y, hi.y = hi.y, lo.y
	}
	if hi.x-lo.x > maxCellSpan {
		hi.x = lo.x + maxCellSpan
	}
	if hi.y-lo.y > maxCellSpan {
		hi.y = lo.y + maxCellSpan
	}
	return lo, hi
}

func maxi32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

func mini32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}
