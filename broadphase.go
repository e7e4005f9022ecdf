package tessera

import (
	"sort"
)

// bodyProxy is the per-frame snapshot of one movable body: bounds read from
// the entity store once, plus the filter bits needed during the sweep. Built
// fresh each frame so broadphase never touches the store per candidate.
type bodyProxy struct {
	id             BodyID
	movableIndex   int
	bounds         AABB
	layer          Layer
	mask           Layer
	isTrigger      bool
	triggerType    TriggerType
	detectTriggers bool
	triggerTag     TriggerTag
}

// candidatePair holds two proxy positions in the frame's proxy slice.
type candidatePair struct {
	a, b int
}

// staticPair pairs a proxy position with a static storage index.
type staticPair struct {
	proxy  int
	static int
}

// Broadphase generates movable-movable candidate pairs by sweep-and-prune
// and movable-static candidates through the static store. The sweep axis is
// reselected periodically to follow the world's dominant spread.
type Broadphase struct {
	axis           int
	frames         int
	reselectPeriod int
	staticEpsilon  float32

	order []int
}

func NewBroadphase(cfg *Config) *Broadphase {
	return &Broadphase{
		reselectPeriod: cfg.AxisReselectPeriod,
		staticEpsilon:  cfg.StaticQueryEpsilon,
	}
}

func (b *Broadphase) Axis() int { return b.axis }

// Prepare picks the sweep axis if due and sorts proxy positions by interval
// start along it. The returned order slice is owned by the broadphase and
// valid until the next Prepare.
func (b *Broadphase) Prepare(proxies []bodyProxy) []int {
	if b.frames%b.reselectPeriod == 0 {
		b.axis = selectAxis(proxies)
	}
	b.frames++

	if cap(b.order) < len(proxies) {
		b.order = make([]int, len(proxies))
	} else {
		b.order = b.order[:len(proxies)]
	}
	for i := range b.order {
		b.order[i] = i
	}
	axis := b.axis
	sort.Slice(b.order, func(x, y int) bool {
		px := proxies[b.order[x]]
		py := proxies[b.order[y]]
		sx := px.bounds.Center[axis] - px.bounds.Half[axis]
		sy := py.bounds.Center[axis] - py.bounds.Half[axis]
		if sx != sy {
			return sx < sy
		}
		// Stable tiebreak keeps the frame order deterministic.
		return b.order[x] < b.order[y]
	})
	return b.order
}

// SweepRange sweeps the sorted order over origin positions [from, to),
// appending candidate pairs that pass interval overlap on both axes and the
// layer filter. Each origin only scans forward, so pairs produced by
// disjoint origin ranges are themselves disjoint.
func (b *Broadphase) SweepRange(proxies []bodyProxy, order []int, from, to int, out []candidatePair) []candidatePair {
	axis := b.axis
	other := 1 - axis
	for p := from; p < to && p < len(order); p++ {
		i := order[p]
		pi := &proxies[i]
		end := pi.bounds.Center[axis] + pi.bounds.Half[axis]
		for q := p + 1; q < len(order); q++ {
			j := order[q]
			pj := &proxies[j]
			if pj.bounds.Center[axis]-pj.bounds.Half[axis] > end {
				break
			}
			di := pi.bounds.Center[other] - pj.bounds.Center[other]
			if di < 0 {
				di = -di
			}
			if di > pi.bounds.Half[other]+pj.bounds.Half[other] {
				continue
			}
			if !layersCompatible(pi.layer, pi.mask, pj.layer, pj.mask) {
				continue
			}
			out = append(out, candidatePair{a: i, b: j})
		}
	}
	return out
}

// StaticCandidates queries the static store for each proxy in [from, to)
// with an epsilon-expanded box, filtering by layer before emitting.
func (b *Broadphase) StaticCandidates(proxies []bodyProxy, statics *StaticBodyStore, from, to int, scratch []int, out []staticPair) ([]int, []staticPair) {
	for i := from; i < to && i < len(proxies); i++ {
		pi := &proxies[i]
		scratch = statics.QueryCandidates(pi.bounds.Expanded(b.staticEpsilon), scratch[:0])
		for _, si := range scratch {
			sb, ok := statics.Get(si)
			if !ok {
				continue
			}
			if !layersCompatible(pi.layer, pi.mask, sb.Layer, sb.CollidesWith) {
				continue
			}
			out = append(out, staticPair{proxy: i, static: si})
		}
	}
	return scratch, out
}

// selectAxis returns the axis with the larger spread of body centers.
func selectAxis(proxies []bodyProxy) int {
	if len(proxies) == 0 {
		return 0
	}
	minX, maxX := proxies[0].bounds.Center.X(), proxies[0].bounds.Center.X()
	minY, maxY := proxies[0].bounds.Center.Y(), proxies[0].bounds.Center.Y()
	for i := 1; i < len(proxies); i++ {
		c := proxies[i].bounds.Center
		if c.X() < minX {
			minX = c.X()
		}
		if c.X() > maxX {
			maxX = c.X()
		}
		if c.Y() < minY {
			minY = c.Y()
		}
		if c.Y() > maxY {
			maxY = c.Y()
		}
	}
	if maxY-minY > maxX-minX {
		return 1
	}
	return 0
}
