package tessera

import (
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// PerfStats is the per-frame instrumentation snapshot. SmoothedTotalMs is an
// exponentially smoothed frame total; everything else is last-frame.
type PerfStats struct {
	Frame           uint64
	ActiveBodies    int
	PairCount       int
	CollisionCount  int
	TriggerEvents   int
	Mode            ThreadingMode
	BatchCount      int
	BroadphaseMs    float64
	NarrowphaseMs   float64
	TotalMs         float64
	SmoothedTotalMs float64
}

// CollisionWorld is the collision core's lifecycle controller: it owns the
// movable body array, the static store, the broadphase, the trigger
// detector, and the command queue, and drives the per-frame pipeline.
// Structural mutation goes through the queue and is applied only at the top
// of Update; everything after that point in a frame is read-only.
type CollisionWorld struct {
	cfg      *Config
	log      Logger
	entities EntityData
	statics  *StaticBodyStore
	bp       *Broadphase
	triggers *TriggerDetector
	queue    *commandQueue
	pool     *WorkerPool
	budget   *WorkerBudget

	movables  []CollisionBody
	movableBy map[BodyID]int
	staticIDs map[BodyID]struct{}

	worldBounds    AABB
	hasWorldBounds bool

	now   func() time.Time
	frame uint64
	stats PerfStats

	proxies   []bodyProxy
	detectors []int
	records   []CollisionRecord
	events    []TriggerEvent
	pairs     []candidatePair
	sPairs    []staticPair
	scratch   []int
}

func NewCollisionWorld(cfg *Config, log Logger, entities EntityData, pool *WorkerPool, budget *WorkerBudget) *CollisionWorld {
	if log == nil {
		log = NewNopLogger()
	}
	return &CollisionWorld{
		cfg:       cfg,
		log:       log,
		entities:  entities,
		statics:   NewStaticBodyStore(cfg),
		bp:        NewBroadphase(cfg),
		triggers:  NewTriggerDetector(cfg),
		queue:     &commandQueue{},
		pool:      pool,
		budget:    budget,
		movableBy: make(map[BodyID]int),
		staticIDs: make(map[BodyID]struct{}),
		now:       time.Now,
	}
}

// SetClock replaces the time source, for tests.
func (w *CollisionWorld) SetClock(now func() time.Time) {
	if now != nil {
		w.now = now
	}
}

// AddBody queues a movable body for addition and returns its id, generating
// one when the caller left it zero. The body becomes queryable after the
// next Update drains the queue.
func (w *CollisionWorld) AddBody(body CollisionBody) BodyID {
	if body.ID == 0 {
		body.ID = NewBodyID()
	}
	w.queue.push(command{kind: cmdAddBody, id: body.ID, body: body})
	return body.ID
}

// AddStaticBody queues an immovable body.
func (w *CollisionWorld) AddStaticBody(body StaticBody) BodyID {
	if body.ID == 0 {
		body.ID = NewBodyID()
	}
	w.queue.push(command{kind: cmdAddStatic, id: body.ID, static: body})
	return body.ID
}

// CreateTriggerArea queues an event-only trigger volume and returns its id.
func (w *CollisionWorld) CreateTriggerArea(area AABB, tag TriggerTag, layer, collidesWith Layer) BodyID {
	body := StaticBody{
		ID:           NewBodyID(),
		Center:       area.Center,
		HalfExtent:   area.Half,
		Layer:        layer,
		CollidesWith: collidesWith,
		IsTrigger:    true,
		TriggerTag:   tag,
		TriggerType:  TriggerEventOnly,
	}
	w.queue.push(command{kind: cmdAddStatic, id: body.ID, static: body})
	return body.ID
}

func (w *CollisionWorld) RemoveBody(id BodyID) {
	w.queue.push(command{kind: cmdRemoveBody, id: id})
}

func (w *CollisionWorld) UpdateBodyPosition(id BodyID, center mgl32.Vec2) {
	w.queue.push(command{kind: cmdUpdatePosition, id: id, position: center})
}

// UpdateKinematicBatch queues position and velocity for a whole set of
// kinematic bodies, applied as one command.
func (w *CollisionWorld) UpdateKinematicBatch(updates []KinematicUpdate) {
	if len(updates) == 0 {
		return
	}
	batch := make([]KinematicUpdate, len(updates))
	copy(batch, updates)
	w.queue.push(command{kind: cmdKinematicBatch, batch: batch})
}

func (w *CollisionWorld) ResizeBody(id BodyID, halfExtent mgl32.Vec2) {
	w.queue.push(command{kind: cmdResizeBody, id: id, half: halfExtent})
}

func (w *CollisionWorld) SetBodyEnabled(id BodyID, enabled bool) {
	w.queue.push(command{kind: cmdSetEnabled, id: id, flag: enabled})
}

func (w *CollisionWorld) SetBodyLayer(id BodyID, layer, collidesWith Layer) {
	w.queue.push(command{kind: cmdSetLayer, id: id, layer: layer, mask: collidesWith})
}

func (w *CollisionWorld) SetBodyTrigger(id BodyID, isTrigger bool, tag TriggerTag, triggerType TriggerType) {
	c := command{kind: cmdSetTrigger, id: id, flag: isTrigger}
	c.static.TriggerTag = tag
	c.static.TriggerType = triggerType
	w.queue.push(c)
}

func (w *CollisionWorld) SetTriggerCooldown(id BodyID, cooldown time.Duration) {
	w.queue.push(command{kind: cmdSetTriggerCooldown, id: id, cooldown: cooldown})
}

// SetWorldBounds clamps command-applied positions into bounds.
func (w *CollisionWorld) SetWorldBounds(bounds AABB) {
	w.worldBounds = bounds
	w.hasWorldBounds = true
}

// RebuildStatics replaces the whole static set, used on world reload. Errors
// abort the rebuild and leave the store empty rather than half-filled.
func (w *CollisionWorld) RebuildStatics(bodies []StaticBody) error {
	w.statics.Clear()
	for id := range w.staticIDs {
		w.triggers.ForgetBody(id)
	}
	w.staticIDs = make(map[BodyID]struct{})
	for i := range bodies {
		b := bodies[i]
		if b.ID == 0 {
			b.ID = NewBodyID()
		}
		if _, err := w.statics.Add(b); err != nil {
			w.statics.Clear()
			w.staticIDs = make(map[BodyID]struct{})
			return fmt.Errorf("rebuild statics at %d: %w", i, err)
		}
		w.staticIDs[b.ID] = struct{}{}
	}
	return nil
}

// MovableIndex returns the live-array index of a movable body. Valid until
// the next Update.
func (w *CollisionWorld) MovableIndex(id BodyID) (int, bool) {
	idx, ok := w.movableBy[id]
	return idx, ok
}

func (w *CollisionWorld) StaticIndex(id BodyID) (int, bool) {
	return w.statics.IndexOf(id)
}

func (w *CollisionWorld) MovableCount() int { return len(w.movables) }
func (w *CollisionWorld) StaticCount() int  { return w.statics.Len() }

// BodyCenter returns the current world-space center of any body.
func (w *CollisionWorld) BodyCenter(id BodyID) (mgl32.Vec2, bool) {
	if idx, ok := w.movableBy[id]; ok {
		b, ok := w.movableBounds(&w.movables[idx])
		if !ok {
			return mgl32.Vec2{}, false
		}
		return b.Center, true
	}
	if idx, ok := w.statics.IndexOf(id); ok {
		sb, ok := w.statics.Get(idx)
		if !ok {
			return mgl32.Vec2{}, false
		}
		return sb.Center, true
	}
	return mgl32.Vec2{}, false
}

func (w *CollisionWorld) IsTrigger(id BodyID) bool {
	if idx, ok := w.movableBy[id]; ok {
		return w.movables[idx].IsTrigger
	}
	if idx, ok := w.statics.IndexOf(id); ok {
		sb, _ := w.statics.Get(idx)
		return sb.IsTrigger
	}
	return false
}

func (w *CollisionWorld) IsKinematic(id BodyID) bool {
	idx, ok := w.movableBy[id]
	return ok && w.movables[idx].Type == BodyKinematic
}

func (w *CollisionWorld) IsDynamic(id BodyID) bool {
	idx, ok := w.movableBy[id]
	return ok && w.movables[idx].Type == BodyDynamic
}

// Overlaps reports whether the current bounds of two bodies intersect.
func (w *CollisionWorld) Overlaps(a, b BodyID) bool {
	ba, ok := w.boundsOf(a)
	if !ok {
		return false
	}
	bb, ok := w.boundsOf(b)
	if !ok {
		return false
	}
	return ba.Intersects(bb)
}

// QueryArea returns the ids of every body whose bounds intersect area.
func (w *CollisionWorld) QueryArea(area AABB) []BodyID {
	var out []BodyID
	w.scratch = w.statics.QueryCandidates(area, w.scratch[:0])
	for _, si := range w.scratch {
		sb, ok := w.statics.Get(si)
		if !ok {
			continue
		}
		if bounds, ok := w.statics.Bounds(si); ok && area.Intersects(bounds) {
			out = append(out, sb.ID)
		}
	}
	for i := range w.movables {
		bounds, ok := w.movableBounds(&w.movables[i])
		if !ok {
			continue
		}
		if area.Intersects(bounds) {
			out = append(out, w.movables[i].ID)
		}
	}
	return out
}

func (w *CollisionWorld) boundsOf(id BodyID) (AABB, bool) {
	if idx, ok := w.movableBy[id]; ok {
		return w.movableBounds(&w.movables[idx])
	}
	if idx, ok := w.statics.IndexOf(id); ok {
		return w.statics.Bounds(idx)
	}
	return AABB{}, false
}

func (w *CollisionWorld) movableBounds(b *CollisionBody) (AABB, bool) {
	idx, ok := w.entities.Resolve(b.Entity)
	if !ok {
		return AABB{}, false
	}
	tr, ok := w.entities.TransformByIndex(idx)
	if !ok {
		return AABB{}, false
	}
	hot, ok := w.entities.HotDataByIndex(idx)
	if !ok {
		return AABB{}, false
	}
	return AABB{Center: tr.Position, Half: hot.HalfExtent}, true
}

// PerfStats returns the last frame's instrumentation.
func (w *CollisionWorld) PerfStats() PerfStats { return w.stats }

// PrepareForStateTransition atomically invalidates everything derived from
// the entity store: movable bodies, trigger pair state, pending commands,
// and the static cache. The entity store itself is cleared by its owner; the
// contract is that no index cached here survives the transition.
func (w *CollisionWorld) PrepareForStateTransition() {
	w.queue.reset()
	w.movables = w.movables[:0]
	w.movableBy = make(map[BodyID]int)
	w.triggers.Reset()
	w.statics.Clear()
	w.staticIDs = make(map[BodyID]struct{})
	w.proxies = w.proxies[:0]
	w.detectors = w.detectors[:0]
	w.records = w.records[:0]
	w.events = w.events[:0]
	w.log.Debugf("collision world reset for state transition")
}

// Update drives one frame: drain commands, snapshot proxies, broadphase
// (serial or fanned out per the budget), narrowphase, trigger detection.
// The returned slices are reused next frame.
func (w *CollisionWorld) Update(dt float32) ([]CollisionRecord, []TriggerEvent) {
	frameStart := w.now()
	w.frame++

	w.applyCommands()
	w.buildProxies()

	n := len(w.proxies)
	strategy := BatchStrategy{Mode: ModeForcedSingle, BatchCount: 1, BatchSize: n}
	if w.budget != nil {
		strategy = w.budget.Decide(SystemCollision, n)
	}

	bpStart := w.now()
	order := w.bp.Prepare(w.proxies)
	if strategy.Mode == ModeMulti && w.pool != nil && strategy.BatchCount > 1 {
		w.pairs, w.sPairs = w.broadphaseParallel(order, strategy.BatchCount)
	} else {
		w.pairs = w.bp.SweepRange(w.proxies, order, 0, len(order), w.pairs[:0])
		w.scratch, w.sPairs = w.bp.StaticCandidates(w.proxies, w.statics, 0, n, w.scratch, w.sPairs[:0])
	}
	bpElapsed := w.now().Sub(bpStart)

	npStart := w.now()
	w.records = w.narrowphaseAll(w.records[:0])
	npElapsed := w.now().Sub(npStart)

	w.events = w.triggers.Detect(w.proxies, w.detectors, w.statics, frameStart, w.events[:0])

	total := w.now().Sub(frameStart)
	if w.budget != nil && n > 0 {
		mode := strategy.Mode
		if mode == ModeForcedSingle {
			mode = ModeSingle
		}
		w.budget.ReportExecution(SystemCollision, mode, n, bpElapsed+npElapsed)
	}
	w.recordStats(n, strategy, bpElapsed, npElapsed, total)
	return w.records, w.events
}

// broadphaseParallel sorts once on the calling goroutine, then fans the
// sweep-origin range and the static queries out in disjoint chunks. Chunk
// outputs are consolidated in batch order so results match the serial path
// exactly.
func (w *CollisionWorld) broadphaseParallel(order []int, batchCount int) ([]candidatePair, []staticPair) {
	n := len(order)
	chunk := (n + batchCount - 1) / batchCount
	if chunk < 1 {
		chunk = 1
	}
	// Warm the static cache on the frame goroutine; the workers then only
	// read it.
	w.statics.ensureCache()
	pairOut := make([][]candidatePair, batchCount)
	staticOut := make([][]staticPair, batchCount)
	tasks := make([]func(), 0, batchCount)
	for b := 0; b < batchCount; b++ {
		b := b
		from := b * chunk
		to := from + chunk
		if from >= n {
			break
		}
		if to > n {
			to = n
		}
		tasks = append(tasks, func() {
			pairOut[b] = w.bp.SweepRange(w.proxies, order, from, to, nil)
			_, staticOut[b] = w.bp.StaticCandidates(w.proxies, w.statics, from, to, nil, nil)
		})
	}
	w.pool.RunBatches(tasks)

	pairs := w.pairs[:0]
	sPairs := w.sPairs[:0]
	for b := range pairOut {
		pairs = append(pairs, pairOut[b]...)
		sPairs = append(sPairs, staticOut[b]...)
	}
	return pairs, sPairs
}

// narrowphaseAll confirms every candidate. Event-only trigger volumes are
// excluded here; the trigger detector owns those pairs. Blocking triggers
// produce records flagged IsTrigger with zeroed contact data.
func (w *CollisionWorld) narrowphaseAll(out []CollisionRecord) []CollisionRecord {
	for _, p := range w.pairs {
		pa := &w.proxies[p.a]
		pb := &w.proxies[p.b]
		if eventOnly(pa) || eventOnly(pb) {
			continue
		}
		trigger := pa.isTrigger || pb.isTrigger
		rec, ok := narrowphase(
			pa.id, pb.id,
			BodyRef{Kind: RefMovable, Index: pa.movableIndex},
			BodyRef{Kind: RefMovable, Index: pb.movableIndex},
			pa.bounds, pb.bounds, trigger,
		)
		if ok {
			out = append(out, rec)
		}
	}
	for _, p := range w.sPairs {
		pa := &w.proxies[p.proxy]
		sb, ok := w.statics.Get(p.static)
		if !ok {
			continue
		}
		if eventOnly(pa) || (sb.IsTrigger && sb.TriggerType == TriggerEventOnly) {
			continue
		}
		bounds, ok := w.statics.Bounds(p.static)
		if !ok {
			continue
		}
		trigger := pa.isTrigger || sb.IsTrigger
		rec, ok := narrowphase(
			pa.id, sb.ID,
			BodyRef{Kind: RefMovable, Index: pa.movableIndex},
			BodyRef{Kind: RefStatic, Index: p.static},
			pa.bounds, bounds, trigger,
		)
		if ok {
			out = append(out, rec)
		}
	}
	return out
}

func eventOnly(p *bodyProxy) bool {
	return p.isTrigger && p.triggerType == TriggerEventOnly
}

// buildProxies snapshots every live movable once per frame: one transform
// and one hot-data read per body, gated on the store's active index set.
func (w *CollisionWorld) buildProxies() {
	w.proxies = w.proxies[:0]
	w.detectors = w.detectors[:0]

	active := w.entities.ActiveIndicesWithCollision()
	activeSet := make(map[int32]struct{}, len(active))
	for _, idx := range active {
		activeSet[idx] = struct{}{}
	}

	for i := range w.movables {
		b := &w.movables[i]
		if !b.Enabled {
			continue
		}
		idx, ok := w.entities.Resolve(b.Entity)
		if !ok {
			continue
		}
		if _, isActive := activeSet[idx]; !isActive {
			continue
		}
		tr, ok := w.entities.TransformByIndex(idx)
		if !ok {
			continue
		}
		hot, ok := w.entities.HotDataByIndex(idx)
		if !ok {
			continue
		}
		w.proxies = append(w.proxies, bodyProxy{
			id:             b.ID,
			movableIndex:   i,
			bounds:         AABB{Center: tr.Position, Half: hot.HalfExtent},
			layer:          b.Layer,
			mask:           b.CollidesWith,
			isTrigger:      b.IsTrigger,
			triggerType:    b.TriggerType,
			detectTriggers: b.DetectTriggers,
			triggerTag:     b.TriggerTag,
		})
		if b.DetectTriggers {
			w.detectors = append(w.detectors, len(w.proxies)-1)
		}
	}
}

func (w *CollisionWorld) applyCommands() {
	cmds := w.queue.drain()
	for i := range cmds {
		if err := w.applyCommand(&cmds[i]); err != nil {
			w.log.Warnf("command %d not applied: %v", cmds[i].kind, err)
		}
	}
}

func (w *CollisionWorld) applyCommand(c *command) error {
	switch c.kind {
	case cmdAddBody:
		if _, exists := w.movableBy[c.id]; exists {
			return fmt.Errorf("body %d already exists", c.id)
		}
		w.movableBy[c.id] = len(w.movables)
		w.movables = append(w.movables, c.body)
		return nil

	case cmdAddStatic:
		if _, err := w.statics.Add(c.static); err != nil {
			return fmt.Errorf("add static %d: %w", c.id, err)
		}
		w.staticIDs[c.id] = struct{}{}
		return nil

	case cmdRemoveBody:
		if idx, ok := w.movableBy[c.id]; ok {
			last := len(w.movables) - 1
			if idx != last {
				w.movables[idx] = w.movables[last]
				w.movableBy[w.movables[idx].ID] = idx
			}
			w.movables = w.movables[:last]
			delete(w.movableBy, c.id)
			w.triggers.ForgetBody(c.id)
			return nil
		}
		if w.statics.Remove(c.id) {
			delete(w.staticIDs, c.id)
			w.triggers.ForgetBody(c.id)
			return nil
		}
		return fmt.Errorf("remove: body %d not found", c.id)

	case cmdUpdatePosition:
		idx, ok := w.movableBy[c.id]
		if !ok {
			return fmt.Errorf("position update: body %d not found", c.id)
		}
		b := &w.movables[idx]
		eIdx, ok := w.entities.Resolve(b.Entity)
		if !ok {
			return fmt.Errorf("position update: body %d has stale entity handle", c.id)
		}
		tr, _ := w.entities.TransformByIndex(eIdx)
		pos := w.clampToWorld(c.position)
		if !w.entities.SetTransform(b.Entity, pos, tr.Velocity) {
			return fmt.Errorf("position update: store rejected body %d", c.id)
		}
		return nil

	case cmdKinematicBatch:
		var failed int
		for _, u := range c.batch {
			idx, ok := w.movableBy[u.ID]
			if !ok {
				failed++
				continue
			}
			b := &w.movables[idx]
			if b.Type != BodyKinematic {
				failed++
				continue
			}
			if !w.entities.SetTransform(b.Entity, w.clampToWorld(u.Position), u.Velocity) {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("kinematic batch: %d of %d updates not applied", failed, len(c.batch))
		}
		return nil

	case cmdResizeBody:
		if idx, ok := w.movableBy[c.id]; ok {
			if !w.entities.SetHalfExtent(w.movables[idx].Entity, c.half) {
				return fmt.Errorf("resize: store rejected body %d", c.id)
			}
			return nil
		}
		if sIdx, ok := w.statics.IndexOf(c.id); ok {
			sb, _ := w.statics.Get(sIdx)
			sb.HalfExtent = c.half
			_, err := w.statics.Add(sb)
			return err
		}
		return fmt.Errorf("resize: body %d not found", c.id)

	case cmdSetEnabled:
		idx, ok := w.movableBy[c.id]
		if !ok {
			return fmt.Errorf("set enabled: body %d not found", c.id)
		}
		w.movables[idx].Enabled = c.flag
		return nil

	case cmdSetLayer:
		if idx, ok := w.movableBy[c.id]; ok {
			w.movables[idx].Layer = c.layer
			w.movables[idx].CollidesWith = c.mask
			return nil
		}
		if sIdx, ok := w.statics.IndexOf(c.id); ok {
			sb, _ := w.statics.Get(sIdx)
			sb.Layer = c.layer
			sb.CollidesWith = c.mask
			_, err := w.statics.Add(sb)
			return err
		}
		return fmt.Errorf("set layer: body %d not found", c.id)

	case cmdSetTrigger:
		if idx, ok := w.movableBy[c.id]; ok {
			b := &w.movables[idx]
			b.IsTrigger = c.flag
			b.TriggerTag = c.static.TriggerTag
			b.TriggerType = c.static.TriggerType
			if !c.flag {
				w.triggers.ForgetBody(c.id)
			}
			return nil
		}
		if sIdx, ok := w.statics.IndexOf(c.id); ok {
			sb, _ := w.statics.Get(sIdx)
			sb.IsTrigger = c.flag
			sb.TriggerTag = c.static.TriggerTag
			sb.TriggerType = c.static.TriggerType
			if !c.flag {
				w.triggers.ForgetBody(c.id)
			}
			_, err := w.statics.Add(sb)
			return err
		}
		return fmt.Errorf("set trigger: body %d not found", c.id)

	case cmdSetTriggerCooldown:
		w.triggers.SetCooldown(c.id, c.cooldown)
		return nil
	}
	return fmt.Errorf("unknown command kind %d", c.kind)
}

func (w *CollisionWorld) clampToWorld(p mgl32.Vec2) mgl32.Vec2 {
	if !w.hasWorldBounds {
		return p
	}
	return w.worldBounds.ClosestPoint(p)
}

func (w *CollisionWorld) recordStats(active int, strategy BatchStrategy, bp, np, total time.Duration) {
	collisions := 0
	for i := range w.records {
		if !w.records[i].IsTrigger {
			collisions++
		}
	}
	smoothed := w.stats.SmoothedTotalMs
	totalMs := float64(total.Microseconds()) / 1000
	if smoothed == 0 {
		smoothed = totalMs
	} else {
		smoothed = smoothed*0.9 + totalMs*0.1
	}
	w.stats = PerfStats{
		Frame:           w.frame,
		ActiveBodies:    active,
		PairCount:       len(w.pairs) + len(w.sPairs),
		CollisionCount:  collisions,
		TriggerEvents:   len(w.events),
		Mode:            strategy.Mode,
		BatchCount:      strategy.BatchCount,
		BroadphaseMs:    float64(bp.Microseconds()) / 1000,
		NarrowphaseMs:   float64(np.Microseconds()) / 1000,
		TotalMs:         totalMs,
		SmoothedTotalMs: smoothed,
	}
	if p := w.cfg.StatsLogPeriod; p > 0 && w.frame%uint64(p) == 0 {
		w.log.Debugf("frame %d: %d active, %d pairs, %d collisions, %d trigger events, mode=%s batches=%d, bp=%.2fms np=%.2fms total=%.2fms",
			w.frame, active, w.stats.PairCount, collisions, len(w.events),
			strategy.Mode, strategy.BatchCount, w.stats.BroadphaseMs, w.stats.NarrowphaseMs, totalMs)
	}
}
