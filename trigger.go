package tessera

import (
	"sort"
	"time"
)

type TriggerEventType uint8

const (
	TriggerEnter TriggerEventType = iota
	TriggerExit
)

func (t TriggerEventType) String() string {
	if t == TriggerEnter {
		return "Enter"
	}
	return "Exit"
}

// TriggerEvent is one enter or exit transition between a detector body and
// an event-only trigger volume.
type TriggerEvent struct {
	Type        TriggerEventType
	Detector    BodyID
	Trigger     BodyID
	DetectorRef BodyRef
	TriggerRef  BodyRef
	Tag         TriggerTag
}

type triggerPairKey struct {
	detector BodyID
	trigger  BodyID
}

type triggerHit struct {
	detectorRef BodyRef
	triggerRef  BodyRef
	tag         TriggerTag
}

// triggerEntry is one interval in the merged sweep: either a detector or a
// trigger volume.
type triggerEntry struct {
	bounds     AABB
	isDetector bool
	proxy      int // detector or movable trigger position
	static     int // static trigger index, -1 for movables
}

// TriggerDetector matches trigger-interested movables against event-only
// trigger volumes and tracks pair state across frames. Few detectors are
// cheaper as direct region queries; many detectors amortize better as one
// merged sweep. The crossover is fixed configuration.
type TriggerDetector struct {
	sweepThreshold  int
	defaultCooldown time.Duration

	active    map[triggerPairKey]triggerHit
	current   map[triggerPairKey]triggerHit
	cooldowns map[BodyID]time.Duration
	lastExit  map[triggerPairKey]time.Time

	entries []triggerEntry
	scratch []int
}

func NewTriggerDetector(cfg *Config) *TriggerDetector {
	return &TriggerDetector{
		sweepThreshold:  cfg.TriggerSweepThreshold,
		defaultCooldown: time.Duration(cfg.TriggerCooldownSeconds * float64(time.Second)),
		active:          make(map[triggerPairKey]triggerHit),
		current:         make(map[triggerPairKey]triggerHit),
		cooldowns:       make(map[BodyID]time.Duration),
		lastExit:        make(map[triggerPairKey]time.Time),
	}
}

// SetCooldown overrides the re-entry cooldown for one trigger volume.
func (d *TriggerDetector) SetCooldown(trigger BodyID, cooldown time.Duration) {
	if cooldown <= 0 {
		delete(d.cooldowns, trigger)
		return
	}
	d.cooldowns[trigger] = cooldown
}

// ForgetBody drops all pair state referencing id, used when a body or
// trigger is removed so no Exit fires for it later.
func (d *TriggerDetector) ForgetBody(id BodyID) {
	for k := range d.active {
		if k.detector == id || k.trigger == id {
			delete(d.active, k)
		}
	}
	for k := range d.lastExit {
		if k.detector == id || k.trigger == id {
			delete(d.lastExit, k)
		}
	}
	delete(d.cooldowns, id)
}

// Reset clears every tracked pair without emitting exits.
func (d *TriggerDetector) Reset() {
	d.active = make(map[triggerPairKey]triggerHit)
	d.lastExit = make(map[triggerPairKey]time.Time)
}

// Detect computes this frame's detector/trigger overlaps and appends the
// enter and exit transitions since the previous frame. detectors holds proxy
// positions flagged for trigger detection.
func (d *TriggerDetector) Detect(proxies []bodyProxy, detectors []int, statics *StaticBodyStore, now time.Time, out []TriggerEvent) []TriggerEvent {
	for k := range d.current {
		delete(d.current, k)
	}
	if len(detectors) > 0 {
		if len(detectors) < d.sweepThreshold {
			d.detectDirect(proxies, detectors, statics)
		} else {
			d.detectSweep(proxies, detectors, statics)
		}
	}

	// Enters: overlapping now, not before, and past the trigger's cooldown.
	for k, hit := range d.current {
		if _, was := d.active[k]; was {
			continue
		}
		if exit, ok := d.lastExit[k]; ok {
			cd := d.defaultCooldown
			if c, ok := d.cooldowns[k.trigger]; ok {
				cd = c
			}
			if cd > 0 && now.Sub(exit) < cd {
				continue
			}
		}
		d.active[k] = hit
		out = append(out, TriggerEvent{
			Type:        TriggerEnter,
			Detector:    k.detector,
			Trigger:     k.trigger,
			DetectorRef: hit.detectorRef,
			TriggerRef:  hit.triggerRef,
			Tag:         hit.tag,
		})
	}
	// Exits: overlapping before, gone now.
	for k, hit := range d.active {
		if _, still := d.current[k]; still {
			continue
		}
		delete(d.active, k)
		d.lastExit[k] = now
		out = append(out, TriggerEvent{
			Type:        TriggerExit,
			Detector:    k.detector,
			Trigger:     k.trigger,
			DetectorRef: hit.detectorRef,
			TriggerRef:  hit.triggerRef,
			Tag:         hit.tag,
		})
	}
	return out
}

// detectDirect issues one region query per detector.
func (d *TriggerDetector) detectDirect(proxies []bodyProxy, detectors []int, statics *StaticBodyStore) {
	for _, di := range detectors {
		det := &proxies[di]
		d.scratch = statics.QueryCandidates(det.bounds, d.scratch[:0])
		for _, si := range d.scratch {
			sb, ok := statics.Get(si)
			if !ok || !sb.IsTrigger || sb.TriggerType != TriggerEventOnly {
				continue
			}
			d.recordStaticHit(det, si, sb, statics)
		}
		// Movable event-only triggers are scanned directly; there are
		// normally far fewer of them than statics.
		for ti := range proxies {
			d.tryMovableHit(proxies, di, ti)
		}
	}
}

// detectSweep merges detectors and trigger volumes into one sorted interval
// list and sweeps it once.
func (d *TriggerDetector) detectSweep(proxies []bodyProxy, detectors []int, statics *StaticBodyStore) {
	d.entries = d.entries[:0]
	for _, di := range detectors {
		d.entries = append(d.entries, triggerEntry{
			bounds:     proxies[di].bounds,
			isDetector: true,
			proxy:      di,
			static:     -1,
		})
	}
	for ti := range proxies {
		p := &proxies[ti]
		if !p.isTrigger || p.triggerType != TriggerEventOnly {
			continue
		}
		d.entries = append(d.entries, triggerEntry{bounds: p.bounds, proxy: ti, static: -1})
	}
	statics.EachLive(func(si int, sb StaticBody, bounds AABB) {
		if !sb.IsTrigger || sb.TriggerType != TriggerEventOnly {
			return
		}
		d.entries = append(d.entries, triggerEntry{bounds: bounds, proxy: -1, static: si})
	})

	sort.Slice(d.entries, func(a, b int) bool {
		return d.entries[a].bounds.Left() < d.entries[b].bounds.Left()
	})
	for i := range d.entries {
		ei := &d.entries[i]
		end := ei.bounds.Right()
		for j := i + 1; j < len(d.entries); j++ {
			ej := &d.entries[j]
			if ej.bounds.Left() > end {
				break
			}
			if ei.isDetector == ej.isDetector {
				continue
			}
			det, trig := ei, ej
			if !det.isDetector {
				det, trig = ej, ei
			}
			if trig.static >= 0 {
				sb, ok := statics.Get(trig.static)
				if !ok {
					continue
				}
				d.recordStaticHit(&proxies[det.proxy], trig.static, sb, statics)
			} else {
				d.tryMovableHit(proxies, det.proxy, trig.proxy)
			}
		}
	}
}

func (d *TriggerDetector) recordStaticHit(det *bodyProxy, staticIdx int, sb StaticBody, statics *StaticBodyStore) {
	if !layersCompatible(det.layer, det.mask, sb.Layer, sb.CollidesWith) {
		return
	}
	bounds, ok := statics.Bounds(staticIdx)
	if !ok || !det.bounds.Intersects(bounds) {
		return
	}
	key := triggerPairKey{detector: det.id, trigger: sb.ID}
	d.current[key] = triggerHit{
		detectorRef: BodyRef{Kind: RefMovable, Index: det.movableIndex},
		triggerRef:  BodyRef{Kind: RefStatic, Index: staticIdx},
		tag:         sb.TriggerTag,
	}
}

func (d *TriggerDetector) tryMovableHit(proxies []bodyProxy, detProxy, trigProxy int) {
	if detProxy == trigProxy {
		return
	}
	det := &proxies[detProxy]
	trig := &proxies[trigProxy]
	if !trig.isTrigger || trig.triggerType != TriggerEventOnly {
		return
	}
	if !layersCompatible(det.layer, det.mask, trig.layer, trig.mask) {
		return
	}
	if !det.bounds.Intersects(trig.bounds) {
		return
	}
	key := triggerPairKey{detector: det.id, trigger: trig.id}
	d.current[key] = triggerHit{
		detectorRef: BodyRef{Kind: RefMovable, Index: det.movableIndex},
		triggerRef:  BodyRef{Kind: RefMovable, Index: trig.movableIndex},
		tag:         trig.triggerTag,
	}
}
