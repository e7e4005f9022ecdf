package tessera

import (
	"sort"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

func detectorProxy(i int, id BodyID, x, y float32) bodyProxy {
	return bodyProxy{
		id:             id,
		movableIndex:   i,
		bounds:         NewAABB(x, y, 8, 8),
		layer:          LayerPlayer,
		mask:           LayerAll,
		detectTriggers: true,
	}
}

func triggerVolume(id BodyID, x, y float32, tag TriggerTag) StaticBody {
	return StaticBody{
		ID:           id,
		Center:       mgl32.Vec2{x, y},
		HalfExtent:   mgl32.Vec2{20, 20},
		Layer:        LayerTrigger,
		CollidesWith: LayerAll,
		IsTrigger:    true,
		TriggerTag:   tag,
		TriggerType:  TriggerEventOnly,
	}
}

func TestTriggerDetector_EnterAndExit(t *testing.T) {
	cfg := DefaultConfig()
	statics := NewStaticBodyStore(cfg)
	statics.Add(triggerVolume(100, 0, 0, TagWater))
	det := NewTriggerDetector(cfg)
	now := time.Unix(0, 0)

	inside := []bodyProxy{detectorProxy(0, 1, 5, 5)}
	events := det.Detect(inside, []int{0}, statics, now, nil)
	if len(events) != 1 || events[0].Type != TriggerEnter {
		t.Fatalf("Expected one Enter, got %v", events)
	}
	if events[0].Detector != 1 || events[0].Trigger != 100 || events[0].Tag != TagWater {
		t.Errorf("Wrong event payload: %+v", events[0])
	}
	if events[0].TriggerRef.Kind != RefStatic {
		t.Errorf("Trigger ref should be static, got %v", events[0].TriggerRef.Kind)
	}

	// Staying inside emits nothing.
	events = det.Detect(inside, []int{0}, statics, now.Add(time.Second), nil)
	if len(events) != 0 {
		t.Errorf("Dwell produced events: %v", events)
	}

	outside := []bodyProxy{detectorProxy(0, 1, 500, 500)}
	events = det.Detect(outside, []int{0}, statics, now.Add(2*time.Second), nil)
	if len(events) != 1 || events[0].Type != TriggerExit {
		t.Fatalf("Expected one Exit, got %v", events)
	}
}

func TestTriggerDetector_CooldownSuppressesReentry(t *testing.T) {
	cfg := DefaultConfig()
	statics := NewStaticBodyStore(cfg)
	statics.Add(triggerVolume(100, 0, 0, TagPortal))
	det := NewTriggerDetector(cfg)
	det.SetCooldown(100, 5*time.Second)
	now := time.Unix(100, 0)

	inside := []bodyProxy{detectorProxy(0, 1, 0, 0)}
	outside := []bodyProxy{detectorProxy(0, 1, 500, 500)}

	det.Detect(inside, []int{0}, statics, now, nil)
	det.Detect(outside, []int{0}, statics, now.Add(time.Second), nil)

	// Back inside within the cooldown window: no Enter.
	events := det.Detect(inside, []int{0}, statics, now.Add(2*time.Second), nil)
	if len(events) != 0 {
		t.Fatalf("Cooldown violated: %v", events)
	}

	// Leave again, then return after the window.
	det.Detect(outside, []int{0}, statics, now.Add(3*time.Second), nil)
	events = det.Detect(inside, []int{0}, statics, now.Add(20*time.Second), nil)
	if len(events) != 1 || events[0].Type != TriggerEnter {
		t.Fatalf("Expected Enter after cooldown, got %v", events)
	}
}

func TestTriggerDetector_SweepMatchesDirect(t *testing.T) {
	cfg := DefaultConfig()
	statics := NewStaticBodyStore(cfg)
	for i := 0; i < 6; i++ {
		statics.Add(triggerVolume(BodyID(100+i), float32(i*60), 0, TagDamage))
	}

	// More detectors than the crossover so Detect takes the sweep path,
	// and a twin setup below it for the direct path.
	buildProxies := func() ([]bodyProxy, []int) {
		var proxies []bodyProxy
		var detectors []int
		for i := 0; i < 12; i++ {
			proxies = append(proxies, detectorProxy(i, BodyID(i+1), float32(i*30), 0))
			detectors = append(detectors, i)
		}
		return proxies, detectors
	}

	proxies, detectors := buildProxies()
	if len(detectors) < cfg.TriggerSweepThreshold {
		t.Fatalf("Test setup must exceed the sweep threshold")
	}
	sweepDet := NewTriggerDetector(cfg)
	sweepEvents := sweepDet.Detect(proxies, detectors, statics, time.Unix(0, 0), nil)

	directCfg := DefaultConfig()
	directCfg.TriggerSweepThreshold = 1000
	directDet := NewTriggerDetector(directCfg)
	directEvents := directDet.Detect(proxies, detectors, statics, time.Unix(0, 0), nil)

	key := func(e TriggerEvent) [3]uint64 {
		return [3]uint64{uint64(e.Type), uint64(e.Detector), uint64(e.Trigger)}
	}
	a := make([][3]uint64, 0, len(sweepEvents))
	for _, e := range sweepEvents {
		a = append(a, key(e))
	}
	b := make([][3]uint64, 0, len(directEvents))
	for _, e := range directEvents {
		b = append(b, key(e))
	}
	less := func(s [][3]uint64) func(i, j int) bool {
		return func(i, j int) bool {
			if s[i][0] != s[j][0] {
				return s[i][0] < s[j][0]
			}
			if s[i][1] != s[j][1] {
				return s[i][1] < s[j][1]
			}
			return s[i][2] < s[j][2]
		}
	}
	sort.Slice(a, less(a))
	sort.Slice(b, less(b))
	if len(a) != len(b) {
		t.Fatalf("Sweep found %d events, direct found %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("Event %d differs: %v vs %v", i, a[i], b[i])
		}
	}
	if len(a) == 0 {
		t.Errorf("Setup should produce at least one overlap")
	}
}

func TestTriggerDetector_ForgetBody(t *testing.T) {
	cfg := DefaultConfig()
	statics := NewStaticBodyStore(cfg)
	statics.Add(triggerVolume(100, 0, 0, TagCheckpoint))
	det := NewTriggerDetector(cfg)

	inside := []bodyProxy{detectorProxy(0, 1, 0, 0)}
	det.Detect(inside, []int{0}, statics, time.Unix(0, 0), nil)

	// Body removed mid-session: no Exit should fire for it afterwards.
	det.ForgetBody(1)
	events := det.Detect(nil, nil, statics, time.Unix(1, 0), nil)
	if len(events) != 0 {
		t.Errorf("Forgotten body still produced events: %v", events)
	}
}

func TestTriggerDetector_MovableTriggerVolume(t *testing.T) {
	cfg := DefaultConfig()
	statics := NewStaticBodyStore(cfg)
	det := NewTriggerDetector(cfg)

	proxies := []bodyProxy{
		detectorProxy(0, 1, 0, 0),
		{
			id:           2,
			movableIndex: 1,
			bounds:       NewAABB(4, 4, 10, 10),
			layer:        LayerTrigger,
			mask:         LayerAll,
			isTrigger:    true,
			triggerType:  TriggerEventOnly,
			triggerTag:   TagCustom,
		},
	}
	events := det.Detect(proxies, []int{0}, statics, time.Unix(0, 0), nil)
	if len(events) != 1 || events[0].Type != TriggerEnter {
		t.Fatalf("Expected Enter against movable trigger, got %v", events)
	}
	if events[0].TriggerRef.Kind != RefMovable || events[0].TriggerRef.Index != 1 {
		t.Errorf("Wrong trigger ref: %+v", events[0].TriggerRef)
	}
	if events[0].Tag != TagCustom {
		t.Errorf("Wrong tag: %v", events[0].Tag)
	}
}
