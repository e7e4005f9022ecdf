package tessera

import (
	"time"
)

// SystemID identifies a subsystem sharing the worker budget. Each system
// learns its own throughput state.
type SystemID uint8

const (
	SystemCollision SystemID = iota
	SystemAI
	SystemParticle
	SystemEvent
	SystemPathfinding
	systemCount
)

func (s SystemID) String() string {
	switch s {
	case SystemCollision:
		return "Collision"
	case SystemAI:
		return "AI"
	case SystemParticle:
		return "Particle"
	case SystemEvent:
		return "Event"
	case SystemPathfinding:
		return "Pathfinding"
	}
	return "Unknown"
}

type ThreadingMode uint8

const (
	// ModeForcedSingle is chosen below the minimum workload regardless of
	// learned throughput.
	ModeForcedSingle ThreadingMode = iota
	ModeSingle
	ModeMulti
)

func (m ThreadingMode) String() string {
	switch m {
	case ModeForcedSingle:
		return "ForcedSingle"
	case ModeSingle:
		return "Single"
	case ModeMulti:
		return "Multi"
	}
	return "Unknown"
}

// BatchStrategy is one frame's threading decision for one system.
type BatchStrategy struct {
	Mode       ThreadingMode
	BatchCount int
	BatchSize  int
}

// systemBudget is the learned state for one system. Throughput estimates are
// exponentially smoothed items-per-second, one per mode. The batch
// multiplier hill-climbs: keep nudging in the current direction while
// throughput improves, reverse when it degrades.
type systemBudget struct {
	mode ThreadingMode

	singleTput float64
	multiTput  float64

	multiplier float64
	direction  float64
	lastTput   float64
	reports    int

	decisions int
}

// WorkerBudget decides, per system and per frame, whether work runs on the
// calling goroutine or is fanned out, and how many batches to cut. State is
// plain numbers updated by arithmetic; no goroutines of its own. Not
// goroutine-safe: one owner calls Decide and ReportExecution.
type WorkerBudget struct {
	workers        int
	minWorkload    int
	hysteresis     float64
	smoothing      float64
	step           float64
	minMult        float64
	maxMult        float64
	probePeriod    int
	adjustInterval int

	systems [systemCount]systemBudget
}

func NewWorkerBudget(workers int, cfg *Config) *WorkerBudget {
	if workers < 1 {
		workers = 1
	}
	b := &WorkerBudget{
		workers:        workers,
		minWorkload:    cfg.MinWorkload,
		hysteresis:     cfg.HysteresisRatio,
		smoothing:      cfg.ThroughputSmoothing,
		step:           cfg.MultiplierStep,
		minMult:        cfg.BatchMultiplierMin,
		maxMult:        cfg.BatchMultiplierMax,
		probePeriod:    cfg.ProbePeriod,
		adjustInterval: cfg.AdjustInterval,
	}
	for i := range b.systems {
		b.systems[i] = systemBudget{
			mode:       ModeSingle,
			multiplier: 1.0,
			direction:  1.0,
		}
	}
	return b
}

// Decide returns the threading strategy for a workload of n items.
func (b *WorkerBudget) Decide(system SystemID, n int) BatchStrategy {
	s := &b.systems[system]
	if n < b.minWorkload || b.workers < 2 {
		return BatchStrategy{Mode: ModeForcedSingle, BatchCount: 1, BatchSize: n}
	}
	s.decisions++

	mode := s.mode
	switch {
	case s.multiTput == 0:
		// Never sampled multi at this scale; try it.
		mode = ModeMulti
	case s.singleTput == 0:
		mode = ModeSingle
	case s.mode == ModeSingle && s.multiTput > s.singleTput*b.hysteresis:
		mode = ModeMulti
	case s.mode == ModeMulti && s.singleTput > s.multiTput*b.hysteresis:
		mode = ModeSingle
	default:
		// Periodically run the other mode once so its estimate stays
		// current; a stale estimate can never win the comparison above.
		if b.probePeriod > 0 && s.decisions%b.probePeriod == 0 {
			if s.mode == ModeSingle {
				mode = ModeMulti
			} else {
				mode = ModeSingle
			}
		}
	}
	s.mode = mode

	if mode != ModeMulti {
		return BatchStrategy{Mode: mode, BatchCount: 1, BatchSize: n}
	}
	size := int(float64(n) / float64(b.workers) * s.multiplier)
	if size < 1 {
		size = 1
	}
	count := (n + size - 1) / size
	if max := b.workers * 2; count > max {
		count = max
		size = (n + count - 1) / count
	}
	return BatchStrategy{Mode: ModeMulti, BatchCount: count, BatchSize: size}
}

// ReportExecution feeds back one measured run: how many items were
// processed, in which mode, and how long it took.
func (b *WorkerBudget) ReportExecution(system SystemID, mode ThreadingMode, items int, elapsed time.Duration) {
	if items <= 0 || elapsed <= 0 {
		return
	}
	s := &b.systems[system]
	tput := float64(items) / elapsed.Seconds()

	switch mode {
	case ModeMulti:
		s.multiTput = smooth(s.multiTput, tput, b.smoothing)
		s.reports++
		if b.adjustInterval > 0 && s.reports%b.adjustInterval == 0 {
			if s.lastTput > 0 && s.multiTput < s.lastTput {
				s.direction = -s.direction
			}
			s.multiplier = clamp64(s.multiplier+s.direction*b.step, b.minMult, b.maxMult)
			s.lastTput = s.multiTput
		}
	default:
		s.singleTput = smooth(s.singleTput, tput, b.smoothing)
	}
}

// Mode reports the system's current threading mode.
func (b *WorkerBudget) Mode(system SystemID) ThreadingMode {
	return b.systems[system].mode
}

// Multiplier reports the system's current batch multiplier.
func (b *WorkerBudget) Multiplier(system SystemID) float64 {
	return b.systems[system].multiplier
}

// Throughput reports the smoothed estimates (single, multi) in items/sec.
func (b *WorkerBudget) Throughput(system SystemID) (float64, float64) {
	s := &b.systems[system]
	return s.singleTput, s.multiTput
}

func smooth(est, sample, alpha float64) float64 {
	if est == 0 {
		return sample
	}
	return est*(1-alpha) + sample*alpha
}

func clamp64(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
