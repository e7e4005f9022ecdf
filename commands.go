package tessera

import (
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

type commandKind uint8

const (
	cmdAddBody commandKind = iota
	cmdAddStatic
	cmdRemoveBody
	cmdUpdatePosition
	cmdKinematicBatch
	cmdResizeBody
	cmdSetEnabled
	cmdSetLayer
	cmdSetTrigger
	cmdSetTriggerCooldown
)

// command is one queued structural mutation. Fields beyond kind and id are
// populated per kind.
type command struct {
	kind commandKind
	id   BodyID

	body   CollisionBody
	static StaticBody

	position mgl32.Vec2
	half     mgl32.Vec2

	flag     bool
	layer    Layer
	mask     Layer
	cooldown time.Duration

	batch []KinematicUpdate
}

// commandQueue buffers structural mutations until the frame's single drain
// point. Pushes may come from any goroutine between frames; drain runs on
// the frame goroutine before broadphase, so command application is never
// concurrent with queries.
type commandQueue struct {
	mu      sync.Mutex
	pending []command
	apply   []command
}

func (q *commandQueue) push(c command) {
	q.mu.Lock()
	q.pending = append(q.pending, c)
	q.mu.Unlock()
}

// drain swaps out the pending buffer and returns it for application. The
// returned slice is reused on the next drain.
func (q *commandQueue) drain() []command {
	q.mu.Lock()
	q.apply, q.pending = q.pending, q.apply[:0]
	q.mu.Unlock()
	return q.apply
}

// reset discards everything queued without applying it.
func (q *commandQueue) reset() {
	q.mu.Lock()
	q.pending = q.pending[:0]
	q.mu.Unlock()
}

func (q *commandQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
