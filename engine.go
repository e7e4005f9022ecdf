package tessera

import (
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// Engine wires the collision core together: it constructs and owns the
// logger, the shared worker pool, the budget scheduler, the reference entity
// store, and the collision world, and passes them to each other explicitly.
// There is no package-level state; two engines in one process are fully
// independent.
type Engine struct {
	cfg      *Config
	log      Logger
	pool     *WorkerPool
	budget   *WorkerBudget
	entities *EntityStore
	world    *CollisionWorld

	shutdownOnce sync.Once
}

// NewEngine builds a ready engine from a validated config. A nil logger
// gets the default logger with the config's debug flag.
func NewEngine(cfg *Config, log Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if log == nil {
		log = NewDefaultLogger("tessera", cfg.Debug)
	}
	pool := NewWorkerPool(cfg.Workers)
	budget := NewWorkerBudget(pool.Workers(), cfg)
	entities := NewEntityStore()
	world := NewCollisionWorld(cfg, log, entities, pool, budget)
	log.Infof("engine up: %d workers", pool.Workers())
	return &Engine{
		cfg:      cfg,
		log:      log,
		pool:     pool,
		budget:   budget,
		entities: entities,
		world:    world,
	}, nil
}

func (e *Engine) World() *CollisionWorld { return e.world }
func (e *Engine) Entities() *EntityStore { return e.entities }
func (e *Engine) Budget() *WorkerBudget  { return e.budget }
func (e *Engine) Pool() *WorkerPool      { return e.pool }
func (e *Engine) Log() Logger            { return e.log }

// SpawnBody creates an entity in the store and queues a matching movable
// body, returning both handles.
func (e *Engine) SpawnBody(position, halfExtent mgl32.Vec2, bodyType BodyType, layer, collidesWith Layer) (BodyID, EntityHandle) {
	h := e.entities.CreateEntity(position, halfExtent, layer, collidesWith)
	id := e.world.AddBody(CollisionBody{
		Entity:       h,
		Type:         bodyType,
		Layer:        layer,
		CollidesWith: collidesWith,
		Enabled:      true,
	})
	return id, h
}

// DespawnBody removes both the movable body and its entity.
func (e *Engine) DespawnBody(id BodyID, h EntityHandle) {
	e.world.RemoveBody(id)
	e.entities.DestroyEntity(h)
}

// Step runs one simulation tick.
func (e *Engine) Step(dt float32) ([]CollisionRecord, []TriggerEvent) {
	return e.world.Update(dt)
}

// UpdateSimulationTiers reassigns entity tiers around a reference point.
func (e *Engine) UpdateSimulationTiers(ref mgl32.Vec2, activeRadius, backgroundRadius float32) {
	e.entities.UpdateSimulationTiers(ref, activeRadius, backgroundRadius)
}

// PrepareForStateTransition clears the collision world's derived state and
// then the entity store, in that order, so no cached index outlives the data
// it points into.
func (e *Engine) PrepareForStateTransition() {
	e.world.PrepareForStateTransition()
	e.entities.PrepareForStateTransition()
	e.log.Infof("state transition complete")
}

// Shutdown stops the worker pool. Idempotent.
func (e *Engine) Shutdown() {
	e.shutdownOnce.Do(func() {
		e.pool.Close()
		e.log.Infof("engine down")
	})
}
