// Package simulation runs the agents of a world tick after tick. A tick moves
// the agents, synchronizes the spatial index and then lets modules query the
// index concurrently.
package simulation

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/aukilabs/crowdnav/geometry"
	"github.com/aukilabs/crowdnav/models"
	"github.com/aukilabs/crowdnav/modules"
	"github.com/aukilabs/crowdnav/spatial"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	ErrTypeInvalidAgent = "invalid_agent"
	ErrTypeMaintenance  = "maintenance_failed"
	ErrTypeModule       = "module_failed"

	// The distance under which an agent reached its destination.
	arrivalDistance = 0.05
)

type Config struct {
	// The duration between two ticks started by StartDispatchFrames.
	FrameDuration time.Duration

	// When set, agents reaching their destination get a new random one within
	// [0, Extent] on the horizontal plane.
	Wander bool
	Extent float64
	Seed   int64
}

// Frame summarizes a tick.
type Frame struct {
	Number        uint64            `json:"number"`
	Time          time.Time         `json:"time"`
	Delta         time.Duration     `json:"delta"`
	Agents        int               `json:"agents"`
	Sync          spatial.SyncStats `json:"sync"`
	Index         spatial.Stats     `json:"index"`
	QueryDuration time.Duration     `json:"query_duration"`
	Duration      time.Duration     `json:"duration"`
}

type commandType int

const (
	addAgent commandType = iota
	removeAgent
	setDestination
)

type command struct {
	typ         commandType
	agent       models.Agent
	id          models.EntityID
	destination r3.Vector
}

// World owns a population of agents, the spatial index that tracks them and
// the modules consuming the index.
//
// Agent changes are queued and applied at the beginning of the next tick so
// that the index is only mutated during the maintenance phase.
type World struct {
	ID string

	conf    Config
	index   spatial.Index
	modules []modules.Module
	rnd     *rand.Rand

	tickMutex   sync.Mutex
	mutex       sync.RWMutex
	agents      []models.Agent
	agentSlots  map[models.EntityID]int
	frameNumber uint64

	entityIDs    models.SequentialIDGenerator[models.EntityID]
	pendingMutex sync.Mutex
	pending      []command

	startFrameOnce  sync.Once
	closeFrameChan  chan struct{}
	frameTicker     *time.Ticker
	frameHandlerIDs models.SequentialIDGenerator[uint32]
	frameHandlers   map[uint32]func(Frame)
	frameMutex      sync.RWMutex
	lastFrame       Frame

	closeOnce sync.Once
}

// NewWorld returns a world that indexes its agents with the given index. The
// world takes ownership of the index.
func NewWorld(conf Config, index spatial.Index, mods ...modules.Module) *World {
	if conf.FrameDuration <= 0 {
		conf.FrameDuration = time.Second / 30
	}

	return &World{
		ID:             uuid.New().String(),
		conf:           conf,
		index:          index,
		modules:        mods,
		rnd:            rand.New(rand.NewSource(conf.Seed)),
		agentSlots:     make(map[models.EntityID]int),
		closeFrameChan: make(chan struct{}, 1),
		frameTicker:    time.NewTicker(conf.FrameDuration),
		frameHandlers:  make(map[uint32]func(Frame)),
	}
}

// AddAgent queues the addition of an agent and returns its id. The agent ID
// field is ignored.
func (w *World) AddAgent(a models.Agent) (models.EntityID, error) {
	if err := validateAgent(a); err != nil {
		return 0, err
	}

	a.ID = w.entityIDs.New()
	w.enqueue(command{typ: addAgent, agent: a})
	return a.ID, nil
}

// RemoveAgent queues the removal of an agent.
func (w *World) RemoveAgent(id models.EntityID) {
	w.enqueue(command{typ: removeAgent, id: id})
}

// SetDestination queues a destination change.
func (w *World) SetDestination(id models.EntityID, destination r3.Vector) {
	w.enqueue(command{typ: setDestination, id: id, destination: destination})
}

func (w *World) enqueue(c command) {
	w.pendingMutex.Lock()
	defer w.pendingMutex.Unlock()

	w.pending = append(w.pending, c)
}

func validateAgent(a models.Agent) error {
	p := a.Transform.Position
	for _, v := range []float64{p.X, p.Y, p.Z, a.Shape.Radius, a.Shape.Height, a.Body.Speed} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("agent has a non finite value").
				WithType(ErrTypeInvalidAgent).
				WithTag("position", p)
		}
	}

	if a.Shape.Radius <= 0 || a.Shape.Height < 0 || a.Body.Speed < 0 {
		return errors.New("agent has a negative size or speed").
			WithType(ErrTypeInvalidAgent).
			WithTag("radius", a.Shape.Radius).
			WithTag("height", a.Shape.Height).
			WithTag("speed", a.Body.Speed)
	}
	return nil
}

// Agent returns the agent with the given id as of the last tick.
func (w *World) Agent(id models.EntityID) (models.Agent, bool) {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	slot, ok := w.agentSlots[id]
	if !ok {
		return models.Agent{}, false
	}
	return w.agents[slot], true
}

// Agents returns a copy of the agents as of the last tick.
func (w *World) Agents() []models.Agent {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	agents := make([]models.Agent, len(w.agents))
	copy(agents, w.agents)
	return agents
}

func (w *World) AgentCount() int {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	return len(w.agents)
}

// View gives read access to the index. It waits for the maintenance phase of a
// running tick to complete.
func (w *World) View(fn func(spatial.Querier)) {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	fn(w.index)
}

// Select returns the agent crossed by the segment that is the closest to
// from.
func (w *World) Select(from, to r3.Vector, layers models.NavigationLayers) (spatial.Entry, bool) {
	var selected spatial.Entry
	found := false
	distance := math.Inf(1)

	w.View(func(q spatial.Querier) {
		q.QueryLine(from, to, layers, func(e spatial.Entry) bool {
			d := e.Shape.Bounds(e.Transform.Position).DistanceToPoint(from)
			if d < distance || (d == distance && e.Entity < selected.Entity) {
				selected = e
				distance = d
				found = true
			}
			return true
		})
	})
	return selected, found
}

// IndexStats returns the index health.
func (w *World) IndexStats() spatial.Stats {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	return w.index.Stats()
}

// LastFrame returns the summary of the last completed tick.
func (w *World) LastFrame() Frame {
	w.frameMutex.RLock()
	defer w.frameMutex.RUnlock()

	return w.lastFrame
}

// Tick advances the world by dt. The maintenance phase moves the agents and
// synchronizes the index under an exclusive lock. The query phase then runs
// the modules concurrently with read access only.
func (w *World) Tick(ctx context.Context, dt time.Duration) (Frame, error) {
	w.tickMutex.Lock()
	defer w.tickMutex.Unlock()

	start := time.Now()
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	w.mutex.Lock()
	w.applyPending()
	w.move(dt)
	movedAt := time.Now()
	instrumentPhase("movement", movedAt.Sub(start))

	syncStats, err := w.index.Sync(w.agents)
	if err != nil {
		w.mutex.Unlock()
		err = errors.New("synchronizing agents failed").
			WithType(ErrTypeMaintenance).
			WithTag("world_id", w.ID).
			Wrap(err)
		instrumentTickError(err)
		return Frame{}, err
	}
	w.frameNumber++
	frame := Frame{
		Number: w.frameNumber,
		Time:   start,
		Delta:  dt,
		Agents: len(w.agents),
		Sync:   syncStats,
	}
	instrumentPhase("maintenance", time.Since(movedAt))
	w.mutex.Unlock()

	// Only ticks take the write lock and ticks are serialized, so the agents
	// and the index stay as synchronized above until the query phase ends.
	if err := ctx.Err(); err != nil {
		return frame, err
	}

	w.mutex.RLock()
	queryStart := time.Now()
	err = w.runModules(ctx, modules.Tick{
		Frame:  frame.Number,
		Delta:  dt,
		Agents: w.agents,
		Index:  w.index,
	})
	frame.QueryDuration = time.Since(queryStart)
	frame.Index = w.index.Stats()
	w.mutex.RUnlock()
	instrumentPhase("query", frame.QueryDuration)

	if err != nil {
		instrumentTickError(err)
		return frame, err
	}

	frame.Duration = time.Since(start)
	instrumentFrame(frame)
	w.dispatchFrame(frame)
	return frame, nil
}

func (w *World) applyPending() {
	w.pendingMutex.Lock()
	pending := w.pending
	w.pending = nil
	w.pendingMutex.Unlock()

	for _, c := range pending {
		switch c.typ {
		case addAgent:
			w.agentSlots[c.agent.ID] = len(w.agents)
			w.agents = append(w.agents, c.agent)

		case removeAgent:
			slot, ok := w.agentSlots[c.id]
			if !ok {
				continue
			}

			last := len(w.agents) - 1
			w.agents[slot] = w.agents[last]
			w.agentSlots[w.agents[slot].ID] = slot
			w.agents = w.agents[:last]
			delete(w.agentSlots, c.id)
			w.entityIDs.Reuse(c.id)

		case setDestination:
			if slot, ok := w.agentSlots[c.id]; ok {
				w.agents[slot].Body.Destination = c.destination
				w.agents[slot].Body.IsStopped = false
			}
		}
	}
}

// move integrates agent velocities toward their destination, adding the
// steering computed by modules during the previous tick.
func (w *World) move(dt time.Duration) {
	seconds := dt.Seconds()

	for i := range w.agents {
		a := &w.agents[i]
		if a.Body.IsStopped {
			continue
		}

		toDestination := geometry.Planar(a.Body.Destination.Sub(a.Transform.Position))
		distance := toDestination.Norm()
		if distance <= arrivalDistance {
			a.Body.Velocity = r3.Vector{}
			if w.conf.Wander {
				a.Body.Destination = w.randomPosition()
			}
			continue
		}

		desired := toDestination.Mul(a.Body.Speed / distance)
		for _, m := range w.modules {
			if s, ok := m.(modules.Steerer); ok {
				desired = desired.Add(s.Steering(a.ID))
			}
		}

		velocity := geometry.ClampLength(geometry.Planar(desired), a.Body.Speed)
		step := geometry.ClampLength(velocity.Mul(seconds), distance)

		a.Body.Velocity = velocity
		a.Transform.Position = a.Transform.Position.Add(step)
		if velocity.Norm2() > 0 {
			a.Transform.Rotation = math.Atan2(velocity.X, velocity.Z)
		}
	}
}

func (w *World) randomPosition() r3.Vector {
	return r3.Vector{
		X: w.rnd.Float64() * w.conf.Extent,
		Z: w.rnd.Float64() * w.conf.Extent,
	}
}

func (w *World) runModules(ctx context.Context, tick modules.Tick) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, m := range w.modules {
		m := m
		g.Go(func() error {
			start := time.Now()
			defer func() {
				instrumentModule(m.Name(), time.Since(start))
			}()

			if err := m.HandleTick(ctx, tick); err != nil {
				return errors.New("module tick failed").
					WithType(ErrTypeModule).
					WithTag("module", m.Name()).
					WithTag("frame", tick.Frame).
					Wrap(err)
			}
			return nil
		})
	}

	return g.Wait()
}

// HandleFrame registers a handler called with the summary of every completed
// tick. Handlers must not block.
func (w *World) HandleFrame(h func(Frame)) (cancel func()) {
	w.frameMutex.Lock()
	defer w.frameMutex.Unlock()

	id := w.frameHandlerIDs.New()
	w.frameHandlers[id] = h

	return func() {
		w.frameMutex.Lock()
		defer w.frameMutex.Unlock()

		delete(w.frameHandlers, id)
		w.frameHandlerIDs.Reuse(id)
	}
}

func (w *World) dispatchFrame(f Frame) {
	w.frameMutex.Lock()
	w.lastFrame = f
	w.frameMutex.Unlock()

	w.frameMutex.RLock()
	defer w.frameMutex.RUnlock()

	for _, h := range w.frameHandlers {
		h(f)
	}
}

// StartDispatchFrames ticks the world every frame duration until the context
// is canceled or the world is closed.
func (w *World) StartDispatchFrames(ctx context.Context) {
	w.startFrameOnce.Do(func() {
		logs.WithTag("world_id", w.ID).
			WithTag("frame_duration", w.conf.FrameDuration).
			Info("starting world")
		defer logs.WithTag("world_id", w.ID).Info("world stopped")

		for {
			select {
			case <-ctx.Done():
				return

			case <-w.closeFrameChan:
				return

			case <-w.frameTicker.C:
				if _, err := w.Tick(ctx, w.conf.FrameDuration); err != nil {
					if ctx.Err() != nil {
						return
					}
					logs.WithTag("world_id", w.ID).Error(err)
				}
			}
		}
	})
}

// Close stops dispatching frames and releases the index.
func (w *World) Close() {
	w.closeOnce.Do(func() {
		w.frameTicker.Stop()
		w.closeFrameChan <- struct{}{}

		w.tickMutex.Lock()
		defer w.tickMutex.Unlock()
		w.index.Close()
	})
}
