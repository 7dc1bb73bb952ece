// Package stream reconciles the regions present in the scene with the
// declared agent state: regions are linked in on demand, shown or hidden
// through a collection-instance proxy, and unloaded when no longer listed.
package stream

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zeusync/regionstream/internal/core/events/bus"
	"github.com/zeusync/regionstream/internal/core/observability/log"
	"github.com/zeusync/regionstream/internal/scene"
	"github.com/zeusync/regionstream/internal/watch"
)

// Region events published on the bus.
const (
	EventRegionLoaded   = "region.loaded"
	EventRegionShown    = "region.shown"
	EventRegionHidden   = "region.hidden"
	EventRegionUnloaded = "region.unloaded"
	EventAgentMoved     = "agent.moved"
)

const eventSource = "stream"

// AgentMode selects how an agent position is applied to the scene.
type AgentMode uint8

const (
	// AgentFollow moves the agent object; regions stay at their authored positions.
	AgentFollow AgentMode = iota
	// AgentScroll pins the agent at the origin and shifts every proxy instead.
	AgentScroll
)

func ParseAgentMode(s string) (AgentMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "follow":
		return AgentFollow, nil
	case "scroll":
		return AgentScroll, nil
	default:
		return 0, fmt.Errorf("unknown agent mode %q", s)
	}
}

func (m AgentMode) String() string {
	if m == AgentScroll {
		return "scroll"
	}
	return "follow"
}

// Options tune the controller.
type Options struct {
	AgentMode AgentMode
	// AgentObject names the scene object standing for the agent.
	AgentObject string
	// FixedAltitude is the agent height used in scroll mode when z is absent.
	FixedAltitude float64
	// MetresPerUnit scales geodetic fixes into scene units.
	MetresPerUnit float64
}

func DefaultOptions() Options {
	return Options{
		AgentMode:     AgentFollow,
		AgentObject:   "UAV",
		FixedAltitude: 200,
		MetresPerUnit: 1,
	}
}

// State is the observable state of a region.
type State string

const (
	StateAbsent  State = "absent"
	StateLoaded  State = "loaded"
	StateHidden  State = "hidden"
	StateVisible State = "visible"
)

// RegionStatus is one row of Snapshot.
type RegionStatus struct {
	ID         string      `json:"id"`
	Collection string      `json:"collection"`
	State      State       `json:"state"`
	Proxy      string      `json:"proxy,omitempty"`
	Position   *scene.Vec3 `json:"position,omitempty"`
}

// RegionEvent is the payload of region.* events.
type RegionEvent struct {
	Region   string     `json:"region"`
	State    State      `json:"state"`
	Proxy    string     `json:"proxy,omitempty"`
	Position scene.Vec3 `json:"position"`
}

// AgentEvent is the payload of agent.moved.
type AgentEvent struct {
	Mode     string     `json:"mode"`
	Position scene.Vec3 `json:"position"`
}

// record is the controller's knowledge of one loaded region.
type record struct {
	collection scene.Collection
	proxy      scene.Object
}

// Controller owns the loaded-region records. All operations serialize on one mutex.
type Controller struct {
	mu sync.Mutex

	table   *Table
	host    scene.Host
	bus     bus.EventBus
	decoder *Decoder
	logger  log.Log
	options Options

	records map[string]*record
	pending []bus.Event

	offset     scene.Vec3
	haveOffset bool
}

func NewController(table *Table, host scene.Host, eventBus bus.EventBus, logger log.Log, options Options) (*Controller, error) {
	if table == nil {
		return nil, fmt.Errorf("%w: nil table", ErrInvalidTable)
	}
	if host == nil {
		return nil, errors.New("stream: nil scene host")
	}
	decoder, err := NewDecoder()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNop()
	}
	if options.AgentObject == "" {
		options.AgentObject = DefaultOptions().AgentObject
	}
	if options.MetresPerUnit <= 0 {
		options.MetresPerUnit = DefaultOptions().MetresPerUnit
	}
	return &Controller{
		table:   table,
		host:    host,
		bus:     eventBus,
		decoder: decoder,
		logger:  logger.With(log.String("component", "stream")),
		options: options,
		records: make(map[string]*record),
	}, nil
}

func (c *Controller) Table() *Table { return c.table }

func (c *Controller) Options() Options { return c.options }

// Load links the region's collection into the scene. Loading a loaded region is a no-op.
func (c *Controller) Load(id string) (scene.Collection, error) {
	c.mu.Lock()
	coll, err := c.loadLocked(NormalizeID(id))
	events := c.drainLocked()
	c.mu.Unlock()
	c.publish(events)
	return coll, err
}

// Materialize makes sure exactly one proxy instances the region and sets its visibility.
func (c *Controller) Materialize(id string, visible bool) (scene.Object, error) {
	c.mu.Lock()
	obj, err := c.materializeLocked(NormalizeID(id), visible)
	events := c.drainLocked()
	c.mu.Unlock()
	c.publish(events)
	return obj, err
}

// SetVisible sets both visibility flags of obj. A nil obj is ignored.
func (c *Controller) SetVisible(obj scene.Object, visible bool) {
	if obj == nil {
		return
	}
	obj.SetHideViewport(!visible)
	obj.SetHideRender(!visible)
}

// Unload removes the region's proxy and, when nothing else instances it, its collection.
// Unloading an unknown or unloaded region is a no-op.
func (c *Controller) Unload(id string) error {
	c.mu.Lock()
	err := c.unloadLocked(NormalizeID(id))
	events := c.drainLocked()
	c.mu.Unlock()
	c.publish(events)
	return err
}

// Apply reconciles the scene with one declaration. Per-region failures are
// logged and do not stop the remaining regions.
func (c *Controller) Apply(declared DeclaredState) {
	c.mu.Lock()
	c.applyLocked(declared)
	events := c.drainLocked()
	c.mu.Unlock()
	c.publish(events)
}

// ApplyAgent places the agent, or shifts the proxies in scroll mode.
func (c *Controller) ApplyAgent(pos AgentPosition) {
	c.mu.Lock()
	c.applyAgentLocked(pos)
	events := c.drainLocked()
	c.mu.Unlock()
	c.publish(events)
}

// HandleChange is the watch observer entry point.
func (c *Controller) HandleChange(change watch.Change) error {
	state, err := c.decoder.Decode(change.Raw, change.Value)
	if err != nil {
		return err
	}
	if state.Regions != nil {
		c.Apply(*state.Regions)
	}
	switch {
	case state.Agent != nil:
		c.ApplyAgent(*state.Agent)
	case state.Geodetic != nil:
		pos := state.Geodetic.Local(c.options.MetresPerUnit)
		c.logger.Debug("Geodetic fix converted",
			log.Float64("lat", state.Geodetic.Position.Lat),
			log.Float64("lon", state.Geodetic.Position.Lon),
			log.Float64("x", pos.X),
			log.Float64("y", pos.Y),
			log.Float64("z", pos.Z),
		)
		c.ApplyAgent(pos)
	}
	return nil
}

// Snapshot reports every table region in declaration order.
func (c *Controller) Snapshot() []RegionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]RegionStatus, 0, c.table.Len())
	for _, id := range c.table.IDs() {
		desc, _ := c.table.Get(id)
		status := RegionStatus{ID: id, Collection: desc.Collection, State: StateAbsent}
		if rec, ok := c.records[id]; ok {
			status.State = stateOf(rec)
			if rec.proxy != nil {
				loc := rec.proxy.Location()
				status.Proxy = rec.proxy.Name()
				status.Position = &loc
			}
		}
		out = append(out, status)
	}
	return out
}

func (c *Controller) loadLocked(id string) (scene.Collection, error) {
	desc, ok := c.table.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRegion, id)
	}
	if rec, ok := c.records[id]; ok {
		return rec.collection, nil
	}

	if err := c.host.Link(desc.Bundle, desc.Collection); err != nil {
		if errors.Is(err, scene.ErrBundleNotFound) || errors.Is(err, scene.ErrCollectionNotFound) {
			return nil, fmt.Errorf("%w: region %s: %w", ErrNotFound, id, err)
		}
		return nil, fmt.Errorf("%w: region %s: link: %w", ErrHost, id, err)
	}
	coll, ok := c.host.Collection(desc.Collection)
	if !ok {
		return nil, fmt.Errorf("%w: region %s: collection %q missing after link", ErrHost, id, desc.Collection)
	}

	c.records[id] = &record{collection: coll}
	c.logger.Info("Region loaded",
		log.String("region", id),
		log.String("bundle", desc.Bundle),
		log.String("collection", desc.Collection),
	)
	c.queue(EventRegionLoaded, RegionEvent{Region: id, State: StateLoaded})
	return coll, nil
}

func (c *Controller) materializeLocked(id string, visible bool) (scene.Object, error) {
	rec, ok := c.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotLoaded, id)
	}

	if obj := c.liveProxyLocked(rec); obj != nil {
		rec.proxy = obj
		c.setVisibleLocked(id, rec, visible)
		return obj, nil
	}

	name := InstanceName(id)
	if obj, ok := c.host.Object(name); ok && obj.InstanceCollection() == rec.collection {
		rec.proxy = obj
		c.setVisibleLocked(id, rec, visible)
		return obj, nil
	}

	obj, err := c.host.NewInstance(name, rec.collection)
	if err != nil {
		return nil, fmt.Errorf("%w: region %s: instance: %w", ErrHost, id, err)
	}
	rec.proxy = obj
	desc, _ := c.table.Get(id)
	obj.SetLocation(c.placementLocked(desc))
	c.SetVisible(obj, visible)
	c.logger.Debug("Proxy created", log.String("region", id), log.String("proxy", obj.Name()))
	c.queueRegion(id, rec)
	return obj, nil
}

// liveProxyLocked returns the record's proxy while the host still holds it under
// its own name and it still instances the record's collection.
func (c *Controller) liveProxyLocked(rec *record) scene.Object {
	if rec.proxy == nil {
		return nil
	}
	obj, ok := c.host.Object(rec.proxy.Name())
	if !ok || obj != rec.proxy || obj.InstanceCollection() != rec.collection {
		return nil
	}
	return obj
}

// setVisibleLocked applies visibility to the record's proxy and queues an event on change.
func (c *Controller) setVisibleLocked(id string, rec *record, visible bool) {
	if rec.proxy == nil {
		return
	}
	before := stateOf(rec)
	c.SetVisible(rec.proxy, visible)
	if stateOf(rec) != before {
		c.queueRegion(id, rec)
	}
}

func (c *Controller) unloadLocked(id string) error {
	rec, ok := c.records[id]
	if !ok {
		return nil
	}

	if rec.proxy != nil {
		if obj, ok := c.host.Object(rec.proxy.Name()); ok && obj == rec.proxy {
			if err := c.host.RemoveObject(obj); err != nil {
				return fmt.Errorf("%w: region %s: remove proxy: %w", ErrHost, id, err)
			}
		}
		rec.proxy = nil
	}

	if rec.collection != nil && rec.collection.Users() == 0 {
		if err := c.host.RemoveCollection(rec.collection); err != nil {
			return fmt.Errorf("%w: region %s: remove collection: %w", ErrHost, id, err)
		}
	}

	delete(c.records, id)
	c.logger.Info("Region unloaded", log.String("region", id))
	c.queue(EventRegionUnloaded, RegionEvent{Region: id, State: StateAbsent})
	return nil
}

func (c *Controller) applyLocked(declared DeclaredState) {
	logger := c.logger.With(log.String("cycle", uuid.NewString()))

	for _, r := range declared.Rejected {
		logger.Warn("Rejected region action",
			log.String("region", r.ID),
			log.String("value", r.Value),
			log.Error(r.Err),
		)
	}

	for _, t := range declared.Targets {
		if _, ok := c.table.Get(t.ID); !ok {
			logger.Warn("Unknown region, skipping", log.String("region", t.ID))
			continue
		}
		visible := t.Action.Visible()
		if rec, ok := c.records[t.ID]; ok && rec.proxy != nil {
			c.setVisibleLocked(t.ID, rec, visible)
			continue
		}
		if err := c.bringInLocked(t.ID, visible); err != nil {
			logger.Error("Failed to bring in region", log.String("region", t.ID), log.Error(err))
		}
	}

	switch {
	case declared.Legacy:
		for _, id := range c.table.IDs() {
			if declared.Listed(id) {
				continue
			}
			if rec, ok := c.records[id]; ok {
				c.setVisibleLocked(id, rec, false)
			}
		}
	case declared.RemoveUnlisted:
		for _, id := range c.table.IDs() {
			if declared.Listed(id) {
				continue
			}
			if err := c.unloadLocked(id); err != nil {
				logger.Error("Failed to unload region", log.String("region", id), log.Error(err))
			}
		}
	}
}

// bringInLocked loads and materializes a region and positions its proxy.
func (c *Controller) bringInLocked(id string, visible bool) error {
	if _, err := c.loadLocked(id); err != nil {
		return err
	}
	obj, err := c.materializeLocked(id, visible)
	if err != nil {
		return err
	}
	desc, _ := c.table.Get(id)
	obj.SetLocation(c.placementLocked(desc))
	return nil
}

// placementLocked is the authored position, shifted by the last agent offset in scroll mode.
func (c *Controller) placementLocked(desc Descriptor) scene.Vec3 {
	if c.options.AgentMode == AgentScroll && c.haveOffset {
		return desc.Position.Sub(c.offset)
	}
	return desc.Position
}

func (c *Controller) applyAgentLocked(pos AgentPosition) {
	if c.options.AgentMode == AgentFollow {
		at := scene.Vec3{X: pos.X, Y: pos.Y, Z: pos.Z}
		agent, ok := c.host.Object(c.options.AgentObject)
		if !ok {
			c.logger.Warn("Agent object not found", log.String("object", c.options.AgentObject))
			return
		}
		agent.SetLocation(at)
		c.queue(EventAgentMoved, AgentEvent{Mode: AgentFollow.String(), Position: at})
		return
	}

	z := c.options.FixedAltitude
	if pos.HasZ {
		z = pos.Z
	}
	pinned := scene.Vec3{Z: z}
	if agent, ok := c.host.Object(c.options.AgentObject); ok {
		agent.SetLocation(pinned)
	} else {
		c.logger.Debug("Agent object not found", log.String("object", c.options.AgentObject))
	}

	c.offset = scene.Vec3{X: pos.X, Y: pos.Y}
	c.haveOffset = true

	for _, id := range c.table.IDs() {
		rec, ok := c.records[id]
		if !ok || rec.proxy == nil {
			continue
		}
		desc, _ := c.table.Get(id)
		loc := rec.proxy.Location()
		loc.X = desc.Position.X - pos.X
		loc.Y = desc.Position.Y - pos.Y
		rec.proxy.SetLocation(loc)
	}
	c.logger.Debug("Map offset applied", log.Float64("x", pos.X), log.Float64("y", pos.Y), log.Float64("z", z))
	c.queue(EventAgentMoved, AgentEvent{Mode: AgentScroll.String(), Position: scene.Vec3{X: pos.X, Y: pos.Y, Z: z}})
}

func stateOf(rec *record) State {
	switch {
	case rec.proxy == nil:
		return StateLoaded
	case rec.proxy.HideViewport():
		return StateHidden
	default:
		return StateVisible
	}
}

func (c *Controller) queueRegion(id string, rec *record) {
	state := stateOf(rec)
	typ := EventRegionShown
	if state != StateVisible {
		typ = EventRegionHidden
	}
	ev := RegionEvent{Region: id, State: state}
	if rec.proxy != nil {
		ev.Proxy = rec.proxy.Name()
		ev.Position = rec.proxy.Location()
	}
	c.queue(typ, ev)
}

func (c *Controller) queue(typ string, data any) {
	if c.bus == nil {
		return
	}
	c.pending = append(c.pending, bus.NewEvent(typ, eventSource, data, map[string]any{"at": time.Now()}))
}

func (c *Controller) drainLocked() []bus.Event {
	events := c.pending
	c.pending = nil
	return events
}

// publish runs outside the controller lock so subscribers may call back in.
func (c *Controller) publish(events []bus.Event) {
	for _, e := range events {
		if err := c.bus.Publish(e); err != nil {
			c.logger.Warn("Region event subscriber failed", log.String("event", e.Type()), log.Error(err))
		}
	}
}
