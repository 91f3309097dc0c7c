// Package scheduler evaluates time-of-day schedules on a minute-aligned tick
// and executes their actions against the registry and group coordinator.
package scheduler

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/veselov/unilight/internal/eventbus"
	"github.com/veselov/unilight/internal/light"
	"github.com/veselov/unilight/internal/store"
)

// stateWriter is the slice of the registry the engine needs.
type stateWriter interface {
	SetState(ctx context.Context, proto, id string, patch light.State) bool
	SetAll(ctx context.Context, on bool) bool
}

// groupWriter is the slice of the group coordinator the engine needs.
type groupWriter interface {
	SetGroupState(ctx context.Context, id string, patch light.State) bool
}

// Engine owns the schedule records and the background tick. Mutations persist
// first; the in-memory cache changes only after the write succeeds, so a
// persistence failure leaves the engine exactly as it was.
type Engine struct {
	mu        sync.RWMutex
	schedules map[string]Schedule

	store    *store.Store
	bus      *eventbus.Bus
	registry stateWriter
	groups   groupWriter

	// now is the clock; replaced in tests.
	now func() time.Time
}

// New creates a schedule engine. store and bus may be nil in tests.
func New(st *store.Store, bus *eventbus.Bus, registry stateWriter, groups groupWriter) *Engine {
	return &Engine{
		schedules: make(map[string]Schedule),
		store:     st,
		bus:       bus,
		registry:  registry,
		groups:    groups,
		now:       time.Now,
	}
}

// Load restores schedules from the store, skipping corrupt payloads.
func (e *Engine) Load() error {
	if e.store == nil {
		return nil
	}

	payloads, err := e.store.All(store.KindSchedule)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for id, payload := range payloads {
		var s Schedule
		if err := json.Unmarshal(payload, &s); err != nil {
			log.Warn().Err(err).Str("id", id).Msg("Skipping corrupt schedule record")
			continue
		}
		e.schedules[s.ID] = s
	}

	log.Info().Int("schedules", len(e.schedules)).Msg("Schedules loaded")
	return nil
}

// Create validates and stores a new schedule, generating an id when none is
// given. Returns the id and whether the schedule was created.
func (e *Engine) Create(s Schedule) (string, bool) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if err := s.Validate(); err != nil {
		log.Error().Err(err).Str("name", s.Name).Msg("Rejecting invalid schedule")
		return "", false
	}

	if !e.persist(s) {
		return "", false
	}

	e.mu.Lock()
	e.schedules[s.ID] = s
	e.mu.Unlock()

	log.Info().Str("schedule", s.ID).Str("name", s.Name).Str("time", s.Time).Msg("Schedule created")
	return s.ID, true
}

// Update replaces an existing schedule. The id must already be tracked.
func (e *Engine) Update(s Schedule) bool {
	if err := s.Validate(); err != nil {
		log.Error().Err(err).Str("schedule", s.ID).Msg("Rejecting invalid schedule update")
		return false
	}

	e.mu.RLock()
	_, ok := e.schedules[s.ID]
	e.mu.RUnlock()
	if !ok {
		log.Warn().Str("schedule", s.ID).Msg("Update: unknown schedule")
		return false
	}

	if !e.persist(s) {
		return false
	}

	e.mu.Lock()
	e.schedules[s.ID] = s
	e.mu.Unlock()
	return true
}

// Delete removes a schedule.
func (e *Engine) Delete(id string) bool {
	e.mu.RLock()
	_, ok := e.schedules[id]
	e.mu.RUnlock()
	if !ok {
		return false
	}

	if e.store != nil {
		if err := e.store.Delete(store.KindSchedule, id); err != nil {
			log.Error().Err(err).Str("schedule", id).Msg("Failed to delete schedule record")
			return false
		}
	}

	e.mu.Lock()
	delete(e.schedules, id)
	e.mu.Unlock()
	return true
}

// SetEnabled flips a schedule on or off.
func (e *Engine) SetEnabled(id string, enabled bool) bool {
	e.mu.RLock()
	s, ok := e.schedules[id]
	e.mu.RUnlock()
	if !ok {
		return false
	}
	if s.Enabled == enabled {
		return true
	}

	s.Enabled = enabled
	if !e.persist(s) {
		return false
	}

	e.mu.Lock()
	e.schedules[id] = s
	e.mu.Unlock()
	return true
}

// Get returns one schedule by id.
func (e *Engine) Get(id string) (Schedule, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.schedules[id]
	return s, ok
}

// List returns all schedules ordered by time of day, then name.
func (e *Engine) List() []Schedule {
	e.mu.RLock()
	out := make([]Schedule, 0, len(e.schedules))
	for _, s := range e.schedules {
		out = append(out, s)
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Run drives the minute tick until ctx is cancelled. The timer is re-aligned
// to the top of the next minute on every pass, so ticks do not drift.
func (e *Engine) Run(ctx context.Context) error {
	log.Info().Msg("Schedule engine started")

	for {
		now := e.now()
		next := now.Truncate(time.Minute).Add(time.Minute)
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("Schedule engine stopping")
			return nil

		case <-timer.C:
			e.Tick(ctx, e.now())
		}
	}
}

// Tick evaluates every schedule against now, firing the ones that match and
// publishing due-soon notifications for the ones about to.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	e.mu.RLock()
	snapshot := make([]Schedule, 0, len(e.schedules))
	for _, s := range e.schedules {
		snapshot = append(snapshot, s)
	}
	e.mu.RUnlock()

	for _, s := range snapshot {
		if s.shouldTrigger(now) {
			e.trigger(ctx, s, now)
			continue
		}
		if s.dueSoon(now) && e.bus != nil {
			e.bus.Publish(eventbus.Event{
				Type: eventbus.EventTypeScheduleDue,
				Data: map[string]interface{}{
					"schedule_id": s.ID,
					"name":        s.Name,
					"time":        s.Time,
				},
			})
		}
	}
}

// RunNow fires a schedule immediately, bypassing every matching check.
func (e *Engine) RunNow(ctx context.Context, id string) bool {
	e.mu.RLock()
	s, ok := e.schedules[id]
	e.mu.RUnlock()
	if !ok {
		log.Warn().Str("schedule", id).Msg("RunNow: unknown schedule")
		return false
	}

	e.trigger(ctx, s, e.now())
	return true
}

// trigger records the firing, persists it, and executes the actions in
// order. A failing action is logged and does not abort the rest; a failing
// persist is logged but does not block execution (the in-memory lastRun
// still debounces this minute).
func (e *Engine) trigger(ctx context.Context, s Schedule, now time.Time) {
	s.LastRun = &now

	e.mu.Lock()
	if current, ok := e.schedules[s.ID]; ok {
		current.LastRun = &now
		e.schedules[s.ID] = current
	}
	e.mu.Unlock()

	if !e.persist(s) {
		log.Warn().Str("schedule", s.ID).Msg("Failed to persist lastRun, may re-fire after restart")
	}

	log.Info().Str("schedule", s.ID).Str("name", s.Name).Int("actions", len(s.Actions)).Msg("Schedule triggered")

	for i, a := range s.Actions {
		if !e.executeAction(ctx, a) {
			log.Warn().
				Str("schedule", s.ID).
				Int("action", i).
				Str("target_type", a.TargetType).
				Str("target", a.TargetID).
				Msg("Schedule action failed")
		}
	}

	if e.bus != nil {
		e.bus.Publish(eventbus.Event{
			Type: eventbus.EventTypeScheduleTriggered,
			Data: map[string]interface{}{
				"schedule_id": s.ID,
				"name":        s.Name,
				"run_at":      now,
			},
		})
	}
}

func (e *Engine) executeAction(ctx context.Context, a Action) bool {
	switch a.TargetType {
	case TargetLight:
		return e.registry.SetState(ctx, a.Protocol, a.TargetID, a.State)
	case TargetGroup:
		return e.groups.SetGroupState(ctx, a.TargetID, a.State)
	case TargetAll:
		// The all target honors only the on flag.
		if a.State.On == nil {
			log.Warn().Msg("All-target action without an on flag, skipping")
			return false
		}
		return e.registry.SetAll(ctx, *a.State.On)
	default:
		return false
	}
}

func (e *Engine) persist(s Schedule) bool {
	if e.store == nil {
		return true
	}
	payload, err := json.Marshal(s)
	if err != nil {
		log.Error().Err(err).Str("schedule", s.ID).Msg("Failed to encode schedule record")
		return false
	}
	if err := e.store.Set(store.KindSchedule, s.ID, payload); err != nil {
		log.Error().Err(err).Str("schedule", s.ID).Msg("Failed to persist schedule record")
		return false
	}
	return true
}
