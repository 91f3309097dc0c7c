// Package groups manages named collections of device references and fans
// state writes out to their members.
package groups

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/veselov/unilight/internal/light"
	"github.com/veselov/unilight/internal/store"
)

// Member is a weak reference to a registry device. A member whose device has
// been removed is tolerated and counts as a failed write during fan-out.
type Member struct {
	Protocol string `json:"protocol"`
	DeviceID string `json:"device_id"`
}

// Group is a named, ordered collection of members.
type Group struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []Member `json:"members"`
}

// deviceWriter is the slice of the registry the coordinator needs.
type deviceWriter interface {
	SetState(ctx context.Context, proto, id string, patch light.State) bool
}

// Coordinator owns the group records. Mutations persist first and update the
// in-memory cache only after the write succeeds.
type Coordinator struct {
	mu     sync.RWMutex
	groups map[string]Group

	store    *store.Store
	registry deviceWriter

	// fanoutLimiter paces member writes so one group operation cannot
	// flood a bridge.
	fanoutLimiter *rate.Limiter
}

// New creates a coordinator. store may be nil in tests.
func New(st *store.Store, registry deviceWriter, fanoutRate rate.Limit) *Coordinator {
	if fanoutRate <= 0 {
		fanoutRate = 10
	}
	return &Coordinator{
		groups:        make(map[string]Group),
		store:         st,
		registry:      registry,
		fanoutLimiter: rate.NewLimiter(fanoutRate, 1),
	}
}

// Load restores groups from the store, skipping corrupt payloads.
func (c *Coordinator) Load() error {
	if c.store == nil {
		return nil
	}

	payloads, err := c.store.All(store.KindGroup)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for id, payload := range payloads {
		var g Group
		if err := json.Unmarshal(payload, &g); err != nil {
			log.Warn().Err(err).Str("id", id).Msg("Skipping corrupt group record")
			continue
		}
		c.groups[g.ID] = g
	}

	log.Info().Int("groups", len(c.groups)).Msg("Groups loaded")
	return nil
}

// Create makes a new group with a generated id. Empty name or member list is
// rejected before any mutation.
func (c *Coordinator) Create(name string, members []Member) (string, bool) {
	if name == "" || len(members) == 0 {
		log.Error().Str("name", name).Msg("Rejecting group without name or members")
		return "", false
	}

	g := Group{
		ID:      uuid.NewString(),
		Name:    name,
		Members: append([]Member(nil), members...),
	}

	if !c.persist(g) {
		return "", false
	}

	c.mu.Lock()
	c.groups[g.ID] = g
	c.mu.Unlock()

	log.Info().Str("group", g.ID).Str("name", name).Int("members", len(members)).Msg("Group created")
	return g.ID, true
}

// Update applies a partial update. nil leaves a field unchanged; a non-nil
// empty name or member list is rejected.
func (c *Coordinator) Update(id string, name *string, members *[]Member) bool {
	if name != nil && *name == "" {
		return false
	}
	if members != nil && len(*members) == 0 {
		return false
	}

	c.mu.RLock()
	g, ok := c.groups[id]
	c.mu.RUnlock()
	if !ok {
		log.Warn().Str("group", id).Msg("Update: unknown group")
		return false
	}

	if name != nil {
		g.Name = *name
	}
	if members != nil {
		g.Members = append([]Member(nil), *members...)
	}

	if !c.persist(g) {
		return false
	}

	c.mu.Lock()
	c.groups[id] = g
	c.mu.Unlock()
	return true
}

// Delete removes a group.
func (c *Coordinator) Delete(id string) bool {
	c.mu.RLock()
	_, ok := c.groups[id]
	c.mu.RUnlock()
	if !ok {
		return false
	}

	if c.store != nil {
		if err := c.store.Delete(store.KindGroup, id); err != nil {
			log.Error().Err(err).Str("group", id).Msg("Failed to delete group record")
			return false
		}
	}

	c.mu.Lock()
	delete(c.groups, id)
	c.mu.Unlock()
	return true
}

// Get returns one group by id.
func (c *Coordinator) Get(id string) (Group, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.groups[id]
	return g, ok
}

// List returns all groups ordered by name.
func (c *Coordinator) List() []Group {
	c.mu.RLock()
	out := make([]Group, 0, len(c.groups))
	for _, g := range c.groups {
		out = append(out, g)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetGroupState fans the patch out to every member in order. Best-effort and
// never atomic: a failing member (including a dangling reference) does not
// stop the sweep, but the aggregate is true only when every write succeeded.
func (c *Coordinator) SetGroupState(ctx context.Context, id string, patch light.State) bool {
	c.mu.RLock()
	g, ok := c.groups[id]
	members := append([]Member(nil), g.Members...)
	c.mu.RUnlock()

	if !ok {
		log.Warn().Str("group", id).Msg("SetGroupState: unknown group")
		return false
	}

	all := true
	for _, m := range members {
		if err := c.fanoutLimiter.Wait(ctx); err != nil {
			return false
		}
		if !c.registry.SetState(ctx, m.Protocol, m.DeviceID, patch) {
			all = false
		}
	}

	log.Debug().
		Str("group", id).
		Int("members", len(members)).
		Bool("all_succeeded", all).
		Msg("Group fan-out finished")
	return all
}

func (c *Coordinator) persist(g Group) bool {
	if c.store == nil {
		return true
	}
	payload, err := json.Marshal(g)
	if err != nil {
		log.Error().Err(err).Str("group", g.ID).Msg("Failed to encode group record")
		return false
	}
	if err := c.store.Set(store.KindGroup, g.ID, payload); err != nil {
		log.Error().Err(err).Str("group", g.ID).Msg("Failed to persist group record")
		return false
	}
	return true
}
