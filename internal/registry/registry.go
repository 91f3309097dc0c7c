// Package registry tracks bridges and lights across protocols. It is the
// single owner of device records: every mutation goes through a registry
// write operation, records are merged field by field under the lock, and a
// DeviceChanged event is published after each successful mutation.
//
// Network calls are never made while the lock is held. A state write is
// three steps: resolve the target under a read lock, call the protocol
// client, merge the echo under the write lock. Records stay consistent per
// device; cross-device operations are best-effort sweeps.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/veselov/unilight/internal/eventbus"
	"github.com/veselov/unilight/internal/light"
	"github.com/veselov/unilight/internal/protocol"
	"github.com/veselov/unilight/internal/store"
)

// Device is a tracked light. For Hue lights the global id is
// "{bridgeID}_{lightID}" and BridgeID/LightID carry the split identity needed
// to route control operations through the owning bridge.
type Device struct {
	Protocol string `json:"protocol"`
	BridgeID string `json:"bridge_id,omitempty"`
	LightID  string `json:"light_id,omitempty"`

	Info protocol.DeviceInfo `json:"info"`
}

// hueClient is the slice of the Hue protocol client the registry needs.
type hueClient interface {
	GetLights(ctx context.Context, b protocol.BridgeInfo) (map[string]protocol.DeviceInfo, error)
	GetState(ctx context.Context, b protocol.BridgeInfo, lightID string) (light.State, error)
	SetState(ctx context.Context, b protocol.BridgeInfo, lightID string, patch light.State) (light.State, error)
}

// lifxClient is the slice of the LIFX protocol client the registry needs.
type lifxClient interface {
	GetState(ctx context.Context, id string) (light.State, error)
	SetState(ctx context.Context, id string, patch light.State) (light.State, error)
}

// Registry is the in-memory device registry with write-through persistence.
type Registry struct {
	mu      sync.RWMutex
	bridges map[string]protocol.BridgeInfo
	devices map[string]Device // keyed "{protocol}:{id}"

	store *store.Store
	bus   *eventbus.Bus
	hue   hueClient
	lifx  lifxClient

	// sweepLimiter paces RefreshAll/SetAll so a large device set does not
	// hammer a bridge.
	sweepLimiter *rate.Limiter
}

// New creates a registry. store and bus may be nil in tests.
func New(st *store.Store, bus *eventbus.Bus, hue hueClient, lifx lifxClient, sweepRate rate.Limit) *Registry {
	if sweepRate <= 0 {
		sweepRate = 10
	}
	return &Registry{
		bridges:      make(map[string]protocol.BridgeInfo),
		devices:      make(map[string]Device),
		store:        st,
		bus:          bus,
		hue:          hue,
		lifx:         lifx,
		sweepLimiter: rate.NewLimiter(sweepRate, 1),
	}
}

func deviceKey(proto, id string) string {
	return proto + ":" + id
}

// HueDeviceID synthesizes the global id of a Hue light.
func HueDeviceID(bridgeID, lightID string) string {
	return fmt.Sprintf("%s_%s", bridgeID, lightID)
}

// Load restores bridges and devices from the store. Corrupt payloads are
// logged and skipped; they do not abort the load.
func (r *Registry) Load() error {
	if r.store == nil {
		return nil
	}

	bridges, err := r.store.All(store.KindBridge)
	if err != nil {
		return fmt.Errorf("loading bridges: %w", err)
	}
	devices, err := r.store.All(store.KindDevice)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, payload := range bridges {
		var b protocol.BridgeInfo
		if err := json.Unmarshal(payload, &b); err != nil {
			log.Warn().Err(err).Str("id", id).Msg("Skipping corrupt bridge record")
			continue
		}
		r.bridges[b.ID] = b
	}
	for key, payload := range devices {
		var d Device
		if err := json.Unmarshal(payload, &d); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Skipping corrupt device record")
			continue
		}
		r.devices[deviceKey(d.Protocol, d.Info.ID)] = d
	}

	log.Info().
		Int("bridges", len(r.bridges)).
		Int("devices", len(r.devices)).
		Msg("Registry loaded")
	return nil
}

// AddOrUpdateBridge upserts a bridge by id. When the bridge is controllable
// (ip and username present) its light list is fetched and each light upserted
// as a device; a transport failure there is logged and does not roll back the
// bridge upsert.
func (r *Registry) AddOrUpdateBridge(ctx context.Context, b protocol.BridgeInfo) bool {
	if b.ID == "" {
		log.Error().Msg("Rejecting bridge without id")
		return false
	}

	r.mu.Lock()
	r.bridges[b.ID] = b
	r.mu.Unlock()
	r.persistBridge(b)

	if !b.Controllable() {
		return true
	}

	lights, err := r.hue.GetLights(ctx, b)
	if err != nil {
		log.Warn().Err(err).Str("bridge", b.ID).Msg("Bridge upserted, light fetch failed")
		return true
	}

	for lightID, info := range lights {
		info.ID = HueDeviceID(b.ID, lightID)
		r.upsertDevice(Device{
			Protocol: protocol.Hue,
			BridgeID: b.ID,
			LightID:  lightID,
			Info:     info,
		})
	}
	return true
}

// AddOrUpdateLight upserts a single device record. When the device is
// addressable a synchronous state refresh is attempted and merged; a refresh
// failure does not fail the upsert.
func (r *Registry) AddOrUpdateLight(ctx context.Context, d Device) bool {
	if d.Info.ID == "" || d.Protocol == "" {
		log.Error().Msg("Rejecting device without id or protocol")
		return false
	}

	r.upsertDevice(d)

	if d.Info.IP == "" && d.Info.MAC == "" {
		return true
	}
	if ok := r.RefreshState(ctx, d.Protocol, d.Info.ID); !ok {
		log.Warn().
			Str("protocol", d.Protocol).
			Str("device", d.Info.ID).
			Msg("Device upserted, state refresh failed")
	}
	return true
}

// upsertDevice merges a record into the registry, preserving the last known
// state for fields the incoming record does not carry.
func (r *Registry) upsertDevice(d Device) {
	key := deviceKey(d.Protocol, d.Info.ID)

	r.mu.Lock()
	if existing, ok := r.devices[key]; ok {
		merged := existing.Info.State
		merged.Merge(d.Info.State)
		d.Info.State = merged
	}
	r.devices[key] = d
	r.mu.Unlock()

	r.persistDevice(d)
	if r.bus != nil {
		r.bus.PublishDeviceChanged(d.Protocol, d.Info.ID, stateFields(d.Info.State))
	}
}

// Device returns a tracked device by protocol and id.
func (r *Registry) Device(proto, id string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[deviceKey(proto, id)]
	return d, ok
}

// Devices returns all tracked devices, ordered by protocol then id.
func (r *Registry) Devices() []Device {
	r.mu.RLock()
	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Protocol != out[j].Protocol {
			return out[i].Protocol < out[j].Protocol
		}
		return out[i].Info.ID < out[j].Info.ID
	})
	return out
}

// Bridge returns a bridge record by id.
func (r *Registry) Bridge(id string) (protocol.BridgeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bridges[id]
	return b, ok
}

// Bridges returns all bridge records, ordered by id.
func (r *Registry) Bridges() []protocol.BridgeInfo {
	r.mu.RLock()
	out := make([]protocol.BridgeInfo, 0, len(r.bridges))
	for _, b := range r.bridges {
		out = append(out, b)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RemoveDevice drops one device record. Group member references to it become
// dangling and are tolerated at fan-out time.
func (r *Registry) RemoveDevice(proto, id string) bool {
	key := deviceKey(proto, id)

	r.mu.Lock()
	_, ok := r.devices[key]
	if ok {
		delete(r.devices, key)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	if r.store != nil {
		if err := r.store.Delete(store.KindDevice, key); err != nil {
			log.Error().Err(err).Str("key", key).Msg("Failed to delete device record")
		}
	}
	return true
}

// RemoveBridge drops a bridge and every light it owns.
func (r *Registry) RemoveBridge(id string) bool {
	r.mu.Lock()
	_, ok := r.bridges[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.bridges, id)

	var orphaned []string
	for key, d := range r.devices {
		if d.Protocol == protocol.Hue && d.BridgeID == id {
			delete(r.devices, key)
			orphaned = append(orphaned, key)
		}
	}
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Delete(store.KindBridge, id); err != nil {
			log.Error().Err(err).Str("bridge", id).Msg("Failed to delete bridge record")
		}
		for _, key := range orphaned {
			if err := r.store.Delete(store.KindDevice, key); err != nil {
				log.Error().Err(err).Str("key", key).Msg("Failed to delete device record")
			}
		}
	}
	return true
}

// SetState writes a canonical patch to one device and merges the normalized
// echo into the stored record. Returns false on any resolution or transport
// failure; errors are logged, never raised.
func (r *Registry) SetState(ctx context.Context, proto, id string, patch light.State) bool {
	r.mu.RLock()
	d, ok := r.devices[deviceKey(proto, id)]
	var bridge protocol.BridgeInfo
	var bridgeOK bool
	if ok && proto == protocol.Hue {
		bridge, bridgeOK = r.bridges[d.BridgeID]
	}
	r.mu.RUnlock()

	if !ok {
		log.Warn().Str("protocol", proto).Str("device", id).Msg("SetState: unknown device")
		return false
	}

	var echo light.State
	var err error

	switch proto {
	case protocol.Hue:
		if !bridgeOK || !bridge.Controllable() {
			log.Warn().Str("device", id).Msg("SetState: hue light has no controllable bridge")
			return false
		}
		// The v1 API payload always carries the on flag; resend the last known
		// value so a brightness-only patch does not switch the light off.
		if patch.On == nil && d.Info.State.On != nil {
			patch.On = light.Bool(*d.Info.State.On)
		}
		echo, err = r.hue.SetState(ctx, bridge, d.LightID, patch)
	case protocol.Lifx:
		echo, err = r.lifx.SetState(ctx, id, patch)
	default:
		log.Error().Str("protocol", proto).Msg("SetState: unsupported protocol")
		return false
	}

	if err != nil {
		log.Warn().Err(err).Str("protocol", proto).Str("device", id).Msg("SetState failed")
		return false
	}

	r.mergeState(proto, id, echo)
	return true
}

// RefreshState re-reads one device's state from its protocol client and
// merges it. Same failure semantics as SetState.
func (r *Registry) RefreshState(ctx context.Context, proto, id string) bool {
	r.mu.RLock()
	d, ok := r.devices[deviceKey(proto, id)]
	var bridge protocol.BridgeInfo
	var bridgeOK bool
	if ok && proto == protocol.Hue {
		bridge, bridgeOK = r.bridges[d.BridgeID]
	}
	r.mu.RUnlock()

	if !ok {
		log.Warn().Str("protocol", proto).Str("device", id).Msg("RefreshState: unknown device")
		return false
	}

	var state light.State
	var err error

	switch proto {
	case protocol.Hue:
		if !bridgeOK || !bridge.Controllable() {
			log.Warn().Str("device", id).Msg("RefreshState: hue light has no controllable bridge")
			return false
		}
		state, err = r.hue.GetState(ctx, bridge, d.LightID)
	case protocol.Lifx:
		state, err = r.lifx.GetState(ctx, id)
	default:
		log.Error().Str("protocol", proto).Msg("RefreshState: unsupported protocol")
		return false
	}

	if err != nil {
		log.Warn().Err(err).Str("protocol", proto).Str("device", id).Msg("RefreshState failed")
		return false
	}

	r.mergeState(proto, id, state)
	return true
}

// RefreshAll refreshes every tracked device. Best-effort: one failure does
// not stop the sweep; the aggregate is true only when every refresh
// succeeded.
func (r *Registry) RefreshAll(ctx context.Context) bool {
	all := true
	for _, d := range r.Devices() {
		if err := r.sweepLimiter.Wait(ctx); err != nil {
			return false
		}
		if !r.RefreshState(ctx, d.Protocol, d.Info.ID) {
			all = false
		}
	}
	return all
}

// SetAll switches every tracked device on or off, regardless of protocol.
// Same aggregate semantics as RefreshAll.
func (r *Registry) SetAll(ctx context.Context, on bool) bool {
	all := true
	for _, d := range r.Devices() {
		if err := r.sweepLimiter.Wait(ctx); err != nil {
			return false
		}
		if !r.SetState(ctx, d.Protocol, d.Info.ID, light.State{On: light.Bool(on)}) {
			all = false
		}
	}
	return all
}

// ConnectedCount counts devices whose last known state is reachable.
func (r *Registry) ConnectedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, d := range r.devices {
		if d.Info.State.IsReachable() {
			n++
		}
	}
	return n
}

// TotalCount counts all tracked devices.
func (r *Registry) TotalCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// mergeState applies a normalized state onto the stored record, persists it
// and publishes the change. The merge happens in one critical section so
// readers never observe a half-applied record.
func (r *Registry) mergeState(proto, id string, state light.State) {
	key := deviceKey(proto, id)

	r.mu.Lock()
	d, ok := r.devices[key]
	if !ok {
		r.mu.Unlock()
		return
	}
	d.Info.State.Merge(state)
	r.devices[key] = d
	r.mu.Unlock()

	r.persistDevice(d)
	if r.bus != nil {
		r.bus.PublishDeviceChanged(proto, id, stateFields(state))
	}
}

func (r *Registry) persistBridge(b protocol.BridgeInfo) {
	if r.store == nil {
		return
	}
	payload, err := json.Marshal(b)
	if err != nil {
		log.Error().Err(err).Str("bridge", b.ID).Msg("Failed to encode bridge record")
		return
	}
	if err := r.store.Set(store.KindBridge, b.ID, payload); err != nil {
		log.Error().Err(err).Str("bridge", b.ID).Msg("Failed to persist bridge record")
	}
}

func (r *Registry) persistDevice(d Device) {
	if r.store == nil {
		return
	}
	key := deviceKey(d.Protocol, d.Info.ID)
	payload, err := json.Marshal(d)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to encode device record")
		return
	}
	if err := r.store.Set(store.KindDevice, key, payload); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to persist device record")
	}
}

// stateFields renders the set fields of a state as an event payload.
func stateFields(s light.State) map[string]interface{} {
	payload, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil
	}
	return fields
}
