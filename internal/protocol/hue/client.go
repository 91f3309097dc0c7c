// Package hue implements the Philips Hue protocol client and state
// normalizer on top of the bridge v1 API.
package hue

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/amimof/huego"
	"github.com/rs/zerolog/log"

	"github.com/veselov/unilight/internal/light"
	"github.com/veselov/unilight/internal/protocol"
)

// Client talks to Hue bridges. Every network call carries the configured
// timeout; a hung bridge fails the single operation, never the caller's loop.
type Client struct {
	timeout time.Duration
}

// NewClient creates a Hue client with the given per-request timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Client{timeout: timeout}
}

// Discover finds Hue bridges via the meethue discovery service. Bridge
// metadata beyond id and address requires pairing, which is the caller's
// concern.
func (c *Client) Discover(ctx context.Context) ([]protocol.BridgeInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	found, err := huego.DiscoverAllContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("hue bridge discovery: %w", err)
	}

	bridges := make([]protocol.BridgeInfo, 0, len(found))
	for _, b := range found {
		bridges = append(bridges, protocol.BridgeInfo{
			ID:   strings.ToLower(b.ID),
			IP:   b.Host,
			Name: "Philips Hue Bridge",
		})
	}

	log.Info().Int("count", len(bridges)).Msg("Hue bridge discovery finished")
	return bridges, nil
}

// Pair registers a new API user on the bridge. The physical link button must
// have been pressed within the last 30 seconds or the bridge refuses.
func (c *Client) Pair(ctx context.Context, ip, deviceType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	bridge := huego.New(ip, "")
	user, err := bridge.CreateUserContext(ctx, deviceType)
	if err != nil {
		return "", fmt.Errorf("hue pairing with bridge %s: %w", ip, err)
	}
	return user, nil
}

// GetLights lists the lights owned by a bridge, keyed by their bridge-local
// id, with state already normalized.
func (c *Client) GetLights(ctx context.Context, b protocol.BridgeInfo) (map[string]protocol.DeviceInfo, error) {
	if !b.Controllable() {
		return nil, fmt.Errorf("bridge %s: missing ip or username", b.ID)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	lights, err := huego.New(b.IP, b.Username).GetLightsContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing lights on bridge %s: %w", b.ID, err)
	}

	out := make(map[string]protocol.DeviceInfo, len(lights))
	for _, l := range lights {
		id := strconv.Itoa(l.ID)
		out[id] = protocol.DeviceInfo{
			ID:           id,
			Name:         l.Name,
			Model:        l.ModelID,
			Manufacturer: l.ManufacturerName,
			Firmware:     l.SwVersion,
			State:        Normalize(fromHuego(l)),
		}
	}
	return out, nil
}

// GetState reads the current state of one light on a bridge.
func (c *Client) GetState(ctx context.Context, b protocol.BridgeInfo, lightID string) (light.State, error) {
	if !b.Controllable() {
		return light.State{}, fmt.Errorf("bridge %s: missing ip or username", b.ID)
	}
	id, err := strconv.Atoi(lightID)
	if err != nil {
		return light.State{}, fmt.Errorf("invalid hue light id %q: %w", lightID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	l, err := huego.New(b.IP, b.Username).GetLightContext(ctx, id)
	if err != nil {
		return light.State{}, fmt.Errorf("reading light %s on bridge %s: %w", lightID, b.ID, err)
	}
	return Normalize(fromHuego(*l)), nil
}

// SetState writes a canonical patch to one light and returns the normalized
// echo the caller should merge. The v1 API payload always carries the on
// flag, so a patch without one must have it pre-filled from the last known
// state by the caller.
func (c *Client) SetState(ctx context.Context, b protocol.BridgeInfo, lightID string, patch light.State) (light.State, error) {
	if !b.Controllable() {
		return light.State{}, fmt.Errorf("bridge %s: missing ip or username", b.ID)
	}
	id, err := strconv.Atoi(lightID)
	if err != nil {
		return light.State{}, fmt.Errorf("invalid hue light id %q: %w", lightID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	state := toHuego(Denormalize(patch))
	if _, err := huego.New(b.IP, b.Username).SetLightStateContext(ctx, id, state); err != nil {
		return light.State{}, fmt.Errorf("writing light %s on bridge %s: %w", lightID, b.ID, err)
	}
	return Echo(patch), nil
}

// fromHuego converts the SDK state (plain values) into the presence-aware
// wire state. The v1 API reports bri for every dimmable light and hue/sat/xy
// only for color-capable ones; colormode is the capability signal.
func fromHuego(l huego.Light) LightState {
	var raw LightState
	if l.State == nil {
		return raw
	}

	on := l.State.On
	raw.On = &on
	reachable := l.State.Reachable
	raw.Reachable = &reachable

	bri := l.State.Bri
	raw.Bri = &bri

	if l.State.Ct > 0 {
		ct := l.State.Ct
		raw.Ct = &ct
	}

	if l.State.ColorMode != "" || strings.Contains(strings.ToLower(l.Type), "color") {
		hue := l.State.Hue
		sat := l.State.Sat
		raw.Hue = &hue
		raw.Sat = &sat
		if len(l.State.Xy) == 2 {
			raw.Xy = []float32{l.State.Xy[0], l.State.Xy[1]}
		}
	}

	return raw
}

// toHuego converts the presence-aware wire state into the SDK's write
// payload.
func toHuego(raw LightState) huego.State {
	var s huego.State
	if raw.On != nil {
		s.On = *raw.On
	}
	if raw.Bri != nil {
		s.Bri = *raw.Bri
	}
	if raw.Hue != nil {
		s.Hue = *raw.Hue
	}
	if raw.Sat != nil {
		s.Sat = *raw.Sat
	}
	if len(raw.Xy) == 2 {
		s.Xy = []float32{raw.Xy[0], raw.Xy[1]}
	}
	if raw.Ct != nil {
		s.Ct = *raw.Ct
	}
	return s
}
