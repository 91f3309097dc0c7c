package lifx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/veselov/unilight/internal/color"
	"github.com/veselov/unilight/internal/light"
	"github.com/veselov/unilight/internal/protocol"
)

// discoveryCacheTTL is how long a discovery sweep's results are reused before
// the network is probed again.
const discoveryCacheTTL = 5 * time.Minute

// Client simulates a LIFX LAN. Bulb state lives in memory and survives across
// calls, so registry and scheduler behavior against it is realistic.
type Client struct {
	mu            sync.Mutex
	devices       map[string]protocol.DeviceInfo
	lastDiscovery time.Time

	// probeDelay stands in for the UDP broadcast round trip.
	probeDelay time.Duration
}

// NewClient creates a simulated LIFX client with the stock bulb set.
func NewClient() *Client {
	return &Client{
		devices:    simulatedBulbs(),
		probeDelay: time.Second,
	}
}

// Discover returns the bulbs on the LAN. Results from a sweep within the last
// five minutes are reused without touching the network.
func (c *Client) Discover(ctx context.Context) ([]protocol.DeviceInfo, error) {
	c.mu.Lock()
	if !c.lastDiscovery.IsZero() && time.Since(c.lastDiscovery) < discoveryCacheTTL {
		cached := c.snapshotLocked()
		c.mu.Unlock()
		log.Info().Int("count", len(cached)).Msg("using cached LIFX devices from recent discovery")
		return cached, nil
	}
	delay := c.probeDelay
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.mu.Lock()
	c.lastDiscovery = time.Now()
	found := c.snapshotLocked()
	c.mu.Unlock()

	log.Info().Int("count", len(found)).Msg("LIFX discovery finished")
	return found, nil
}

// GetState reads the current state of one bulb.
func (c *Client) GetState(_ context.Context, id string) (light.State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.devices[id]
	if !ok {
		return light.State{}, fmt.Errorf("unknown lifx device %q", id)
	}
	return Normalize(d.State), nil
}

// SetState writes a canonical patch to one bulb and returns the normalized
// echo. A color-temperature patch aimed at a bulb that reports no
// color-temperature channel is rendered as the equivalent RGB instead.
func (c *Client) SetState(_ context.Context, id string, patch light.State) (light.State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.devices[id]
	if !ok {
		return light.State{}, fmt.Errorf("unknown lifx device %q", id)
	}

	if patch.ColorTemp != nil && d.State.ColorTemp == nil && d.State.RGB != nil {
		rgb := color.KelvinToRGB(*patch.ColorTemp)
		patch.ColorTemp = nil
		patch.RGB = light.Color(rgb)
	}

	echo := Echo(patch)
	d.State.Merge(echo)
	c.devices[id] = d
	return echo, nil
}

func (c *Client) snapshotLocked() []protocol.DeviceInfo {
	out := make([]protocol.DeviceInfo, 0, len(c.devices))
	for _, d := range c.devices {
		d.State = Normalize(d.State)
		out = append(out, d)
	}
	return out
}

func simulatedBulbs() map[string]protocol.DeviceInfo {
	return map[string]protocol.DeviceInfo{
		"d073d5f1f9e2": {
			ID:           "d073d5f1f9e2",
			Name:         "LIFX Living Room",
			Model:        "LIFX Color 1000",
			Manufacturer: "LIFX",
			Firmware:     "2.80",
			IP:           "192.168.1.101",
			MAC:          "d0:73:d5:f1:f9:e2",
			State: light.State{
				On:         light.Bool(true),
				Brightness: light.Int(80),
				ColorTemp:  light.Int(3500),
				Hue:        light.Int(120),
				Saturation: light.Int(50),
				RGB:        light.Color(color.RGB{R: 128, G: 255, B: 128}),
				Reachable:  light.Bool(true),
			},
		},
		"d073d5f1f9e3": {
			ID:           "d073d5f1f9e3",
			Name:         "LIFX Bedroom",
			Model:        "LIFX White 800",
			Manufacturer: "LIFX",
			Firmware:     "2.80",
			IP:           "192.168.1.102",
			MAC:          "d0:73:d5:f1:f9:e3",
			State: light.State{
				On:         light.Bool(false),
				Brightness: light.Int(50),
				ColorTemp:  light.Int(2700),
				Reachable:  light.Bool(true),
			},
		},
	}
}
