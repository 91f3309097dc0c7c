// Package discovery runs one-shot background sweeps over both protocols and
// feeds the results into the registry.
package discovery

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/veselov/unilight/internal/eventbus"
	"github.com/veselov/unilight/internal/protocol"
	"github.com/veselov/unilight/internal/registry"
)

// hueDiscoverer is the slice of the Hue client the service needs.
type hueDiscoverer interface {
	Discover(ctx context.Context) ([]protocol.BridgeInfo, error)
	Pair(ctx context.Context, ip, deviceType string) (string, error)
}

// lifxDiscoverer is the slice of the LIFX client the service needs.
type lifxDiscoverer interface {
	Discover(ctx context.Context) ([]protocol.DeviceInfo, error)
}

// Service launches discovery sweeps. Only one sweep runs at a time; a second
// request while one is active is rejected.
type Service struct {
	registry *registry.Registry
	bus      *eventbus.Bus
	hue      hueDiscoverer
	lifx     lifxDiscoverer

	// deviceType is the application name registered on a Hue bridge when a
	// pairing attempt succeeds.
	deviceType string

	active atomic.Bool
}

// New creates a discovery service.
func New(reg *registry.Registry, bus *eventbus.Bus, hue hueDiscoverer, lifx lifxDiscoverer, deviceType string) *Service {
	return &Service{
		registry:   reg,
		bus:        bus,
		hue:        hue,
		lifx:       lifx,
		deviceType: deviceType,
	}
}

// Active reports whether a sweep is in progress.
func (s *Service) Active() bool {
	return s.active.Load()
}

// Start launches a sweep in the background. Returns false when one is
// already running.
func (s *Service) Start(ctx context.Context) bool {
	if !s.active.CompareAndSwap(false, true) {
		log.Warn().Msg("Discovery already in progress")
		return false
	}

	go func() {
		defer s.active.Store(false)
		s.run(ctx)
	}()
	return true
}

// Run executes one sweep synchronously. Same single-flight guard as Start.
func (s *Service) Run(ctx context.Context) bool {
	if !s.active.CompareAndSwap(false, true) {
		log.Warn().Msg("Discovery already in progress")
		return false
	}
	defer s.active.Store(false)
	return s.run(ctx)
}

// run sweeps both protocols. The sweep succeeds when at least one protocol
// produced results.
func (s *Service) run(ctx context.Context) bool {
	log.Info().Msg("Starting device discovery")

	hueOK := s.discoverHue(ctx)
	lifxOK := s.discoverLifx(ctx)
	success := hueOK || lifxOK

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Type: eventbus.EventTypeDiscoveryFinished,
			Data: map[string]interface{}{
				"success": success,
				"hue":     hueOK,
				"lifx":    lifxOK,
			},
		})
	}

	log.Info().Bool("success", success).Msg("Device discovery completed")
	return success
}

func (s *Service) discoverHue(ctx context.Context) bool {
	bridges, err := s.hue.Discover(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Hue discovery failed")
		return false
	}
	if len(bridges) == 0 {
		log.Info().Msg("No Hue bridges found")
		return false
	}

	for _, b := range bridges {
		// Preserve pairing credentials from a previous run.
		if known, ok := s.registry.Bridge(b.ID); ok && b.Username == "" {
			b.Username = known.Username
		}
		// Try to pair with unpaired bridges. This only succeeds when the
		// bridge's link button was pressed within the last 30 seconds.
		if b.Username == "" {
			if user, err := s.hue.Pair(ctx, b.IP, s.deviceType); err == nil {
				b.Username = user
				log.Info().Str("bridge", b.ID).Msg("Paired with Hue bridge")
			} else {
				log.Debug().Err(err).Str("bridge", b.ID).Msg("Hue bridge found but not paired")
			}
		}
		if s.registry.AddOrUpdateBridge(ctx, b) && s.bus != nil {
			s.bus.Publish(eventbus.Event{
				Type: eventbus.EventTypeDeviceDiscovered,
				Data: map[string]interface{}{
					"protocol": protocol.Hue,
					"id":       b.ID,
					"ip":       b.IP,
				},
			})
		}
	}
	return true
}

func (s *Service) discoverLifx(ctx context.Context) bool {
	lights, err := s.lifx.Discover(ctx)
	if err != nil {
		log.Error().Err(err).Msg("LIFX discovery failed")
		return false
	}
	if len(lights) == 0 {
		log.Info().Msg("No LIFX lights found")
		return false
	}

	for _, info := range lights {
		d := registry.Device{
			Protocol: protocol.Lifx,
			Info:     info,
		}
		if s.registry.AddOrUpdateLight(ctx, d) && s.bus != nil {
			s.bus.Publish(eventbus.Event{
				Type: eventbus.EventTypeDeviceDiscovered,
				Data: map[string]interface{}{
					"protocol": protocol.Lifx,
					"id":       info.ID,
					"name":     info.Name,
				},
			})
		}
	}
	return true
}
