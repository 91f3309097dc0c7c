package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/veselov/unilight/internal/config"
	"github.com/veselov/unilight/internal/discovery"
	"github.com/veselov/unilight/internal/eventbus"
	"github.com/veselov/unilight/internal/groups"
	"github.com/veselov/unilight/internal/protocol/hue"
	"github.com/veselov/unilight/internal/protocol/lifx"
	"github.com/veselov/unilight/internal/registry"
	"github.com/veselov/unilight/internal/scheduler"
	"github.com/veselov/unilight/internal/store"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	Store *store.Store
	Bus   *eventbus.Bus

	// Protocol clients
	Hue  *hue.Client
	Lifx *lifx.Client

	// Coordination layer
	Registry  *registry.Registry
	Groups    *groups.Coordinator
	Scheduler *scheduler.Engine
	Discovery *discovery.Service
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.Store = st

	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	s.Hue = hue.NewClient(cfg.Hue.Timeout.Duration())
	s.Lifx = lifx.NewClient()

	sweepRate := rate.Limit(cfg.Groups.RateLimitRPS)
	s.Registry = registry.New(st, s.Bus, s.Hue, s.Lifx, sweepRate)
	s.Groups = groups.New(st, s.Registry, sweepRate)
	s.Scheduler = scheduler.New(st, s.Bus, s.Registry, s.Groups)
	s.Discovery = discovery.New(s.Registry, s.Bus, s.Hue, s.Lifx, cfg.Hue.DeviceType)

	return s, nil
}

// Start loads persisted state and starts the background services.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	if err := s.Registry.Load(); err != nil {
		return err
	}
	if err := s.Groups.Load(); err != nil {
		return err
	}
	if err := s.Scheduler.Load(); err != nil {
		return err
	}

	if s.discoverOnStartup() {
		log.Info().Msg("Running startup discovery sweep")
		s.Discovery.Start(ctx)
	}

	if s.cfg.Scheduler.Disabled {
		log.Warn().Msg("Schedule engine disabled by configuration")
	} else {
		go func() {
			if err := s.Scheduler.Run(ctx); err != nil {
				onFatalError(err)
			}
		}()
	}

	return nil
}

// discoverOnStartup resolves the startup-sweep choice: a persisted setting
// wins over the config file default.
func (s *Services) discoverOnStartup() bool {
	if v, ok, err := s.Store.Setting("discover_on_startup"); err == nil && ok {
		return v == "true"
	}
	return s.cfg.Discovery.OnStartup
}

// RunDiscovery executes one synchronous sweep bounded by the configured
// discovery timeout.
func (s *Services) RunDiscovery(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Discovery.Timeout.Duration())
	defer cancel()
	return s.Discovery.Run(ctx)
}

// ClearState wipes every persisted document.
func (s *Services) ClearState() error {
	return s.Store.Clear("")
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
		s.Bus.Close(ctx)
		cancel()
	}
	if s.Store != nil {
		s.Store.Close()
	}
}

func (s *Services) shutdownTimeout() time.Duration {
	if d := s.cfg.ShutdownTimeout.Duration(); d > 0 {
		return d
	}
	return 5 * time.Second
}
