package engine

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/ircctl/internal/handlers"
	"github.com/danmuck/ircctl/internal/logging"
	"github.com/danmuck/ircctl/internal/observability"
	"github.com/danmuck/ircctl/internal/plugins"
	"github.com/danmuck/ircctl/internal/plugins/process"
	"github.com/danmuck/ircctl/internal/plugins/script"
	"github.com/danmuck/ircctl/internal/store"
	"github.com/danmuck/ircctl/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidConfig = errors.New("engine: invalid service config")
)

// ServiceConfig configures one bot run.
type ServiceConfig struct {
	Address string
	Channel string
	Nick    string
	Owner   string

	PluginDir    string
	Builtins     []string
	MaxPlugins   int
	MaxResponses int
	// ProcessGrace is how long a process plugin may take to exit on unload.
	ProcessGrace  time.Duration
	SkipMalformed bool
	QuitTrigger   string
	Rules         []handlers.Rule

	Transport   transport.Config
	Store       store.Config
	MetricsAddr string
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Builtins:     append([]string(nil), handlers.DefaultBuiltins...),
		MaxPlugins:   plugins.DefaultMaxPlugins,
		MaxResponses: DefaultMaxResponses,
		ProcessGrace: 2 * time.Second,
		QuitTrigger:  handlers.DefaultQuitTrigger,
		Transport:    transport.DefaultConfig(),
		Store:        store.DefaultConfig(),
	}
}

// Validate checks the settings a run cannot start without.
func (c ServiceConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Address) == "" {
		errs = append(errs, errors.New("address is required"))
	}
	if strings.TrimSpace(c.Channel) == "" {
		errs = append(errs, errors.New("channel is required"))
	}
	if strings.TrimSpace(c.Nick) == "" || strings.ContainsAny(c.Nick, " \r\n\x00") {
		errs = append(errs, fmt.Errorf("nick %q is not a single token", c.Nick))
	}
	if c.MaxPlugins <= 0 {
		errs = append(errs, fmt.Errorf("max_plugins must be positive, got %d", c.MaxPlugins))
	}
	if c.MaxResponses <= 0 {
		errs = append(errs, fmt.Errorf("max_responses must be positive, got %d", c.MaxResponses))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Service runs the whole bot lifecycle: load plugins, resolve, initialize,
// connect, run, shut down.
type Service struct {
	cfg      ServiceConfig
	resolver transport.Resolver
	runID    string
	log      zerolog.Logger
}

func NewService(cfg ServiceConfig) *Service {
	runID := uuid.NewString()
	return &Service{
		cfg:   cfg,
		runID: runID,
		log:   logging.Component("service").With().Str("run_id", runID).Logger(),
	}
}

// WithResolver overrides DNS resolution.
func (s *Service) WithResolver(r transport.Resolver) *Service {
	s.resolver = r
	return s
}

func (s *Service) RunID() string { return s.runID }

// Run blocks until the bot stops or the process is signalled.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.RunContext(ctx)
}

func (s *Service) RunContext(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	backend, err := store.Open(s.cfg.Store)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()
	initial, err := backend.Load(ctx)
	if err != nil {
		return err
	}
	table := store.NewTable(initial)
	s.log.Info().Int("counters", table.Len()).Str("store", string(s.cfg.Store.Kind)).Msg("counters loaded")

	identity := plugins.Identity{Nick: s.cfg.Nick, Channel: s.cfg.Channel, Owner: s.cfg.Owner}
	reg, err := s.loadPlugins(identity)
	if err != nil {
		return err
	}
	observability.SetPluginsRegistered(reg.Len())

	endpoints, err := transport.Resolve(ctx, s.cfg.Address, s.resolver)
	if err != nil {
		_ = reg.Unload()
		return err
	}

	env := &plugins.Env{
		Identity: identity,
		Counters: table,
		Log:      s.log.With().Str("component", "handler").Logger(),
	}
	if err := reg.InitializeAll(env); err != nil {
		s.log.Warn().Err(err).Msg("plugin initialize reported errors")
	}

	save := func() error {
		if err := backend.Save(context.Background(), table.Snapshot()); err != nil {
			s.log.Error().Err(err).Msg("saving counters failed")
			return err
		}
		return nil
	}

	conn, err := transport.Dial(ctx, endpoints, s.cfg.Transport)
	if err != nil {
		if serr := reg.ShutdownAll(env); serr != nil {
			s.log.Warn().Err(serr).Msg("plugin shutdown reported errors")
		}
		_ = save()
		return err
	}

	eng := New(reg, env, Config{
		MaxResponses:  s.cfg.MaxResponses,
		SkipMalformed: s.cfg.SkipMalformed,
		Greeting:      Greeting(s.cfg.Nick),
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		return eng.Run(gctx, conn)
	})
	if addr := strings.TrimSpace(s.cfg.MetricsAddr); addr != "" {
		g.Go(func() error {
			return observability.Serve(gctx, addr)
		})
	}
	runErr := g.Wait()

	if err := eng.Shutdown(); err != nil {
		s.log.Warn().Err(err).Msg("shutdown reported errors")
	}
	saveErr := save()
	if runErr != nil {
		s.log.Error().Err(runErr).Msg("run ended with error")
		return runErr
	}
	s.log.Info().Msg("run finished")
	return saveErr
}

// loadPlugins registers the configured builtins, then every unit found in
// the plugin directory, up to MaxPlugins.
func (s *Service) loadPlugins(identity plugins.Identity) (*plugins.Registry, error) {
	reg := plugins.NewRegistry(s.cfg.MaxPlugins)

	builtins, err := handlers.Build(s.cfg.Builtins, handlers.Options{
		QuitTrigger: s.cfg.QuitTrigger,
		Rules:       s.cfg.Rules,
	})
	if err != nil {
		return nil, err
	}
	for _, rec := range builtins {
		if err := reg.Register(rec); err != nil {
			if errors.Is(err, plugins.ErrRegistryFull) {
				s.log.Warn().Err(err).Msg("plugin registry full, not registering remaining builtins")
				return reg, nil
			}
			return nil, err
		}
	}

	if strings.TrimSpace(s.cfg.PluginDir) == "" {
		return reg, nil
	}
	n, err := plugins.LoadDir(s.cfg.PluginDir, reg,
		script.Loader{},
		process.Loader{Identity: identity, Grace: s.cfg.ProcessGrace},
	)
	if err != nil {
		_ = reg.Unload()
		return nil, err
	}
	s.log.Info().Int("loaded", n).Int("registered", reg.Len()).Str("dir", s.cfg.PluginDir).Msg("plugins loaded")
	return reg, nil
}
