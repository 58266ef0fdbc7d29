package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ThomasJRyan/Nitrix/internal/cache"
	"github.com/ThomasJRyan/Nitrix/internal/config"
	"github.com/ThomasJRyan/Nitrix/internal/logging"
	"github.com/ThomasJRyan/Nitrix/internal/matrix"
	"github.com/ThomasJRyan/Nitrix/internal/metrics"
	"github.com/ThomasJRyan/Nitrix/internal/notify"
	"github.com/ThomasJRyan/Nitrix/internal/session"
	"github.com/ThomasJRyan/Nitrix/internal/timeline"
	"github.com/ThomasJRyan/Nitrix/internal/tui"
)

// cacheKeep is how many events per room survive the prune on exit.
const cacheKeep = 500

func runClient(ctx context.Context, opts *options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	closeLogs, err := opts.initLogging()
	if err != nil {
		return err
	}
	defer closeLogs()

	logger := logging.Component("client")
	if used := opts.loader.ConfigFileUsed(); used != "" {
		logger.Debug().Str("config_file", used).Msg("loaded config file")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rt := newClientRuntime(ctx, opts.cfg, logger)
	defer rt.Close()

	var remember func(config.Credentials) error
	if opts.remember {
		path := opts.configPath()
		remember = func(creds config.Credentials) error {
			return config.SaveCredentials(path, creds)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if addr := opts.cfg.Metrics.Addr; addr != "" {
		g.Go(func() error {
			if err := rt.metrics.Serve(gctx, addr, logging.Component("metrics")); err != nil {
				logger.Warn().Err(err).Str("addr", addr).Msg("metrics endpoint stopped")
			}
			return nil
		})
	}
	g.Go(func() error {
		defer cancel()
		return tui.Run(gctx, tui.Config{
			Theme:       opts.cfg.TUI.Theme,
			TimeFormat:  opts.cfg.TUI.TimeFormat,
			Credentials: opts.cfg.Credentials(),
			Login:       rt.login,
			Signals:     rt.hub,
			State:       config.NewStateStore(""),
			Remember:    remember,
			Logger:      logging.Component("tui"),
		})
	})
	return g.Wait()
}

// clientRuntime holds what outlives a single login attempt.
type clientRuntime struct {
	ctx     context.Context
	cfg     *config.Config
	logger  zerolog.Logger
	hub     *notify.Hub
	metrics *metrics.Collector
	cache   *cache.Cache
	desktop *notify.Desktop

	mu   sync.Mutex
	done []<-chan error
}

func newClientRuntime(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *clientRuntime {
	rt := &clientRuntime{
		ctx:     ctx,
		cfg:     cfg,
		logger:  logger,
		hub:     notify.NewHub(),
		metrics: metrics.NewCollector(),
	}
	if cfg.Cache.Enabled {
		c, err := cache.Open(cfg.Cache.Path, logging.Component("cache"))
		if err != nil {
			// The client works without history from earlier runs.
			logger.Warn().Err(err).Str("path", cfg.Cache.Path).Msg("event cache unavailable")
		} else {
			rt.cache = c
		}
	}
	if cfg.Notifications.Desktop {
		rt.desktop = notify.NewDesktop(notify.DefaultInterval, logging.Component("notify"))
	}
	return rt
}

// login authenticates, hydrates from the cache, and starts syncing.
func (r *clientRuntime) login(ctx context.Context, creds config.Credentials) (tui.Backend, error) {
	client, err := matrix.NewClient(matrix.ClientConfig{
		HomeserverURL: creds.Homeserver,
		DeviceID:      r.cfg.Account.DeviceID,
		Logger:        logging.Component("matrix"),
	})
	if err != nil {
		return nil, err
	}
	sess, err := client.Login(ctx, creds.Username, creds.Password)
	if err != nil {
		return nil, err
	}

	store := timeline.NewStore(
		timeline.WithNotifier(r.hub),
		timeline.WithObserver(r.metrics),
		timeline.WithLogger(logging.Component("timeline")),
	)
	cfg := session.Config{
		Session: sess,
		Store:   store,
		Syncer: matrix.SyncerConfig{
			Timeout:      r.cfg.Sync.Timeout,
			RetryBackoff: r.cfg.Sync.RetryBackoff,
			MaxBackoff:   r.cfg.Sync.MaxBackoff,
			OnSync:       r.metrics.ObserveSync,
		},
		Logger: logging.Component("session"),
	}
	if r.cache != nil {
		cfg.Cache = r.cache
	}
	if r.desktop != nil {
		cfg.Alerter = r.desktop
	}
	ctrl, err := session.New(cfg)
	if err != nil {
		return nil, err
	}

	if n, err := ctrl.Hydrate(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("could not load cached events")
	} else if n > 0 {
		r.logger.Info().Int("events", n).Msg("loaded cached events")
	}

	done := ctrl.Start(r.ctx)
	r.mu.Lock()
	r.done = append(r.done, done)
	r.mu.Unlock()

	r.logger.Info().Str("user_id", sess.UserID()).Msg("session started")
	return ctrl, nil
}

// Close waits briefly for sync loops and releases the cache.
func (r *clientRuntime) Close() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	for _, ch := range done {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			r.logger.Warn().Msg("sync loop did not stop in time")
		}
	}

	if r.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if n, err := r.cache.Prune(ctx, cacheKeep); err != nil {
		r.logger.Warn().Err(err).Msg("cache prune failed")
	} else if n > 0 {
		r.logger.Debug().Int64("deleted", n).Msg("pruned event cache")
	}
	if err := r.cache.Close(); err != nil {
		r.logger.Warn().Err(err).Str("path", r.cfg.Cache.Path).Msg("cache close failed")
	}
}
