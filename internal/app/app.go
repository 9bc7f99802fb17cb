package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"pegwatch/internal/alerting"
	"pegwatch/internal/asset"
	"pegwatch/internal/collector"
	"pegwatch/internal/config"
	"pegwatch/internal/engine"
	"pegwatch/internal/httpapi"
	"pegwatch/internal/provider"
	"pegwatch/internal/scheduler"
	"pegwatch/internal/selector"
	"pegwatch/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// newAdapters builds the enabled provider adapters in the configured priority
// order. Config validation has already rejected enabled providers with
// missing credentials.
func (a *App) newAdapters() ([]provider.Adapter, error) {
	available := map[string]func() provider.Adapter{
		"0x": func() provider.Adapter {
			return provider.NewZeroX(provider.ZeroXOptions{
				BaseURL:     a.Config.Providers.ZeroX.BaseURL,
				APIKey:      a.Config.Providers.ZeroX.APIKey,
				ChainID:     a.Config.Providers.ZeroX.ChainID,
				Timeout:     a.Config.Providers.ZeroX.RequestTimeout,
				MinInterval: a.Config.Providers.ZeroX.MinInterval,
				UserAgent:   a.Config.UserAgent(),
			}, a.Logger)
		},
		"cowswap": func() provider.Adapter {
			return provider.NewCow(provider.CowOptions{
				BaseURL:      a.Config.Providers.Cowswap.BaseURL,
				PriceQuality: a.Config.Providers.Cowswap.PriceQuality,
				Timeout:      a.Config.Providers.Cowswap.RequestTimeout,
				MinInterval:  a.Config.Providers.Cowswap.MinInterval,
				UserAgent:    a.Config.UserAgent(),
			}, a.Logger)
		},
		"1inch": func() provider.Adapter {
			return provider.NewOneInch(provider.OneInchOptions{
				BaseURL:     a.Config.Providers.OneInch.BaseURL,
				APIKey:      a.Config.Providers.OneInch.APIKey,
				ChainID:     a.Config.Providers.OneInch.ChainID,
				Timeout:     a.Config.Providers.OneInch.RequestTimeout,
				MinInterval: a.Config.Providers.OneInch.MinInterval,
				UserAgent:   a.Config.UserAgent(),
			}, a.Logger)
		},
	}
	enabled := map[string]bool{
		"0x":      a.Config.Providers.ZeroX.Enabled,
		"cowswap": a.Config.Providers.Cowswap.Enabled,
		"1inch":   a.Config.Providers.OneInch.Enabled,
	}

	adapters := make([]provider.Adapter, 0, len(available))
	for _, name := range a.Config.Aggregation.Priority {
		build, ok := available[name]
		if !ok {
			return nil, fmt.Errorf("unknown provider %q in priority list", name)
		}
		if !enabled[name] {
			continue
		}
		adapters = append(adapters, build())
	}
	if len(adapters) == 0 {
		return nil, errors.New("no enabled provider appears in aggregation.priority")
	}
	return adapters, nil
}

// newEngine assembles universe, adapters, selector, and engine.
func (a *App) newEngine() (*engine.Engine, *asset.Universe, error) {
	universe, err := a.Config.Universe()
	if err != nil {
		return nil, nil, err
	}

	adapters, err := a.newAdapters()
	if err != nil {
		return nil, nil, err
	}

	sel, err := selector.New(adapters, selector.Policy(a.Config.Aggregation.Policy), a.Logger)
	if err != nil {
		return nil, nil, err
	}

	return engine.New(universe, sel, a.Logger), universe, nil
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running monitoring service: the scheduled collector
// plus, when enabled, the JSON API.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	eng, universe, err := a.newEngine()
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	notifier := a.newNotifier()

	var snapshotStore storage.SnapshotStore
	var alertStore storage.AlertStore
	if store != nil {
		snapshotStore = store
		alertStore = store
	}

	coll := collector.New(a.Config, sched, eng, universe, snapshotStore, alertStore, notifier, a.Logger)

	errCh := make(chan error, 2)
	go func() {
		errCh <- coll.Run(ctx)
	}()

	if a.Config.HTTP.Enabled {
		server := httpapi.NewServer(a.Config, universe, eng, coll, snapshotStore, a.Logger)
		go func() {
			errCh <- server.Run(ctx)
		}()
	}

	a.Logger.Info().Msg("starting monitoring service")
	err = <-errCh
	cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// ExportOptions hold parameters for exporting historical snapshots.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	Symbols   []string
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// FetchOptions configure the one-shot fetch command.
type FetchOptions struct {
	Base  string
	Size  string
	Store bool
}
