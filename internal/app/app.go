package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"solwatch/internal/alerting"
	"solwatch/internal/cache"
	"solwatch/internal/chain"
	"solwatch/internal/config"
	"solwatch/internal/dedup"
	"solwatch/internal/refresher"
	"solwatch/internal/server"
	"solwatch/internal/service"
	"solwatch/internal/storage"
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

func (a *App) newChainClient() (*chain.Client, error) {
	return chain.NewClient(chain.Options{
		RPCURL:     a.Config.Solana.RPCURL,
		Commitment: a.Config.Solana.Commitment,
		Wallets:    a.Config.Solana.Wallets,
		TxLimit:    a.Config.Solana.TxLimit,
		Timeout:    a.Config.Solana.RequestTimeout,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) newDeduper() *dedup.Deduplicator {
	if a.Config.Alerting.RedisURL == "" {
		return nil
	}
	deduper, err := dedup.New(a.Config.Alerting.RedisURL, a.Config.Alerting.RedisPassword)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("redis unavailable; alert dedup runs in-memory only")
		return nil
	}
	return deduper
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
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running dashboard backend: refresh loop plus HTTP API.
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

	client, err := a.newChainClient()
	if err != nil {
		return err
	}

	notifier := a.newNotifier()
	deduper := a.newDeduper()
	if deduper != nil {
		defer deduper.Close()
	}

	var sampleStore storage.SampleStore
	var alertStore storage.AlertStore
	if store != nil {
		sampleStore = store
		alertStore = store
	}

	svc := service.New(a.Config, sampleStore, alertStore, notifier, deduper, a.Logger)
	snapCache := cache.New()

	ref := refresher.New(refresher.Options{
		Interval:       a.Config.Refresh.Interval,
		MaxAttempts:    a.Config.Refresh.MaxAttempts,
		BackoffInitial: a.Config.Refresh.BackoffInitial,
		BackoffMax:     a.Config.Refresh.BackoffMax,
	}, client, snapCache, refresher.Hooks{
		OnSnapshot: svc.HandleSnapshot,
		OnFailure:  svc.HandleFailure,
	}, a.Logger)

	go func() {
		if err := ref.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Error().Err(err).Msg("refresher terminated with error")
		}
	}()

	srv := server.New(a.Config.Server, snapCache, ref, sampleStore, a.Logger)

	a.Logger.Info().Str("addr", a.Config.Server.Addr).Msg("starting dashboard backend")
	err = srv.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("server terminated with error")
		return err
	}

	a.Logger.Info().Msg("dashboard backend stopped")
	return nil
}

// ExportOptions hold parameters for exporting historical samples.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
