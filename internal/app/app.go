package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"agri-price-notify/internal/config"
	"agri-price-notify/internal/dispatch"
	"agri-price-notify/internal/notify"
	"agri-price-notify/internal/provider"
	"agri-price-notify/internal/scheduler"
	"agri-price-notify/internal/server"
	"agri-price-notify/internal/storage"
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

// newCoordinator wires the provider factory and dispatch coordinator. A nil
// store keeps dispatching functional without persistence.
func (a *App) newCoordinator(store *storage.Store) *dispatch.Coordinator {
	factory := provider.NewFactory(a.Config.SMS.Providers, a.Logger)

	var dispatchStore dispatch.Store
	if store != nil {
		dispatchStore = store
	}

	return dispatch.New(factory, dispatchStore, dispatch.Options{
		DefaultProvider: a.Config.SMS.DefaultProvider,
		CountryCode:     a.Config.SMS.CountryCode,
		CostPerMessage:  a.Config.SMS.CostPerMessage,
		SendTimeout:     a.Config.SMS.Providers.RequestTimeout,
	}, a.Logger)
}

func (a *App) newNotify(store *storage.Store, coordinator *dispatch.Coordinator) *notify.Service {
	var (
		prices    storage.PriceStore
		farmers   storage.FarmerStore
		templates storage.TemplateStore
	)
	if store != nil {
		prices = store
		farmers = store
		templates = store
	}

	return notify.New(prices, farmers, templates, coordinator, notify.Options{
		WindowDays: a.Config.Trends.WindowDays,
		Audience:   a.Config.Trends.Audience,
	}, a.Logger)
}

// Serve runs the HTTP API until interrupted.
func (a *App) Serve(ctx context.Context) error {
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

	coordinator := a.newCoordinator(store)
	notifySvc := a.newNotify(store, coordinator)

	var (
		history   storage.HistoryStore
		templates storage.TemplateStore
	)
	if store != nil {
		history = store
		templates = store
	}

	srv := server.New(notifySvc, history, templates, a.Logger)
	httpServer := &http.Server{
		Addr:         a.Config.Server.Addr,
		Handler:      srv.Handler(),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", a.Config.Server.Addr).Msg("http server listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer shutdownCancel()

	a.Logger.Info().Msg("shutting down http server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// RunScheduler runs the scheduled dispatch drain loop until interrupted.
func (a *App) RunScheduler(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; the scheduler needs the dispatch queue")
	}
	defer closeStore()

	coordinator := a.newCoordinator(store)
	drain := scheduler.New(store, coordinator, scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		BatchSize:    a.Config.Scheduler.BatchSize,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	a.Logger.Info().Msg("starting scheduled dispatch drain")
	err = drain.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("scheduler terminated with error")
		return err
	}

	a.Logger.Info().Msg("scheduler stopped")
	return nil
}

// SendOptions configure a one-shot CLI send.
type SendOptions struct {
	Message    string
	Recipients []string
	Provider   string
}

// Send dispatches a single message from the command line and prints the
// outcome as JSON.
func (a *App) Send(ctx context.Context, opts SendOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	coordinator := a.newCoordinator(store)
	result, err := coordinator.Dispatch(ctx, dispatch.Request{
		Message:    opts.Message,
		Recipients: opts.Recipients,
		Provider:   opts.Provider,
	})
	if err != nil {
		return err
	}

	return printJSON(result)
}

// TrendsOptions configure the trends command. Without recipients the
// rendered message is previewed instead of sent.
type TrendsOptions struct {
	Names      []string
	Recipients []string
	Provider   string
}

// Trends previews or sends the current price trend notification.
func (a *App) Trends(ctx context.Context, opts TrendsOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	coordinator := a.newCoordinator(store)
	notifySvc := a.newNotify(store, coordinator)

	if len(opts.Recipients) == 0 {
		preview, previewErr := notifySvc.PreviewTrends(ctx, opts.Names)
		if previewErr != nil {
			return previewErr
		}
		if preview.Sample {
			a.Logger.Warn().Msg("no stored prices; previewing sample data")
		}
		fmt.Fprintln(os.Stdout, preview.Message)
		return nil
	}

	result, err := notifySvc.SendPriceTrends(ctx, notify.TrendsRequest{
		Recipients: opts.Recipients,
		Names:      opts.Names,
		Provider:   opts.Provider,
	})
	if err != nil {
		return err
	}
	return printJSON(result)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ExportOptions hold parameters for exporting price history.
type ExportOptions struct {
	Product   string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Status string
}
