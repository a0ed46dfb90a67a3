package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/rental-intake/internal/config"
	"github.com/kirillkom/rental-intake/internal/core/ports"
	"github.com/kirillkom/rental-intake/internal/core/requirements"
	"github.com/kirillkom/rental-intake/internal/core/usecase"
	"github.com/kirillkom/rental-intake/internal/infrastructure/crm"
	"github.com/kirillkom/rental-intake/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/rental-intake/internal/infrastructure/inspect/pdfcheck"
	"github.com/kirillkom/rental-intake/internal/infrastructure/notify/webhook"
	"github.com/kirillkom/rental-intake/internal/infrastructure/queue/nats"
	"github.com/kirillkom/rental-intake/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/rental-intake/internal/infrastructure/resilience"
	"github.com/kirillkom/rental-intake/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/rental-intake/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Sessions   *usecase.SessionRegistry
	Dispatcher *usecase.Dispatcher
	Exporter   ports.DossierExporter
	Metrics    *metrics.HTTPServerMetrics

	closeFn func()
}

// New wires the API process.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	httpMetrics := metrics.NewHTTPServerMetrics("rental-intake-api")

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	repo := postgres.NewDossierRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	catalog, err := requirements.Load(cfg.RequirementsFile)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load requirements: %w", err)
	}

	resilienceCfg := resilienceConfig(cfg)
	resilienceCfg.StateObserver = httpMetrics.ObserveBreakerState

	notifiers, closeNotifiers, err := buildNotifiers(cfg, resilienceCfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	dispatcher := usecase.NewDispatcher(notifiers, httpMetrics, cfg.NotifyTimeout)

	var accounts ports.AccountDirectory
	if cfg.CRMURL != "" {
		accounts = crm.New(cfg.CRMURL, cfg.CRMAPIKey, crm.Options{
			Timeout:            cfg.CRMTimeout,
			ResilienceExecutor: resilience.NewExecutor(resilienceCfg),
		})
	} else {
		slog.Info("crm_linking_disabled")
	}

	reconciler := usecase.NewReconciler(storage, repo, pdfcheck.New(), dispatcher, httpMetrics)
	registry := usecase.NewSessionRegistry(usecase.SessionDeps{
		Store:      repo,
		Blobs:      storage,
		Catalog:    catalog,
		Roster:     usecase.NewRosterManager(repo, accounts),
		Reconciler: reconciler,
		Events:     dispatcher,
		Metrics:    httpMetrics,
	})
	httpMetrics.TrackOpenSessions(registry.Len)

	return &App{
		Config:     cfg,
		Sessions:   registry,
		Dispatcher: dispatcher,
		Exporter:   xlsx.New(),
		Metrics:    httpMetrics,

		closeFn: func() {
			dispatcher.Wait()
			closeNotifiers()
			_ = db.Close()
		},
	}, nil
}

// Shutdown flushes unsaved dossiers before the process exits.
func (a *App) Shutdown(ctx context.Context) error {
	return a.Sessions.FlushAll(ctx)
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// buildNotifiers picks the event sink. With NATS the worker relays to the
// webhook; the API never talks to both.
func buildNotifiers(cfg config.Config, resilienceCfg resilience.Config) ([]ports.Notifier, func(), error) {
	noop := func() {}
	sendCfg := resilienceCfg.AtMostOnce()

	switch cfg.NotifyTransport {
	case config.NotifyNone:
		return nil, noop, nil
	case config.NotifyNATS:
		bus, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(sendCfg),
		})
		if err != nil {
			return nil, noop, fmt.Errorf("init event bus: %w", err)
		}
		return []ports.Notifier{bus}, bus.Close, nil
	case config.NotifyWebhook:
		if cfg.NotifyWebhookURL == "" {
			slog.Warn("notify_webhook_url_missing", "transport", cfg.NotifyTransport)
			return nil, noop, nil
		}
		return []ports.Notifier{
			webhook.NewNotifier(cfg.NotifyWebhookURL, cfg.NotifyTimeout, resilience.NewExecutor(sendCfg)),
		}, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown NOTIFY_TRANSPORT %q", cfg.NotifyTransport)
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	out.RetryInitialBackoff = cfg.ResilienceRetryInitialBackoff
	out.RetryMaxBackoff = cfg.ResilienceRetryMaxBackoff
	out.BreakerEnabled = cfg.ResilienceBreakerEnabled
	if cfg.ResilienceBreakerMinRequests > 0 {
		out.BreakerMinRequests = uint32(cfg.ResilienceBreakerMinRequests)
	}
	out.BreakerFailureRatio = cfg.ResilienceBreakerFailureRatio
	out.BreakerOpenTimeout = cfg.ResilienceBreakerOpenTimeout
	return out
}

type Worker struct {
	Config  config.Config
	Bus     *nats.EventBus
	Relay   *usecase.EventRelay
	Metrics *metrics.WorkerMetrics

	closeFn func()
}

// NewWorker wires the relay process: NATS in, webhook out.
func NewWorker(_ context.Context, cfg config.Config) (*Worker, error) {
	if cfg.NotifyWebhookURL == "" {
		return nil, fmt.Errorf("NOTIFY_WEBHOOK_URL is required for the relay worker")
	}
	workerMetrics := metrics.NewWorkerMetrics("rental-intake-worker")

	bus, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		return nil, fmt.Errorf("init event bus: %w", err)
	}
	target := webhook.NewNotifier(cfg.NotifyWebhookURL, cfg.NotifyTimeout, resilience.NewExecutor(resilienceConfig(cfg).AtMostOnce()))

	return &Worker{
		Config:  cfg,
		Bus:     bus,
		Relay:   usecase.NewEventRelay("rental-intake-worker", target, workerMetrics, cfg.NotifyTimeout),
		Metrics: workerMetrics,
		closeFn: bus.Close,
	}, nil
}

func (w *Worker) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}
