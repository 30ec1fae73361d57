package bootstrap

import (
	"context"

	"outcall-server/internal/auth"
	"outcall-server/internal/config"
	"outcall-server/internal/jobs"
	"outcall-server/internal/observability"
	"outcall-server/internal/store"
	"outcall-server/internal/voicecall/handler"
	"outcall-server/internal/voicecall/processor"
	"outcall-server/internal/voicecall/providers"
	"outcall-server/internal/voicecall/rendezvous"
	"outcall-server/internal/voicecall/twilio"
)

// Dependencies holds everything the server needs, built once at startup.
type Dependencies struct {
	Store     store.Store
	Logger    *observability.Logger
	Verifier  *auth.Verifier
	Registry  *rendezvous.Registry
	Factory   *providers.Factory
	Scheduler jobs.Scheduler
	Processor *processor.Processor
	Handler   handler.Handler

	// jobsClient is non-nil only when Redis is configured.
	jobsClient *jobs.Client
}

func Initialize(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Dependencies, error) {
	deps := &Dependencies{Logger: logger}

	dataStore, err := store.New(cfg.Database.ConnectionString(), logger)
	if err != nil {
		return nil, err
	}
	deps.Store = dataStore

	deps.Verifier = auth.NewVerifier(cfg.Auth.JWTSecret, logger)
	deps.Registry = rendezvous.NewRegistry(logger)
	deps.Factory = providers.NewFactory(cfg.Providers, logger)

	var dialer processor.Dialer
	if cfg.Twilio.AccountSID != "" && cfg.Twilio.AuthToken != "" && cfg.Twilio.FromNumber != "" {
		dialer = twilio.NewDialer(cfg.Twilio, logger)
	} else {
		logger.Warn(ctx, "Twilio credentials not configured, outbound legs will not be placed")
	}

	// With Redis, pipeline runs go through asynq and are executed by the
	// worker process. Without it, a timer scheduler runs them in-process.
	var scheduler jobs.Scheduler
	if cfg.Jobs.RedisAddr != "" {
		deps.jobsClient = jobs.NewClient(cfg.Jobs.RedisAddr, logger)
		scheduler = deps.jobsClient
	} else {
		logger.Warn(ctx, "Redis not configured, scheduling pipeline runs in-process")
		timer := jobs.NewTimerScheduler(func(ctx context.Context, payload jobs.RunPipelinePayload) error {
			return deps.Processor.RunPipeline(ctx, payload.CallID)
		}, logger)
		scheduler = timer
	}
	deps.Scheduler = scheduler

	deps.Processor = processor.New(&deps.Store, deps.Factory, deps.Registry, scheduler, dialer,
		cfg.Pipeline, cfg.Twilio.AnswerURL, logger)
	deps.Handler = handler.New(deps.Processor, &deps.Store, deps.Registry, cfg.Twilio.MediaWSURL, logger)

	return deps, nil
}

func (d *Dependencies) Cleanup(ctx context.Context) {
	if d.jobsClient != nil {
		if err := d.jobsClient.Close(); err != nil {
			d.Logger.Error(ctx, "failed to close job client", err)
		}
	}
	if db := d.Store.DB(); db != nil {
		if err := db.Close(); err != nil {
			d.Logger.Error(ctx, "failed to close database", err)
		}
	}
}
