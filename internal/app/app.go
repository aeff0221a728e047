// Package app собирает общие компоненты сервисов Relay из конфигурации.
package app

import (
	"log/slog"
	"net/http"

	"github.com/shaiso/Relay/internal/backend"
	"github.com/shaiso/Relay/internal/config"
	"github.com/shaiso/Relay/internal/domain"
	"github.com/shaiso/Relay/internal/orchestrator"
	"github.com/shaiso/Relay/internal/registry"
	"github.com/shaiso/Relay/internal/scheduler"
	"github.com/shaiso/Relay/internal/telemetry"
)

// App — реестр, клиенты backend'ов, engine и расписание обновления.
type App struct {
	Registry   *registry.Registry
	Dispatcher *backend.Dispatcher
	Engine     *orchestrator.Engine
	Scheduler  *scheduler.Scheduler

	pool *backend.Pool
}

// New собирает App. Ошибка возможна только для невалидного расписания.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	logger = telemetry.OrDefault(logger)
	httpClient := &http.Client{}

	reg := registry.New(registry.Config{
		LocalURL:         cfg.LocalServerURL,
		Servers:          cfg.ExternalServers,
		CatalogURL:       cfg.AgentRegistryURL,
		APIKey:           cfg.AgentAPIKey,
		AgentServerURL:   cfg.AgentServerURL,
		AllowAdHocAgents: cfg.AllowAdHocAgents,
		HTTPClient:       httpClient,
		Logger:           logger.With("component", "registry"),
	})

	httpBackend := backend.NewHTTPClient(backend.HTTPClientConfig{
		AuthURL:      cfg.AgentRegistryURL,
		APIKey:       cfg.AgentAPIKey,
		DefaultModel: cfg.DefaultModel,
		HTTPClient:   httpClient,
		Logger:       logger,
	})

	var pool *backend.Pool
	if cfg.AgentPoolEnabled {
		pool = backend.NewPool(backend.PoolConfig{IdleTimeout: cfg.AgentIdleTimeout})
	}
	agentBackend := backend.NewAgentClient(backend.AgentClientConfig{
		ServerURL: cfg.AgentServerURL,
		APIKey:    cfg.AgentAPIKey,
		Pool:      pool,
		Logger:    logger,
	})

	dispatcher := backend.NewDispatcher()
	dispatcher.Register(domain.BackendKindLocal, httpBackend)
	dispatcher.Register(domain.BackendKindExternalHTTP, httpBackend)
	dispatcher.Register(domain.BackendKindRemoteAgent, agentBackend)

	retry := cfg.Retry
	engine := orchestrator.New(orchestrator.Config{
		Backends:        reg,
		Client:          dispatcher,
		MaxSteps:        cfg.MaxSteps,
		WorkflowTimeout: cfg.WorkflowTimeout,
		DefaultTimeout:  cfg.BackendTimeout,
		DefaultRetry:    &retry,
		Logger:          logger.With("component", "engine"),
	})

	sched, err := scheduler.New(scheduler.Config{
		Refresher: reg,
		Schedule:  cfg.RefreshSchedule,
		Logger:    logger.With("component", "scheduler"),
	})
	if err != nil {
		return nil, err
	}

	return &App{
		Registry:   reg,
		Dispatcher: dispatcher,
		Engine:     engine,
		Scheduler:  sched,
		pool:       pool,
	}, nil
}

// Close останавливает расписание и закрывает соединения агентов.
func (a *App) Close() error {
	a.Scheduler.Stop()
	if a.pool != nil {
		return a.pool.Close()
	}
	return nil
}
