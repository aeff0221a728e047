package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Relay/internal/backend"
	"github.com/shaiso/Relay/internal/domain"
	"github.com/shaiso/Relay/internal/registry"
	"github.com/shaiso/Relay/internal/repo"
	"github.com/shaiso/Relay/internal/telemetry"
)

// ServiceName — имя сервиса в health-ответе.
const ServiceName = "Relay"

// defaultTestTimeout — таймаут тестового вызова backend'а.
const defaultTestTimeout = 60 * time.Second

// WorkflowRunner выполняет workflow.
type WorkflowRunner interface {
	Validate(req *domain.WorkflowRequest) error
	Run(ctx context.Context, req *domain.WorkflowRequest) (*domain.WorkflowResult, error)
}

// BackendRegistry — реестр backend'ов.
type BackendRegistry interface {
	List() []domain.BackendDescriptor
	Usable() bool
	Refresh(ctx context.Context) (*registry.Report, error)
	Local() (domain.BackendDescriptor, error)
	LookupServer(selector string) (domain.BackendDescriptor, error)
	LookupAgent(id string) (domain.BackendDescriptor, error)
	AdHocAgent(id string) domain.BackendDescriptor
}

// RunStore — журнал runs.
type RunStore interface {
	Create(ctx context.Context, run *domain.Run) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	List(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error)
}

// Submitter ставит run в очередь worker'а.
type Submitter interface {
	PublishWorkflowSubmitted(ctx context.Context, runID uuid.UUID) error
}

// Config — конфигурация для создания Handler.
type Config struct {
	Runner   WorkflowRunner
	Registry BackendRegistry

	// Client — вызов backend'а для /v1/backends/test.
	Client backend.Client

	// TestTimeout — таймаут тестового вызова (default: 60s).
	TestTimeout time.Duration

	// Runs и Submitter опциональны: без них нет журнала и ?async=true.
	Runs      RunStore
	Submitter Submitter

	Logger *slog.Logger
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	runner      WorkflowRunner
	registry    BackendRegistry
	client      backend.Client
	testTimeout time.Duration
	runs        RunStore
	submitter   Submitter
	logger      *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	testTimeout := cfg.TestTimeout
	if testTimeout <= 0 {
		testTimeout = defaultTestTimeout
	}

	return &Handler{
		runner:      cfg.Runner,
		registry:    cfg.Registry,
		client:      cfg.Client,
		testTimeout: testTimeout,
		runs:        cfg.Runs,
		submitter:   cfg.Submitter,
		logger:      telemetry.OrDefault(cfg.Logger),
	}
}
