package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shaiso/Relay/internal/config"
	"github.com/shaiso/Relay/internal/domain"
	"github.com/shaiso/Relay/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

// LocalID — идентификатор локального backend'а.
const LocalID = "local"

// Значения по умолчанию.
const (
	defaultProbeTimeout     = 10 * time.Second
	defaultProbeConcurrency = 8
)

// Ошибки реестра.
var (
	// ErrBackendNotFound — backend отсутствует в реестре.
	ErrBackendNotFound = errors.New("backend not found")
)

// Config — конфигурация Registry.
type Config struct {
	// LocalURL — адрес локального chat сервера.
	LocalURL string

	// Servers — статический список внешних серверов.
	Servers []config.ExternalServer

	// CatalogURL — базовый URL каталога агентов (GET {CatalogURL}/agents).
	CatalogURL string

	// APIKey — ключ каталога. Без ключа каталог не запрашивается.
	APIKey string

	// AgentServerURL — базовый ws(s):// URL агентов.
	AgentServerURL string

	// AllowAdHocAgents — LookupAgent находит агентов вне каталога.
	AllowAdHocAgents bool

	// HTTPClient — транспорт проверок и каталога (опционально).
	HTTPClient *http.Client

	// ProbeTimeout — таймаут одной проверки (default: 10s).
	ProbeTimeout time.Duration

	// ProbeConcurrency — сколько проверок выполнять одновременно (default: 8).
	ProbeConcurrency int

	Logger *slog.Logger
}

// Registry — реестр backend'ов.
//
// Потокобезопасен: много читателей, один писатель (Refresh сериализован).
type Registry struct {
	mu       sync.RWMutex
	backends map[string]domain.BackendDescriptor

	// refreshMu сериализует Refresh.
	refreshMu sync.Mutex

	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// New создаёт реестр с локальным и статическими backend'ами в статусе unknown.
// Агенты каталога появляются после первого Refresh.
func New(cfg Config) *Registry {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.ProbeConcurrency <= 0 {
		cfg.ProbeConcurrency = defaultProbeConcurrency
	}
	cfg.LocalURL = strings.TrimRight(cfg.LocalURL, "/")
	cfg.CatalogURL = strings.TrimRight(cfg.CatalogURL, "/")
	cfg.AgentServerURL = strings.TrimRight(cfg.AgentServerURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	r := &Registry{
		backends:   make(map[string]domain.BackendDescriptor),
		cfg:        cfg,
		httpClient: httpClient,
		logger:     telemetry.OrDefault(cfg.Logger),
		now:        time.Now,
	}

	for _, d := range r.seeds() {
		r.backends[d.ID] = d
	}

	return r
}

// seeds возвращает дескрипторы из конфигурации.
func (r *Registry) seeds() []domain.BackendDescriptor {
	var seeds []domain.BackendDescriptor

	if r.cfg.LocalURL != "" {
		seeds = append(seeds, domain.BackendDescriptor{
			ID:           LocalID,
			Kind:         domain.BackendKindLocal,
			Endpoint:     r.cfg.LocalURL,
			Availability: domain.AvailabilityUnknown,
			Description:  "default local chat server",
		})
	}

	for _, s := range r.cfg.Servers {
		seeds = append(seeds, domain.BackendDescriptor{
			ID:           s.Name,
			Kind:         domain.BackendKindExternalHTTP,
			Endpoint:     s.URL,
			Availability: domain.AvailabilityUnknown,
		})
	}

	return seeds
}

// List возвращает снимок реестра, отсортированный по ID.
func (r *Registry) List() []domain.BackendDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]domain.BackendDescriptor, 0, len(r.backends))
	for _, d := range r.backends {
		list = append(list, d)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// Len возвращает количество backend'ов.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.backends)
}

// Usable сообщает, есть ли хотя бы один backend не в статусе unavailable.
func (r *Registry) Usable() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.backends {
		if d.Availability != domain.AvailabilityUnavailable {
			return true
		}
	}
	return false
}

// Lookup возвращает backend по ID.
func (r *Registry) Lookup(id string) (domain.BackendDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.backends[id]
	if !ok {
		return domain.BackendDescriptor{}, fmt.Errorf("%w: %s", ErrBackendNotFound, id)
	}
	return d, nil
}

// Local возвращает локальный backend по умолчанию.
func (r *Registry) Local() (domain.BackendDescriptor, error) {
	return r.Lookup(LocalID)
}

// LookupServer находит HTTP backend по ID или endpoint URL.
func (r *Registry) LookupServer(selector string) (domain.BackendDescriptor, error) {
	selector = strings.TrimSpace(selector)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if d, ok := r.backends[selector]; ok && d.IsHTTP() {
		return d, nil
	}

	endpoint := strings.TrimRight(selector, "/")
	for _, d := range r.backends {
		if d.IsHTTP() && d.Endpoint == endpoint {
			return d, nil
		}
	}

	return domain.BackendDescriptor{}, fmt.Errorf("%w: server %s", ErrBackendNotFound, selector)
}

// LookupAgent находит удалённого агента по идентификатору.
// Идентификатор нормализуется. Агент вне каталога находится только
// при AllowAdHocAgents.
func (r *Registry) LookupAgent(id string) (domain.BackendDescriptor, error) {
	agentID := domain.NormalizeAgentID(id)

	r.mu.RLock()
	d, ok := r.backends[agentID]
	r.mu.RUnlock()

	if ok && d.Kind == domain.BackendKindRemoteAgent {
		return d, nil
	}

	if r.cfg.AllowAdHocAgents && agentID != "" {
		return r.AdHocAgent(agentID), nil
	}

	return domain.BackendDescriptor{}, fmt.Errorf("%w: agent %s", ErrBackendNotFound, agentID)
}

// AdHocAgent строит дескриптор агента, которого нет в каталоге.
// Используется для диагностических вызовов.
func (r *Registry) AdHocAgent(id string) domain.BackendDescriptor {
	agentID := domain.NormalizeAgentID(id)
	return domain.BackendDescriptor{
		ID:           agentID,
		Kind:         domain.BackendKindRemoteAgent,
		Endpoint:     r.cfg.AgentServerURL + "/" + domain.AgentPath(agentID),
		Availability: domain.AvailabilityUnknown,
		Description:  "ad hoc agent",
	}
}

// Report — итог Refresh.
type Report struct {
	Total       int `json:"total"`
	Available   int `json:"available"`
	Unavailable int `json:"unavailable"`
	Unknown     int `json:"unknown"`

	// CatalogError — ошибка загрузки каталога агентов, если была.
	CatalogError string `json:"catalog_error,omitempty"`

	DurationMs int64 `json:"duration_ms"`
}

// Refresh проверяет backend'ы, перечитывает каталог и атомарно заменяет набор.
//
// Алгоритм:
// 1. Параллельно проверяем HTTP backend'ы (GET {endpoint}/) и загружаем каталог
// 2. Ошибка каталога — агенты прошлого набора остаются со статусом unknown
// 3. Новый набор заменяет старый целиком
//
// При отмене ctx набор не меняется.
func (r *Registry) Refresh(ctx context.Context) (*Report, error) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	start := r.now()

	previous := r.List()

	// 1. Параллельные проверки и каталог
	var catalog []domain.BackendDescriptor
	var catalogErr error

	fetchCatalog := r.cfg.CatalogURL != "" && r.cfg.APIKey != ""

	var g errgroup.Group
	g.SetLimit(r.cfg.ProbeConcurrency)

	if fetchCatalog {
		g.Go(func() error {
			catalog, catalogErr = r.fetchCatalog(ctx)
			return nil
		})
	}

	seeds := r.seeds()
	for i := range seeds {
		g.Go(func() error {
			seeds[i].Availability = r.probe(ctx, seeds[i].Endpoint)
			return nil
		})
	}

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		telemetry.RegistryRefreshes.WithLabelValues("cancelled").Inc()
		return nil, fmt.Errorf("refresh registry: %w", err)
	}

	// Каталог может содержать HTTP серверы: проверяем их так же
	var g2 errgroup.Group
	g2.SetLimit(r.cfg.ProbeConcurrency)
	for i := range catalog {
		if catalog[i].IsHTTP() {
			g2.Go(func() error {
				catalog[i].Availability = r.probe(ctx, catalog[i].Endpoint)
				return nil
			})
		}
	}
	_ = g2.Wait()

	// 2. Собираем новый набор
	checkedAt := r.now().UTC()
	next := make(map[string]domain.BackendDescriptor, len(seeds)+len(catalog))

	for _, d := range seeds {
		d.CheckedAt = &checkedAt
		next[d.ID] = d
	}

	switch {
	case catalogErr != nil:
		// Прошлые записи каталога остаются, но их состояние неизвестно
		for _, d := range previous {
			if _, seeded := next[d.ID]; seeded || !fromCatalog(d, r.cfg) {
				continue
			}
			d.Availability = domain.AvailabilityUnknown
			d.CheckedAt = &checkedAt
			next[d.ID] = d
		}
		r.logger.Warn("agent catalog unavailable, keeping previous entries", "error", catalogErr)

	default:
		for _, d := range catalog {
			if _, seeded := next[d.ID]; seeded {
				continue
			}
			d.CheckedAt = &checkedAt
			next[d.ID] = d
		}
	}

	// 3. Атомарная замена
	r.mu.Lock()
	r.backends = next
	r.mu.Unlock()

	report := r.report(next, catalogErr, start)
	r.updateMetrics(next)

	result := "ok"
	if catalogErr != nil {
		result = "partial"
	}
	telemetry.RegistryRefreshes.WithLabelValues(result).Inc()

	r.logger.Info("registry refreshed",
		"total", report.Total,
		"available", report.Available,
		"unavailable", report.Unavailable,
		"unknown", report.Unknown,
		"duration_ms", report.DurationMs,
	)

	return report, nil
}

// fromCatalog сообщает, получен ли дескриптор из каталога
// (а не из статической конфигурации).
func fromCatalog(d domain.BackendDescriptor, cfg Config) bool {
	if d.Kind == domain.BackendKindRemoteAgent {
		return true
	}
	if d.Kind == domain.BackendKindLocal {
		return false
	}
	for _, s := range cfg.Servers {
		if s.Name == d.ID {
			return false
		}
	}
	return true
}

// probe проверяет HTTP backend запросом GET {endpoint}/.
//
// 2xx — available, другой статус — unavailable, ошибка сети — unknown.
func (r *Registry) probe(ctx context.Context, endpoint string) domain.Availability {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/", nil)
	if err != nil {
		return domain.AvailabilityUnknown
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.Debug("probe failed", "endpoint", endpoint, "error", err)
		return domain.AvailabilityUnknown
	}
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return domain.AvailabilityAvailable
	}
	return domain.AvailabilityUnavailable
}

// report считает итог по новому набору.
func (r *Registry) report(backends map[string]domain.BackendDescriptor, catalogErr error, start time.Time) *Report {
	report := &Report{
		Total:      len(backends),
		DurationMs: r.now().Sub(start).Milliseconds(),
	}
	if catalogErr != nil {
		report.CatalogError = catalogErr.Error()
	}

	for _, d := range backends {
		switch d.Availability {
		case domain.AvailabilityAvailable:
			report.Available++
		case domain.AvailabilityUnavailable:
			report.Unavailable++
		default:
			report.Unknown++
		}
	}
	return report
}

// updateMetrics обновляет gauge реестра.
func (r *Registry) updateMetrics(backends map[string]domain.BackendDescriptor) {
	telemetry.RegistryBackends.Reset()
	for _, d := range backends {
		telemetry.RegistryBackends.WithLabelValues(string(d.Kind), string(d.Availability)).Inc()
	}
}
