package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shaiso/Relay/internal/domain"
)

// Значения по умолчанию.
const (
	DefaultAPIPort          = "8001"
	DefaultWorkerPort       = "8002"
	DefaultLocalServerURL   = "http://mcp_server:8000"
	DefaultRegistryURL      = "https://registry.smithery.ai"
	DefaultAgentServerURL   = "wss://server.smithery.ai"
	DefaultModel            = "llama3:latest"
	DefaultBackendTimeout   = 60 * time.Second
	DefaultWorkflowTimeout  = 10 * time.Minute
	DefaultMaxSteps         = 32
	DefaultRefreshSchedule  = "@every 5m"
	DefaultAgentIdleTimeout = 2 * time.Minute
	DefaultRetryDelayMs     = 500
)

// Ошибки конфигурации.
var (
	// ErrInvalidConfig — значение переменной окружения некорректно.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config — конфигурация сервисов Relay.
//
// Все значения берутся из переменных окружения; пустые переменные
// заменяются значениями по умолчанию.
type Config struct {
	// APIPort — порт HTTP API (API_PORT).
	APIPort string

	// WorkerPort — порт /healthz и /metrics worker'а (WORKER_PORT).
	WorkerPort string

	// LocalServerURL — локальный chat backend по умолчанию (MCP_SERVER_URL).
	LocalServerURL string

	// ExternalServers — статический список внешних серверов (EXTERNAL_MCP_SERVERS).
	ExternalServers []ExternalServer

	// AgentAPIKey — ключ доступа к реестру и агентам (SMITHERY_API_KEY).
	AgentAPIKey string

	// AgentRegistryURL — каталог удалённых агентов (SMITHERY_REGISTRY_URL).
	AgentRegistryURL string

	// AgentServerURL — базовый WebSocket URL агентов (SMITHERY_SERVER_URL).
	AgentServerURL string

	// AllowAdHocAgents — разрешить агентов вне каталога (ALLOW_ADHOC_AGENTS).
	AllowAdHocAgents bool

	// DefaultModel — модель для HTTP backend'ов (DEFAULT_MODEL).
	DefaultModel string

	// BackendTimeout — таймаут одного вызова backend'а (BACKEND_TIMEOUT_SEC).
	BackendTimeout time.Duration

	// WorkflowTimeout — общий лимит времени run (WORKFLOW_TIMEOUT_SEC).
	WorkflowTimeout time.Duration

	// MaxSteps — максимальное количество шагов (MAX_WORKFLOW_STEPS).
	MaxSteps int

	// RefreshSchedule — cron расписание обновления реестра (REGISTRY_REFRESH_SCHEDULE).
	RefreshSchedule string

	// AgentPoolEnabled — переиспользовать WebSocket соединения (AGENT_POOL_ENABLED).
	AgentPoolEnabled bool

	// AgentIdleTimeout — время жизни простаивающего соединения (AGENT_IDLE_TIMEOUT_SEC).
	AgentIdleTimeout time.Duration

	// Retry — политика retry по умолчанию (BACKEND_RETRY_*).
	Retry domain.RetryPolicy

	// DatabaseURL — журнал runs в PostgreSQL (DB_URL). Пусто — журнал выключен.
	DatabaseURL string

	// RabbitMQURL — очередь асинхронных workflow (RABBITMQ_URL). Пусто — выключено.
	RabbitMQURL string
}

// ExternalServer — элемент статического списка внешних серверов.
type ExternalServer struct {
	Name string
	URL  string
}

// Load читает конфигурацию из окружения процесса.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom читает конфигурацию через getenv.
func LoadFrom(getenv func(string) string) (*Config, error) {
	env := envReader{getenv: getenv}

	cfg := &Config{
		APIPort:          env.str("API_PORT", DefaultAPIPort),
		WorkerPort:       env.str("WORKER_PORT", DefaultWorkerPort),
		LocalServerURL:   strings.TrimRight(env.str("MCP_SERVER_URL", DefaultLocalServerURL), "/"),
		AgentAPIKey:      env.str("SMITHERY_API_KEY", ""),
		AgentRegistryURL: strings.TrimRight(env.str("SMITHERY_REGISTRY_URL", DefaultRegistryURL), "/"),
		AgentServerURL:   strings.TrimRight(env.str("SMITHERY_SERVER_URL", DefaultAgentServerURL), "/"),
		AllowAdHocAgents: env.boolean("ALLOW_ADHOC_AGENTS", false),
		DefaultModel:     env.str("DEFAULT_MODEL", DefaultModel),
		BackendTimeout:   env.seconds("BACKEND_TIMEOUT_SEC", DefaultBackendTimeout),
		WorkflowTimeout:  env.seconds("WORKFLOW_TIMEOUT_SEC", DefaultWorkflowTimeout),
		MaxSteps:         env.integer("MAX_WORKFLOW_STEPS", DefaultMaxSteps),
		RefreshSchedule:  env.str("REGISTRY_REFRESH_SCHEDULE", DefaultRefreshSchedule),
		AgentPoolEnabled: env.boolean("AGENT_POOL_ENABLED", true),
		AgentIdleTimeout: env.seconds("AGENT_IDLE_TIMEOUT_SEC", DefaultAgentIdleTimeout),
		Retry: domain.RetryPolicy{
			MaxAttempts:    env.integer("BACKEND_RETRY_MAX_ATTEMPTS", 1),
			Backoff:        env.str("BACKEND_RETRY_BACKOFF", "exponential"),
			InitialDelayMs: env.integer("BACKEND_RETRY_INITIAL_DELAY_MS", DefaultRetryDelayMs),
			MaxDelayMs:     env.integer("BACKEND_RETRY_MAX_DELAY_MS", 10_000),
		},
		DatabaseURL: env.str("DB_URL", ""),
		RabbitMQURL: env.str("RABBITMQ_URL", ""),
	}

	servers, err := ParseExternalServers(env.str("EXTERNAL_MCP_SERVERS", ""))
	if err != nil {
		env.errs = append(env.errs, err)
	}
	cfg.ExternalServers = servers

	if err := env.err(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate проверяет согласованность значений.
func (c *Config) Validate() error {
	if _, err := parseHTTPURL(c.LocalServerURL); err != nil {
		return fmt.Errorf("%w: MCP_SERVER_URL: %v", ErrInvalidConfig, err)
	}
	if _, err := parseHTTPURL(c.AgentRegistryURL); err != nil {
		return fmt.Errorf("%w: SMITHERY_REGISTRY_URL: %v", ErrInvalidConfig, err)
	}

	u, err := url.Parse(c.AgentServerURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("%w: SMITHERY_SERVER_URL must be a ws:// or wss:// URL", ErrInvalidConfig)
	}

	if c.BackendTimeout <= 0 {
		return fmt.Errorf("%w: BACKEND_TIMEOUT_SEC must be positive", ErrInvalidConfig)
	}
	if c.WorkflowTimeout <= 0 {
		return fmt.Errorf("%w: WORKFLOW_TIMEOUT_SEC must be positive", ErrInvalidConfig)
	}
	if c.MaxSteps <= 0 {
		return fmt.Errorf("%w: MAX_WORKFLOW_STEPS must be positive", ErrInvalidConfig)
	}
	if c.Retry.MaxAttempts < 1 || c.Retry.MaxAttempts > domain.MaxRetryAttempts {
		return fmt.Errorf("%w: BACKEND_RETRY_MAX_ATTEMPTS must be between 1 and %d",
			ErrInvalidConfig, domain.MaxRetryAttempts)
	}
	switch c.Retry.Backoff {
	case "fixed", "exponential":
	default:
		return fmt.Errorf("%w: BACKEND_RETRY_BACKOFF must be fixed or exponential", ErrInvalidConfig)
	}

	return nil
}

// ParseExternalServers разбирает список "url" или "name=url" через запятую.
// Для элемента без имени именем служит сам URL.
func ParseExternalServers(raw string) ([]ExternalServer, error) {
	var servers []ExternalServer
	seen := make(map[string]bool)

	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		name, rawURL := item, item
		if i := strings.Index(item, "="); i > 0 && !strings.Contains(item[:i], "://") {
			name = strings.TrimSpace(item[:i])
			rawURL = strings.TrimSpace(item[i+1:])
		}
		rawURL = strings.TrimRight(rawURL, "/")
		if name == item {
			name = rawURL
		}

		if _, err := parseHTTPURL(rawURL); err != nil {
			return nil, fmt.Errorf("%w: EXTERNAL_MCP_SERVERS entry %q: %v", ErrInvalidConfig, item, err)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: EXTERNAL_MCP_SERVERS has duplicate name %q", ErrInvalidConfig, name)
		}
		seen[name] = true

		servers = append(servers, ExternalServer{Name: name, URL: rawURL})
	}

	return servers, nil
}

// parseHTTPURL проверяет, что строка — абсолютный http(s) URL.
func parseHTTPURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("expected http(s) URL, got %q", raw)
	}
	return u, nil
}

// envReader читает типизированные значения и копит ошибки разбора.
type envReader struct {
	getenv func(string) string
	errs   []error
}

func (e *envReader) str(key, def string) string {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *envReader) integer(key string, def int) int {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, key, v))
		return def
	}
	return n
}

func (e *envReader) boolean(key string, def bool) bool {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidConfig, key, v))
		return def
	}
	return b
}

func (e *envReader) seconds(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: %s=%q is not a number of seconds", ErrInvalidConfig, key, v))
		return def
	}
	return time.Duration(n) * time.Second
}

func (e *envReader) err() error {
	return errors.Join(e.errs...)
}
