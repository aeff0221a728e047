package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/shaiso/Relay/internal/domain"
	"github.com/shaiso/Relay/internal/telemetry"
)

const (
	// chatPath — путь chat endpoint'а на HTTP backend'е.
	chatPath = "/v1/chat"

	// defaultContentType — тип содержимого сообщений по умолчанию.
	defaultContentType = "multimodal/html"

	// maxResponseBytes — ограничение размера тела ответа.
	maxResponseBytes = 8 << 20
)

// HTTPClientConfig — конфигурация HTTPClient.
type HTTPClientConfig struct {
	// AuthURL — URL реестра агентов. Запросы к его хосту получают
	// заголовок Authorization: Bearer APIKey.
	AuthURL string

	// APIKey — ключ для AuthURL.
	APIKey string

	// DefaultModel — модель, если шаг её не указал.
	DefaultModel string

	// HTTPClient — транспорт (опционально; таймауты задаются через context).
	HTTPClient *http.Client

	Logger *slog.Logger
}

// HTTPClient — клиент локального и внешних chat серверов.
//
// Запрос: POST {endpoint}/v1/chat
//
//	{"messages": [{"role": "user", "content": {"content_type": "multimodal/html",
//	  "parts": [{"type": "text", "text": "..."}]}}], "tools": [...], "model": "...", "parameters": {...}}
//
// Ответ: {"message": {"role": "assistant", "content": {"parts": [...]}}, "usage": {...}}.
// Текст ответа — конкатенация текстовых частей.
type HTTPClient struct {
	httpClient   *http.Client
	authHost     string
	apiKey       string
	defaultModel string
	logger       *slog.Logger
}

// NewHTTPClient создаёт HTTPClient.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	var authHost string
	if cfg.AuthURL != "" {
		if u, err := url.Parse(cfg.AuthURL); err == nil {
			authHost = u.Hostname()
		}
	}

	return &HTTPClient{
		httpClient:   httpClient,
		authHost:     authHost,
		apiKey:       cfg.APIKey,
		defaultModel: cfg.DefaultModel,
		logger:       telemetry.OrDefault(cfg.Logger),
	}
}

// chatPart — часть содержимого сообщения.
type chatPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// chatContent — содержимое сообщения.
type chatContent struct {
	ContentType string     `json:"content_type,omitempty"`
	Parts       []chatPart `json:"parts"`
}

// chatMessage — сообщение в формате chat API.
type chatMessage struct {
	Role    string      `json:"role"`
	Content chatContent `json:"content"`
}

// chatRequest — тело запроса к /v1/chat.
type chatRequest struct {
	Messages   []chatMessage    `json:"messages"`
	Tools      []map[string]any `json:"tools,omitempty"`
	Model      string           `json:"model,omitempty"`
	Parameters map[string]any   `json:"parameters,omitempty"`
}

// chatResponse — тело ответа /v1/chat.
type chatResponse struct {
	Message *chatMessage   `json:"message"`
	Model   string         `json:"model,omitempty"`
	Usage   map[string]any `json:"usage,omitempty"`
}

// Invoke отправляет chat запрос на backend.Endpoint.
func (c *HTTPClient) Invoke(ctx context.Context, backend domain.BackendDescriptor, req *Request) (*Response, error) {
	// 1. Собираем тело запроса
	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, domain.NewBackendError(domain.KindProtocol, backend.ID, "marshal request", err)
	}

	endpoint := strings.TrimRight(backend.Endpoint, "/") + chatPath

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewBackendError(domain.KindUnreachable, backend.ID, "create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	if c.requiresAuth(httpReq.URL) {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	// 2. Выполняем запрос
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyCallError(ctx, backend.ID, "send request", err, domain.KindUnreachable)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyCallError(ctx, backend.ID, "read response", err, domain.KindTransport)
	}

	// 3. Проверяем статус. Любой не-2xx, включая 401/403, — ошибка протокола
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		berr := domain.NewBackendError(domain.KindProtocol, backend.ID,
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(respBody), 200)), nil)
		berr.StatusCode = resp.StatusCode
		return nil, berr
	}

	// 4. Разбираем ответ
	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return nil, domain.NewBackendError(domain.KindProtocol, backend.ID, "malformed response body", err)
	}
	if chat.Message == nil {
		return nil, domain.NewBackendError(domain.KindProtocol, backend.ID, "response has no message", nil)
	}

	metadata := map[string]any{
		"status_code": resp.StatusCode,
		"role":        chat.Message.Role,
	}
	if chat.Model != "" {
		metadata["model"] = chat.Model
	}
	if len(chat.Usage) > 0 {
		metadata["usage"] = chat.Usage
	}

	c.logger.Debug("backend responded",
		"backend", backend.ID,
		"status", resp.StatusCode,
		"bytes", len(respBody),
	)

	return &Response{
		Text:     joinText(chat.Message.Content.Parts),
		Metadata: metadata,
	}, nil
}

// buildRequest преобразует Request в формат chat API.
func (c *HTTPClient) buildRequest(req *Request) chatRequest {
	messages := make([]chatMessage, 0, len(req.Messages)+1)
	for _, m := range req.Messages {
		messages = append(messages, newChatMessage(m.Role.OrDefault(), m.ContentType, m.Content))
	}
	messages = append(messages, newChatMessage(req.Role.OrDefault(), "", req.Content))

	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	return chatRequest{
		Messages:   messages,
		Tools:      req.Tools,
		Model:      model,
		Parameters: req.Parameters,
	}
}

// requiresAuth проверяет, относится ли URL к хосту реестра.
func (c *HTTPClient) requiresAuth(u *url.URL) bool {
	return c.apiKey != "" && c.authHost != "" && strings.EqualFold(u.Hostname(), c.authHost)
}

// newChatMessage создаёт сообщение из одной текстовой части.
func newChatMessage(role domain.Role, contentType, text string) chatMessage {
	if contentType == "" {
		contentType = defaultContentType
	}
	return chatMessage{
		Role: string(role),
		Content: chatContent{
			ContentType: contentType,
			Parts:       []chatPart{{Type: "text", Text: text}},
		},
	}
}

// joinText склеивает текстовые части сообщения.
func joinText(parts []chatPart) string {
	var sb strings.Builder
	for _, p := range parts {
		if p.Type == "text" || p.Type == "" {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// truncate обрезает строку до limit байт, не разрезая UTF-8 символ.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
