package backend

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shaiso/Relay/internal/domain"
	"github.com/shaiso/Relay/internal/telemetry"
)

const (
	// agentMethod — JSON-RPC метод отправки сообщения агенту.
	agentMethod = "message/send"

	// rpcUnauthorized — код JSON-RPC ошибки отказа в доступе.
	rpcUnauthorized = -32001

	// handshakeTimeout — таймаут WebSocket handshake.
	handshakeTimeout = 15 * time.Second

	// maxFrameBytes — ограничение размера входящего кадра.
	maxFrameBytes = 8 << 20
)

// AgentClientConfig — конфигурация AgentClient.
type AgentClientConfig struct {
	// ServerURL — базовый ws(s):// URL агентов.
	ServerURL string

	// APIKey — ключ доступа. Без него вызов завершается ошибкой auth до соединения.
	APIKey string

	// Pool — пул соединений (опционально; nil — новое соединение на каждый вызов).
	Pool *Pool

	// Dialer — WebSocket dialer (опционально).
	Dialer *websocket.Dialer

	Logger *slog.Logger
}

// AgentClient — клиент удалённых агентов.
//
// Один вызов — один обмен кадрами по WebSocket:
//
//	→ {"jsonrpc": "2.0", "id": 1, "method": "message/send", "params": {"message": {...}}}
//	← {"jsonrpc": "2.0", "id": 1, "result": {"message": {...}}}
//
// Кадры-уведомления без id пропускаются. Неразборчивый кадр, чужой id или
// закрытие соединения посреди обмена — ошибка transport; незавершённый кадр
// никогда не интерпретируется.
type AgentClient struct {
	serverURL string
	apiKey    string
	pool      *Pool
	dialer    *websocket.Dialer
	logger    *slog.Logger
}

// NewAgentClient создаёт AgentClient.
func NewAgentClient(cfg AgentClientConfig) *AgentClient {
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		}
	}

	return &AgentClient{
		serverURL: strings.TrimRight(cfg.ServerURL, "/"),
		apiKey:    cfg.APIKey,
		pool:      cfg.Pool,
		dialer:    dialer,
		logger:    telemetry.OrDefault(cfg.Logger),
	}
}

// rpcRequest — исходящий JSON-RPC кадр.
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Method  string      `json:"method"`
	Params  agentParams `json:"params"`
}

// agentParams — параметры message/send.
type agentParams struct {
	Message chatMessage `json:"message"`
}

// rpcResponse — входящий JSON-RPC кадр.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError — JSON-RPC ошибка.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// agentResult — полезная нагрузка ответа агента.
type agentResult struct {
	Message  *chatMessage `json:"message"`
	Text     string       `json:"text"`
	Response string       `json:"response"`
}

// Invoke отправляет сообщение агенту и ждёт ответный кадр.
func (c *AgentClient) Invoke(ctx context.Context, backend domain.BackendDescriptor, req *Request) (*Response, error) {
	// 1. Без ключа не соединяемся
	if c.apiKey == "" {
		return nil, domain.NewBackendError(domain.KindAuth, backend.ID, "agent credential is not configured", nil)
	}

	agentID := domain.NormalizeAgentID(backend.ID)

	wsURL, key, err := c.agentURL(backend, agentID, req.Parameters)
	if err != nil {
		return nil, domain.NewBackendError(domain.KindProtocol, agentID, "build agent url", err)
	}

	// 2. Берём соединение из пула или открываем новое
	conn, reused, err := c.acquire(ctx, key, wsURL, agentID)
	if err != nil {
		return nil, err
	}

	logger := c.logger.With("agent_id", agentID, "reused", reused)

	// 3. Обмен кадрами
	resp, err := conn.exchange(ctx, agentID, req)
	if err != nil && reused && conn.lostWhileIdle(ctx, err) {
		// Агент закрыл соединение, пока оно лежало в пуле: запрос до него не дошёл
		conn.close()
		logger.Debug("pooled agent connection lost, redialing", "error", err)

		ws, dialErr := c.dial(ctx, wsURL, agentID)
		if dialErr != nil {
			return nil, dialErr
		}
		conn = &agentConn{ws: ws, key: key, lastUsed: time.Now()}
		reused = false
		logger = c.logger.With("agent_id", agentID, "reused", reused)

		resp, err = conn.exchange(ctx, agentID, req)
	}
	if err != nil {
		// Соединение после ошибки не переиспользуется
		conn.close()
		logger.Debug("agent exchange failed", "error", err)
		return nil, err
	}

	c.release(conn)

	resp.Metadata["connection_reused"] = reused
	logger.Debug("agent responded", "bytes", len(resp.Text))

	return resp, nil
}

// agentURL формирует URL соединения и ключ пула.
//
// Endpoint дескриптора используется, если это ws(s):// URL,
// иначе — {ServerURL}/{owner}/{name} без ведущего "@". Параметры передаются как base64(JSON) в config.
func (c *AgentClient) agentURL(backend domain.BackendDescriptor, agentID string, params map[string]any) (string, string, error) {
	base := backend.Endpoint
	if !strings.HasPrefix(base, "ws://") && !strings.HasPrefix(base, "wss://") {
		base = c.serverURL + "/" + domain.AgentPath(agentID)
	}
	base = strings.TrimRight(base, "/")
	if !strings.HasSuffix(base, "/ws") {
		base += "/ws"
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", "", err
	}

	configJSON, err := json.Marshal(params)
	if err != nil {
		return "", "", fmt.Errorf("marshal config: %w", err)
	}
	if params == nil {
		configJSON = []byte("{}")
	}
	config := base64.StdEncoding.EncodeToString(configJSON)

	q := u.Query()
	q.Set("config", config)
	q.Set("api_key", c.apiKey)
	u.RawQuery = q.Encode()

	return u.String(), agentID + "#" + config, nil
}

// acquire возвращает соединение для ключа.
func (c *AgentClient) acquire(ctx context.Context, key, wsURL, agentID string) (*agentConn, bool, error) {
	if c.pool != nil {
		if conn := c.pool.get(key); conn != nil {
			return conn, true, nil
		}
	}

	ws, err := c.dial(ctx, wsURL, agentID)
	if err != nil {
		return nil, false, err
	}

	return &agentConn{ws: ws, key: key, lastUsed: time.Now()}, false, nil
}

// release возвращает исправное соединение в пул или закрывает его.
func (c *AgentClient) release(conn *agentConn) {
	if c.pool == nil || conn.stale {
		conn.close()
		return
	}
	c.pool.put(conn)
}

// dial открывает WebSocket соединение.
// URL содержит ключ и в ошибки не попадает.
func (c *AgentClient) dial(ctx context.Context, wsURL, agentID string) (*websocket.Conn, error) {
	ws, resp, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			berr := domain.NewBackendError(domain.KindAuth, agentID,
				fmt.Sprintf("handshake rejected with HTTP %d", resp.StatusCode), nil)
			berr.StatusCode = resp.StatusCode
			return nil, berr
		}
		if resp != nil {
			berr := domain.NewBackendError(domain.KindUnreachable, agentID,
				fmt.Sprintf("handshake failed with HTTP %d", resp.StatusCode), nil)
			berr.StatusCode = resp.StatusCode
			return nil, berr
		}
		return nil, classifyCallError(ctx, agentID, "dial agent", err, domain.KindUnreachable)
	}

	ws.SetReadLimit(maxFrameBytes)
	return ws, nil
}

// exchange отправляет один запрос и читает ответ с тем же id.
func (c *agentConn) exchange(ctx context.Context, agentID string, req *Request) (*Response, error) {
	c.nextID++
	id := c.nextID
	c.answered = false

	// Deadline контекста ограничивает и запись, и чтение
	deadline, _ := ctx.Deadline()
	_ = c.ws.SetWriteDeadline(deadline)
	_ = c.ws.SetReadDeadline(deadline)

	// Отмена прерывает блокирующее чтение
	stop := context.AfterFunc(ctx, func() {
		now := time.Now()
		_ = c.ws.SetReadDeadline(now)
		_ = c.ws.SetWriteDeadline(now)
	})
	defer func() {
		// Отмена сработала одновременно с ответом: deadline мог быть сдвинут
		if !stop() {
			c.stale = true
		}
	}()

	frame := rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  agentMethod,
		Params:  buildAgentParams(req),
	}
	if err := c.ws.WriteJSON(frame); err != nil {
		return nil, classifyCallError(ctx, agentID, "write frame", err, domain.KindTransport)
	}

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, classifyCallError(ctx, agentID, "read frame", err, domain.KindTransport)
		}
		c.answered = true

		var msg rpcResponse
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, domain.NewBackendError(domain.KindTransport, agentID, "malformed frame", err)
		}

		if msg.ID == nil {
			// Уведомление агента (прогресс и т.п.)
			if msg.Method != "" {
				continue
			}
			return nil, domain.NewBackendError(domain.KindTransport, agentID, "frame without id", nil)
		}
		if *msg.ID != id {
			return nil, domain.NewBackendError(domain.KindTransport, agentID,
				fmt.Sprintf("response id mismatch: expected %d, got %d", id, *msg.ID), nil)
		}

		if msg.Error != nil {
			kind := domain.KindProtocol
			if msg.Error.Code == rpcUnauthorized {
				kind = domain.KindAuth
			}
			return nil, domain.NewBackendError(kind, agentID,
				fmt.Sprintf("agent error %d: %s", msg.Error.Code, msg.Error.Message), nil)
		}

		return parseAgentResult(agentID, id, msg.Result)
	}
}

// lostWhileIdle сообщает, что обмен сорвался до первого кадра агента
// по причине транспорта, а не отмены вызова.
func (c *agentConn) lostWhileIdle(ctx context.Context, err error) bool {
	return !c.answered && ctx.Err() == nil && KindOf(err) == domain.KindTransport
}

// buildAgentParams формирует параметры message/send.
// Агент получает только сообщение шага.
func buildAgentParams(req *Request) agentParams {
	return agentParams{
		Message: newChatMessage(req.Role.OrDefault(), "text", req.Content),
	}
}

// parseAgentResult нормализует result ответа агента.
func parseAgentResult(agentID string, requestID int64, raw json.RawMessage) (*Response, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, domain.NewBackendError(domain.KindProtocol, agentID, "empty result", nil)
	}

	metadata := map[string]any{
		"agent_id":   agentID,
		"request_id": requestID,
	}

	// Результат-строка
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return &Response{Text: text, Metadata: metadata}, nil
	}

	var result agentResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, domain.NewBackendError(domain.KindProtocol, agentID, "malformed result", err)
	}

	var rawResult map[string]any
	if err := json.Unmarshal(raw, &rawResult); err == nil {
		metadata["raw_result"] = rawResult
	}

	switch {
	case result.Message != nil:
		text = joinText(result.Message.Content.Parts)
	case result.Text != "":
		text = result.Text
	case result.Response != "":
		text = result.Response
	default:
		return nil, domain.NewBackendError(domain.KindProtocol, agentID, "result has no message", nil)
	}

	return &Response{Text: text, Metadata: metadata}, nil
}
