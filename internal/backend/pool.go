package backend

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Значения пула по умолчанию.
const (
	defaultIdleTimeout   = 2 * time.Minute
	defaultMaxIdlePerKey = 4
)

// agentConn — открытое соединение с агентом.
//
// Соединение используется одним вызовом за раз: пока оно выдано
// из пула, других владельцев у него нет.
type agentConn struct {
	ws       *websocket.Conn
	key      string
	nextID   int64
	lastUsed time.Time

	// stale — соединение нельзя возвращать в пул.
	stale bool

	// answered — в текущем обмене получен хотя бы один кадр.
	answered bool
}

// close закрывает соединение, отправив close кадр без ожидания ответа.
func (c *agentConn) close() {
	deadline := time.Now().Add(time.Second)
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	_ = c.ws.Close()
}

// PoolConfig — конфигурация Pool.
type PoolConfig struct {
	// IdleTimeout — простаивающее дольше соединение не переиспользуется (default: 2m).
	IdleTimeout time.Duration

	// MaxIdlePerKey — сколько свободных соединений хранить на ключ (default: 4).
	MaxIdlePerKey int
}

// Pool — пул WebSocket соединений удалённых агентов.
//
// Ключ — идентификатор агента вместе с его конфигурацией.
// Соединение, на котором случилась ошибка, в пул не возвращается.
// Потокобезопасен.
type Pool struct {
	mu          sync.Mutex
	idle        map[string][]*agentConn
	idleTimeout time.Duration
	maxIdle     int
	closed      bool
	now         func() time.Time
}

// NewPool создаёт пустой пул.
func NewPool(cfg PoolConfig) *Pool {
	idleTimeout := cfg.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}

	maxIdle := cfg.MaxIdlePerKey
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdlePerKey
	}

	return &Pool{
		idle:        make(map[string][]*agentConn),
		idleTimeout: idleTimeout,
		maxIdle:     maxIdle,
		now:         time.Now,
	}
}

// get выдаёт свободное соединение для ключа или nil.
// Просроченные соединения закрываются.
func (p *Pool) get(key string) *agentConn {
	p.mu.Lock()
	defer p.mu.Unlock()

	conns := p.idle[key]
	now := p.now()

	for len(conns) > 0 {
		conn := conns[len(conns)-1]
		conns = conns[:len(conns)-1]

		if now.Sub(conn.lastUsed) > p.idleTimeout {
			go conn.close()
			continue
		}

		p.setIdle(key, conns)
		return conn
	}

	p.setIdle(key, conns)
	return nil
}

// put возвращает исправное соединение в пул.
func (p *Pool) put(conn *agentConn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || len(p.idle[conn.key]) >= p.maxIdle {
		go conn.close()
		return
	}

	conn.lastUsed = p.now()
	p.idle[conn.key] = append(p.idle[conn.key], conn)
}

// setIdle обновляет список свободных соединений ключа. Вызывается под mu.
func (p *Pool) setIdle(key string, conns []*agentConn) {
	if len(conns) == 0 {
		delete(p.idle, key)
		return
	}
	p.idle[key] = conns
}

// Len возвращает количество свободных соединений.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, conns := range p.idle {
		n += len(conns)
	}
	return n
}

// Close закрывает все свободные соединения. Выданные закроются при возврате.
func (p *Pool) Close() error {
	p.mu.Lock()
	idle := p.idle
	p.idle = make(map[string][]*agentConn)
	p.closed = true
	p.mu.Unlock()

	for _, conns := range idle {
		for _, conn := range conns {
			conn.close()
		}
	}
	return nil
}
