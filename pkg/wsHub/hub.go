package ws

import (
	"context"
	"errors"
	"sync"

	"github.com/BlowhardChen/diyue-geoengine/pkg/logger"
	wrap "github.com/BlowhardChen/diyue-geoengine/pkg/logger/wrapper"
	"github.com/google/uuid"
)

var (
	ErrEmptyConn      = errors.New("connection is empty")
	ErrConnIsNotFound = errors.New("connection not found")
	ErrNoClients      = errors.New("no connected clients")
)

// ConnectionHub хранит и управляет всеми активными WebSocket соединениями
type ConnectionHub struct {
	clients map[uuid.UUID]*Conn
	l       logger.Logger
	mu      sync.Mutex
	wg      sync.WaitGroup
}

func NewConnHub(l logger.Logger) *ConnectionHub {
	return &ConnectionHub{
		clients: make(map[uuid.UUID]*Conn),
		l:       l,
	}
}

// Add регистрирует новое соединение и возвращает количество клиентов после добавления.
func (h *ConnectionHub) Add(newConn *Conn) (int, error) {
	if newConn == nil {
		return 0, ErrEmptyConn
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[newConn.id]; !ok {
		h.wg.Add(1)
	}
	h.clients[newConn.id] = newConn

	return len(h.clients), nil
}

// Delete удаляет и закрывает соединение по ID.
// Возвращает количество оставшихся клиентов.
func (h *ConnectionHub) Delete(id uuid.UUID) (int, error) {
	h.mu.Lock()
	conn, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	left := len(h.clients)
	h.mu.Unlock()

	ctx := wrap.WithAction(context.Background(), "ws_connection_delete")
	if !ok {
		h.l.Debug(ctx, "delete called for unknown connection", "conn_id", id)
		return left, ErrConnIsNotFound
	}

	// закрываем вне лока
	if err := conn.Close(); err != nil {
		h.l.Debug(ctx, "failed to close conn", "conn_id", id, "error", err)
	}
	h.wg.Done()

	return left, nil
}

// Broadcast отправляет кадр всем клиентам. Ошибки отдельных соединений объединяются.
func (h *ConnectionHub) Broadcast(data []byte) error {
	clients := h.snapshot()
	if len(clients) == 0 {
		return ErrNoClients
	}

	var errs []error
	for _, conn := range clients {
		if err := conn.Send(data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close закрывает каждое websocket соединение
func (h *ConnectionHub) Close() {
	ctx := wrap.WithAction(context.Background(), "hub_close")

	for _, conn := range h.snapshot() {
		_, _ = h.Delete(conn.id)
	}

	h.wg.Wait()

	h.l.Info(ctx, "all websocket connections closed gracefully")
}

func (h *ConnectionHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *ConnectionHub) snapshot() []*Conn {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Conn, 0, len(h.clients))
	for _, conn := range h.clients {
		clients = append(clients, conn)
	}
	return clients
}
