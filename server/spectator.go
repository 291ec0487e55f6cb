package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"
)

// spectator 观战连接：只接收快照，不参与仿真
type spectator struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
}

// Enqueue 将快照压入队列（非阻塞，满则丢弃）
func (s *spectator) Enqueue(b []byte) {
	select {
	case s.send <- b:
	default:
		// 为了实时性，丢弃该快照（防止阻塞 Tick）
	}
}

// writePump 独立协程，负责从 send 队列写出二进制消息
func (s *spectator) writePump() {
	defer s.ws.Close()
	for {
		select {
		case <-s.done:
			_ = s.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case msg := <-s.send:
			_ = s.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := s.ws.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				return
			}
		}
	}
}

// readPump 只用于感知对端关闭；观战端发来的消息一律忽略
func (s *spectator) readPump(h *SpectatorHub) {
	defer h.remove(s)
	s.ws.SetReadLimit(512)
	for {
		if _, _, err := s.ws.ReadMessage(); err != nil {
			return
		}
	}
}

// SpectatorHub 通过 WebSocket 将每个快照的消息体推送给观战者
type SpectatorHub struct {
	log      *zap.SugaredLogger
	upgrader websocket.Upgrader

	mu      deadlock.RWMutex
	clients map[*spectator]struct{}
	closed  bool
}

func NewSpectatorHub(log *zap.SugaredLogger) *SpectatorHub {
	return &SpectatorHub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// 观战流只读，允许所有来源
				return true
			},
		},
		clients: make(map[*spectator]struct{}),
	}
}

// ServeHTTP WebSocket 接入：GET /ws
func (h *SpectatorHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("spectator upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	s := &spectator{ws: ws, send: make(chan []byte, 16), done: make(chan struct{})}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = ws.Close()
		return
	}
	h.clients[s] = struct{}{}
	h.mu.Unlock()

	h.log.Infow("spectator joined", "remote", r.RemoteAddr)
	go s.writePump()
	go s.readPump(h)
}

// Publish 实现 SnapshotPublisher
func (h *SpectatorHub) Publish(body []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.clients {
		s.Enqueue(body)
	}
}

func (h *SpectatorHub) remove(s *spectator) {
	h.mu.Lock()
	if _, ok := h.clients[s]; ok {
		delete(h.clients, s)
		close(s.done)
	}
	h.mu.Unlock()
}

func (h *SpectatorHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close 断开全部观战者，之后的接入直接关闭
func (h *SpectatorHub) Close() {
	h.mu.Lock()
	h.closed = true
	for s := range h.clients {
		delete(h.clients, s)
		close(s.done)
	}
	h.mu.Unlock()
}
