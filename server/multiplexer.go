package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"

	"shooterd/wire"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

type MultiplexerOptions struct {
	ReadBufferSize int
	MaxMessageSize int
	SendQueueSize  int
	WriteTimeout   time.Duration
}

type eventKind int

const (
	eventAccepted eventKind = iota
	eventData
	eventClosed
)

// event 各个读/写/监听协程投递给主循环的就绪事件
type event struct {
	kind  eventKind
	nc    net.Conn
	conn  *Conn
	chunk []byte
	err   error
}

// Multiplexer 持有监听端口与全部在线连接。
// 所有连接状态只在 Serve 的主循环中修改；广播用的在线列表另由读写锁保护。
type Multiplexer struct {
	ln       net.Listener
	registry *Registry
	sink     InputSink
	log      *zap.SugaredLogger
	metrics  *Metrics
	opts     MultiplexerOptions

	events chan event
	done   chan struct{}

	mu    deadlock.RWMutex
	conns map[wire.ParticipantID]*Conn
}

func NewMultiplexer(ln net.Listener, registry *Registry, sink InputSink, opts MultiplexerOptions, log *zap.SugaredLogger, metrics *Metrics) *Multiplexer {
	return &Multiplexer{
		ln:       ln,
		registry: registry,
		sink:     sink,
		log:      log,
		metrics:  metrics,
		opts:     opts,
		events:   make(chan event),
		done:     make(chan struct{}),
		conns:    make(map[wire.ParticipantID]*Conn),
	}
}

func (m *Multiplexer) Addr() net.Addr { return m.ln.Addr() }

// Serve 运行主循环直到 ctx 取消或监听失败。ctx 取消即唤醒信号，不依赖任何阻塞中的读操作返回。
func (m *Multiplexer) Serve(ctx context.Context) error {
	defer m.teardown()

	acceptErr := make(chan error, 1)
	go m.acceptLoop(acceptErr)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-acceptErr:
			return fmt.Errorf("accept: %w", err)
		case ev := <-m.events:
			switch ev.kind {
			case eventAccepted:
				m.handleAccept(ev.nc)
			case eventData:
				m.handleData(ev.conn, ev.chunk)
			case eventClosed:
				m.disconnect(ev.conn, ev.err)
			}
		}
	}
}

// acceptLoop 只有监听被关闭时才退出；其余 Accept 错误（如 EMFILE）按退避重试
func (m *Multiplexer) acceptLoop(errc chan<- error) {
	var backoff time.Duration
	for {
		nc, err := m.ln.Accept()
		if err != nil {
			select {
			case <-m.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				errc <- err
				return
			}
			backoff = min(max(2*backoff, minAcceptBackoff), maxAcceptBackoff)
			m.log.Warnw("accept failed, retrying", "error", err, "backoff", backoff)
			select {
			case <-time.After(backoff):
				continue
			case <-m.done:
				return
			}
		}
		backoff = 0
		if !m.post(event{kind: eventAccepted, nc: nc}) {
			_ = nc.Close()
			return
		}
	}
}

// post 投递事件；主循环已退出时返回 false
func (m *Multiplexer) post(ev event) bool {
	select {
	case m.events <- ev:
		return true
	case <-m.done:
		return false
	}
}

func (m *Multiplexer) handleAccept(nc net.Conn) {
	c := newConn(nc, m.opts)
	id, err := m.registry.Register(c.ID)
	if err != nil {
		m.log.Warnw("rejecting connection", "remote", nc.RemoteAddr().String(), "error", err)
		_ = nc.Close()
		return
	}
	c.Participant = id

	// 身份消息必须先于任何快照入队
	c.Send(wire.AppendFrame(nil, wire.AppendParticipantID(nil, id)))

	m.mu.Lock()
	m.conns[id] = c
	m.mu.Unlock()
	m.sink.Join(id)
	m.metrics.IncAccepted()

	go c.writePump(m, m.opts.WriteTimeout)
	go c.readPump(m)
	m.log.Infow("client connected", "participant", id, "conn", c.ID, "remote", c.RemoteAddr())
}

func (m *Multiplexer) handleData(c *Conn, chunk []byte) {
	id, err := m.registry.Lookup(c.ID)
	if err != nil {
		return // ErrUnknownConnection：已断开
	}

	bodies, err := c.framer.Feed(chunk)
	for _, body := range bodies {
		in, derr := wire.UnmarshalClientInput(body)
		if derr != nil {
			m.metrics.IncMalformed()
			m.disconnect(c, derr)
			return
		}
		m.sink.SubmitInput(id, in)
	}
	if err != nil {
		m.metrics.IncMalformed()
		m.disconnect(c, err)
	}
}

// disconnect 幂等：从注册表与在线列表移除并释放连接资源
func (m *Multiplexer) disconnect(c *Conn, cause error) {
	m.mu.Lock()
	cur, ok := m.conns[c.Participant]
	if ok && cur == c {
		delete(m.conns, c.Participant)
	}
	m.mu.Unlock()
	if !ok || cur != c {
		return
	}

	m.registry.Remove(c.ID)
	m.sink.Leave(c.Participant)
	c.close()
	m.metrics.IncDisconnects()

	if cause == nil || errors.Is(cause, io.EOF) || errors.Is(cause, net.ErrClosed) {
		m.log.Infow("client disconnected", "participant", c.Participant, "conn", c.ID)
		return
	}
	m.log.Warnw("client dropped", "participant", c.Participant, "conn", c.ID, "error", cause)
}

func (m *Multiplexer) teardown() {
	close(m.done)
	_ = m.ln.Close()

	m.mu.RLock()
	conns := make([]*Conn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.RUnlock()
	for _, c := range conns {
		m.disconnect(c, nil)
	}
}

// live 复制一份在线连接，避免持锁进行 I/O
func (m *Multiplexer) live() []*Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Conn, 0, len(m.conns))
	for _, c := range m.conns {
		out = append(out, c)
	}
	return out
}

// Broadcast 将同一帧发给所有在线连接
func (m *Multiplexer) Broadcast(frame []byte) {
	for _, c := range m.live() {
		if !c.Send(frame) {
			m.metrics.IncSendQueueFull()
		}
	}
}

// Send 发给指定玩家；玩家不在线或队列满时返回 false
func (m *Multiplexer) Send(id wire.ParticipantID, frame []byte) bool {
	m.mu.RLock()
	c, ok := m.conns[id]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	if !c.Send(frame) {
		m.metrics.IncSendQueueFull()
		return false
	}
	return true
}

func (m *Multiplexer) Participants() []wire.ParticipantID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]wire.ParticipantID, 0, len(m.conns))
	for id := range m.conns {
		out = append(out, id)
	}
	return out
}

func (m *Multiplexer) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}
