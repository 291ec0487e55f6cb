package server

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"shooterd/wire"
)

// Conn 一个客户端 TCP 连接：固定大小的接收缓冲、按连接的 Framer、有序发送队列。
// 由 Multiplexer 独占，Registry 只通过 ID 引用它。
type Conn struct {
	ID          uuid.UUID
	Participant wire.ParticipantID

	nc     net.Conn
	buf    []byte
	framer *wire.Framer // 仅由多路复用主循环访问

	send      chan []byte
	quit      chan struct{}
	closeOnce sync.Once
}

func newConn(nc net.Conn, opts MultiplexerOptions) *Conn {
	return &Conn{
		ID:     uuid.New(),
		nc:     nc,
		buf:    make([]byte, opts.ReadBufferSize),
		framer: wire.NewFramer(opts.MaxMessageSize),
		send:   make(chan []byte, opts.SendQueueSize),
		quit:   make(chan struct{}),
	}
}

func (c *Conn) RemoteAddr() string { return c.nc.RemoteAddr().String() }

// Send 将帧压入发送队列（非阻塞）；连接已关闭或队列满时返回 false
func (c *Conn) Send(frame []byte) bool {
	select {
	case <-c.quit:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// close 幂等：停止写协程并关闭底层连接（读协程随之退出）
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.quit)
		_ = c.nc.Close()
	})
}

// readPump 独立协程：每次读取一个分片，复制后交给主循环
func (c *Conn) readPump(m *Multiplexer) {
	for {
		n, err := c.nc.Read(c.buf)
		if n > 0 {
			chunk := append([]byte(nil), c.buf[:n]...)
			if !m.post(event{kind: eventData, conn: c, chunk: chunk}) {
				return
			}
		}
		if err == nil && n == 0 {
			err = io.EOF
		}
		if err != nil {
			m.post(event{kind: eventClosed, conn: c, err: err})
			return
		}
	}
}

// writePump 独立协程：按提交顺序写出；写失败等同于读失败
func (c *Conn) writePump(m *Multiplexer, timeout time.Duration) {
	for {
		select {
		case <-c.quit:
			return
		case frame := <-c.send:
			if timeout > 0 {
				_ = c.nc.SetWriteDeadline(time.Now().Add(timeout))
			}
			if _, err := c.nc.Write(frame); err != nil {
				m.post(event{kind: eventClosed, conn: c, err: err})
				return
			}
		}
	}
}
