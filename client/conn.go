package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"shooterd/wire"
)

var ErrBadIdentity = errors.New("identity message must be exactly 2 bytes")

// Conn 阻塞式游戏客户端连接，非并发安全
type Conn struct {
	ID wire.ParticipantID

	nc     net.Conn
	framer *wire.Framer
	buf    []byte
	queue  [][]byte
}

// Dial 建立连接并读取服务端分配的玩家编号
func Dial(ctx context.Context, addr string) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c := &Conn{
		nc:     nc,
		framer: wire.NewFramer(0),
		buf:    make([]byte, 4096),
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = nc.SetReadDeadline(deadline)
		defer nc.SetReadDeadline(time.Time{})
	}

	body, err := c.next()
	if err != nil {
		_ = nc.Close()
		return nil, fmt.Errorf("read identity: %w", err)
	}
	if len(body) != wire.ParticipantSize {
		_ = nc.Close()
		return nil, ErrBadIdentity
	}
	c.ID, _ = wire.DecodeParticipantID(wire.NewReader(body))
	return c, nil
}

// next 返回下一条完整消息体，必要时从连接继续读取
func (c *Conn) next() ([]byte, error) {
	for len(c.queue) == 0 {
		n, err := c.nc.Read(c.buf)
		if n > 0 {
			bodies, ferr := c.framer.Feed(c.buf[:n])
			if ferr != nil {
				return nil, ferr
			}
			c.queue = append(c.queue, bodies...)
			continue
		}
		if err == nil {
			err = io.EOF
		}
		return nil, err
	}
	body := c.queue[0]
	c.queue = c.queue[1:]
	return body, nil
}

// SendInput 编码并发送一批输入
func (c *Conn) SendInput(in *wire.ClientInput) error {
	body, err := wire.AppendClientInput(nil, in)
	if err != nil {
		return err
	}
	_, err = c.nc.Write(wire.AppendFrame(nil, body))
	return err
}

// ReadSnapshot 阻塞读取下一个快照
func (c *Conn) ReadSnapshot() (wire.WorldState, error) {
	body, err := c.next()
	if err != nil {
		return wire.WorldState{}, err
	}
	return wire.UnmarshalWorldState(body)
}

func (c *Conn) SetReadDeadline(t time.Time) error { return c.nc.SetReadDeadline(t) }

func (c *Conn) Close() error { return c.nc.Close() }
