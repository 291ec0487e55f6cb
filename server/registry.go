package server

import (
	"errors"
	"math"

	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"

	"shooterd/wire"
)

var (
	ErrUnknownConnection     = errors.New("unknown connection")
	ErrParticipantsExhausted = errors.New("participant ids exhausted")
)

// Registry 维护连接与玩家编号的对应关系。
// 编号从 1 开始单调递增，进程生命周期内不复用。
type Registry struct {
	mu     deadlock.Mutex
	next   uint32
	byConn map[uuid.UUID]wire.ParticipantID
}

func NewRegistry() *Registry {
	return &Registry{
		next:   1,
		byConn: make(map[uuid.UUID]wire.ParticipantID),
	}
}

// Register 为连接分配新的玩家编号；重复注册同一连接返回已有编号
func (r *Registry) Register(conn uuid.UUID) (wire.ParticipantID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byConn[conn]; ok {
		return id, nil
	}
	if r.next > math.MaxUint16 {
		return 0, ErrParticipantsExhausted
	}
	id := wire.ParticipantID(r.next)
	r.next++
	r.byConn[conn] = id
	return id, nil
}

// Remove 幂等：移除不存在的连接不是错误
func (r *Registry) Remove(conn uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byConn, conn)
}

func (r *Registry) Lookup(conn uuid.UUID) (wire.ParticipantID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byConn[conn]
	if !ok {
		return 0, ErrUnknownConnection
	}
	return id, nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byConn)
}
