package server

import (
	"math"

	"shooterd/wire"
)

// EntityHandle 仿真层内实体的不透明句柄
type EntityHandle uint32

// Player 竞技场内的玩家实体（服务端权威状态）
type Player struct {
	ID     wire.ParticipantID
	Handle EntityHandle
	X      float64
	Y      float64
	ZAngle float32
}

// State 转为广播用的轻量状态
func (p *Player) State() wire.PlayerState {
	return wire.PlayerState{
		PlayerID: uint16(p.ID),
		ZAngle:   p.ZAngle,
		Pos:      wire.Vec2{X: float32(p.X), Y: float32(p.Y)},
	}
}

// direction 将 WASD 位掩码转为单位方向向量；相反按键互相抵消
func direction(keys wire.Keys) (dx, dy float64) {
	if keys.Has(wire.KeyForward) {
		dy++
	}
	if keys.Has(wire.KeyBack) {
		dy--
	}
	if keys.Has(wire.KeyRight) {
		dx++
	}
	if keys.Has(wire.KeyLeft) {
		dx--
	}
	if dx != 0 && dy != 0 {
		dx /= math.Sqrt2
		dy /= math.Sqrt2
	}
	return dx, dy
}
