package client

import "shooterd/wire"

// SnapshotBuffer 保存最近两个快照，用于按服务端 Tick 插值渲染
type SnapshotBuffer struct {
	prev *wire.WorldState
	next *wire.WorldState
}

// Push 加入新快照；乱序或重复的旧快照被忽略并返回 false
func (b *SnapshotBuffer) Push(ws wire.WorldState) bool {
	if b.next != nil && ws.ServerTickSeq <= b.next.ServerTickSeq {
		return false
	}
	b.prev, b.next = b.next, &ws
	return true
}

// Latest 最近收到的快照
func (b *SnapshotBuffer) Latest() (wire.WorldState, bool) {
	if b.next == nil {
		return wire.WorldState{}, false
	}
	return *b.next, true
}

// Sample 返回 tick 时刻（可为小数）的玩家状态。
// 只有一个快照时直接返回它；tick 超出两快照区间时取端点。
func (b *SnapshotBuffer) Sample(tick float64) ([]wire.PlayerState, bool) {
	if b.next == nil {
		return nil, false
	}
	if b.prev == nil {
		return b.next.Players, true
	}
	from := float64(b.prev.ServerTickSeq)
	span := float64(b.next.ServerTickSeq) - from
	f := float32((tick - from) / span)
	return Interpolate(b.prev.Players, b.next.Players, f), true
}
