package server

import (
	"sync/atomic"
)

// Metrics 记录服务端运行期的关键指标（用于监控与调试）
type Metrics struct {
	TickCount          int64 // 统计的 Tick 次数
	TotalTickNs        int64 // Tick 累计耗时（纳秒）
	SnapshotsBroadcast int64 // 广播的快照次数
	Overflows          int64 // 因列表超长而丢弃的快照数

	ConnectionsAccepted int64
	Disconnects         int64
	MalformedMessages   int64 // 因消息格式错误而断开的连接数
	SendQueueFull       int64 // 因发送队列满被丢弃的帧数

	InputsAccepted    int64 // 进入仿真的输入事件数
	RateLimited       int64 // 因单 Tick 上限被丢弃的输入事件数
	ChanFullDiscarded int64 // 因通道满被丢弃的输入批次数
}

func (m *Metrics) IncSnapshots() { atomic.AddInt64(&m.SnapshotsBroadcast, 1) }
func (m *Metrics) IncOverflows() { atomic.AddInt64(&m.Overflows, 1) }
func (m *Metrics) IncAccepted() { atomic.AddInt64(&m.ConnectionsAccepted, 1) }
func (m *Metrics) IncDisconnects() { atomic.AddInt64(&m.Disconnects, 1) }
func (m *Metrics) IncMalformed() { atomic.AddInt64(&m.MalformedMessages, 1) }
func (m *Metrics) IncSendQueueFull() { atomic.AddInt64(&m.SendQueueFull, 1) }
func (m *Metrics) AddInputs(n int) { atomic.AddInt64(&m.InputsAccepted, int64(n)) }
func (m *Metrics) AddRateLimited(n int) { atomic.AddInt64(&m.RateLimited, int64(n)) }
func (m *Metrics) IncChanFullDiscarded() { atomic.AddInt64(&m.ChanFullDiscarded, 1) }
func (m *Metrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *Metrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":           tick,
		"avg_tick_ms":          avgMs,
		"snapshots_broadcast":  atomic.LoadInt64(&m.SnapshotsBroadcast),
		"overflows":            atomic.LoadInt64(&m.Overflows),
		"connections_accepted": atomic.LoadInt64(&m.ConnectionsAccepted),
		"disconnects":          atomic.LoadInt64(&m.Disconnects),
		"malformed_messages":   atomic.LoadInt64(&m.MalformedMessages),
		"send_queue_full":      atomic.LoadInt64(&m.SendQueueFull),
		"inputs_accepted":      atomic.LoadInt64(&m.InputsAccepted),
		"rate_limited":         atomic.LoadInt64(&m.RateLimited),
		"chan_full_discarded":  atomic.LoadInt64(&m.ChanFullDiscarded),
	}
}
