package server

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"

	"shooterd/wire"
)

// State Tick 协调器的状态
type State int32

const (
	StateIdle                  State = iota // 没有待实体化的玩家
	StateApplyingRegistrations              // 正在实体化新加入的玩家
)

func (s State) String() string {
	if s == StateApplyingRegistrations {
		return "applying-registrations"
	}
	return "idle"
}

// Broadcaster 将编码好的帧写给在线连接
type Broadcaster interface {
	Broadcast(frame []byte)
	Send(id wire.ParticipantID, frame []byte) bool
	Participants() []wire.ParticipantID
}

// SnapshotPublisher 接收每个快照的消息体（不含长度前缀）
type SnapshotPublisher interface {
	Publish(body []byte)
}

type TickConfig struct {
	Interval         time.Duration
	BroadcastEvery   int
	InputQueueSize   int
	MaxInputsPerTick int
	Personalize      bool // 为每个接收方写入各自的 ClientTickAck
}

// TickCoordinator 固定步长推进仿真：实体化新玩家 → 应用输入 → 推进 → 每 N 个 Tick 广播快照
type TickCoordinator struct {
	sim        Simulation
	out        Broadcaster
	publishers []SnapshotPublisher
	log        *zap.SugaredLogger
	metrics    *Metrics

	interval       time.Duration
	maxInputs      int
	personalize    bool
	broadcastEvery atomic.Int32
	tickSeq        atomic.Uint32
	state          atomic.Int32
	liveCount      atomic.Int32

	// 网络协程与 Tick 协程共享，仅在追加/交换时持锁
	mu      deadlock.Mutex
	pending []lifecycleEvent

	inputs chan Input

	// 以下仅由 Tick 协程访问
	live           map[wire.ParticipantID]EntityHandle
	lastClientTick map[wire.ParticipantID]uint32
}

func NewTickCoordinator(sim Simulation, cfg TickConfig, log *zap.SugaredLogger, metrics *Metrics) *TickCoordinator {
	t := &TickCoordinator{
		sim:            sim,
		log:            log,
		metrics:        metrics,
		interval:       cfg.Interval,
		maxInputs:      cfg.MaxInputsPerTick,
		personalize:    cfg.Personalize,
		inputs:         make(chan Input, cfg.InputQueueSize),
		live:           make(map[wire.ParticipantID]EntityHandle),
		lastClientTick: make(map[wire.ParticipantID]uint32),
	}
	t.broadcastEvery.Store(int32(cfg.BroadcastEvery))
	return t
}

// Attach 设置快照的发送目标，需在 Run 之前调用
func (t *TickCoordinator) Attach(out Broadcaster) { t.out = out }

// AddPublisher 额外的快照订阅者（如观战流），需在 Run 之前调用
func (t *TickCoordinator) AddPublisher(p SnapshotPublisher) {
	t.publishers = append(t.publishers, p)
}

func (t *TickCoordinator) TickSeq() uint32 { return t.tickSeq.Load() }

func (t *TickCoordinator) State() State { return State(t.state.Load()) }

// Participants 已实体化的在线玩家数
func (t *TickCoordinator) Participants() int { return int(t.liveCount.Load()) }

func (t *TickCoordinator) BroadcastEvery() int { return int(t.broadcastEvery.Load()) }

func (t *TickCoordinator) SetBroadcastEvery(n int) error {
	if n <= 0 || n > math.MaxInt32 {
		return fmt.Errorf("broadcastEvery must be in [1, %d], got %d", math.MaxInt32, n)
	}
	t.broadcastEvery.Store(int32(n))
	return nil
}

// Join 登记新玩家，在下一个 Tick 开始时实体化
func (t *TickCoordinator) Join(id wire.ParticipantID) {
	t.mu.Lock()
	t.pending = append(t.pending, lifecycleEvent{kind: joined, id: id})
	t.mu.Unlock()
}

// Leave 登记玩家离开，在下一个 Tick 开始时移除
func (t *TickCoordinator) Leave(id wire.ParticipantID) {
	t.mu.Lock()
	t.pending = append(t.pending, lifecycleEvent{kind: left, id: id})
	t.mu.Unlock()
}

// SubmitInput 非阻塞：通道满时丢弃，保证网络协程不被 Tick 拖慢
func (t *TickCoordinator) SubmitInput(id wire.ParticipantID, in wire.ClientInput) {
	select {
	case t.inputs <- Input{PlayerID: id, Batch: in}:
	default:
		t.metrics.IncChanFullDiscarded()
		t.log.Debugw("input queue full, batch dropped", "participant", id, "clientTick", in.ClientTickSeq)
	}
}

// Run 启动 Tick 循环，直到 ctx 取消
func (t *TickCoordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.Step()
		}
	}
}

// Step 执行一个固定步长
func (t *TickCoordinator) Step() {
	start := time.Now()
	t.applyLifecycle()
	t.sim.Advance(t.drainInputs())

	seq := t.tickSeq.Add(1)
	if every := t.broadcastEvery.Load(); every > 0 && seq%uint32(every) == 0 {
		t.broadcast(seq, start)
	}
	t.metrics.AddTick(time.Since(start).Nanoseconds())
}

func (t *TickCoordinator) applyLifecycle() {
	t.mu.Lock()
	events := t.pending
	t.pending = nil
	t.mu.Unlock()
	if len(events) == 0 {
		return
	}

	t.state.Store(int32(StateApplyingRegistrations))
	defer t.state.Store(int32(StateIdle))
	for _, ev := range events {
		switch ev.kind {
		case joined:
			handle, err := t.sim.Materialize(ev.id)
			if err != nil {
				t.log.Errorw("materialize participant", "participant", ev.id, "error", err)
				continue
			}
			t.live[ev.id] = handle
		case left:
			delete(t.live, ev.id)
			delete(t.lastClientTick, ev.id)
		}
	}
	t.liveCount.Store(int32(len(t.live)))
}

// drainInputs 非阻塞取出本 Tick 的全部输入；结果包含每个在线玩家（可能没有事件）
func (t *TickCoordinator) drainInputs() map[wire.ParticipantID][]wire.InputEvent {
	inputs := make(map[wire.ParticipantID][]wire.InputEvent, len(t.live))
	for id := range t.live {
		inputs[id] = nil
	}
	for {
		select {
		case in := <-t.inputs:
			events, ok := inputs[in.PlayerID]
			if !ok {
				continue
			}
			t.lastClientTick[in.PlayerID] = in.Batch.ClientTickSeq
			take := in.Batch.Events
			if room := max(t.maxInputs-len(events), 0); len(take) > room {
				t.metrics.AddRateLimited(len(take) - room)
				take = take[:room]
			}
			inputs[in.PlayerID] = append(events, take...)
			t.metrics.AddInputs(len(take))
		default:
			return inputs
		}
	}
}

func (t *TickCoordinator) broadcast(seq uint32, start time.Time) {
	ws := wire.WorldState{
		ServerTickSeq: seq,
		Players:       t.sim.PlayerStates(),
		Rays:          t.sim.RayStates(),
	}
	ws.TimeSpentInServerInTicks = time.Since(start).Nanoseconds()
	body, err := wire.AppendWorldState(nil, &ws)
	if err != nil {
		t.metrics.IncOverflows()
		t.log.Errorw("snapshot dropped", "tick", seq, "players", len(ws.Players), "rays", len(ws.Rays), "error", err)
		return
	}
	t.metrics.IncSnapshots()

	for _, p := range t.publishers {
		p.Publish(body)
	}
	if t.out == nil {
		return
	}

	frame := wire.AppendFrame(make([]byte, 0, wire.PrefixSize+len(body)), body)
	if !t.personalize {
		t.out.Broadcast(frame)
		return
	}
	for _, id := range t.out.Participants() {
		personal := append([]byte(nil), frame...)
		wire.PatchClientTickAck(personal[wire.PrefixSize:], t.lastClientTick[id])
		t.out.Send(id, personal)
	}
}
