package server

import (
	"math"
	"sync/atomic"

	"shooterd/wire"
)

// maxEventDelta 单个输入事件可推进的最长时间（秒），防止客户端上报异常的 deltaTime
const maxEventDelta = 0.25

// Simulation 仿真层协作接口，仅由 Tick 协程调用
type Simulation interface {
	// Materialize 为新玩家创建实体
	Materialize(id wire.ParticipantID) (EntityHandle, error)
	// Advance 推进一个固定步长；inputs 的键集合即当前在线玩家
	Advance(inputs map[wire.ParticipantID][]wire.InputEvent)
	PlayerStates() []wire.PlayerState
	RayStates() []wire.RayState
}

type ArenaConfig struct {
	Width            float64
	Height           float64
	Speed            float64 // 每秒移动的世界单位
	RayLifetimeTicks int
}

type ray struct {
	state wire.RayState
	ttl   int
}

// Arena 默认仿真：WASD 平移、越界裁剪、按下鼠标发射射线
type Arena struct {
	width  float64
	height float64
	speed  atomic.Uint64 // float64 bits，允许管理接口热更新
	rayTTL int

	players    map[wire.ParticipantID]*Player
	order      []wire.ParticipantID // 加入顺序，决定快照中的排列
	rays       []ray
	nextHandle EntityHandle
}

func NewArena(cfg ArenaConfig) *Arena {
	a := &Arena{
		width:   cfg.Width,
		height:  cfg.Height,
		rayTTL:  max(cfg.RayLifetimeTicks, 1),
		players: make(map[wire.ParticipantID]*Player),
	}
	a.SetSpeed(cfg.Speed)
	return a
}

func (a *Arena) Speed() float64 { return math.Float64frombits(a.speed.Load()) }

func (a *Arena) SetSpeed(v float64) { a.speed.Store(math.Float64bits(v)) }

// Materialize 在地图中心生成玩家；重复调用返回已有句柄
func (a *Arena) Materialize(id wire.ParticipantID) (EntityHandle, error) {
	if p, ok := a.players[id]; ok {
		return p.Handle, nil
	}
	a.nextHandle++
	p := &Player{ID: id, Handle: a.nextHandle, X: a.width / 2, Y: a.height / 2}
	a.players[id] = p
	a.order = append(a.order, id)
	return p.Handle, nil
}

func (a *Arena) Advance(inputs map[wire.ParticipantID][]wire.InputEvent) {
	a.removeAbsent(inputs)

	live := a.rays[:0]
	for _, r := range a.rays {
		r.ttl--
		if r.ttl > 0 {
			live = append(live, r)
		}
	}
	a.rays = live

	speed := a.Speed()
	for _, id := range a.order {
		p := a.players[id]
		for _, ev := range inputs[id] {
			a.apply(p, ev, speed)
		}
	}
}

func (a *Arena) removeAbsent(inputs map[wire.ParticipantID][]wire.InputEvent) {
	kept := a.order[:0]
	for _, id := range a.order {
		if _, ok := inputs[id]; ok {
			kept = append(kept, id)
			continue
		}
		delete(a.players, id)
	}
	a.order = kept
}

// apply 执行一次输入采样并进行越界裁剪
func (a *Arena) apply(p *Player, ev wire.InputEvent, speed float64) {
	dt := math.Min(math.Max(float64(ev.DeltaTime), 0), maxEventDelta)
	dx, dy := direction(ev.Keys)
	p.X = clamp(p.X+dx*speed*dt, 0, a.width)
	p.Y = clamp(p.Y+dy*speed*dt, 0, a.height)
	p.ZAngle = ev.ZAngle

	if ev.MouseDown {
		a.rays = append(a.rays, ray{
			state: wire.RayState{
				Owner:  uint16(p.ID),
				ZAngle: p.ZAngle,
				Pos:    wire.Vec2{X: float32(p.X), Y: float32(p.Y)},
			},
			ttl: a.rayTTL,
		})
	}
}

func (a *Arena) PlayerStates() []wire.PlayerState {
	out := make([]wire.PlayerState, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.players[id].State())
	}
	return out
}

func (a *Arena) RayStates() []wire.RayState {
	out := make([]wire.RayState, 0, len(a.rays))
	for _, r := range a.rays {
		out = append(out, r.state)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
