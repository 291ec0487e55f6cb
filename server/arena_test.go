package server

import (
	"math"
	"testing"

	"shooterd/wire"
)

func newTestArena() *Arena {
	return NewArena(ArenaConfig{Width: 100, Height: 100, Speed: 10, RayLifetimeTicks: 2})
}

func near(a, b float32) bool { return math.Abs(float64(a-b)) < 1e-4 }

func TestArenaMaterializeSpawnsAtCenter(t *testing.T) {
	a := newTestArena()
	h1, _ := a.Materialize(1)
	h2, _ := a.Materialize(2)
	again, _ := a.Materialize(1)
	if h1 == h2 || h1 != again {
		t.Fatalf("unexpected handles %d %d %d", h1, h2, again)
	}
	states := a.PlayerStates()
	if len(states) != 2 || states[0].PlayerID != 1 || states[1].PlayerID != 2 {
		t.Fatalf("expected players in join order, got %+v", states)
	}
	if states[0].Pos != (wire.Vec2{X: 50, Y: 50}) {
		t.Fatalf("expected spawn at center, got %+v", states[0].Pos)
	}
}

func TestArenaMovement(t *testing.T) {
	a := newTestArena()
	a.Materialize(1)
	a.Advance(map[wire.ParticipantID][]wire.InputEvent{
		1: {
			{DeltaTime: 0.1, Keys: wire.KeyForward, ZAngle: 90},
			{DeltaTime: 0.1, Keys: wire.KeyRight, ZAngle: 45},
		},
	})
	p := a.PlayerStates()[0]
	if !near(p.Pos.X, 51) || !near(p.Pos.Y, 51) {
		t.Fatalf("expected (51, 51), got %+v", p.Pos)
	}
	if p.ZAngle != 45 {
		t.Fatalf("expected last event angle 45, got %v", p.ZAngle)
	}

	// 对角线速度归一化
	a.Advance(map[wire.ParticipantID][]wire.InputEvent{
		1: {{DeltaTime: 0.1, Keys: wire.KeyBack | wire.KeyLeft}},
	})
	p = a.PlayerStates()[0]
	d := float32(1 / math.Sqrt2)
	if !near(p.Pos.X, 51-d) || !near(p.Pos.Y, 51-d) {
		t.Fatalf("expected diagonal step of length 1, got %+v", p.Pos)
	}
}

func TestArenaClampsPositionAndDelta(t *testing.T) {
	a := newTestArena()
	a.Materialize(1)
	events := make([]wire.InputEvent, 40)
	for i := range events {
		events[i] = wire.InputEvent{DeltaTime: 1000, Keys: wire.KeyForward}
	}
	// 单个事件最多推进 maxEventDelta 秒
	a.Advance(map[wire.ParticipantID][]wire.InputEvent{1: events[:1]})
	if p := a.PlayerStates()[0]; !near(p.Pos.Y, 52.5) {
		t.Fatalf("expected delta clamp to 0.25s, got %+v", p.Pos)
	}
	a.Advance(map[wire.ParticipantID][]wire.InputEvent{1: events})
	if p := a.PlayerStates()[0]; p.Pos.Y != 100 {
		t.Fatalf("expected y clamped to world height, got %+v", p.Pos)
	}
	a.Advance(map[wire.ParticipantID][]wire.InputEvent{1: {{DeltaTime: -5, Keys: wire.KeyBack}}})
	if p := a.PlayerStates()[0]; p.Pos.Y != 100 {
		t.Fatalf("negative delta must not move the player, got %+v", p.Pos)
	}
}

func TestArenaRaysExpire(t *testing.T) {
	a := newTestArena()
	a.Materialize(7)
	a.Advance(map[wire.ParticipantID][]wire.InputEvent{7: {{ZAngle: 30, MouseDown: true}}})
	rays := a.RayStates()
	if len(rays) != 1 || rays[0].Owner != 7 || rays[0].ZAngle != 30 {
		t.Fatalf("expected one ray owned by 7, got %+v", rays)
	}
	a.Advance(map[wire.ParticipantID][]wire.InputEvent{7: nil})
	if len(a.RayStates()) != 1 {
		t.Fatalf("ray must survive its second tick")
	}
	a.Advance(map[wire.ParticipantID][]wire.InputEvent{7: nil})
	if len(a.RayStates()) != 0 {
		t.Fatalf("ray must expire after its lifetime")
	}
}

func TestArenaRemovesAbsentPlayers(t *testing.T) {
	a := newTestArena()
	a.Materialize(1)
	a.Materialize(2)
	a.Materialize(3)
	a.Advance(map[wire.ParticipantID][]wire.InputEvent{1: nil, 3: nil})
	states := a.PlayerStates()
	if len(states) != 2 || states[0].PlayerID != 1 || states[1].PlayerID != 3 {
		t.Fatalf("expected players 1 and 3, got %+v", states)
	}
}

func TestArenaSetSpeed(t *testing.T) {
	a := newTestArena()
	a.SetSpeed(20)
	if a.Speed() != 20 {
		t.Fatalf("expected speed 20, got %v", a.Speed())
	}
	a.Materialize(1)
	a.Advance(map[wire.ParticipantID][]wire.InputEvent{1: {{DeltaTime: 0.1, Keys: wire.KeyRight}}})
	if p := a.PlayerStates()[0]; !near(p.Pos.X, 52) {
		t.Fatalf("expected x 52, got %v", p.Pos.X)
	}
}
