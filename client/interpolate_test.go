package client

import (
	"math"
	"reflect"
	"testing"

	"shooterd/wire"
)

func states() (prev, next []wire.PlayerState) {
	prev = []wire.PlayerState{
		{PlayerID: 1, ZAngle: 350, Pos: wire.Vec2{X: 0.1, Y: 10}},
		{PlayerID: 2, ZAngle: 90, Pos: wire.Vec2{X: -4, Y: 3.3}},
		{PlayerID: 9, ZAngle: 0, Pos: wire.Vec2{X: 99, Y: 99}}, // 已离开
	}
	next = []wire.PlayerState{
		{PlayerID: 2, ZAngle: 180, Pos: wire.Vec2{X: 6, Y: 0.7}},
		{PlayerID: 1, ZAngle: 10, Pos: wire.Vec2{X: 0.3, Y: 20}},
		{PlayerID: 5, ZAngle: 45, Pos: wire.Vec2{X: 1, Y: 2}}, // 新加入
	}
	return prev, next
}

func TestInterpolateAtZeroUsesPrevious(t *testing.T) {
	prev, next := states()
	got := Interpolate(prev, next, 0)
	if len(got) != len(next) {
		t.Fatalf("expected %d entries, got %d", len(next), len(got))
	}
	if got[0].PlayerID != 2 || got[0].Pos != prev[1].Pos || got[0].ZAngle != prev[1].ZAngle {
		t.Fatalf("expected player 2 at its previous state, got %+v", got[0])
	}
	if got[1].PlayerID != 1 || got[1].Pos != prev[0].Pos || got[1].ZAngle != prev[0].ZAngle {
		t.Fatalf("expected player 1 at its previous state, got %+v", got[1])
	}
	if got[2] != next[2] {
		t.Fatalf("new participant must use next values, got %+v", got[2])
	}
}

func TestInterpolateAtOneIsNext(t *testing.T) {
	prev, next := states()
	got := Interpolate(prev, next, 1)
	if !reflect.DeepEqual(got, next) {
		t.Fatalf("expected next verbatim:\nwant %+v\ngot  %+v", next, got)
	}
}

func TestInterpolateNewParticipantAnyFactor(t *testing.T) {
	prev, next := states()
	for _, f := range []float32{0, 0.25, 0.5, 0.99, 1} {
		got := Interpolate(prev, next, f)
		if got[2] != next[2] {
			t.Fatalf("f=%v: expected %+v, got %+v", f, next[2], got[2])
		}
	}
}

func TestInterpolateMidpoint(t *testing.T) {
	prev, next := states()
	got := Interpolate(prev, next, 0.5)
	p1 := got[1]
	if math.Abs(float64(p1.Pos.X)-0.2) > 1e-6 || math.Abs(float64(p1.Pos.Y)-15) > 1e-6 {
		t.Fatalf("unexpected midpoint position %+v", p1.Pos)
	}
	// 350 → 10 的最短路径经过 0
	if a := math.Mod(float64(p1.ZAngle)+360, 360); math.Abs(a) > 1e-4 && math.Abs(a-360) > 1e-4 {
		t.Fatalf("expected angle to wrap through 0, got %v", p1.ZAngle)
	}
	if math.Abs(float64(got[0].ZAngle)-135) > 1e-4 {
		t.Fatalf("expected 135 degrees, got %v", got[0].ZAngle)
	}
}

func TestInterpolateClampsFactor(t *testing.T) {
	prev, next := states()
	if !reflect.DeepEqual(Interpolate(prev, next, 2), next) {
		t.Fatalf("f > 1 must clamp to next")
	}
	low := Interpolate(prev, next, -1)
	if low[1].Pos != prev[0].Pos {
		t.Fatalf("f < 0 must clamp to prev, got %+v", low[1])
	}
}

func TestInterpolateDoesNotMutateInputs(t *testing.T) {
	prev, next := states()
	prevCopy := append([]wire.PlayerState(nil), prev...)
	nextCopy := append([]wire.PlayerState(nil), next...)
	Interpolate(prev, next, 0.3)
	if !reflect.DeepEqual(prev, prevCopy) || !reflect.DeepEqual(next, nextCopy) {
		t.Fatalf("inputs were modified")
	}
}

func TestLerpAngle(t *testing.T) {
	cases := []struct {
		a, b, f, want float32
	}{
		{0, 90, 0.5, 45},
		{10, 350, 0.5, 0},
		{350, 10, 0.25, 355},
		{90, 270, 0.5, 180},
		{720, 0, 1, 720},
		{45, 45, 0.7, 45},
	}
	for _, c := range cases {
		got := LerpAngle(c.a, c.b, c.f)
		if math.Abs(float64(got-c.want)) > 1e-4 {
			t.Fatalf("LerpAngle(%v, %v, %v): expected %v, got %v", c.a, c.b, c.f, c.want, got)
		}
	}
}

func TestSnapshotBuffer(t *testing.T) {
	var b SnapshotBuffer
	if _, ok := b.Sample(0); ok {
		t.Fatalf("empty buffer must not sample")
	}

	prev, next := states()
	b.Push(wire.WorldState{ServerTickSeq: 3, Players: prev})
	got, ok := b.Sample(4)
	if !ok || !reflect.DeepEqual(got, prev) {
		t.Fatalf("single snapshot must be returned as is")
	}

	b.Push(wire.WorldState{ServerTickSeq: 6, Players: next})
	if b.Push(wire.WorldState{ServerTickSeq: 5}) {
		t.Fatalf("stale snapshot must be ignored")
	}
	got, _ = b.Sample(6)
	if !reflect.DeepEqual(got, next) {
		t.Fatalf("sampling at the newest tick must return next")
	}
	got, _ = b.Sample(4.5)
	if !reflect.DeepEqual(got, Interpolate(prev, next, 0.5)) {
		t.Fatalf("sampling between ticks must interpolate")
	}
	latest, _ := b.Latest()
	if latest.ServerTickSeq != 6 {
		t.Fatalf("expected latest tick 6, got %d", latest.ServerTickSeq)
	}
}
