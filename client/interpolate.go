package client

import (
	"math"

	"shooterd/wire"
)

// Interpolate 在两个快照的玩家列表之间按 f 混合，输出顺序与 next 一致。
// prev 中不存在的玩家（刚加入）直接使用 next 的值。f 被裁剪到 [0,1]。
func Interpolate(prev, next []wire.PlayerState, f float32) []wire.PlayerState {
	f = clamp01(f)
	byID := make(map[uint16]wire.PlayerState, len(prev))
	for _, p := range prev {
		byID[p.PlayerID] = p
	}

	out := make([]wire.PlayerState, 0, len(next))
	for _, n := range next {
		p, ok := byID[n.PlayerID]
		if !ok || f == 1 {
			out = append(out, n)
			continue
		}
		out = append(out, wire.PlayerState{
			PlayerID: n.PlayerID,
			ZAngle:   LerpAngle(p.ZAngle, n.ZAngle, f),
			Pos: wire.Vec2{
				X: lerp(p.Pos.X, n.Pos.X, f),
				Y: lerp(p.Pos.Y, n.Pos.Y, f),
			},
		})
	}
	return out
}

// LerpAngle 沿最短路径混合角度（度），正确跨越 0/360
func LerpAngle(a, b, f float32) float32 {
	f = clamp01(f)
	if f == 0 {
		return a
	}
	delta := math.Mod(float64(b-a), 360)
	if delta < 0 {
		delta += 360
	}
	if delta > 180 {
		delta -= 360
	}
	return a + float32(delta)*f
}

// lerp 写成 a*(1-f)+b*f，保证 f=0 与 f=1 时精确等于端点
func lerp(a, b, f float32) float32 {
	return a*(1-f) + b*f
}

func clamp01(f float32) float32 {
	if f < 0 || f != f {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
