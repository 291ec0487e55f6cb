package wire

import "fmt"

// ParticipantID 服务端在连接建立时分配的玩家编号
type ParticipantID uint16

// Keys 按键位掩码，仅低 4 位有意义
type Keys uint8

const (
	KeyForward Keys = 1 << iota
	KeyLeft
	KeyBack
	KeyRight
)

// Has 判断是否按下了 k
func (k Keys) Has(key Keys) bool { return k&key != 0 }

// 定长元素的编码大小（字节）
const (
	InputEventSize  = 4 + 4 + 1 + 4 + 1
	PlayerStateSize = 2 + 4 + 4 + 4
	RayStateSize    = 2 + 4 + 4 + 4
	ParticipantSize = 2
)

// Vec2 二维坐标
type Vec2 struct {
	X float32
	Y float32
}

// InputEvent 客户端的一次离散输入采样，不做合并
type InputEvent struct {
	ServerTick uint32  // 该采样对应的服务端 Tick（延迟补偿）
	DeltaTime  float32 // 客户端测得的间隔
	Keys       Keys
	ZAngle     float32 // 瞄准角度
	MouseDown  bool    // 开火
}

// PlayerState 快照中的玩家状态
type PlayerState struct {
	PlayerID uint16
	ZAngle   float32
	Pos      Vec2
}

// RayState 快照中的射线（瞬时弹道），只在当前快照中有效
type RayState struct {
	Owner  uint16
	ZAngle float32
	Pos    Vec2
}

// WorldState 服务端每 N 个 Tick 广播的世界快照
type WorldState struct {
	ServerTickSeq            uint32
	ClientTickAck            uint32
	TimeSpentInServerInTicks int64 // 本 Tick 开始到快照组装完成的耗时，单位纳秒
	Players                  []PlayerState
	Rays                     []RayState
}

// ClientInput 客户端上行的一批输入
type ClientInput struct {
	ClientTickSeq            uint32
	ServerTickAck            uint32
	TimeSpentInClientInTicks int64
	Events                   []InputEvent
}

func appendVec2(dst []byte, v Vec2) []byte {
	dst = appendFloat32(dst, v.X)
	return appendFloat32(dst, v.Y)
}

func decodeVec2(r *Reader) (Vec2, error) {
	var v Vec2
	var err error
	if v.X, err = r.Float32(); err != nil {
		return v, err
	}
	v.Y, err = r.Float32()
	return v, err
}

// AppendParticipantID 编码身份消息（连接上的第一条服务端消息）
func AppendParticipantID(dst []byte, id ParticipantID) []byte {
	return appendUint16(dst, uint16(id))
}

func DecodeParticipantID(r *Reader) (ParticipantID, error) {
	v, err := r.Uint16()
	return ParticipantID(v), err
}

func AppendInputEvent(dst []byte, e InputEvent) []byte {
	dst = appendUint32(dst, e.ServerTick)
	dst = appendFloat32(dst, e.DeltaTime)
	dst = appendUint8(dst, uint8(e.Keys))
	dst = appendFloat32(dst, e.ZAngle)
	return appendBool(dst, e.MouseDown)
}

func DecodeInputEvent(r *Reader) (InputEvent, error) {
	var e InputEvent
	var err error
	if e.ServerTick, err = r.Uint32(); err != nil {
		return e, err
	}
	if e.DeltaTime, err = r.Float32(); err != nil {
		return e, err
	}
	keys, err := r.Uint8()
	if err != nil {
		return e, err
	}
	e.Keys = Keys(keys)
	if e.ZAngle, err = r.Float32(); err != nil {
		return e, err
	}
	e.MouseDown, err = r.Bool()
	return e, err
}

func AppendPlayerState(dst []byte, s PlayerState) []byte {
	dst = appendUint16(dst, s.PlayerID)
	dst = appendFloat32(dst, s.ZAngle)
	return appendVec2(dst, s.Pos)
}

func DecodePlayerState(r *Reader) (PlayerState, error) {
	var s PlayerState
	var err error
	if s.PlayerID, err = r.Uint16(); err != nil {
		return s, err
	}
	if s.ZAngle, err = r.Float32(); err != nil {
		return s, err
	}
	s.Pos, err = decodeVec2(r)
	return s, err
}

func AppendRayState(dst []byte, s RayState) []byte {
	dst = appendUint16(dst, s.Owner)
	dst = appendFloat32(dst, s.ZAngle)
	return appendVec2(dst, s.Pos)
}

func DecodeRayState(r *Reader) (RayState, error) {
	var s RayState
	var err error
	if s.Owner, err = r.Uint16(); err != nil {
		return s, err
	}
	if s.ZAngle, err = r.Float32(); err != nil {
		return s, err
	}
	s.Pos, err = decodeVec2(r)
	return s, err
}

// AppendWorldState 追加快照编码；任一列表超过 65535 项时返回 ErrSerializationOverflow，
// 此时 dst 保持调用前的内容
func AppendWorldState(dst []byte, ws *WorldState) ([]byte, error) {
	if len(ws.Players) > MaxListLen || len(ws.Rays) > MaxListLen {
		return dst, fmt.Errorf("encode world state: %w", ErrSerializationOverflow)
	}
	dst = appendUint32(dst, ws.ServerTickSeq)
	dst = appendUint32(dst, ws.ClientTickAck)
	dst = appendInt64(dst, ws.TimeSpentInServerInTicks)
	dst = appendUint16(dst, uint16(len(ws.Players)))
	for _, p := range ws.Players {
		dst = AppendPlayerState(dst, p)
	}
	dst = appendUint16(dst, uint16(len(ws.Rays)))
	for _, ray := range ws.Rays {
		dst = AppendRayState(dst, ray)
	}
	return dst, nil
}

func DecodeWorldState(r *Reader) (WorldState, error) {
	var ws WorldState
	var err error
	if ws.ServerTickSeq, err = r.Uint32(); err != nil {
		return ws, err
	}
	if ws.ClientTickAck, err = r.Uint32(); err != nil {
		return ws, err
	}
	if ws.TimeSpentInServerInTicks, err = r.Int64(); err != nil {
		return ws, err
	}

	n, err := r.count(PlayerStateSize)
	if err != nil {
		return ws, err
	}
	ws.Players = make([]PlayerState, n)
	for i := range ws.Players {
		if ws.Players[i], err = DecodePlayerState(r); err != nil {
			return ws, err
		}
	}

	n, err = r.count(RayStateSize)
	if err != nil {
		return ws, err
	}
	ws.Rays = make([]RayState, n)
	for i := range ws.Rays {
		if ws.Rays[i], err = DecodeRayState(r); err != nil {
			return ws, err
		}
	}
	return ws, nil
}

func AppendClientInput(dst []byte, ci *ClientInput) ([]byte, error) {
	if len(ci.Events) > MaxListLen {
		return dst, fmt.Errorf("encode client input: %w", ErrSerializationOverflow)
	}
	dst = appendUint32(dst, ci.ClientTickSeq)
	dst = appendUint32(dst, ci.ServerTickAck)
	dst = appendInt64(dst, ci.TimeSpentInClientInTicks)
	dst = appendUint16(dst, uint16(len(ci.Events)))
	for _, e := range ci.Events {
		dst = AppendInputEvent(dst, e)
	}
	return dst, nil
}

func DecodeClientInput(r *Reader) (ClientInput, error) {
	var ci ClientInput
	var err error
	if ci.ClientTickSeq, err = r.Uint32(); err != nil {
		return ci, err
	}
	if ci.ServerTickAck, err = r.Uint32(); err != nil {
		return ci, err
	}
	if ci.TimeSpentInClientInTicks, err = r.Int64(); err != nil {
		return ci, err
	}
	n, err := r.count(InputEventSize)
	if err != nil {
		return ci, err
	}
	ci.Events = make([]InputEvent, n)
	for i := range ci.Events {
		if ci.Events[i], err = DecodeInputEvent(r); err != nil {
			return ci, err
		}
	}
	return ci, nil
}

// UnmarshalClientInput 解码一条完整消息体，要求恰好消费全部字节
func UnmarshalClientInput(body []byte) (ClientInput, error) {
	r := NewReader(body)
	ci, err := DecodeClientInput(r)
	if err != nil {
		return ci, fmt.Errorf("decode client input: %w", err)
	}
	if r.Remaining() != 0 {
		return ci, fmt.Errorf("decode client input: %w", ErrTrailingBytes)
	}
	return ci, nil
}

// UnmarshalWorldState 解码一条完整快照消息体
func UnmarshalWorldState(body []byte) (WorldState, error) {
	r := NewReader(body)
	ws, err := DecodeWorldState(r)
	if err != nil {
		return ws, fmt.Errorf("decode world state: %w", err)
	}
	if r.Remaining() != 0 {
		return ws, fmt.Errorf("decode world state: %w", ErrTrailingBytes)
	}
	return ws, nil
}

// clientTickAckOffset WorldState 中 ClientTickAck 的字节偏移
const clientTickAckOffset = 4

// PatchClientTickAck 就地改写已编码快照的 ClientTickAck，
// 用于共享一次编码结果后按接收方做个性化
func PatchClientTickAck(body []byte, ack uint32) {
	ByteOrder.PutUint32(body[clientTickAckOffset:], ack)
}
