package server

import "shooterd/wire"

// Input 一条已解码的客户端输入批次（意图），由 Tick 协程解释并驱动世界状态
type Input struct {
	PlayerID wire.ParticipantID
	Batch    wire.ClientInput
}

type lifecycleKind int

const (
	joined lifecycleKind = iota
	left
)

// lifecycleEvent 网络协程登记、Tick 协程消费的玩家进出事件
type lifecycleEvent struct {
	kind lifecycleKind
	id   wire.ParticipantID
}

// InputSink 多路复用器向仿真侧投递的接口
type InputSink interface {
	Join(id wire.ParticipantID)
	Leave(id wire.ParticipantID)
	SubmitInput(id wire.ParticipantID, in wire.ClientInput)
}
