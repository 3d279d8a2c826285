package order

import (
	"errors"
	"fmt"
)

// GateState 执行闸门状态。
type GateState int

const (
	// GateIdle 空闲（初始态，也是关闭时的终态）
	GateIdle GateState = iota
	// GateProcessing 有一个动作周期正在执行
	GateProcessing
)

func (s GateState) String() string {
	switch s {
	case GateIdle:
		return "IDLE"
	case GateProcessing:
		return "PROCESSING"
	default:
		return "UNKNOWN"
	}
}

// UndefinedMessage 释放时没有记录可用的状态文案。
const UndefinedMessage = "undefined"

// DefaultStatusLogCap 状态日志保留的最近记录数。
const DefaultStatusLogCap = 8

var (
	ErrGateBusy    = errors.New("execution gate is processing")
	ErrGateNotHeld = errors.New("execution gate released without acquire")
)

// gateTransition 合法转换表，与订单状态机同样的写法。
type gateTransition struct {
	From GateState
	To   GateState
}

var legalGateTransitions = map[gateTransition]bool{
	{GateIdle, GateProcessing}: true,
	{GateProcessing, GateIdle}: true,
}

// Gate 单飞互斥状态机。自身不加锁，调用方在写锁内操作。
type Gate struct {
	state    GateState
	message  string
	log      *StatusLog
	acquires uint64
	releases uint64
}

func NewGate(logCap int) *Gate {
	return &Gate{
		state:   GateIdle,
		message: UndefinedMessage,
		log:     NewStatusLog(logCap),
	}
}

func (g *Gate) transition(to GateState) error {
	if !legalGateTransitions[gateTransition{From: g.state, To: to}] {
		return fmt.Errorf("illegal gate transition: %s -> %s", g.state, to)
	}
	g.state = to
	return nil
}

// Acquire Idle -> Processing。
func (g *Gate) Acquire() error {
	if g.state == GateProcessing {
		return ErrGateBusy
	}
	if err := g.transition(GateProcessing); err != nil {
		return err
	}
	g.acquires++
	return nil
}

// Release Processing -> Idle，记录状态文案；rec 非空时追加到状态日志。
func (g *Gate) Release(rec *Record) error {
	if g.state != GateProcessing {
		return ErrGateNotHeld
	}
	if rec != nil {
		g.message = rec.String()
		g.log.Append(*rec)
	} else {
		g.message = UndefinedMessage
	}
	if err := g.transition(GateIdle); err != nil {
		return err
	}
	g.releases++
	return nil
}

func (g *Gate) State() GateState { return g.state }

func (g *Gate) Processing() bool { return g.state == GateProcessing }

// Message 最近一次释放时记录的状态文案。
func (g *Gate) Message() string { return g.message }

// SetMessage 供外部（如运行/停止命令、错误）覆盖状态文案。
func (g *Gate) SetMessage(msg string) { g.message = msg }

func (g *Gate) Log() *StatusLog { return g.log }

// Counts 返回 acquire/release 次数，用于校验交替性。
func (g *Gate) Counts() (acquires, releases uint64) {
	return g.acquires, g.releases
}
