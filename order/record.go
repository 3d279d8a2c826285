package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side 动作方向。
type Side uint8

const (
	SideNone Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unspecified"
	}
}

// SideOf 按差值符号给出方向，0 为 SideNone。
func SideOf(diff decimal.Decimal) Side {
	switch diff.Sign() {
	case 1:
		return SideBuy
	case -1:
		return SideSell
	default:
		return SideNone
	}
}

// ErrAlreadySettled 结算步骤只能执行一次。
var ErrAlreadySettled = errors.New("order record already settled")

// Record 一次已完成或进行中的动作。Exit 在结算前保持零值哨兵。
type Record struct {
	ID        string
	Side      Side
	Entry     decimal.Decimal
	EnteredAt time.Time
	Exit      decimal.Decimal
	ExitedAt  time.Time
	Settled   bool
}

// NewRecord 在策略决定动作的时刻创建记录。
func NewRecord(side Side, entry decimal.Decimal, now time.Time) *Record {
	return &Record{
		ID:        uuid.NewString(),
		Side:      side,
		Entry:     entry,
		EnteredAt: now,
	}
}

// Open 退出价仍为零哨兵时视为未平。
func (r *Record) Open() bool {
	return r.Exit.IsZero()
}

// Settle 结算；exit 为 nil 表示不重新采样参考价，退出价保持 0。
func (r *Record) Settle(exit *decimal.Decimal, now time.Time) error {
	if r.Settled {
		return ErrAlreadySettled
	}
	if exit != nil {
		r.Exit = *exit
	}
	r.ExitedAt = now
	r.Settled = true
	return nil
}

// BackfillExit 用之后观察到的价格补写退出参考价，仅当仍为零时生效。
func (r *Record) BackfillExit(price decimal.Decimal, now time.Time) bool {
	if !r.Open() || price.IsZero() {
		return false
	}
	r.Exit = price
	r.ExitedAt = now
	return true
}

func (r Record) String() string {
	return fmt.Sprintf("side: %s, ref entry: %s, ref exit: %s, entered_at: %s, exited_at: %s",
		r.Side,
		r.Entry.String(),
		r.Exit.String(),
		r.EnteredAt.UTC().Format("15:04:05 UTC"),
		r.ExitedAt.UTC().Format("15:04:05 UTC"),
	)
}
