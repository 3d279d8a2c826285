package market

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// ErrNegativePrice 报价为负数。
var ErrNegativePrice = errors.New("bid/ask must be non-negative")

// Tick 一条报价观测。推入历史后视为不可变。
type Tick struct {
	Symbol string
	Bid    decimal.Decimal
	Ask    decimal.Decimal
	// Flag 仅由 FlagDriven 策略解释，缺省为 0。
	Flag uint8
	// Side 上游给出的方向提示，缺省为 0。
	Side uint8

	ServerAt      time.Time
	ReceivedAt    time.Time
	LatencyMicros int64

	stamped bool
}

// Mid 返回 (bid+ask)/2，与 bid/ask 使用同一套定点运算。
func (t Tick) Mid() decimal.Decimal {
	return t.Bid.Add(t.Ask).Div(two)
}

// Validate checks the price invariant.
func (t Tick) Validate() error {
	if t.Bid.IsNegative() || t.Ask.IsNegative() {
		return fmt.Errorf("%s: %w", t.Symbol, ErrNegativePrice)
	}
	return nil
}

// Stamp 记录本地接收时间并计算单程延迟，只生效一次。
// ServerAt 缺失时延迟记为 0。
func (t *Tick) Stamp(now time.Time) {
	if t.stamped {
		return
	}
	t.stamped = true
	t.ReceivedAt = now
	if t.ServerAt.IsZero() {
		t.LatencyMicros = 0
		return
	}
	t.LatencyMicros = now.Sub(t.ServerAt).Microseconds()
}

// Stamped reports whether Stamp already ran.
func (t Tick) Stamped() bool { return t.stamped }
