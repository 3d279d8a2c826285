package strategy

import (
	"github.com/shopspring/decimal"

	"quote-trigger-go/config"
	"quote-trigger-go/market"
	"quote-trigger-go/order"
)

// LookbackMillis 速度档位对应的回看窗口（毫秒），未知档位取 10 秒。
func LookbackMillis(speed int) int64 {
	switch speed {
	case config.SpeedFastest:
		return 1
	case config.SpeedFast:
		return 100
	case config.SpeedMedium:
		return 1_000
	case config.SpeedSlow:
		return 3_000
	default:
		return 10_000
	}
}

// Signal 一次评估结果，每次重新计算，不缓存。
type Signal struct {
	Diff      decimal.Decimal
	Triggered bool
	Direction order.Side
}

// Evaluate |diff| 严格大于阈值才触发；diff 为 0（包括无足够旧数据）永不触发。
func Evaluate(h *market.History, p config.StrategyParams) Signal {
	diff := h.Diff(LookbackMillis(p.Speed) * 1000)
	return Signal{
		Diff:      diff,
		Triggered: !diff.IsZero() && diff.Abs().GreaterThan(p.Threshold),
		Direction: order.SideOf(diff),
	}
}
