package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// 订单类型编码，与操作界面的下拉选项一致。
const (
	OrderTypeSimple    = 0
	OrderTypeEntryBuy  = 1
	OrderTypeEntrySell = 2
	OrderTypeExitOnly  = 3
	OrderTypeFlag      = 99
)

// 速度档位编码。
const (
	SpeedFastest = 0
	SpeedFast    = 1
	SpeedMedium  = 2
	SpeedSlow    = 3
)

// StrategyConfig 运营侧可编辑的策略设置，数值以字符串保存以保留定点精度。
type StrategyConfig struct {
	OrderType      int    `yaml:"orderType" json:"order_type"`
	Size           string `yaml:"size" json:"size"`
	Speed          int    `yaml:"speed" json:"speed"`
	Threshold      string `yaml:"threshold" json:"threshold"`
	IntervalSec    int    `yaml:"intervalSec" json:"interval"`
	IntervalRandom bool   `yaml:"intervalRandom" json:"interval_random"`
	ExitPauseMs    int    `yaml:"exitPauseMs" json:"exit_pause_ms"`
}

// StrategyParams 解析后的策略参数，只在赋值时解析一次。
type StrategyParams struct {
	OrderType      int
	Size           decimal.Decimal
	Speed          int
	Threshold      decimal.Decimal
	Interval       time.Duration
	IntervalRandom bool
	ExitPause      time.Duration
}

func DefaultStrategy() StrategyConfig {
	return StrategyConfig{
		OrderType:   OrderTypeSimple,
		Size:        "0.1",
		Speed:       SpeedFast,
		Threshold:   "0.05",
		IntervalSec: 10,
		ExitPauseMs: 1000,
	}
}

// Params 校验并解析；阈值或数量无法解析时返回 ErrInvalid。
func (c StrategyConfig) Params() (StrategyParams, error) {
	threshold, err := decimal.NewFromString(c.Threshold)
	if err != nil {
		return StrategyParams{}, ErrInvalid(fmt.Sprintf("strategy.threshold %q: %v", c.Threshold, err))
	}
	if threshold.IsNegative() {
		return StrategyParams{}, ErrInvalid("strategy.threshold must be >= 0")
	}
	size := decimal.Zero
	if c.Size != "" {
		size, err = decimal.NewFromString(c.Size)
		if err != nil {
			return StrategyParams{}, ErrInvalid(fmt.Sprintf("strategy.size %q: %v", c.Size, err))
		}
	}
	if c.IntervalSec < 0 {
		return StrategyParams{}, ErrInvalid("strategy.intervalSec must be >= 0")
	}
	if c.ExitPauseMs < 0 {
		return StrategyParams{}, ErrInvalid("strategy.exitPauseMs must be >= 0")
	}
	return StrategyParams{
		OrderType:      c.OrderType,
		Size:           size,
		Speed:          c.Speed,
		Threshold:      threshold,
		Interval:       time.Duration(c.IntervalSec) * time.Second,
		IntervalRandom: c.IntervalRandom,
		ExitPause:      time.Duration(c.ExitPauseMs) * time.Millisecond,
	}, nil
}
