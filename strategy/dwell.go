package strategy

import (
	"time"

	"quote-trigger-go/actuator"
	"quote-trigger-go/config"
)

// Dwell 入场与出场之间的等待。
// 抖动模式下在 [0.5, 1.5) x interval 内按毫秒均匀取值。
func Dwell(p config.StrategyParams, rnd actuator.Rand) time.Duration {
	intervalMs := p.Interval.Milliseconds()
	if !p.IntervalRandom {
		return time.Duration(intervalMs) * time.Millisecond
	}
	minMs := intervalMs / 2
	maxMs := intervalMs * 3 / 2
	if maxMs <= minMs {
		return time.Duration(minMs) * time.Millisecond
	}
	return time.Duration(minMs+int64(rnd.IntN(int(maxMs-minMs)))) * time.Millisecond
}
