package market

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrEmptyHistory 历史为空，调用方应视为“尚无信号”。
	ErrEmptyHistory = errors.New("ticker history is empty")
	// ErrInvalidField z-score 只接受 bid/ask。
	ErrInvalidField = errors.New("invalid field name, want bid or ask")
)

// History 按接收顺序保存 tick，只允许尾部追加与头部淘汰。
// 本身不加锁，由 store 的读写锁保护。
type History struct {
	data []Tick
}

func NewHistory(capacity int) *History {
	if capacity < 0 {
		capacity = 0
	}
	return &History{data: make([]Tick, 0, capacity)}
}

// NewHistoryFrom 用已有序列构造历史（拷贝输入）。
func NewHistoryFrom(ticks []Tick) *History {
	data := make([]Tick, len(ticks))
	copy(data, ticks)
	return &History{data: data}
}

func (h *History) Push(t Tick) {
	h.data = append(h.data, t)
}

// Shrink 丢弃超出 limit 的最旧部分；长度不超过 limit 时不做任何事。
func (h *History) Shrink(limit int) {
	if limit < 0 {
		limit = 0
	}
	if len(h.data) <= limit {
		return
	}
	drop := len(h.data) - limit
	// 拷贝到新切片，避免底层数组无限增长
	kept := make([]Tick, limit, cap(h.data))
	copy(kept, h.data[drop:])
	h.data = kept
}

func (h *History) Len() int { return len(h.data) }

// Last 最新 tick，即当前价格参考。
func (h *History) Last() (Tick, bool) {
	if len(h.data) == 0 {
		return Tick{}, false
	}
	return h.data[len(h.data)-1], true
}

// Snapshot 返回独立副本，供锁外计算。
func (h *History) Snapshot() *History {
	return NewHistoryFrom(h.data)
}

// Ticks returns a copy of the buffered ticks, oldest first.
func (h *History) Ticks() []Tick {
	out := make([]Tick, len(h.data))
	copy(out, h.data)
	return out
}

// Mid 全部缓冲 tick 的 mid 均值（平滑参考），与 Last().Mid() 的瞬时参考不同。
func (h *History) Mid() (decimal.Decimal, error) {
	if len(h.data) == 0 {
		return decimal.Zero, ErrEmptyHistory
	}
	sum := decimal.Zero
	for _, t := range h.data {
		sum = sum.Add(t.Mid())
	}
	return sum.Div(decimal.NewFromInt(int64(len(h.data)))), nil
}

// FindOlderThan 从最新往前扫描，返回第一条相对最新接收时间超过 micros 微秒的 tick。
// 启动初期历史太短时返回 false，这不是错误。
func (h *History) FindOlderThan(micros int64) (Tick, bool) {
	latest, ok := h.Last()
	if !ok {
		return Tick{}, false
	}
	for i := len(h.data) - 1; i >= 0; i-- {
		t := h.data[i]
		if latest.ReceivedAt.Sub(t.ReceivedAt).Microseconds() > micros {
			return t, true
		}
	}
	return Tick{}, false
}

// Diff 最新 mid 与回看 tick 的 mid 之差；无足够旧的数据时恰好为 0。
func (h *History) Diff(micros int64) decimal.Decimal {
	target, ok := h.FindOlderThan(micros)
	if !ok {
		return decimal.Zero
	}
	latest, _ := h.Last()
	return latest.Mid().Sub(target.Mid())
}

// ZScore 计算最新值相对样本均值的标准分，方差使用 n-1 修正。
// 样本少于 2 个或方差为 0 时返回 0。
func (h *History) ZScore(field string) (decimal.Decimal, error) {
	pick, err := fieldPicker(field)
	if err != nil {
		return decimal.Zero, err
	}
	n := len(h.data)
	if n < 2 {
		return decimal.Zero, nil
	}

	sum := decimal.Zero
	sumSq := decimal.Zero
	for _, t := range h.data {
		v := pick(t)
		sum = sum.Add(v)
		sumSq = sumSq.Add(v.Mul(v))
	}
	count := decimal.NewFromInt(int64(n))
	mean := sum.Div(count)
	variance := sumSq.Sub(sum.Mul(sum).Div(count)).Div(count.Sub(decimal.NewFromInt(1)))
	std := Sqrt(variance)
	if std.IsZero() {
		return decimal.Zero, nil
	}
	last := pick(h.data[n-1])
	return last.Sub(mean).Div(std), nil
}

func fieldPicker(field string) (func(Tick) decimal.Decimal, error) {
	switch field {
	case "bid":
		return func(t Tick) decimal.Decimal { return t.Bid }, nil
	case "ask":
		return func(t Tick) decimal.Decimal { return t.Ask }, nil
	default:
		return nil, ErrInvalidField
	}
}
