package store

import (
	"time"

	"github.com/shopspring/decimal"

	"quote-trigger-go/market"
)

// Status 对外展示的运行状态。
type Status struct {
	IsReceived   bool          `json:"is_received"`
	IsRunning    bool          `json:"is_running"`
	IsProcessing bool          `json:"is_processing"`
	Message      string        `json:"message"`
	LTP          string        `json:"ltp"`
	Orders       []OrderStatus `json:"orders"`
	UpdatedAt    time.Time     `json:"updated_at"`
	Stats        Stats         `json:"stats"`
}

// OrderStatus 状态日志条目的展示形式。
type OrderStatus struct {
	ID        string    `json:"id"`
	Side      string    `json:"side"`
	Entry     string    `json:"entry"`
	Exit      string    `json:"exit"`
	EnteredAt time.Time `json:"entered_at"`
	ExitedAt  time.Time `json:"exited_at"`
	Line      string    `json:"line"`
}

// Stats 基于当前历史的统计值，历史为空时各项为零。
type Stats struct {
	Len           int    `json:"len"`
	Mid           string `json:"mid"`
	ZScoreBid     string `json:"zscore_bid"`
	ZScoreAsk     string `json:"zscore_ask"`
	LatencyMicros int64  `json:"latency_micros"`
}

// Status 在读锁内复制，统计在锁外计算。
func (s *Store) Status() Status {
	s.mu.RLock()
	st := Status{
		IsReceived:   s.received,
		IsRunning:    s.running,
		IsProcessing: s.gate.Processing(),
		Message:      s.gate.Message(),
		LTP:          s.ltp.String(),
		UpdatedAt:    s.updatedAt,
	}
	records := s.gate.Log().Records()
	snap := s.history.Snapshot()
	s.mu.RUnlock()

	st.Orders = make([]OrderStatus, 0, len(records))
	for _, r := range records {
		st.Orders = append(st.Orders, OrderStatus{
			ID:        r.ID,
			Side:      r.Side.String(),
			Entry:     r.Entry.String(),
			Exit:      r.Exit.String(),
			EnteredAt: r.EnteredAt,
			ExitedAt:  r.ExitedAt,
			Line:      r.String(),
		})
	}
	st.Stats = computeStats(snap)
	return st
}

func computeStats(h *market.History) Stats {
	stats := Stats{
		Len:       h.Len(),
		Mid:       decimal.Zero.String(),
		ZScoreBid: decimal.Zero.String(),
		ZScoreAsk: decimal.Zero.String(),
	}
	if mid, err := h.Mid(); err == nil {
		stats.Mid = mid.String()
	}
	if z, err := h.ZScore("bid"); err == nil {
		stats.ZScoreBid = z.String()
	}
	if z, err := h.ZScore("ask"); err == nil {
		stats.ZScoreAsk = z.String()
	}
	if last, ok := h.Last(); ok {
		stats.LatencyMicros = last.LatencyMicros
	}
	return stats
}
