package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"quote-trigger-go/config"
	"quote-trigger-go/market"
	"quote-trigger-go/order"
)

// EventSink 接收状态变化事件（由容器接到日志）。
type EventSink func(string, map[string]interface{})

const (
	MessageRunning = "on"
	MessageStopped = "off"
)

// Store 维护全部共享状态：策略设置、区域、行情历史、执行闸门与运行状态。
// 所有读写都经过同一把读写锁；锁内不调用执行器，也不等待。
type Store struct {
	mu sync.RWMutex

	strategy config.StrategyConfig
	params   config.StrategyParams
	regions  config.RegionsConfig

	history      *market.History
	historyLimit int
	gate         *order.Gate

	running      bool
	received     bool
	ltp          decimal.Decimal
	updatedAt    time.Time
	backfillExit bool

	now  func() time.Time
	sink EventSink
}

// Options 构造参数。
type Options struct {
	HistoryLimit int
	StatusLogCap int
	BackfillExit bool
	Running      bool
	Strategy     config.StrategyConfig
	Regions      config.RegionsConfig
	Sink         EventSink
	Now          func() time.Time
}

// New 校验初始设置后构造 Store。
func New(opts Options) (*Store, error) {
	if opts.HistoryLimit <= 0 {
		return nil, config.ErrInvalid("history limit must be > 0")
	}
	params, err := opts.Strategy.Params()
	if err != nil {
		return nil, err
	}
	if err := opts.Regions.Validate(); err != nil {
		return nil, err
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Store{
		strategy:     opts.Strategy,
		params:       params,
		regions:      opts.Regions,
		history:      market.NewHistory(opts.HistoryLimit + 1),
		historyLimit: opts.HistoryLimit,
		gate:         order.NewGate(opts.StatusLogCap),
		running:      opts.Running,
		backfillExit: opts.BackfillExit,
		now:          now,
		sink:         opts.Sink,
	}
	if s.running {
		s.gate.SetMessage(MessageRunning)
	}
	return s, nil
}

// IngestResult 一次接收后的摘要，供 pump 记录指标。
type IngestResult struct {
	Len        int
	LTP        decimal.Decimal
	Received   bool
	Backfilled bool
}

// Ingest 追加 tick、裁剪到上限、更新最新价；可选地为最近未平记录补写退出价。
func (s *Store) Ingest(t market.Tick) IngestResult {
	s.mu.Lock()
	s.history.Push(t)
	s.history.Shrink(s.historyLimit)

	mid := t.Mid()
	// 价格未变化时不视为新数据
	if !s.ltp.Equal(mid) {
		s.received = true
		s.ltp = mid
		s.updatedAt = s.now()
	} else {
		s.received = false
	}

	var (
		backfilled bool
		rec        order.Record
	)
	if s.backfillExit {
		rec, backfilled = s.gate.Log().BackfillLast(mid, s.now())
		if backfilled {
			s.gate.SetMessage("order update: " + rec.String())
		}
	}
	res := IngestResult{
		Len:        s.history.Len(),
		LTP:        s.ltp,
		Received:   s.received,
		Backfilled: backfilled,
	}
	s.mu.Unlock()

	if backfilled {
		s.logEvent("exit_backfill", map[string]interface{}{
			"order_id": rec.ID,
			"side":     rec.Side.String(),
			"exit":     rec.Exit.String(),
		})
	}
	return res
}

// View 调度所需的一致快照，在锁外使用。
type View struct {
	Running    bool
	Processing bool
	History    *market.History
	Params     config.StrategyParams
	Regions    config.RegionsConfig
}

// DispatchView 在读锁内复制运行标志、闸门状态、历史与设置。
func (s *Store) DispatchView() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return View{
		Running:    s.running,
		Processing: s.gate.Processing(),
		History:    s.history.Snapshot(),
		Params:     s.params,
		Regions:    s.regions,
	}
}

// TryAcquire Idle -> Processing；闸门忙碌时返回 false。
func (s *Store) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gate.Acquire() == nil
}

// Release Processing -> Idle，记录状态文案并把记录写入状态日志。
func (s *Store) Release(rec *order.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gate.Release(rec)
}

// ReleaseWithError releases the gate and overrides the message with the cycle failure.
func (s *Store) ReleaseWithError(rec *order.Record, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.gate.Release(rec); err != nil {
		return err
	}
	if cause != nil {
		s.gate.SetMessage("error: " + cause.Error())
	}
	return nil
}

// SetRunning 启停：启动写 "on"，停止写 "off"。停止不会强制闸门回到 Idle。
func (s *Store) SetRunning(running bool) string {
	s.mu.Lock()
	s.running = running
	msg := MessageStopped
	if running {
		msg = MessageRunning
	}
	s.gate.SetMessage(msg)
	s.mu.Unlock()

	s.logEvent("run_state", map[string]interface{}{"running": running})
	return msg
}

// SetStrategy 校验后替换策略设置；非法输入不改变任何状态。
func (s *Store) SetStrategy(cfg config.StrategyConfig) (config.StrategyConfig, error) {
	params, err := cfg.Params()
	if err != nil {
		return config.StrategyConfig{}, err
	}
	s.mu.Lock()
	s.strategy = cfg
	s.params = params
	s.mu.Unlock()

	s.logEvent("strategy_update", map[string]interface{}{
		"order_type": cfg.OrderType,
		"speed":      cfg.Speed,
		"threshold":  cfg.Threshold,
		"interval":   cfg.IntervalSec,
		"random":     cfg.IntervalRandom,
	})
	return cfg, nil
}

// SetRegion 校验后替换一个区域。
func (s *Store) SetRegion(kind config.RegionKind, r config.Region) (config.Region, error) {
	if _, err := config.ParseRegionKind(string(kind)); err != nil {
		return config.Region{}, err
	}
	if err := r.Validate(); err != nil {
		return config.Region{}, err
	}
	s.mu.Lock()
	s.regions = s.regions.With(kind, r)
	s.mu.Unlock()

	s.logEvent("region_update", map[string]interface{}{
		"kind":    string(kind),
		"start_x": r.StartX,
		"start_y": r.StartY,
		"end_x":   r.EndX,
		"end_y":   r.EndY,
		"n":       r.Clicks,
	})
	return r, nil
}

// SetExitClicks 只修改退出区域的点击次数。
func (s *Store) SetExitClicks(n uint8) uint8 {
	s.mu.Lock()
	s.regions.Exit.Clicks = n
	s.mu.Unlock()
	s.logEvent("exit_clicks_update", map[string]interface{}{"n": n})
	return n
}

// ApplyConfig 热加载：替换策略、区域与补写开关，其余字段需要重启。
func (s *Store) ApplyConfig(cfg config.AppConfig) error {
	params, err := cfg.Strategy.Params()
	if err != nil {
		return err
	}
	if err := cfg.Regions.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.strategy = cfg.Strategy
	s.params = params
	s.regions = cfg.Regions
	s.backfillExit = cfg.Status.BackfillExit
	s.mu.Unlock()

	s.logEvent("config_reload", map[string]interface{}{
		"order_type": cfg.Strategy.OrderType,
		"backfill":   cfg.Status.BackfillExit,
	})
	return nil
}

// Settings 当前可编辑设置。
type Settings struct {
	Strategy config.StrategyConfig `json:"strategy"`
	Regions  RegionsView           `json:"regions"`
}

type RegionsView struct {
	EntryBuy  config.Region `json:"entry_buy"`
	EntrySell config.Region `json:"entry_sell"`
	Exit      config.Region `json:"exit"`
}

func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Settings{
		Strategy: s.strategy,
		Regions: RegionsView{
			EntryBuy:  s.regions.EntryBuy,
			EntrySell: s.regions.EntrySell,
			Exit:      s.regions.Exit,
		},
	}
}

// Region returns the current region for kind.
func (s *Store) Region(kind config.RegionKind) config.Region {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.regions.Get(kind)
}

// Processing 闸门是否被占用。
func (s *Store) Processing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gate.Processing()
}

// GateCounts acquire/release 计数。
func (s *Store) GateCounts() (uint64, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gate.Counts()
}

func (s *Store) logEvent(event string, fields map[string]interface{}) {
	if s == nil || s.sink == nil {
		return
	}
	s.sink(event, fields)
}

func (s *Store) String() string {
	st := s.Status()
	return fmt.Sprintf("running=%t processing=%t len=%d ltp=%s", st.IsRunning, st.IsProcessing, st.Stats.Len, st.LTP)
}
