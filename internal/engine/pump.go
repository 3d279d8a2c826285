package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"quote-trigger-go/gateway"
	"quote-trigger-go/infrastructure/logger"
	"quote-trigger-go/internal/store"
	"quote-trigger-go/market"
)

// PumpState 泵状态
type PumpState int

const (
	// StateIdle 尚未启动
	StateIdle PumpState = iota
	// StateRunning 正在消费事件
	StateRunning
	// StateStopped 已停止，可再次启动
	StateStopped
)

// String 返回状态名称
func (s PumpState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Ingester 写入历史并更新 LTP，由 store.Store 实现。
type Ingester interface {
	Ingest(t market.Tick) store.IngestResult
}

// Dispatcher 每个 tick 之后调用，由 strategy.Dispatcher 实现。
type Dispatcher interface {
	Dispatch(ctx context.Context) bool
}

// Recorder 行情指标，由 monitor.Monitor 实现。
type Recorder interface {
	RecordTick(symbol string, latencySeconds float64)
	RecordParseError()
	UpdateMidPrice(value float64)
	UpdateHistoryLength(n int)
}

type nopRecorder struct{}

func (nopRecorder) RecordTick(string, float64) {}
func (nopRecorder) RecordParseError()          {}
func (nopRecorder) UpdateMidPrice(float64)     {}
func (nopRecorder) UpdateHistoryLength(int)    {}

// Components 泵依赖组件
type Components struct {
	Events     <-chan gateway.Event
	Store      Ingester
	Dispatcher Dispatcher
	Logger     *logger.Logger
	Monitor    Recorder
	Now        func() time.Time
}

// Statistics 泵统计信息
type Statistics struct {
	StartTime      time.Time
	TotalTicks     int64
	TotalErrors    int64
	TotalDispatch  int64
	LastTickTime   time.Time
	LastSymbol     string
	LastHistoryLen int
}

// Pump 从事件通道逐条取出 tick：打时间戳、写入历史、调用调度器。
// 单个消费者保证 tick 按到达顺序写入。
type Pump struct {
	events     <-chan gateway.Event
	store      Ingester
	dispatcher Dispatcher
	logger     *logger.Logger
	monitor    Recorder
	now        func() time.Time

	state PumpState
	mu    sync.RWMutex

	stopChan chan struct{}
	doneChan chan struct{}

	stats   Statistics
	statsMu sync.RWMutex
}

// New 创建泵
func New(comp Components) (*Pump, error) {
	if err := validateComponents(comp); err != nil {
		return nil, fmt.Errorf("invalid components: %w", err)
	}
	p := &Pump{
		events:     comp.Events,
		store:      comp.Store,
		dispatcher: comp.Dispatcher,
		logger:     comp.Logger,
		monitor:    comp.Monitor,
		now:        comp.Now,
		state:      StateIdle,
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}
	if p.logger == nil {
		p.logger = logger.NewNop()
	}
	if p.monitor == nil {
		p.monitor = nopRecorder{}
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// Start 启动消费循环
func (p *Pump) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.state == StateRunning {
		p.mu.Unlock()
		return fmt.Errorf("pump already started (state: %s)", p.state)
	}
	// 从 StateStopped 复启需要重建通道
	if p.state == StateStopped {
		p.stopChan = make(chan struct{})
		p.doneChan = make(chan struct{})
	}
	p.state = StateRunning
	stopChan, doneChan := p.stopChan, p.doneChan
	p.mu.Unlock()

	p.statsMu.Lock()
	p.stats.StartTime = p.now()
	p.statsMu.Unlock()

	go p.run(ctx, stopChan, doneChan)
	p.logger.Info("ingestion pump started")
	return nil
}

// Stop 停止消费循环。已派发的动作周期不受影响。
func (p *Pump) Stop() error {
	p.mu.Lock()
	if p.state != StateRunning {
		p.mu.Unlock()
		return nil
	}
	stopChan, doneChan := p.stopChan, p.doneChan
	p.mu.Unlock()

	close(stopChan)
	select {
	case <-doneChan:
	case <-time.After(10 * time.Second):
		p.logger.Warn("timeout waiting for pump to stop")
	}

	p.mu.Lock()
	p.state = StateStopped
	p.mu.Unlock()
	p.logger.Info("ingestion pump stopped")
	return nil
}

func (p *Pump) Health() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.state != StateRunning {
		return fmt.Errorf("pump not running (state: %s)", p.state)
	}
	return nil
}

// run 主事件循环
func (p *Pump) run(ctx context.Context, stopChan, doneChan chan struct{}) {
	defer close(doneChan)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("context done, pump exiting")
			return
		case <-stopChan:
			return
		case ev, ok := <-p.events:
			if !ok {
				p.logger.Info("event channel closed, pump exiting")
				return
			}
			p.handle(ctx, ev)
		}
	}
}

// handle 处理单个事件。解析错误只记录，不中断循环。
func (p *Pump) handle(ctx context.Context, ev gateway.Event) {
	if ev.Err != nil {
		p.monitor.RecordParseError()
		p.recordError()
		p.logger.Warn("dropping malformed tick",
			zap.String("transport", ev.Transport),
			zap.Error(ev.Err))
		return
	}

	tick := ev.Tick
	tick.Stamp(p.now())
	res := p.store.Ingest(tick)

	p.monitor.RecordTick(tick.Symbol, float64(tick.LatencyMicros)/1e6)
	mid, _ := tick.Mid().Float64()
	p.monitor.UpdateMidPrice(mid)
	p.monitor.UpdateHistoryLength(res.Len)

	dispatched := p.dispatcher.Dispatch(ctx)

	p.statsMu.Lock()
	p.stats.TotalTicks++
	p.stats.LastTickTime = tick.ReceivedAt
	p.stats.LastSymbol = tick.Symbol
	p.stats.LastHistoryLen = res.Len
	if dispatched {
		p.stats.TotalDispatch++
	}
	p.statsMu.Unlock()

	if res.Backfilled {
		p.logger.Debug("exit backfilled from tick", zap.String("ltp", res.LTP.String()))
	}
}

func (p *Pump) recordError() {
	p.statsMu.Lock()
	p.stats.TotalErrors++
	p.statsMu.Unlock()
}

// GetState 获取泵状态
func (p *Pump) GetState() PumpState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// GetStatistics 获取统计信息
func (p *Pump) GetStatistics() Statistics {
	p.statsMu.RLock()
	defer p.statsMu.RUnlock()
	return p.stats
}

func validateComponents(comp Components) error {
	if comp.Events == nil {
		return errors.New("events channel is required")
	}
	if comp.Store == nil {
		return errors.New("store is required")
	}
	if comp.Dispatcher == nil {
		return errors.New("dispatcher is required")
	}
	return nil
}
