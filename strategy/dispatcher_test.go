package strategy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quote-trigger-go/config"
	"quote-trigger-go/infrastructure/alert"
	"quote-trigger-go/internal/store"
	"quote-trigger-go/market"
	"quote-trigger-go/order"
)

var (
	entryBuyRegion  = config.Region{StartX: 10, StartY: 10, EndX: 20, EndY: 20, Clicks: 1}
	entrySellRegion = config.Region{StartX: 30, StartY: 10, EndX: 40, EndY: 20, Clicks: 1}
	exitRegion      = config.Region{StartX: 50, StartY: 10, EndX: 60, EndY: 20, Clicks: 3}
)

// fakeActuator 记录每次动作的区域与等待时长，不做任何外部操作。
type fakeActuator struct {
	mu      sync.Mutex
	regions []config.Region
	waits   []time.Duration
	failAt  int           // 第几次动作返回错误，0 表示不失败
	release chan struct{} // 非空时动作阻塞直到关闭
}

func (f *fakeActuator) PerformWithin(ctx context.Context, r config.Region) error {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regions = append(f.regions, r)
	if f.failAt > 0 && len(f.regions) == f.failAt {
		return errors.New("agent unavailable")
	}
	return nil
}

func (f *fakeActuator) Wait(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits = append(f.waits, d)
}

func (f *fakeActuator) snapshot() ([]config.Region, []time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]config.Region(nil), f.regions...), append([]time.Duration(nil), f.waits...)
}

// countingRecorder 只统计闸门忙碌次数。
type countingRecorder struct {
	nopRecorder
	mu   sync.Mutex
	busy int
}

func (c *countingRecorder) RecordGateBusy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy++
}

func (c *countingRecorder) busyCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

type fixture struct {
	st  *store.Store
	act *fakeActuator
	d   *Dispatcher
}

func newFixture(t *testing.T, orderType int) *fixture {
	t.Helper()
	sc := config.DefaultStrategy()
	sc.OrderType = orderType
	st, err := store.New(store.Options{
		HistoryLimit: 100,
		StatusLogCap: order.DefaultStatusLogCap,
		Running:      true,
		Strategy:     sc,
		Regions: config.RegionsConfig{
			EntryBuy:  entryBuyRegion,
			EntrySell: entrySellRegion,
			Exit:      exitRegion,
		},
	})
	require.NoError(t, err)
	act := &fakeActuator{}
	return &fixture{
		st:  st,
		act: act,
		d:   NewDispatcher(Options{State: st, Actuator: act}),
	}
}

func (f *fixture) ingest(ticks ...market.Tick) {
	for _, tk := range ticks {
		f.st.Ingest(tk)
	}
}

// buyMove mid 100.00 -> 100.50，回看 100ms 内可见。
func buyMove() []market.Tick {
	return []market.Tick{
		tickAt(0, "99.95", "100.05", 0),
		tickAt(200*time.Millisecond, "100.45", "100.55", 0),
	}
}

func sellMove() []market.Tick {
	return []market.Tick{
		tickAt(0, "100.45", "100.55", 0),
		tickAt(200*time.Millisecond, "99.95", "100.05", 0),
	}
}

func TestSimpleCycle(t *testing.T) {
	f := newFixture(t, config.OrderTypeSimple)
	f.ingest(buyMove()...)

	require.True(t, f.d.Dispatch(context.Background()))
	f.d.Wait()

	regions, waits := f.act.snapshot()
	assert.Equal(t, []config.Region{entryBuyRegion, exitRegion, exitRegion, exitRegion}, regions)
	assert.Equal(t, []time.Duration{10 * time.Second, time.Second, time.Second, time.Second}, waits)

	status := f.st.Status()
	assert.False(t, status.IsProcessing)
	require.Len(t, status.Orders, 1)
	assert.Equal(t, "buy", status.Orders[0].Side)
	assert.Equal(t, "100.5", status.Orders[0].Entry)
	assert.Equal(t, "0", status.Orders[0].Exit, "exit reference is not re-sampled")
	assert.Equal(t, status.Orders[0].Line, status.Message)

	acq, rel := f.st.GateCounts()
	assert.Equal(t, uint64(1), acq)
	assert.Equal(t, uint64(1), rel)
}

func TestSimpleSellUsesSellRegion(t *testing.T) {
	f := newFixture(t, config.OrderTypeSimple)
	f.ingest(sellMove()...)
	f.d.Dispatch(context.Background())
	f.d.Wait()

	regions, _ := f.act.snapshot()
	require.NotEmpty(t, regions)
	assert.Equal(t, entrySellRegion, regions[0])
	assert.Equal(t, "sell", f.st.Status().Orders[0].Side)
}

func TestNoTriggerNoAction(t *testing.T) {
	f := newFixture(t, config.OrderTypeSimple)
	f.ingest(tickAt(0, "100", "100", 0), tickAt(200*time.Millisecond, "100.01", "100.01", 0))
	f.d.Dispatch(context.Background())
	f.d.Wait()

	regions, _ := f.act.snapshot()
	assert.Empty(t, regions)
	acq, _ := f.st.GateCounts()
	assert.Zero(t, acq)
}

func TestDispatchSkippedWhileProcessing(t *testing.T) {
	f := newFixture(t, config.OrderTypeSimple)
	f.ingest(buyMove()...)
	require.True(t, f.st.TryAcquire())
	before := f.st.Status()

	assert.False(t, f.d.Dispatch(context.Background()))
	f.d.Wait()

	regions, _ := f.act.snapshot()
	assert.Empty(t, regions)
	after := f.st.Status()
	assert.Equal(t, before.Message, after.Message)
	assert.Equal(t, before.Orders, after.Orders)
	assert.True(t, after.IsProcessing)
}

func TestDispatchSkippedWhenStopped(t *testing.T) {
	f := newFixture(t, config.OrderTypeSimple)
	f.ingest(buyMove()...)
	f.st.SetRunning(false)

	assert.False(t, f.d.Dispatch(context.Background()))
	regions, _ := f.act.snapshot()
	assert.Empty(t, regions)
}

func TestUnmappedOrderTypeIsNoop(t *testing.T) {
	f := newFixture(t, 7)
	f.ingest(buyMove()...)
	assert.False(t, f.d.Dispatch(context.Background()))
}

// TestSingleFlight 并发触发时只有一个周期完整执行，其余被丢弃。
func TestSingleFlight(t *testing.T) {
	f := newFixture(t, config.OrderTypeSimple)
	f.act.release = make(chan struct{})
	f.ingest(buyMove()...)

	// 第一个周期占用闸门后阻塞在入场动作上
	require.True(t, f.d.Dispatch(context.Background()))
	require.Eventually(t, f.st.Processing, time.Second, 5*time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.d.Dispatch(context.Background())
		}()
	}
	wg.Wait()
	close(f.act.release)
	f.d.Wait()

	regions, _ := f.act.snapshot()
	assert.Len(t, regions, 4, "exactly one entry and three exits")
	acq, rel := f.st.GateCounts()
	assert.Equal(t, uint64(1), acq)
	assert.Equal(t, uint64(1), rel)
	assert.Len(t, f.st.Status().Orders, 1)
}

// TestRacingVariantsOnlyOneAcquires 多个变体同时通过前置检查，闸门只放行一个。
func TestRacingVariantsOnlyOneAcquires(t *testing.T) {
	f := newFixture(t, config.OrderTypeExitOnly)
	f.act.release = make(chan struct{})
	f.ingest(buyMove()...)

	rec := &countingRecorder{}
	f.d.mon = rec

	view := f.st.DispatchView()
	for i := 0; i < 8; i++ {
		f.d.wg.Add(1)
		go func() {
			defer f.d.wg.Done()
			f.d.run(context.Background(), Plan{Kind: KindExitOnly}, view)
		}()
	}
	require.Eventually(t, func() bool { return rec.busyCount() == 7 }, time.Second, 5*time.Millisecond)
	close(f.act.release)
	f.d.Wait()

	regions, _ := f.act.snapshot()
	assert.Len(t, regions, int(exitRegion.Clicks))
	acq, rel := f.st.GateCounts()
	assert.Equal(t, uint64(1), acq)
	assert.Equal(t, uint64(1), rel)
}

func TestEntryOnly(t *testing.T) {
	f := newFixture(t, config.OrderTypeEntryBuy)
	f.ingest(buyMove()...)
	f.d.Dispatch(context.Background())
	f.d.Wait()

	regions, waits := f.act.snapshot()
	assert.Equal(t, []config.Region{entryBuyRegion}, regions)
	assert.Empty(t, waits)
	status := f.st.Status()
	assert.Empty(t, status.Orders)
	assert.Equal(t, order.UndefinedMessage, status.Message)
}

func TestEntryOnlySideMismatchIsSkip(t *testing.T) {
	f := newFixture(t, config.OrderTypeEntrySell)
	f.ingest(buyMove()...)
	f.d.Dispatch(context.Background())
	f.d.Wait()

	regions, _ := f.act.snapshot()
	assert.Empty(t, regions)
	acq, _ := f.st.GateCounts()
	assert.Zero(t, acq, "mismatch must not touch the gate")
}

func TestExitOnly(t *testing.T) {
	f := newFixture(t, config.OrderTypeExitOnly)
	f.ingest(sellMove()...)
	f.d.Dispatch(context.Background())
	f.d.Wait()

	regions, waits := f.act.snapshot()
	assert.Equal(t, []config.Region{exitRegion, exitRegion, exitRegion}, regions)
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, waits)
	assert.False(t, f.st.Processing())
}

func TestFlagDriven(t *testing.T) {
	cases := []struct {
		flag    uint8
		regions []config.Region
		waits   int
	}{
		{0, nil, 0},
		{1, []config.Region{entryBuyRegion}, 0},
		{2, []config.Region{entrySellRegion}, 0},
		{3, []config.Region{entryBuyRegion, exitRegion, exitRegion, exitRegion}, 4},
		{4, []config.Region{entrySellRegion, exitRegion, exitRegion, exitRegion}, 4},
		{5, []config.Region{exitRegion, exitRegion, exitRegion}, 3},
		{6, []config.Region{exitRegion, exitRegion, exitRegion}, 3},
		{9, nil, 0},
	}
	for _, tc := range cases {
		f := newFixture(t, config.OrderTypeFlag)
		// 价格不动：标志驱动不看阈值
		f.ingest(tickAt(0, "100", "100", 0), tickAt(200*time.Millisecond, "100", "100", tc.flag))
		f.d.Dispatch(context.Background())
		f.d.Wait()

		regions, waits := f.act.snapshot()
		assert.Equal(t, tc.regions, regions, "flag %d", tc.flag)
		assert.Len(t, waits, tc.waits, "flag %d", tc.flag)
		assert.False(t, f.st.Processing(), "flag %d", tc.flag)
	}
}

func TestActuatorErrorAbortsAndReleases(t *testing.T) {
	f := newFixture(t, config.OrderTypeSimple)
	alerts := alert.NewMockChannel("mock")
	f.d = NewDispatcher(Options{
		State:    f.st,
		Actuator: f.act,
		Alerts:   alert.NewManager([]alert.Channel{alerts}, time.Minute),
	})
	f.act.failAt = 2 // 第一次出场点击失败
	f.ingest(buyMove()...)
	f.d.Dispatch(context.Background())
	f.d.Wait()

	regions, waits := f.act.snapshot()
	assert.Len(t, regions, 2, "remaining exits are aborted")
	assert.Equal(t, []time.Duration{10 * time.Second}, waits)

	status := f.st.Status()
	assert.False(t, status.IsProcessing)
	assert.Empty(t, status.Orders)
	assert.Contains(t, status.Message, "agent unavailable")
	require.Equal(t, 1, alerts.Count())
	assert.Equal(t, "simple", alerts.GetAlerts()[0].Fields["kind"])

	// 闸门已释放，下一次周期可以继续
	f.act.failAt = 0
	f.d.Dispatch(context.Background())
	f.d.Wait()
	assert.Len(t, f.st.Status().Orders, 1)
}

func TestDispatchIgnoresCancellation(t *testing.T) {
	f := newFixture(t, config.OrderTypeExitOnly)
	f.ingest(buyMove()...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.True(t, f.d.Dispatch(ctx))
	f.d.Wait()
	regions, _ := f.act.snapshot()
	assert.Len(t, regions, 3)
}
