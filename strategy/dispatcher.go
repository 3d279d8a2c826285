package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"quote-trigger-go/actuator"
	"quote-trigger-go/config"
	"quote-trigger-go/infrastructure/logger"
	"quote-trigger-go/internal/store"
	"quote-trigger-go/order"
)

// 调度跳过原因（指标标签）。
const (
	SkipNotRunning   = "not_running"
	SkipProcessing   = "processing"
	SkipUnmappedType = "unmapped_order_type"
	SkipNotTriggered = "not_triggered"
	SkipSideMismatch = "side_mismatch"
	SkipFlagNone     = "flag_none"
	SkipEmptyHistory = "empty_history"
	SkipGateBusy     = "gate_busy"
)

const (
	regionEntryBuyTag  = string(config.RegionEntryBuy)
	regionEntrySellTag = string(config.RegionEntrySell)
	regionExitTag      = string(config.RegionExit)
)

// State 调度器所需的共享状态操作，由 store.Store 实现。
type State interface {
	DispatchView() store.View
	TryAcquire() bool
	Release(rec *order.Record) error
	ReleaseWithError(rec *order.Record, cause error) error
}

// Recorder 调度指标，由 monitor.Monitor 实现。
type Recorder interface {
	RecordDispatchSkip(reason string)
	RecordGateAcquire()
	RecordGateBusy()
	RecordGateError()
	RecordAction(region string)
	RecordActionError(region string)
	RecordCycle(kind string, seconds float64)
	UpdateDiff(v float64)
}

// Alerter 周期失败时的告警出口，由 alert.Manager 实现。
type Alerter interface {
	SendError(message string, fields map[string]interface{}) error
}

type nopRecorder struct{}

func (nopRecorder) RecordDispatchSkip(string) {}
func (nopRecorder) RecordGateAcquire() {}
func (nopRecorder) RecordGateBusy() {}
func (nopRecorder) RecordGateError() {}
func (nopRecorder) RecordAction(string) {}
func (nopRecorder) RecordActionError(string) {}
func (nopRecorder) RecordCycle(string, float64) {}
func (nopRecorder) UpdateDiff(float64) {}

// Dispatcher 每个 tick 检查前置条件，然后在独立 goroutine 中运行所选变体。
// 同一时刻最多一个变体持有执行闸门，由闸门本身保证。
type Dispatcher struct {
	state State
	act   actuator.Actuator
	rnd   actuator.Rand
	log   *logger.Logger
	mon   Recorder
	alert Alerter
	now   func() time.Time

	wg sync.WaitGroup
}

// Options 构造参数，Log/Monitor/Alerts/Rand/Now 可为空。
type Options struct {
	State    State
	Actuator actuator.Actuator
	Rand     actuator.Rand
	Log      *logger.Logger
	Monitor  Recorder
	Alerts   Alerter
	Now      func() time.Time
}

func NewDispatcher(opts Options) *Dispatcher {
	d := &Dispatcher{
		state: opts.State,
		act:   opts.Actuator,
		rnd:   opts.Rand,
		log:   opts.Log,
		mon:   opts.Monitor,
		alert: opts.Alerts,
		now:   opts.Now,
	}
	if d.rnd == nil {
		d.rnd = actuator.DefaultRand
	}
	if d.log == nil {
		d.log = logger.NewNop()
	}
	if d.mon == nil {
		d.mon = nopRecorder{}
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Dispatch 检查运行标志与闸门状态；满足时启动对应变体并返回 true。
// 变体不受 ctx 取消影响，已开始的周期会执行完。
func (d *Dispatcher) Dispatch(ctx context.Context) bool {
	view := d.state.DispatchView()
	if !view.Running {
		d.mon.RecordDispatchSkip(SkipNotRunning)
		return false
	}
	if view.Processing {
		d.mon.RecordDispatchSkip(SkipProcessing)
		return false
	}
	plan := PlanFor(view.Params.OrderType)
	if plan.Kind == KindNone {
		d.mon.RecordDispatchSkip(SkipUnmappedType)
		d.log.Debug("unmapped order type", zap.Int("order_type", view.Params.OrderType))
		return false
	}

	cycleCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(cycleCtx, plan, view)
	}()
	return true
}

// Wait 等待所有已启动的变体结束。
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// WaitTimeout reports whether all variants finished within timeout.
func (d *Dispatcher) WaitTimeout(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (d *Dispatcher) run(ctx context.Context, plan Plan, view store.View) {
	switch plan.Kind {
	case KindSimple:
		d.runSimple(ctx, view)
	case KindEntryOnly:
		d.runEntryOnly(ctx, plan.Side, view)
	case KindExitOnly:
		d.runExitOnly(ctx, view)
	case KindFlagDriven:
		d.runFlagDriven(ctx, view)
	}
}

func (d *Dispatcher) evaluate(view store.View) Signal {
	sig := Evaluate(view.History, view.Params)
	f, _ := sig.Diff.Float64()
	d.mon.UpdateDiff(f)
	if !sig.Triggered {
		d.mon.RecordDispatchSkip(SkipNotTriggered)
	}
	return sig
}

// runSimple 入场 -> 等待 -> N 次出场 -> 结算，释放时写入状态日志。
func (d *Dispatcher) runSimple(ctx context.Context, view store.View) {
	sig := d.evaluate(view)
	if !sig.Triggered {
		return
	}
	last, ok := view.History.Last()
	if !ok {
		d.mon.RecordDispatchSkip(SkipEmptyHistory)
		return
	}

	d.withGate(KindSimple, func() (*order.Record, error) {
		rec := order.NewRecord(sig.Direction, last.Mid(), d.now())
		d.log.LogCycle("entry", KindSimple.String(), map[string]interface{}{
			"order_id": rec.ID,
			"side":     rec.Side.String(),
			"entry":    rec.Entry.String(),
			"diff":     sig.Diff.String(),
		})

		if err := d.entryClick(ctx, sig.Direction, view.Regions); err != nil {
			return nil, err
		}
		d.act.Wait(Dwell(view.Params, d.rnd))
		if err := d.exitClicks(ctx, view.Regions.Exit, view.Params.ExitPause); err != nil {
			return nil, err
		}
		if err := rec.Settle(nil, d.now()); err != nil {
			return nil, err
		}
		d.log.LogCycle("exit", KindSimple.String(), map[string]interface{}{
			"order_id": rec.ID,
			"clicks":   view.Regions.Exit.Clicks,
		})
		return rec, nil
	})
}

// runEntryOnly 方向不一致时记录跳过，不视为错误。
func (d *Dispatcher) runEntryOnly(ctx context.Context, side order.Side, view store.View) {
	sig := d.evaluate(view)
	if !sig.Triggered {
		return
	}
	if sig.Direction != side {
		d.mon.RecordDispatchSkip(SkipSideMismatch)
		d.log.LogCycle("skip", KindEntryOnly.String(), map[string]interface{}{
			"reason": SkipSideMismatch,
			"want":   side.String(),
			"got":    sig.Direction.String(),
		})
		return
	}

	d.withGate(KindEntryOnly, func() (*order.Record, error) {
		d.log.LogCycle("entry", KindEntryOnly.String(), map[string]interface{}{
			"side": side.String(),
			"diff": sig.Diff.String(),
		})
		return nil, d.entryClick(ctx, side, view.Regions)
	})
}

func (d *Dispatcher) runExitOnly(ctx context.Context, view store.View) {
	sig := d.evaluate(view)
	if !sig.Triggered {
		return
	}
	d.withGate(KindExitOnly, func() (*order.Record, error) {
		d.log.LogCycle("exit", KindExitOnly.String(), map[string]interface{}{
			"clicks": view.Regions.Exit.Clicks,
			"diff":   sig.Diff.String(),
		})
		return nil, d.exitClicks(ctx, view.Regions.Exit, view.Params.ExitPause)
	})
}

// runFlagDriven 只看最新 tick 的指令标志，不做阈值判断。
func (d *Dispatcher) runFlagDriven(ctx context.Context, view store.View) {
	last, ok := view.History.Last()
	if !ok {
		d.mon.RecordDispatchSkip(SkipEmptyHistory)
		return
	}
	action := FlagActionOf(last.Flag)
	if action == FlagNone {
		d.mon.RecordDispatchSkip(SkipFlagNone)
		d.log.Debug("undefined flag", zap.Uint8("flag", last.Flag))
		return
	}

	d.withGate(KindFlagDriven, func() (*order.Record, error) {
		d.log.LogCycle(action.String(), KindFlagDriven.String(), map[string]interface{}{
			"flag": last.Flag,
		})
		if action.entry() {
			if err := d.entryClick(ctx, action.Side(), view.Regions); err != nil {
				return nil, err
			}
			if !action.exit() {
				return nil, nil
			}
			d.act.Wait(Dwell(view.Params, d.rnd))
		}
		return nil, d.exitClicks(ctx, view.Regions.Exit, view.Params.ExitPause)
	})
}

// withGate 占用闸门后执行 body；释放放在 defer 中，任何返回路径都会执行。
func (d *Dispatcher) withGate(kind Kind, body func() (*order.Record, error)) {
	if !d.state.TryAcquire() {
		d.mon.RecordGateBusy()
		d.mon.RecordDispatchSkip(SkipGateBusy)
		return
	}
	d.mon.RecordGateAcquire()
	start := d.now()

	var (
		rec *order.Record
		err error
	)
	defer func() {
		var relErr error
		if err != nil {
			d.log.LogError(err, map[string]interface{}{"kind": kind.String()})
			relErr = d.state.ReleaseWithError(nil, err)
			if d.alert != nil {
				_ = d.alert.SendError("action cycle failed", map[string]interface{}{
					"kind":  kind.String(),
					"error": err.Error(),
				})
			}
		} else {
			relErr = d.state.Release(rec)
		}
		if relErr != nil {
			d.mon.RecordGateError()
			d.log.LogError(relErr, map[string]interface{}{"kind": kind.String(), "stage": "release"})
		}
		d.mon.RecordCycle(kind.String(), d.now().Sub(start).Seconds())
	}()

	rec, err = body()
}

func (d *Dispatcher) entryClick(ctx context.Context, side order.Side, regions config.RegionsConfig) error {
	region, tag := regions.EntryBuy, regionEntryBuyTag
	if side == order.SideSell {
		region, tag = regions.EntrySell, regionEntrySellTag
	}
	return d.click(ctx, tag, region)
}

// exitClicks 出场区域点击 N 次，每次之后暂停 pause。
func (d *Dispatcher) exitClicks(ctx context.Context, region config.Region, pause time.Duration) error {
	for i := 0; i < int(region.Clicks); i++ {
		if err := d.click(ctx, regionExitTag, region); err != nil {
			return err
		}
		d.act.Wait(pause)
	}
	return nil
}

func (d *Dispatcher) click(ctx context.Context, tag string, region config.Region) error {
	if err := d.act.PerformWithin(ctx, region); err != nil {
		d.mon.RecordActionError(tag)
		return fmt.Errorf("%s action: %w", tag, err)
	}
	d.mon.RecordAction(tag)
	return nil
}
