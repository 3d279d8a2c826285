package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器
type Monitor struct {
	registry *prometheus.Registry

	// 行情指标
	ticksTotal    *prometheus.CounterVec
	parseErrors   prometheus.Counter
	tickLatency   prometheus.Histogram
	midPrice      prometheus.Gauge
	diff          prometheus.Gauge
	historyLength prometheus.Gauge

	// 调度指标
	dispatchSkips *prometheus.CounterVec
	gateAcquires  prometheus.Counter
	gateBusy      prometheus.Counter
	gateErrors    prometheus.Counter
	actions       *prometheus.CounterVec
	actionErrors  *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec

	// 系统指标
	feedConnections    *prometheus.CounterVec
	feedDisconnections *prometheus.CounterVec
	controlRequests    *prometheus.CounterVec
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "qt",
		Subsystem: "trigger",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help,
		})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help,
		}, labels)
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help,
		})
	}

	return &Monitor{
		registry: reg,

		ticksTotal:  counterVec("ticks_total", "接收的行情条数", "symbol"),
		parseErrors: counter("parse_errors_total", "无法解析的行情记录数"),
		tickLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "tick_latency_seconds",
			Help:      "服务端时间到接收时间的延迟（秒）",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		midPrice:      gauge("mid_price", "最新中间价"),
		diff:          gauge("mid_diff", "最近一次评估的中间价差"),
		historyLength: gauge("history_length", "历史缓冲区长度"),

		dispatchSkips: counterVec("dispatch_skips_total", "跳过的调度次数", "reason"),
		gateAcquires:  counter("gate_acquires_total", "执行闸门成功占用次数"),
		gateBusy:      counter("gate_busy_total", "闸门忙碌被丢弃的触发次数"),
		gateErrors:    counter("gate_errors_total", "非法闸门释放次数"),
		actions:       counterVec("actions_total", "执行器动作次数", "region"),
		actionErrors:  counterVec("action_errors_total", "执行器错误次数", "region"),
		cycleDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cycle_duration_seconds",
			Help:      "一次策略周期从占用到释放的耗时（秒）",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{"kind"}),

		feedConnections:    counterVec("feed_connections_total", "行情连接次数", "transport"),
		feedDisconnections: counterVec("feed_disconnections_total", "行情断开次数", "transport"),
		controlRequests:    counterVec("control_requests_total", "控制接口请求数", "route", "code"),
	}
}

// 行情相关方法
func (m *Monitor) RecordTick(symbol string, latencySeconds float64) {
	m.ticksTotal.WithLabelValues(symbol).Inc()
	m.tickLatency.Observe(latencySeconds)
}

func (m *Monitor) RecordParseError() {
	m.parseErrors.Inc()
}

func (m *Monitor) UpdateMidPrice(value float64) {
	m.midPrice.Set(value)
}

func (m *Monitor) UpdateDiff(value float64) {
	m.diff.Set(value)
}

func (m *Monitor) UpdateHistoryLength(n int) {
	m.historyLength.Set(float64(n))
}

// 调度相关方法
func (m *Monitor) RecordDispatchSkip(reason string) {
	m.dispatchSkips.WithLabelValues(reason).Inc()
}

func (m *Monitor) RecordGateAcquire() {
	m.gateAcquires.Inc()
}

func (m *Monitor) RecordGateBusy() {
	m.gateBusy.Inc()
}

func (m *Monitor) RecordGateError() {
	m.gateErrors.Inc()
}

func (m *Monitor) RecordAction(region string) {
	m.actions.WithLabelValues(region).Inc()
}

func (m *Monitor) RecordActionError(region string) {
	m.actionErrors.WithLabelValues(region).Inc()
}

func (m *Monitor) RecordCycle(kind string, seconds float64) {
	m.cycleDuration.WithLabelValues(kind).Observe(seconds)
}

// 系统相关方法
func (m *Monitor) RecordFeedConnection(transport string) {
	m.feedConnections.WithLabelValues(transport).Inc()
}

func (m *Monitor) RecordFeedDisconnect(transport string) {
	m.feedDisconnections.WithLabelValues(transport).Inc()
}

func (m *Monitor) RecordControlRequest(route string, code int) {
	m.controlRequests.WithLabelValues(route, http.StatusText(code)).Inc()
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
