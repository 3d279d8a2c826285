package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"quote-trigger-go/actuator"
	"quote-trigger-go/infrastructure/alert"
	"quote-trigger-go/config"
	"quote-trigger-go/gateway"
	"quote-trigger-go/infrastructure/logger"
	"quote-trigger-go/infrastructure/monitor"
	"quote-trigger-go/internal/control"
	"quote-trigger-go/internal/engine"
	"quote-trigger-go/internal/store"
	"quote-trigger-go/strategy"
)

// 停机时等待进行中动作周期的上限。
const drainTimeout = 30 * time.Second

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	// 配置
	cfg        *config.AppConfig
	configPath string

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager

	// 核心服务
	store      *store.Store
	actuator   actuator.Actuator
	dispatcher *strategy.Dispatcher
	pump       *engine.Pump

	// 行情输入
	events  chan gateway.Event
	tcpFeed *gateway.TCPFeed
	wsFeed  *gateway.WSFeed

	control *control.Server
	watcher *config.Watcher

	// HTTP服务器
	metricsServer *http.Server
	controlServer *http.Server
	wsServer      *http.Server

	// 生命周期管理
	lifecycle *LifecycleManager
}

// New 创建新的Container实例
func New(configPath string) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return NewWithConfig(cfg, configPath), nil
}

// NewWithConfig 使用已加载的配置；configPath 为空时不启用热加载。
func NewWithConfig(cfg config.AppConfig, configPath string) *Container {
	return &Container{
		cfg:        &cfg,
		configPath: configPath,
		lifecycle:  NewLifecycleManager(),
	}
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}
	if err := c.buildCoreServices(); err != nil {
		return fmt.Errorf("build core services failed: %w", err)
	}
	c.buildGateway()
	if err := c.buildPump(); err != nil {
		return fmt.Errorf("build pump failed: %w", err)
	}

	c.registerLifecycleComponents()
	c.logger.Info("container built successfully", zap.String("env", c.cfg.Env))
	return nil
}

func (c *Container) buildInfrastructure() error {
	logCfg := logger.Config{
		Level:      c.cfg.Log.Level,
		Outputs:    c.cfg.Log.Outputs,
		OutputFile: c.cfg.Log.OutputFile,
		ErrorFile:  c.cfg.Log.ErrorFile,
		Format:     c.cfg.Log.Format,
	}

	var err error
	c.logger, err = logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}

	c.monitor = monitor.New(monitor.DefaultConfig())

	channels := []alert.Channel{alert.NewLogChannel("log", c.logger.Named("alert"))}
	if c.cfg.Alert.WebhookURL != "" {
		channels = append(channels, alert.NewWebhookChannel("webhook", c.cfg.Alert.WebhookURL, 0))
	}
	c.alerts = alert.NewManager(channels, time.Duration(c.cfg.Alert.ThrottleSec)*time.Second)

	c.logger.Info("infrastructure built")
	return nil
}

func (c *Container) buildCoreServices() error {
	storeLog := c.logger.Named("store")
	st, err := store.New(store.Options{
		HistoryLimit: c.cfg.History.Limit,
		StatusLogCap: c.cfg.Status.LogCap,
		BackfillExit: c.cfg.Status.BackfillExit,
		Running:      c.cfg.Status.AutoStart,
		Strategy:     c.cfg.Strategy,
		Regions:      c.cfg.Regions,
		Sink: func(event string, fields map[string]interface{}) {
			storeLog.WithFields(fields).Info(event)
		},
	})
	if err != nil {
		return fmt.Errorf("create store failed: %w", err)
	}
	c.store = st

	rnd := actuator.DefaultRand
	switch c.cfg.Actuator.Mode {
	case config.ActuatorModeRemote:
		timeout := time.Duration(c.cfg.Actuator.TimeoutMs) * time.Millisecond
		remote := actuator.NewRemote(c.cfg.Actuator.URL, timeout, rnd)
		if c.cfg.Actuator.MaxRate > 0 {
			remote.WithLimiter(actuator.NewTokenBucketLimiter(c.cfg.Actuator.MaxRate, c.cfg.Actuator.Burst))
		}
		c.actuator = remote
	default:
		c.actuator = actuator.NewLogging(c.logger.Named("actuator"), rnd)
	}

	c.dispatcher = strategy.NewDispatcher(strategy.Options{
		State:    c.store,
		Actuator: c.actuator,
		Rand:     rnd,
		Log:      c.logger.Named("dispatcher"),
		Monitor:  c.monitor,
		Alerts:   c.alerts,
	})

	c.control = control.New(control.Options{
		State:   c.store,
		Rand:    rnd,
		Log:     c.logger.Named("control"),
		Monitor: c.monitor,
		Health:  c.HealthCheck,
	})

	c.logger.Info("core services built",
		zap.String("actuator", c.cfg.Actuator.Mode),
		zap.Int("history_limit", c.cfg.History.Limit))
	return nil
}

func (c *Container) buildGateway() {
	c.events = make(chan gateway.Event, c.cfg.Feed.Buffer)
	feedLog := c.logger.Named("feed")
	if c.cfg.Feed.TCPAddr != "" {
		c.tcpFeed = gateway.NewTCPFeed(c.cfg.Feed.TCPAddr, c.cfg.Feed.MaxFrameBytes, c.events, feedLog, c.monitor)
	}
	if c.cfg.Feed.WSAddr != "" {
		c.wsFeed = gateway.NewWSFeed(c.cfg.Feed.MaxFrameBytes, c.events, feedLog, c.monitor)
	}
	c.logger.Info("gateway built")
}

func (c *Container) buildPump() error {
	p, err := engine.New(engine.Components{
		Events:     c.events,
		Store:      c.store,
		Dispatcher: c.dispatcher,
		Logger:     c.logger.Named("pump"),
		Monitor:    c.monitor,
	})
	if err != nil {
		return err
	}
	c.pump = p
	return nil
}

// registerLifecycleComponents 启动顺序：指标、控制面、泵、行情入口；停止时逆序。
func (c *Container) registerLifecycleComponents() {
	if c.cfg.Metrics.Addr != "" {
		c.lifecycle.Register(&httpServerComponent{
			name:    "metrics_server",
			handler: c.monitor.Handler(),
			addr:    c.cfg.Metrics.Addr,
			logger:  c.logger,
			server:  &c.metricsServer,
		})
	}
	if c.cfg.Control.Addr != "" {
		c.lifecycle.Register(&httpServerComponent{
			name:    "control_server",
			handler: c.control,
			addr:    c.cfg.Control.Addr,
			logger:  c.logger,
			server:  &c.controlServer,
		})
	}
	c.lifecycle.Register(c.pump)
	if c.wsFeed != nil {
		mux := http.NewServeMux()
		mux.Handle(c.cfg.Feed.WSPath, c.wsFeed)
		c.lifecycle.Register(&httpServerComponent{
			name:    "ws_feed",
			handler: mux,
			addr:    c.cfg.Feed.WSAddr,
			logger:  c.logger,
			server:  &c.wsServer,
			onStop:  c.wsFeed.Close,
		})
	}
	if c.tcpFeed != nil {
		c.lifecycle.Register(c.tcpFeed)
	}
}

func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}
	if c.configPath != "" {
		c.startWatcher(ctx)
	}

	c.logger.Info("container started")
	return nil
}

// startWatcher 配置文件变更时把策略与区域热加载进 store。
func (c *Container) startWatcher(ctx context.Context) {
	watchLog := c.logger.Named("config")
	c.watcher = &config.Watcher{
		Path:     c.configPath,
		Cooldown: time.Second,
		OnError: func(err error) {
			watchLog.Warn("config reload rejected", zap.Error(err))
		},
	}
	onUpdate := func(cfg config.AppConfig) {
		if err := c.store.ApplyConfig(cfg); err != nil {
			watchLog.Warn("config reload not applied", zap.Error(err))
			return
		}
		watchLog.Info("config reloaded", zap.String("path", c.configPath))
	}
	go func() {
		// 热加载失败不影响主流程
		if err := c.watcher.Start(ctx, onUpdate); err != nil && !errors.Is(err, context.Canceled) {
			watchLog.Warn("config watcher disabled", zap.Error(err))
		}
	}()
}

func (c *Container) Stop() error {
	c.logger.Info("stopping container...")

	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}

	// 进行中的动作周期不会被取消，等待其释放闸门
	if !c.dispatcher.WaitTimeout(drainTimeout) {
		c.logger.Warn("action cycle still running at shutdown", zap.Duration("waited", drainTimeout))
		_ = c.alerts.SendCritical("shutdown with action cycle in flight", map[string]interface{}{
			"waited": drainTimeout.String(),
		})
	}
	c.logger.Info("container stopped", zap.String("state", c.store.String()))

	_ = c.logger.Close()
	return err
}

func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

// Store 共享状态，供入口与测试读取。
func (c *Container) Store() *store.Store { return c.store }

// TCPAddr 行情 TCP 实际监听地址。
func (c *Container) TCPAddr() string {
	if c.tcpFeed == nil {
		return ""
	}
	if addr := c.tcpFeed.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}
