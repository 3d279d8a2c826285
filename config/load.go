package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env      string         `yaml:"env"`
	Feed     FeedConfig     `yaml:"feed"`
	Control  ControlConfig  `yaml:"control"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
	Actuator ActuatorConfig `yaml:"actuator"`
	Alert    AlertConfig    `yaml:"alert"`
	History  HistoryConfig  `yaml:"history"`
	Status   StatusConfig   `yaml:"status"`
	Strategy StrategyConfig `yaml:"strategy"`
	Regions  RegionsConfig  `yaml:"regions"`
}

// FeedConfig 行情输入端：TCP 长度前缀帧与 websocket 两种监听。
type FeedConfig struct {
	TCPAddr       string `yaml:"tcpAddr"`
	WSAddr        string `yaml:"wsAddr"`
	WSPath        string `yaml:"wsPath"`
	MaxFrameBytes int    `yaml:"maxFrameBytes"`
	Buffer        int    `yaml:"buffer"`
}

type ControlConfig struct {
	Addr string `yaml:"addr"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig mirrors infrastructure/logger.Config so the YAML stays flat.
type LogConfig struct {
	Level      string   `yaml:"level"`
	Outputs    []string `yaml:"outputs"`
	OutputFile string   `yaml:"outputFile"`
	ErrorFile  string   `yaml:"errorFile"`
	Format     string   `yaml:"format"`
}

// ActuatorConfig 选择动作执行器：log（仅记录）或 remote（HTTP 代理）。
type ActuatorConfig struct {
	Mode      string `yaml:"mode"`
	URL       string `yaml:"url"`
	TimeoutMs int    `yaml:"timeoutMs"`
	// MaxRate 每秒最多发送的动作数，0 表示不限速。
	MaxRate float64 `yaml:"maxRate"`
	Burst   int     `yaml:"burst"`
}

// AlertConfig 周期失败告警：总是写日志，配置 webhookUrl 时额外推送。
type AlertConfig struct {
	ThrottleSec int    `yaml:"throttleSec"`
	WebhookURL  string `yaml:"webhookUrl"`
}

type HistoryConfig struct {
	Limit int `yaml:"limit"`
}

type StatusConfig struct {
	LogCap       int  `yaml:"logCap"`
	BackfillExit bool `yaml:"backfillExit"`
	AutoStart    bool `yaml:"autoStart"`
}

// RegionsConfig 三个动作区域。
type RegionsConfig struct {
	EntryBuy  Region `yaml:"entryBuy"`
	EntrySell Region `yaml:"entrySell"`
	Exit      Region `yaml:"exit"`
}

// Default 返回可直接运行的默认配置（dry-run 执行器）。
func Default() AppConfig {
	return AppConfig{
		Env: "dev",
		Feed: FeedConfig{
			TCPAddr:       ":8080",
			WSPath:        "/ws/ticks",
			MaxFrameBytes: 64 * 1024,
			Buffer:        1024,
		},
		Control: ControlConfig{Addr: "127.0.0.1:8090"},
		Metrics: MetricsConfig{Addr: ":9100"},
		Log: LogConfig{
			Level:   "info",
			Outputs: []string{"stdout"},
			Format:  "json",
		},
		Actuator: ActuatorConfig{Mode: ActuatorModeLog, TimeoutMs: 2000},
		Alert:    AlertConfig{ThrottleSec: 60},
		History:  HistoryConfig{Limit: 250},
		Status:   StatusConfig{LogCap: 8},
		Strategy: DefaultStrategy(),
		Regions: RegionsConfig{
			EntryBuy:  DefaultRegion(),
			EntrySell: DefaultRegion(),
			Exit:      DefaultRegion(),
		},
	}
}

// Load reads YAML config from path on top of Default() and validates it.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides deployment fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	return cfg, Validate(cfg)
}

func applyEnv(cfg *AppConfig) {
	if v := os.Getenv("QT_FEED_TCP_ADDR"); v != "" {
		cfg.Feed.TCPAddr = v
	}
	if v := os.Getenv("QT_FEED_WS_ADDR"); v != "" {
		cfg.Feed.WSAddr = v
	}
	if v := os.Getenv("QT_CONTROL_ADDR"); v != "" {
		cfg.Control.Addr = v
	}
	if v := os.Getenv("QT_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("QT_ACTUATOR_URL"); v != "" {
		cfg.Actuator.URL = v
	}
	if v := os.Getenv("QT_ACTUATOR_MODE"); v != "" {
		cfg.Actuator.Mode = v
	}
	if v := os.Getenv("QT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("QT_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.History.Limit = n
		}
	}
}

// Save persists the config as YAML (settings written back by the control surface).
func Save(path string, cfg AppConfig) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Feed.TCPAddr == "" && cfg.Feed.WSAddr == "" {
		return errors.New("feed.tcpAddr or feed.wsAddr is required")
	}
	if cfg.Feed.MaxFrameBytes <= 0 {
		return errors.New("feed.maxFrameBytes must be > 0")
	}
	if cfg.Feed.Buffer < 0 {
		return errors.New("feed.buffer must be >= 0")
	}
	if cfg.History.Limit <= 0 {
		return errors.New("history.limit must be > 0")
	}
	if cfg.Status.LogCap < 0 {
		return errors.New("status.logCap must be >= 0")
	}
	switch cfg.Actuator.Mode {
	case ActuatorModeLog:
	case ActuatorModeRemote:
		if cfg.Actuator.URL == "" {
			return errors.New("actuator.url is required in remote mode")
		}
	default:
		return fmt.Errorf("actuator.mode %q unknown", cfg.Actuator.Mode)
	}
	if cfg.Actuator.TimeoutMs < 0 {
		return errors.New("actuator.timeoutMs must be >= 0")
	}
	if cfg.Alert.ThrottleSec < 0 {
		return errors.New("alert.throttleSec must be >= 0")
	}
	if cfg.Actuator.MaxRate < 0 || cfg.Actuator.Burst < 0 {
		return errors.New("actuator.maxRate and actuator.burst must be >= 0")
	}
	if _, err := cfg.Strategy.Params(); err != nil {
		return err
	}
	if err := cfg.Regions.Validate(); err != nil {
		return err
	}
	return nil
}

const (
	ActuatorModeLog    = "log"
	ActuatorModeRemote = "remote"
)
