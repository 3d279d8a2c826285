package alert

import (
	"fmt"
	"sync"
	"time"
)

// Level 告警级别
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

// Alert 告警信息
type Alert struct {
	Level     Level                  `json:"level"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Channel 告警通道接口
type Channel interface {
	Send(alert Alert) error
	Name() string
}

// Manager 告警管理器：按 level+message 限流后分发到所有通道。
type Manager struct {
	channels []Channel
	throttle *Throttler
	mu       sync.RWMutex
}

// Throttler 同一 key 在 interval 内只放行一次。
type Throttler struct {
	lastSent map[string]time.Time
	interval time.Duration
	now      func() time.Time
	mu       sync.Mutex
}

func NewThrottler(interval time.Duration) *Throttler {
	return &Throttler{
		lastSent: make(map[string]time.Time),
		interval: interval,
		now:      time.Now,
	}
}

// Allow 检查是否允许发送（限流）
func (t *Throttler) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	last, exists := t.lastSent[key]
	if !exists || now.Sub(last) >= t.interval {
		t.lastSent[key] = now
		return true
	}
	return false
}

// Clear 清空所有限流记录
func (t *Throttler) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSent = make(map[string]time.Time)
}

func NewManager(channels []Channel, throttleInterval time.Duration) *Manager {
	return &Manager{
		channels: channels,
		throttle: NewThrottler(throttleInterval),
	}
}

// SendAlert 被限流时静默返回 nil；只有全部通道失败才返回错误。
func (m *Manager) SendAlert(alert Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = m.throttle.now()
	}
	key := fmt.Sprintf("%s:%s", alert.Level, alert.Message)
	if !m.throttle.Allow(key) {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var lastErr error
	sent := 0
	for _, ch := range m.channels {
		if err := ch.Send(alert); err != nil {
			lastErr = fmt.Errorf("channel %s failed: %w", ch.Name(), err)
			continue
		}
		sent++
	}
	if sent == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

func (m *Manager) SendWarning(message string, fields map[string]interface{}) error {
	return m.SendAlert(Alert{Level: LevelWarning, Message: message, Fields: fields})
}

func (m *Manager) SendError(message string, fields map[string]interface{}) error {
	return m.SendAlert(Alert{Level: LevelError, Message: message, Fields: fields})
}

func (m *Manager) SendCritical(message string, fields map[string]interface{}) error {
	return m.SendAlert(Alert{Level: LevelCritical, Message: message, Fields: fields})
}

// AddChannel 添加告警通道
func (m *Manager) AddChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
}

// GetChannels 获取所有通道名称
func (m *Manager) GetChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for _, ch := range m.channels {
		names = append(names, ch.Name())
	}
	return names
}

// ResetThrottle 重置限流器
func (m *Manager) ResetThrottle() {
	m.throttle.Clear()
}
