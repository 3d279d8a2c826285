package alert

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"quote-trigger-go/infrastructure/logger"
)

// LogChannel 把告警写进结构化日志。
type LogChannel struct {
	log  *logger.Logger
	name string
}

func NewLogChannel(name string, log *logger.Logger) *LogChannel {
	if log == nil {
		log = logger.NewNop()
	}
	return &LogChannel{log: log, name: name}
}

func (c *LogChannel) Send(alert Alert) error {
	fields := []zap.Field{
		zap.String("level", string(alert.Level)),
		zap.Time("ts", alert.Timestamp),
	}
	for k, v := range alert.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	switch alert.Level {
	case LevelError, LevelCritical:
		c.log.Error("alert: "+alert.Message, fields...)
	case LevelWarning:
		c.log.Warn("alert: "+alert.Message, fields...)
	default:
		c.log.Info("alert: "+alert.Message, fields...)
	}
	return nil
}

func (c *LogChannel) Name() string { return c.name }

// WebhookChannel 以 JSON POST 告警到外部地址（如 IM 机器人转发服务）。
type WebhookChannel struct {
	name    string
	url     string
	timeout time.Duration
	client  *fasthttp.Client
}

func NewWebhookChannel(name, url string, timeout time.Duration) *WebhookChannel {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &WebhookChannel{
		name:    name,
		url:     url,
		timeout: timeout,
		client:  &fasthttp.Client{Name: "quote-trigger-alert"},
	}
}

func (c *WebhookChannel) Send(alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := c.client.DoTimeout(req, resp, c.timeout); err != nil {
		return err
	}
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return fmt.Errorf("webhook status %d", code)
	}
	return nil
}

func (c *WebhookChannel) Name() string { return c.name }

// MockChannel 模拟告警通道（用于测试）
type MockChannel struct {
	name      string
	mu        sync.Mutex
	alerts    []Alert
	shouldErr bool
}

func NewMockChannel(name string) *MockChannel {
	return &MockChannel{name: name}
}

func (c *MockChannel) Send(alert Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shouldErr {
		return fmt.Errorf("mock error")
	}
	c.alerts = append(c.alerts, alert)
	return nil
}

func (c *MockChannel) Name() string { return c.name }

// GetAlerts 获取所有接收到的告警
func (c *MockChannel) GetAlerts() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Alert, len(c.alerts))
	copy(out, c.alerts)
	return out
}

func (c *MockChannel) SetShouldError(shouldErr bool) {
	c.mu.Lock()
	c.shouldErr = shouldErr
	c.mu.Unlock()
}

// Count 返回接收到的告警数量
func (c *MockChannel) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}
