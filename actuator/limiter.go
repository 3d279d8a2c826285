package actuator

import (
	"context"
	"sync"
	"time"
)

// RateLimiter 限制发往代理的动作速率，避免代理端积压点击。
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// TokenBucketLimiter 是一个简单的令牌桶实现。
type TokenBucketLimiter struct {
	rate   float64
	burst  int
	tokens float64
	last   time.Time
	now    func() time.Time
	mu     sync.Mutex
}

func NewTokenBucketLimiter(rate float64, burst int) *TokenBucketLimiter {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucketLimiter{
		rate:   rate,
		burst:  burst,
		tokens: float64(burst),
		last:   time.Now(),
		now:    time.Now,
	}
}

// reserve 取走一个令牌，返回需要等待的时长（可为 0）。
func (l *TokenBucketLimiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.tokens += now.Sub(l.last).Seconds() * l.rate
	l.last = now
	if l.tokens > float64(l.burst) {
		l.tokens = float64(l.burst)
	}
	l.tokens--
	if l.tokens >= 0 {
		return 0
	}
	// 欠下的令牌按速率折算成等待时间
	return time.Duration(-l.tokens / l.rate * float64(time.Second))
}

// Wait 阻塞直到拿到令牌或 ctx 结束。ctx 结束时已预留的令牌不退还。
func (l *TokenBucketLimiter) Wait(ctx context.Context) error {
	d := l.reserve()
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
