package actuator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"

	"quote-trigger-go/config"
)

// ErrAgentRejected 代理返回 ok=false。
var ErrAgentRejected = errors.New("actuator agent rejected action")

// Remote 把选中的坐标 POST 给桌面代理执行点击。
// 代理响应形如 {"ok":true} 或 {"ok":false,"error":"..."}。
type Remote struct {
	client  *fasthttp.Client
	url     string
	timeout time.Duration
	rnd     Rand
	limiter RateLimiter
}

func NewRemote(url string, timeout time.Duration, rnd Rand) *Remote {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if rnd == nil {
		rnd = DefaultRand
	}
	return &Remote{
		client:  &fasthttp.Client{Name: "quote-trigger"},
		url:     url,
		timeout: timeout,
		rnd:     rnd,
	}
}

// WithLimiter 为后续动作设置限速器，nil 表示不限速。
func (a *Remote) WithLimiter(l RateLimiter) *Remote {
	a.limiter = l
	return a
}

func (a *Remote) PerformWithin(ctx context.Context, r config.Region) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := PickPoint(r, a.rnd)
	if err != nil {
		return err
	}
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("actuator rate limit: %w", err)
		}
	}
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(a.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	timeout := a.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if err := a.client.DoTimeout(req, resp, timeout); err != nil {
		return fmt.Errorf("actuator agent %s: %w", a.url, err)
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return fmt.Errorf("actuator agent %s: status %d", a.url, code)
	}

	reply := resp.Body()
	if !gjson.ValidBytes(reply) {
		return fmt.Errorf("actuator agent %s: invalid json reply", a.url)
	}
	if !gjson.GetBytes(reply, "ok").Bool() {
		if msg := gjson.GetBytes(reply, "error").String(); msg != "" {
			return fmt.Errorf("%w: %s", ErrAgentRejected, msg)
		}
		return ErrAgentRejected
	}
	return nil
}

func (a *Remote) Wait(d time.Duration) { sleep(d) }
