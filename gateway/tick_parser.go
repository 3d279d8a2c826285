package gateway

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"quote-trigger-go/market"
)

// ParseError 入站记录无法解析；pump 记录日志后继续。
type ParseError struct {
	Reason string
	Raw    []byte
}

func (e *ParseError) Error() string {
	const maxRaw = 128
	raw := e.Raw
	if len(raw) > maxRaw {
		raw = raw[:maxRaw]
	}
	return fmt.Sprintf("parse tick: %s: %q", e.Reason, raw)
}

// ParseTick 解析一条 JSON 报价记录：
//
//	{"symbol":"USDJPY","bid":"110.00","ask":110.1,"flag":1,"side":0,"server_at":"2024-01-01T00:00:00Z"}
//
// bid/ask 接受字符串或数字，数字取原文以保留精度。flag/side/server_at 可省略。
func ParseTick(raw []byte) (market.Tick, error) {
	if !gjson.ValidBytes(raw) {
		return market.Tick{}, &ParseError{Reason: "invalid json", Raw: raw}
	}
	res := gjson.ParseBytes(raw)
	if !res.IsObject() {
		return market.Tick{}, &ParseError{Reason: "not an object", Raw: raw}
	}

	symbol := res.Get("symbol")
	if symbol.Type != gjson.String {
		return market.Tick{}, &ParseError{Reason: "missing symbol", Raw: raw}
	}
	bid, err := decimalField(res, "bid")
	if err != nil {
		return market.Tick{}, &ParseError{Reason: err.Error(), Raw: raw}
	}
	ask, err := decimalField(res, "ask")
	if err != nil {
		return market.Tick{}, &ParseError{Reason: err.Error(), Raw: raw}
	}

	tick := market.Tick{Symbol: symbol.String(), Bid: bid, Ask: ask}
	if tick.Flag, err = smallIntField(res, "flag"); err != nil {
		return market.Tick{}, &ParseError{Reason: err.Error(), Raw: raw}
	}
	if tick.Side, err = smallIntField(res, "side"); err != nil {
		return market.Tick{}, &ParseError{Reason: err.Error(), Raw: raw}
	}
	if v := res.Get("server_at"); v.Exists() && v.Type != gjson.Null {
		ts, err := time.Parse(time.RFC3339Nano, v.String())
		if err != nil {
			return market.Tick{}, &ParseError{Reason: "server_at: " + err.Error(), Raw: raw}
		}
		tick.ServerAt = ts
	}
	if err := tick.Validate(); err != nil {
		return market.Tick{}, &ParseError{Reason: err.Error(), Raw: raw}
	}
	return tick, nil
}

func decimalField(res gjson.Result, name string) (decimal.Decimal, error) {
	v := res.Get(name)
	var text string
	switch v.Type {
	case gjson.String:
		text = v.Str
	case gjson.Number:
		text = v.Raw
	default:
		return decimal.Zero, fmt.Errorf("%s: missing or not a number", name)
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", name, err)
	}
	return d, nil
}

func smallIntField(res gjson.Result, name string) (uint8, error) {
	v := res.Get(name)
	if !v.Exists() || v.Type == gjson.Null {
		return 0, nil
	}
	if v.Type != gjson.Number {
		return 0, fmt.Errorf("%s: not a number", name)
	}
	n := v.Int()
	if n < 0 || n > 255 || float64(n) != v.Num {
		return 0, fmt.Errorf("%s: %s out of range", name, v.Raw)
	}
	return uint8(n), nil
}
