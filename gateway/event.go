package gateway

import "quote-trigger-go/market"

// Event 行情输入事件：要么是已解析的 tick，要么是解析/读取错误。
type Event struct {
	Tick      market.Tick
	Err       error
	Transport string
}

// FeedRecorder 连接指标，由 monitor.Monitor 实现。
type FeedRecorder interface {
	RecordFeedConnection(transport string)
	RecordFeedDisconnect(transport string)
}

type nopFeedRecorder struct{}

func (nopFeedRecorder) RecordFeedConnection(string) {}
func (nopFeedRecorder) RecordFeedDisconnect(string) {}

const (
	TransportTCP = "tcp"
	TransportWS  = "ws"
)

func eventFrom(raw []byte, transport string) Event {
	tick, err := ParseTick(raw)
	if err != nil {
		return Event{Err: err, Transport: transport}
	}
	return Event{Tick: tick, Transport: transport}
}
