package gateway

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quote-trigger-go/infrastructure/logger"
)

// WSFeed websocket 行情入口，每条消息是一条 JSON 报价记录。
type WSFeed struct {
	maxFrame int
	events   chan<- Event
	log      *logger.Logger
	mon      FeedRecorder
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	done   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewWSFeed(maxFrame int, events chan<- Event, log *logger.Logger, mon FeedRecorder) *WSFeed {
	if log == nil {
		log = logger.NewNop()
	}
	if mon == nil {
		mon = nopFeedRecorder{}
	}
	return &WSFeed{
		maxFrame: maxFrame,
		events:   events,
		log:      log,
		mon:      mon,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
			// 行情源来自内网进程，不校验 Origin
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
		done:  make(chan struct{}),
	}
}

// ServeHTTP 升级连接并在当前 goroutine 中读取直到断开。
func (f *WSFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Warn("ws feed upgrade failed", zap.Error(err))
		return
	}
	if !f.track(conn) {
		_ = conn.Close()
		return
	}
	defer f.wg.Done()
	defer f.untrack(conn)
	defer conn.Close()

	conn.SetReadLimit(int64(f.maxFrame))
	remote := r.RemoteAddr
	f.mon.RecordFeedConnection(TransportWS)
	f.log.Info("ws feed client connected", zap.String("remote", remote))
	defer func() {
		f.mon.RecordFeedDisconnect(TransportWS)
		f.log.Info("ws feed client disconnected", zap.String("remote", remote))
	}()

	for {
		msgType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				f.log.Warn("ws feed read failed", zap.String("remote", remote), zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		select {
		case f.events <- eventFrom(message, TransportWS):
		case <-f.done:
			return
		}
	}
}

func (f *WSFeed) track(conn *websocket.Conn) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.conns[conn] = struct{}{}
	f.wg.Add(1)
	return true
}

func (f *WSFeed) untrack(conn *websocket.Conn) {
	f.mu.Lock()
	delete(f.conns, conn)
	f.mu.Unlock()
}

// Close 关闭所有活动连接并等待读取 goroutine 退出。
func (f *WSFeed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	close(f.done)
	for conn := range f.conns {
		_ = conn.Close()
	}
	f.mu.Unlock()
	f.wg.Wait()
}
