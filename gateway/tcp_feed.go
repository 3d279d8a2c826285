package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"quote-trigger-go/infrastructure/logger"
)

// TCPFeed 接受上游推送：每个连接一个 goroutine，逐帧解析后送入事件通道。
type TCPFeed struct {
	addr     string
	maxFrame int
	events   chan<- Event
	log      *logger.Logger
	mon      FeedRecorder

	mu      sync.Mutex
	ln      net.Listener
	conns   map[net.Conn]struct{}
	done    chan struct{}
	started bool
	wg      sync.WaitGroup
}

func NewTCPFeed(addr string, maxFrame int, events chan<- Event, log *logger.Logger, mon FeedRecorder) *TCPFeed {
	if log == nil {
		log = logger.NewNop()
	}
	if mon == nil {
		mon = nopFeedRecorder{}
	}
	return &TCPFeed{
		addr:     addr,
		maxFrame: maxFrame,
		events:   events,
		log:      log,
		mon:      mon,
		conns:    make(map[net.Conn]struct{}),
	}
}

// Start 绑定端口后在后台接受连接。
func (f *TCPFeed) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return nil
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", f.addr)
	if err != nil {
		return fmt.Errorf("tcp feed listen %s: %w", f.addr, err)
	}
	f.ln = ln
	f.done = make(chan struct{})
	f.started = true

	f.wg.Add(1)
	go f.acceptLoop(ln)
	f.log.Info("tcp feed listening", zap.String("addr", ln.Addr().String()))
	return nil
}

func (f *TCPFeed) acceptLoop(ln net.Listener) {
	defer f.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			f.log.Warn("tcp feed accept failed", zap.Error(err))
			continue
		}
		if !f.track(conn) {
			_ = conn.Close()
			return
		}
		f.wg.Add(1)
		go f.serve(conn)
	}
}

func (f *TCPFeed) track(conn net.Conn) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.started {
		return false
	}
	f.conns[conn] = struct{}{}
	return true
}

func (f *TCPFeed) untrack(conn net.Conn) {
	f.mu.Lock()
	delete(f.conns, conn)
	f.mu.Unlock()
}

// serve 读帧直到对端断开、帧过大或 feed 停止。
func (f *TCPFeed) serve(conn net.Conn) {
	defer f.wg.Done()
	defer f.untrack(conn)
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	f.mon.RecordFeedConnection(TransportTCP)
	f.log.Info("tcp feed client connected", zap.String("remote", remote))
	defer func() {
		f.mon.RecordFeedDisconnect(TransportTCP)
		f.log.Info("tcp feed client disconnected", zap.String("remote", remote))
	}()

	for {
		payload, err := ReadFrame(conn, f.maxFrame)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			case errors.Is(err, ErrFrameTooLarge):
				f.log.Warn("tcp feed frame too large, closing", zap.String("remote", remote), zap.Error(err))
			default:
				f.log.Warn("tcp feed read failed", zap.String("remote", remote), zap.Error(err))
			}
			return
		}
		if !f.emit(eventFrom(payload, TransportTCP)) {
			return
		}
	}
}

func (f *TCPFeed) emit(ev Event) bool {
	select {
	case f.events <- ev:
		return true
	case <-f.done:
		return false
	}
}

// Stop 关闭监听与所有连接，并等待连接 goroutine 退出。
func (f *TCPFeed) Stop() error {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return nil
	}
	f.started = false
	close(f.done)
	err := f.ln.Close()
	for conn := range f.conns {
		_ = conn.Close()
	}
	f.mu.Unlock()

	f.wg.Wait()
	f.log.Info("tcp feed stopped")
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (f *TCPFeed) Health() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.started {
		return errors.New("tcp feed not started")
	}
	return nil
}

// Addr 实际监听地址（配置 ":0" 时用于测试）。
func (f *TCPFeed) Addr() net.Addr {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ln == nil {
		return nil
	}
	return f.ln.Addr()
}
