package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher 监听配置文件变化，重新加载并回调最新配置。
// 监听所在目录而非文件本身，编辑器的“写临时文件再改名”也能被捕获。
type Watcher struct {
	Path     string
	Cooldown time.Duration
	// OnError receives load/validate failures; the previous config stays in effect.
	OnError func(error)

	mu         sync.Mutex
	lastReload time.Time
}

// Start blocks until ctx is done, invoking onUpdate after each successful reload.
func (w *Watcher) Start(ctx context.Context, onUpdate func(AppConfig)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	target := filepath.Clean(w.Path)
	if err := fw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch config dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			// 只处理写入和创建事件
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.handleChange(onUpdate)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.reportError(fmt.Errorf("watcher: %w", err))
		}
	}
}

func (w *Watcher) handleChange(onUpdate func(AppConfig)) {
	w.mu.Lock()
	if time.Since(w.lastReload) < w.Cooldown {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	cfg, err := LoadWithEnvOverrides(w.Path)
	if err != nil {
		w.reportError(err)
		return
	}

	w.mu.Lock()
	w.lastReload = time.Now()
	w.mu.Unlock()

	if onUpdate != nil {
		onUpdate(cfg)
	}
}

func (w *Watcher) reportError(err error) {
	if w.OnError != nil {
		w.OnError(err)
	}
}

// LastReload 最后一次成功重载时间。
func (w *Watcher) LastReload() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastReload
}
