package personas

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Manager wraps a Registry with configuration-file hot reloading.
type Manager struct {
	*Registry
	configPath string
	log        *zap.Logger

	watcher   *fsnotify.Watcher
	watcherMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager loads the persona file and optionally starts watching it for
// changes. An empty configPath yields a manager with built-ins only.
func NewManager(configPath string, hotReload bool, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		Registry:   NewRegistry(logger),
		configPath: configPath,
		log:        logger,
		ctx:        ctx,
		cancel:     cancel,
	}
	if configPath == "" {
		return m, nil
	}
	if err := m.LoadFile(configPath); err != nil {
		cancel()
		return nil, err
	}
	if hotReload {
		if err := m.startWatcher(); err != nil {
			cancel()
			return nil, err
		}
	}
	return m, nil
}

func (m *Manager) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	if err := watcher.Add(m.configPath); err != nil {
		watcher.Close()
		return fmt.Errorf("watch persona config: %w", err)
	}
	// Watch the directory too, for atomic file replacements
	if err := watcher.Add(filepath.Dir(m.configPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch persona config dir: %w", err)
	}

	m.watcherMu.Lock()
	m.watcher = watcher
	m.watcherMu.Unlock()

	m.wg.Add(1)
	go m.watchLoop(watcher)
	return nil
}

func (m *Manager) watchLoop(watcher *fsnotify.Watcher) {
	defer m.wg.Done()

	// Debounce: editors often fire several events per save
	var pending <-chan time.Time

	for {
		select {
		case <-m.ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Name != m.configPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pending = time.After(200 * time.Millisecond)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.log.Warn("persona config watcher error", zap.Error(err))
		case <-pending:
			pending = nil
			if err := m.LoadFile(m.configPath); err != nil {
				m.log.Error("persona config reload failed, keeping previous profiles", zap.Error(err))
			}
		}
	}
}

// Close stops the watcher goroutine.
func (m *Manager) Close() error {
	m.cancel()
	m.watcherMu.Lock()
	w := m.watcher
	m.watcher = nil
	m.watcherMu.Unlock()
	if w != nil {
		w.Close()
	}
	m.wg.Wait()
	return nil
}
