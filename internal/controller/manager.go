package controller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/berfenger/ecodevices2mqtt/internal/config"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var ErrNoController = errors.New("eco-devices controller not set up")

// Manager holds the active controller and swaps it on configuration changes.
type Manager struct {
	mu       sync.Mutex
	current  atomic.Pointer[Controller]
	opts     []Option
	logger   *zap.Logger
	onChange []func(*Controller)
}

func NewManager(logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		opts:   opts,
		logger: logger,
	}
}

// OnChange registers a callback invoked after every successful reload.
func (m *Manager) OnChange(fn func(*Controller)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

func (m *Manager) Controller() (*Controller, error) {
	if c := m.current.Load(); c != nil {
		return c, nil
	}
	return nil, ErrNoController
}

// Reload runs Setup with the new configuration. The active controller is only
// replaced, and torn down, once the new one is ready.
func (m *Manager) Reload(ctx context.Context, cfg config.Config) (*Controller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := Setup(ctx, cfg, m.logger, m.opts...)
	if err != nil {
		return nil, err
	}
	prev := m.current.Swap(next)
	if prev != nil {
		prev.Teardown()
	}
	for _, fn := range m.onChange {
		fn(next)
	}
	return next, nil
}

// WatchConfig reloads the controller whenever the config file changes.
// Changes that do not touch the gateway or its channels are ignored.
func (m *Manager) WatchConfig(ctx context.Context, v *viper.Viper) {
	v.OnConfigChange(func(e fsnotify.Event) {
		m.logger.Info("config file changed", zap.String("file", e.Name), zap.Stringer("op", e.Op))
		cfg, err := config.Load(v)
		if err != nil {
			m.logger.Error("invalid config, keeping current one", zap.Error(err))
			return
		}
		if c := m.current.Load(); c != nil && !deviceConfigChanged(c.Config(), *cfg) {
			m.logger.Debug("eco-devices config unchanged")
			return
		}
		if _, err := m.Reload(ctx, *cfg); err != nil {
			m.logger.Error("eco-devices reload failed, keeping current controller", zap.Error(err))
		}
	})
	v.WatchConfig()
}

func deviceConfigChanged(prev, next config.Config) bool {
	return prev.EcoDevices != next.EcoDevices ||
		prev.Teleinfo1 != next.Teleinfo1 ||
		prev.Teleinfo2 != next.Teleinfo2 ||
		prev.Meter1 != next.Meter1 ||
		prev.Meter2 != next.Meter2
}

func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev := m.current.Swap(nil); prev != nil {
		prev.Teardown()
	}
}
