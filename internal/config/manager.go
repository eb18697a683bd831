package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

type Manager struct {
	path string
	cfg  atomic.Value
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	return m, nil
}

// NewStaticManager wraps an already built config, mostly for tests.
func NewStaticManager(cfg *Config) *Manager {
	m := &Manager{}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return nil, errors.New("manager has no config path")
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	return cfg, nil
}

func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if m.path != "" {
		if err := Save(m.path, cfg); err != nil {
			return err
		}
	}
	m.cfg.Store(cfg)
	return nil
}

// Watch reloads the config whenever the file is written or replaced. The
// parent directory is watched so editors that rename-over the file are seen.
// It blocks until stop is closed.
func (m *Manager) Watch(onReload func(*Config), onError func(error), stop <-chan struct{}) error {
	if m.path == "" {
		return errors.New("manager has no config path")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	defer w.Close()
	dir := filepath.Dir(m.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("config watcher add %s: %w", dir, err)
	}
	target := filepath.Clean(m.path)
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if onError != nil {
				onError(err)
			}
		case <-stop:
			return nil
		}
	}
}
