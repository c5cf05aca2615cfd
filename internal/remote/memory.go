package remote

import (
	"context"
	"sync"

	"github.com/promodesk/slovolov/internal/database"
)

// Memory is an in-process Store for tests.
type Memory struct {
	mu      sync.Mutex
	configs map[string]database.BindingConfig
	puts    int
}

func NewMemory() *Memory {
	return &Memory{configs: make(map[string]database.BindingConfig)}
}

func (m *Memory) Get(_ context.Context, subclusterID string) (database.BindingConfig, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[subclusterID]
	return cfg, ok, nil
}

func (m *Memory) PutAll(_ context.Context, configs map[string]database.BindingConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	for id, cfg := range configs {
		m.configs[id] = cfg
	}
	return nil
}

// Puts returns how many PutAll calls the store has seen.
func (m *Memory) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}
