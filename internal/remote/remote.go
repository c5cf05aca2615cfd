// Package remote mirrors binding configurations to a keyed document store
// for backend consumers. The mirror is write-mostly: the engine pushes the
// whole config map after every local mutation and never merges back.
package remote

import (
	"context"

	"github.com/promodesk/slovolov/internal/database"
)

// Store is the remote document store contract. Get exists for backend
// consumers and diagnostics; the engine itself only pushes.
type Store interface {
	Get(ctx context.Context, subclusterID string) (database.BindingConfig, bool, error)
	PutAll(ctx context.Context, configs map[string]database.BindingConfig) error
}

// Noop is the Store used when no remote is configured. Pushes vanish.
type Noop struct{}

func (Noop) Get(context.Context, string) (database.BindingConfig, bool, error) {
	return database.BindingConfig{}, false, nil
}

func (Noop) PutAll(context.Context, map[string]database.BindingConfig) error {
	return nil
}
