package middleware

import (
	"context"

	"github.com/errly-io/errly/internal/storage"
)

// MockKeyRegistry is a mock implementation of storage.KeyRegistry for testing.
type MockKeyRegistry struct {
	GetByHashFunc     func(ctx context.Context, keyHash string) (*storage.APIKey, error)
	TouchLastUsedFunc func(ctx context.Context, keyID string) error
	GetProjectFunc    func(ctx context.Context, projectID string) (*storage.Project, error)
	HealthCheckFunc   func(ctx context.Context) error
}

// GetByHash implements storage.KeyRegistry.GetByHash.
func (m *MockKeyRegistry) GetByHash(ctx context.Context, keyHash string) (*storage.APIKey, error) {
	if m.GetByHashFunc != nil {
		return m.GetByHashFunc(ctx, keyHash)
	}

	return nil, storage.ErrKeyNotFound
}

// TouchLastUsed implements storage.KeyRegistry.TouchLastUsed.
func (m *MockKeyRegistry) TouchLastUsed(ctx context.Context, keyID string) error {
	if m.TouchLastUsedFunc != nil {
		return m.TouchLastUsedFunc(ctx, keyID)
	}

	return nil
}

// GetProject implements storage.KeyRegistry.GetProject.
func (m *MockKeyRegistry) GetProject(ctx context.Context, projectID string) (*storage.Project, error) {
	if m.GetProjectFunc != nil {
		return m.GetProjectFunc(ctx, projectID)
	}

	return nil, storage.ErrProjectNotFound
}

// HealthCheck implements storage.KeyRegistry.HealthCheck.
func (m *MockKeyRegistry) HealthCheck(ctx context.Context) error {
	if m.HealthCheckFunc != nil {
		return m.HealthCheckFunc(ctx)
	}

	return nil
}
