package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryKeyRegistry provides a thread-safe in-memory KeyRegistry.
// Used for development without a database and as the fake in tests.
type MemoryKeyRegistry struct {
	// keysByHash maps key_hash values to APIKey structs for lookup
	keysByHash map[string]*APIKey
	// keysByID maps key IDs to APIKey structs for touch operations
	keysByID map[string]*APIKey
	// projects maps project IDs to Project structs
	projects map[string]*Project
	// mutex protects concurrent access to all maps
	mutex sync.RWMutex
}

// NewMemoryKeyRegistry creates a new thread-safe in-memory key registry.
func NewMemoryKeyRegistry() *MemoryKeyRegistry {
	return &MemoryKeyRegistry{
		keysByHash: make(map[string]*APIKey),
		keysByID:   make(map[string]*APIKey),
		projects:   make(map[string]*Project),
	}
}

// GetByHash retrieves an API key by the SHA-256 hex of its raw token.
func (r *MemoryKeyRegistry) GetByHash(_ context.Context, keyHash string) (*APIKey, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	apiKey, exists := r.keysByHash[keyHash]
	if !exists {
		return nil, ErrKeyNotFound
	}

	// Return a copy to prevent external modification
	keyCopy := *apiKey

	return &keyCopy, nil
}

// TouchLastUsed records that the key was just used.
func (r *MemoryKeyRegistry) TouchLastUsed(_ context.Context, keyID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	apiKey, exists := r.keysByID[keyID]
	if !exists {
		return ErrKeyNotFound
	}

	now := time.Now()
	apiKey.LastUsedAt = &now

	return nil
}

// GetProject resolves a project by ID.
func (r *MemoryKeyRegistry) GetProject(_ context.Context, projectID string) (*Project, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	project, exists := r.projects[projectID]
	if !exists {
		return nil, ErrProjectNotFound
	}

	// Return a copy to prevent external modification
	projectCopy := *project

	return &projectCopy, nil
}

// HealthCheck always succeeds for the in-memory registry.
func (r *MemoryKeyRegistry) HealthCheck(_ context.Context) error {
	return nil
}

// AddKey stores a new API key.
func (r *MemoryKeyRegistry) AddKey(apiKey *APIKey) error {
	if apiKey == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Check if key already exists by ID or hash
	if _, exists := r.keysByID[apiKey.ID]; exists {
		return ErrKeyAlreadyExists
	}

	if _, exists := r.keysByHash[apiKey.KeyHash]; exists {
		return ErrKeyAlreadyExists
	}

	// Create a copy to prevent external modification
	keyCopy := *apiKey

	r.keysByHash[keyCopy.KeyHash] = &keyCopy
	r.keysByID[keyCopy.ID] = &keyCopy

	return nil
}

// AddProject stores a project.
func (r *MemoryKeyRegistry) AddProject(project *Project) error {
	if project == nil {
		return ErrProjectNotFound
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	projectCopy := *project
	r.projects[projectCopy.ID] = &projectCopy

	return nil
}

// KeyByID returns a copy of a stored key by ID, for test assertions on
// touch behavior.
func (r *MemoryKeyRegistry) KeyByID(keyID string) (*APIKey, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	apiKey, exists := r.keysByID[keyID]
	if !exists {
		return nil, false
	}

	keyCopy := *apiKey

	return &keyCopy, true
}
