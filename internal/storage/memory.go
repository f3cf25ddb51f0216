package storage

import "context"

// MemoryStore is an in-memory KV used by tests and as a scratch store.
type MemoryStore struct {
	values map[string]string

	// FailReads and FailWrites force the corresponding operation to return
	// ErrUnavailable, letting tests exercise persistence-failure paths.
	FailReads  bool
	FailWrites bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Read(_ context.Context, key string) (string, bool, error) {
	if m.FailReads {
		return "", false, ErrUnavailable
	}
	value, ok := m.values[key]
	return value, ok, nil
}

func (m *MemoryStore) Write(_ context.Context, key, value string) error {
	if m.FailWrites {
		return ErrUnavailable
	}
	m.values[key] = value
	return nil
}
