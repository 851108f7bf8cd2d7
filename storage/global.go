package storage

import (
	"fmt"
	"sync"
)

var (
	globalMu    sync.Mutex
	globalStore *Store
)

// Global returns the process-wide store. Without a prior InitGlobal it opens
// an in-memory badger store on first use.
func Global() (*Store, error) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalStore != nil {
		return globalStore, nil
	}
	backend, err := OpenBadger(BadgerConfig{InMemory: true})
	if err != nil {
		return nil, fmt.Errorf("open default store: %w", err)
	}
	globalStore = NewStore(backend)
	return globalStore, nil
}

// InitGlobal installs s as the process-wide store, replacing any previous one.
// The previous store is not closed.
func InitGlobal(s *Store) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalStore = s
}

// ResetGlobal closes and clears the process-wide store.
func ResetGlobal() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalStore == nil {
		return nil
	}
	err := globalStore.Close()
	globalStore = nil
	return err
}
