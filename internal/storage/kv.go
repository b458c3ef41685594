// Package storage provides the key-value stores that back settings, history
// and the request-rate log. Every value is an opaque (JSON) byte slice stored
// under a string key.
package storage

import "fmt"

// Keys used by the application.
const (
	KeyRateLimit = "rate_limit_timestamps"
	KeySettings  = "ai_settings"
	KeyHistory   = "bill_history"
)

// KV defines the interface for key-value persistence
type KV interface {
	// Get returns the value stored under key, or nil if the key is absent.
	Get(key string) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(key string, value []byte) error

	// Update runs a read-modify-write on key inside a single transaction.
	// fn receives the current value (nil if absent) and returns the value to
	// store. Returning a nil slice leaves the stored value untouched.
	Update(key string, fn func(current []byte) ([]byte, error)) error

	// Close releases the underlying resources
	Close() error
}

// Backends accepted by Open.
const (
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Open creates the named backend at path. The memory backend ignores path.
func Open(backend, path string) (KV, error) {
	switch backend {
	case BackendBolt:
		kv, err := NewBoltKV(path)
		if err != nil {
			return nil, err
		}
		return kv, nil
	case BackendSQLite:
		kv, err := NewSQLiteKV(path)
		if err != nil {
			return nil, err
		}
		return kv, nil
	case BackendMemory:
		return NewMemoryKV(), nil
	default:
		return nil, fmt.Errorf("unknown store %q (valid: bolt, sqlite, memory)", backend)
	}
}
