package memory

import (
	"context"
	"errors"
)

var (
	// ErrStorage marks persistent-store failures. The memory absorbs them
	// and keeps serving from RAM.
	ErrStorage = errors.New("translation memory storage unavailable")
	// ErrTimeout marks a store operation that exceeded its allotted time.
	ErrTimeout = errors.New("translation memory storage timed out")
)

// Store is the optional durability adapter. Read returns (nil, nil) for a
// missing key. Implementations own their serialization; the memory never
// inspects stored bytes.
type Store interface {
	Read(ctx context.Context, key string) (*Record, error)
	Write(ctx context.Context, key string, record Record) error
}
