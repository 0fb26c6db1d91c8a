// Package shard maps keys onto a fixed number of buckets with FNV-1a, for
// striped locks and tenant-partitioned workers.
package shard

import (
	"sync"

	"github.com/google/uuid"
)

// Hash is 32-bit FNV-1a.
func Hash(b []byte) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for _, c := range b {
		h ^= uint32(c)
		h *= fnvPrime
	}
	return h
}

// Index returns the bucket of id among n buckets. n must be positive.
func Index(id uuid.UUID, n int) int {
	return int(Hash(id[:]) % uint32(n))
}

// Mutex is a striped lock keyed by uuid. Keys sharing a stripe serialize;
// distinct stripes proceed in parallel.
type Mutex struct {
	stripes []sync.Mutex
}

// NewMutex creates a lock with n stripes (at least one).
func NewMutex(n int) *Mutex {
	if n < 1 {
		n = 1
	}
	return &Mutex{stripes: make([]sync.Mutex, n)}
}

// Lock locks the stripe for id and returns its unlock function.
func (m *Mutex) Lock(id uuid.UUID) (unlock func()) {
	mu := &m.stripes[Index(id, len(m.stripes))]
	mu.Lock()
	return mu.Unlock
}
