package usecase

import (
	"hash/fnv"
	"sync"
)

const keyLockStripes = 64

// keyLocker serializes writers of the same storage key with a fixed set of
// striped mutexes. Different keys may share a stripe.
type keyLocker struct {
	stripes [keyLockStripes]sync.Mutex
}

func (l *keyLocker) lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	mu := &l.stripes[h.Sum32()%keyLockStripes]
	mu.Lock()
	return mu.Unlock
}
