// Package lock provides the per-room serialization boundary used around
// the conflict-check-and-insert sequence.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hotel-stays-backend/internal/apperror"
)

// RoomLocker grants exclusive access to one room at a time. Acquire waits
// at most the locker's configured bound and then fails with apperror.ErrBusy.
// The returned release func is safe to call more than once.
type RoomLocker interface {
	Acquire(ctx context.Context, roomID string) (release func(), err error)
}

// LocalLocker serializes rooms within one process.
type LocalLocker struct {
	mu    sync.Mutex
	rooms map[string]*roomLock
	wait  time.Duration
}

type roomLock struct {
	slot chan struct{}
	refs int
}

// NewLocalLocker creates a LocalLocker that waits up to wait for a room.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{
		rooms: make(map[string]*roomLock),
		wait:  wait,
	}
}

// Acquire blocks until roomID is free, the bound elapses or ctx ends.
func (l *LocalLocker) Acquire(ctx context.Context, roomID string) (func(), error) {
	rl := l.ref(roomID)

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	select {
	case rl.slot <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-rl.slot
				l.unref(roomID, rl)
			})
		}, nil
	case <-waitCtx.Done():
		l.unref(roomID, rl)
		return nil, fmt.Errorf("%w: room %s is locked by another request", apperror.ErrBusy, roomID)
	}
}

func (l *LocalLocker) ref(roomID string) *roomLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	rl, ok := l.rooms[roomID]
	if !ok {
		rl = &roomLock{slot: make(chan struct{}, 1)}
		l.rooms[roomID] = rl
	}
	rl.refs++
	return rl
}

func (l *LocalLocker) unref(roomID string, rl *roomLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rl.refs--
	if rl.refs == 0 {
		delete(l.rooms, roomID)
	}
}

// held reports how many rooms have waiters or holders. Test hook.
func (l *LocalLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rooms)
}
