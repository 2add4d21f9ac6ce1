package notification

import "sync"

// recipientLocks gives each recipient a single writer. Records for one
// recipient are created and queued for delivery under its lock, so the
// live order matches the creation order.
type recipientLocks struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newRecipientLocks() *recipientLocks {
	return &recipientLocks{locks: make(map[string]*refMutex)}
}

// lockAll locks every key. keys must be sorted so that concurrent callers
// agree on the order.
func (l *recipientLocks) lockAll(keys []string) (unlock func()) {
	held := make([]*refMutex, 0, len(keys))
	for _, k := range keys {
		l.mu.Lock()
		m, ok := l.locks[k]
		if !ok {
			m = &refMutex{}
			l.locks[k] = m
		}
		m.refs++
		l.mu.Unlock()

		m.Lock()
		held = append(held, m)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(held) - 1; i >= 0; i-- {
				held[i].Unlock()
				l.mu.Lock()
				held[i].refs--
				if held[i].refs == 0 {
					delete(l.locks, keys[i])
				}
				l.mu.Unlock()
			}
		})
	}
}
