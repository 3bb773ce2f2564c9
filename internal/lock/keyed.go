package lock

import (
	"context"
	"sync"
)

// Keyed блокировки внутри одного процесса. Для каждого занятого ключа держится
// семафор на канале, запись удаляется, когда ключ никому не нужен.
type Keyed struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	sem  chan struct{}
	refs int
}

// NewKeyed создаёт in-process Locker.
func NewKeyed() *Keyed {
	return &Keyed{slots: make(map[string]*slot)}
}

// Lock захватывает ключ или возвращает ctx.Err(), если контекст отменён раньше.
func (k *Keyed) Lock(ctx context.Context, key string) (Unlock, error) {
	s := k.acquireSlot(key)

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		k.releaseSlot(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.sem
			k.releaseSlot(key, s)
		})
	}, nil
}

// Len количество ключей, которые сейчас захвачены или ожидаются.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}

func (k *Keyed) acquireSlot(key string) *slot {
	k.mu.Lock()
	defer k.mu.Unlock()

	s, ok := k.slots[key]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	return s
}

func (k *Keyed) releaseSlot(key string, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}

var _ Locker = (*Keyed)(nil)
