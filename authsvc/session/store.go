package session

import "sync"

// Store holds the access credential currently in use by a client.
type Store interface {
	Access() string
	SetAccess(token string)
}

type memoryStore struct {
	mtx   sync.RWMutex
	token string
}

func NewMemoryStore(token string) Store {
	return &memoryStore{token: token}
}

func (s *memoryStore) Access() string {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.token
}

func (s *memoryStore) SetAccess(token string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.token = token
}
