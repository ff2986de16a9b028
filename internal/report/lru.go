package report

import (
	"container/list"
	"io"
	"sync"
)

// LRUStore keeps the most recently used reports in memory and delegates
// to a backing Store on miss.
type LRUStore struct {
	mu    sync.Mutex
	cap   int
	back  Store
	order *list.List // of *JobReport, most recent at front
	items map[string]*list.Element
}

// NewLRUStore creates an LRU cache with the given capacity that delegates
// to back on cache misses. Capacity must be >= 1.
func NewLRUStore(cap int, back Store) *LRUStore {
	if cap < 1 {
		cap = 1
	}
	return &LRUStore{
		cap:   cap,
		back:  back,
		order: list.New(),
		items: make(map[string]*list.Element, cap),
	}
}

// Save caches the report and writes it through to the backing store.
func (s *LRUStore) Save(report *JobReport) error {
	s.put(report)
	return s.back.Save(report)
}

// Load checks the cache first. On miss, it loads from the backing store
// and promotes the report into the cache.
func (s *LRUStore) Load(id string) (*JobReport, error) {
	s.mu.Lock()
	if e, ok := s.items[id]; ok {
		s.order.MoveToFront(e)
		r := e.Value.(*JobReport)
		s.mu.Unlock()
		return r, nil
	}
	s.mu.Unlock()

	report, err := s.back.Load(id)
	if err != nil {
		return nil, err
	}
	s.put(report)
	return report, nil
}

// Len returns the number of cached reports.
func (s *LRUStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// Close closes the backing store if it holds resources.
func (s *LRUStore) Close() error {
	if c, ok := s.back.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *LRUStore) put(report *JobReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.items[report.ID]; ok {
		e.Value = report
		s.order.MoveToFront(e)
		return
	}
	s.items[report.ID] = s.order.PushFront(report)
	if s.order.Len() > s.cap {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.items, oldest.Value.(*JobReport).ID)
	}
}
