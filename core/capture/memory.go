package capture

import (
	"sync"
)

// MemoryStorage keeps captured traffic in memory, evicting the oldest
// request once maxSize is exceeded.
type MemoryStorage struct {
	home    string
	maxSize int

	mu      sync.RWMutex
	order   []string
	byID    map[string]*Request
	cleaned bool
}

var _ Storage = (*MemoryStorage)(nil)

// NewMemoryStorage creates an in-memory store rooted at home.
func NewMemoryStorage(home string, maxSize int) *MemoryStorage {
	return &MemoryStorage{
		home:    home,
		maxSize: maxSize,
		byID:    make(map[string]*Request),
	}
}

func (s *MemoryStorage) HomeDir() string {
	return s.home
}

func (s *MemoryStorage) SaveRequest(req *Request) error {
	stored := req.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[stored.ID]; !exists {
		s.order = append(s.order, stored.ID)
	}
	s.byID[stored.ID] = stored

	for s.maxSize > 0 && len(s.order) > s.maxSize {
		delete(s.byID, s.order[0])
		s.order = s.order[1:]
	}
	return nil
}

func (s *MemoryStorage) SaveResponse(requestID string, resp *Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.byID[requestID]
	if !ok {
		return ErrNotFound
	}
	req.Response = resp.Clone()
	return nil
}

func (s *MemoryStorage) LoadRequests() ([]*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Request, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	return out, nil
}

func (s *MemoryStorage) LoadRequest(id string) (*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return req.Clone(), nil
}

func (s *MemoryStorage) LoadLastRequest() (*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.order) == 0 {
		return nil, nil
	}
	return s.byID[s.order[len(s.order)-1]].Clone(), nil
}

func (s *MemoryStorage) FindRequest(pattern string) (*Request, error) {
	re, err := compilePattern(pattern)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		if req := s.byID[id]; re.MatchString(req.URL) {
			return req.Clone(), nil
		}
	}
	return nil, nil
}

func (s *MemoryStorage) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.byID = make(map[string]*Request)
	return nil
}

// Cleanup drops everything held in memory. The home directory is kept since
// it holds the CA shared across sessions.
func (s *MemoryStorage) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cleaned {
		return nil
	}
	s.cleaned = true
	s.order = nil
	s.byID = make(map[string]*Request)
	return nil
}
