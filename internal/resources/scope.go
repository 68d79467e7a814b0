package resources

// Scope groups the handles owned by a single entity so they can be torn down
// together. Release may be called from every exit path; only the first call
// after an allocation does anything.
type Scope struct {
	manager *Manager
	owner   string
	handles []Handle
}

// NewScope returns an empty scope for owner.
func (m *Manager) NewScope(owner string) *Scope {
	return &Scope{manager: m, owner: owner}
}

// Owner returns the label the scope was created with.
func (s *Scope) Owner() string {
	if s == nil {
		return ""
	}
	return s.owner
}

// Allocate allocates blob through the manager and registers the handle.
func (s *Scope) Allocate(blob Blob) (Handle, error) {
	h, err := s.manager.Allocate(blob)
	if err != nil {
		return Handle{}, err
	}
	s.handles = append(s.handles, h)
	return h, nil
}

// Handles returns the handles currently registered.
func (s *Scope) Handles() []Handle {
	if s == nil {
		return nil
	}
	return append([]Handle(nil), s.handles...)
}

// Len reports how many handles are registered.
func (s *Scope) Len() int {
	if s == nil {
		return 0
	}
	return len(s.handles)
}

// Release releases every registered handle and empties the scope.
func (s *Scope) Release() {
	if s == nil {
		return
	}
	handles := s.handles
	s.handles = nil
	for _, h := range handles {
		s.manager.Release(h)
	}
}
