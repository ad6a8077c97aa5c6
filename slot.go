package remotedesk

import "sync"

// Slot owns the single live Session of one UI context. Installing a new
// Session tears the previous one down first.
type Slot struct {
	mu  sync.Mutex
	cur *Session
}

// Replace closes the current session, if any, and installs next.
func (s *Slot) Replace(next *Session) {
	s.mu.Lock()
	prev := s.cur
	s.cur = next
	s.mu.Unlock()
	if prev != nil && prev != next {
		_ = prev.Close()
	}
}

func (s *Slot) Current() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Close closes and forgets the current session.
func (s *Slot) Close() error {
	s.mu.Lock()
	cur := s.cur
	s.cur = nil
	s.mu.Unlock()
	if cur == nil {
		return nil
	}
	return cur.Close()
}
