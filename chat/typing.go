package chat

import "sync"

// TypingSet tracks which other participants are typing, in arrival order.
type TypingSet struct {
	mu    sync.Mutex
	self  string
	users []string
}

// NewTypingSet ignores indicators from self.
func NewTypingSet(self string) *TypingSet {
	return &TypingSet{self: self}
}

// Apply records a typing indicator and reports whether the set changed.
func (s *TypingSet) Apply(username string, isTyping bool) bool {
	if username == "" || username == s.self {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, u := range s.users {
		if u != username {
			continue
		}
		if isTyping {
			return false
		}
		s.users = append(s.users[:i], s.users[i+1:]...)
		return true
	}
	if !isTyping {
		return false
	}
	s.users = append(s.users, username)
	return true
}

// Users returns the typing users.
func (s *TypingSet) Users() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.users...)
}

// Label renders "<first> is typing..." or "" when nobody is.
func (s *TypingSet) Label() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.users) == 0 {
		return ""
	}
	return s.users[0] + " is typing..."
}

// Clear forgets everyone.
func (s *TypingSet) Clear() {
	s.mu.Lock()
	s.users = nil
	s.mu.Unlock()
}
