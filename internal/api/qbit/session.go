package qbit

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// sessionTimeout matches qBittorrent's default WebUI session lifetime.
const sessionTimeout = time.Hour

// sessions tracks issued SID cookies and when they were last used.
type sessions struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func newSessions(ttl time.Duration) *sessions {
	return &sessions{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// issue creates a new session id.
func (s *sessions) issue() string {
	sid := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[sid] = s.now()
	s.expireLocked()
	return sid
}

// valid reports whether sid is live and refreshes its idle timer.
func (s *sessions) valid(sid string) bool {
	if sid == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.seen[sid]
	if !ok {
		return false
	}
	now := s.now()
	if now.Sub(last) > s.ttl {
		delete(s.seen, sid)
		return false
	}
	s.seen[sid] = now
	return true
}

func (s *sessions) revoke(sid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, sid)
}

func (s *sessions) expireLocked() {
	now := s.now()
	for sid, last := range s.seen {
		if now.Sub(last) > s.ttl {
			delete(s.seen, sid)
		}
	}
}
