package mcphttp

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// sessionTTL is the lifetime of a session, counted from its creation,
// before lazy expiry reclaims it (spec §3.6).
const sessionTTL = 24 * time.Hour

// session is the server-side state bound to an Mcp-Session-Id (spec
// §3.6/§4.5.2): the negotiated protocol version, the namespace it was
// created under (empty for the global endpoint), and the client's
// self-reported identity from initialize.
type session struct {
	ID              string
	ProtocolVersion string
	Namespace       string
	ClientInfo      map[string]interface{}
	CreatedAt       time.Time
	expiresAt       time.Time
}

// sessionStore is a concurrent, TTL-expiring session table. Expiry is
// lazy (checked on Get) rather than swept by a background goroutine,
// mirroring the rest of the codebase's in-memory-map-plus-mutex idiom
// (internal/registry.Registry, internal/mcp manager's connection pool).
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration
}

func newSessionStore(ttl time.Duration) *sessionStore {
	if ttl <= 0 {
		ttl = sessionTTL
	}
	return &sessionStore{sessions: make(map[string]*session), ttl: ttl}
}

func (s *sessionStore) create(protocolVersion, namespace string, clientInfo map[string]interface{}) *session {
	now := time.Now()
	sess := &session{
		ID:              newSessionID(),
		ProtocolVersion: protocolVersion,
		Namespace:       namespace,
		ClientInfo:      clientInfo,
		CreatedAt:       now,
		expiresAt:       now.Add(s.ttl),
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess
}

// get returns the session for id, evicting and reporting a miss if it
// has expired.
func (s *sessionStore) get(id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if time.Now().After(sess.expiresAt) {
		delete(s.sessions, id)
		return nil, false
	}
	return sess, true
}

// delete removes id, reporting whether it was present (and unexpired).
func (s *sessionStore) delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	delete(s.sessions, id)
	return !time.Now().After(sess.expiresAt)
}

func newSessionID() string {
	return uuid.NewString()
}
