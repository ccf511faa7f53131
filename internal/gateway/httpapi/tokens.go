package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/nguyenhx22/chatops-ai-bot/internal/auth"
)

// sessionEntry binds an opaque gateway token to a signed-in user and the
// Azure token pair backing the sign-in.
type sessionEntry struct {
	identity auth.Identity
	token    auth.Token
}

// tokenStore maps opaque bearer tokens to signed-in users. Tokens are
// random and never derived from the Azure tokens they wrap.
type tokenStore struct {
	mu      sync.RWMutex
	entries map[string]sessionEntry
	now     func() time.Time
}

func newTokenStore() *tokenStore {
	return &tokenStore{
		entries: make(map[string]sessionEntry),
		now:     time.Now,
	}
}

// Issue creates a new opaque token for the identity.
func (s *tokenStore) Issue(id auth.Identity, tok auth.Token) string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	token := hex.EncodeToString(b)

	s.mu.Lock()
	s.entries[token] = sessionEntry{identity: id, token: tok}
	s.mu.Unlock()
	return token
}

// Lookup resolves a bearer token. The second return distinguishes an
// unknown token from a known one whose Azure token has expired.
func (s *tokenStore) Lookup(token string) (sessionEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[token]
	return e, ok
}

// Update replaces the Azure token pair after a refresh.
func (s *tokenStore) Update(token string, tok auth.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[token]; ok {
		e.token = tok
		s.entries[token] = e
	}
}

// Revoke removes a token at logout.
func (s *tokenStore) Revoke(token string) {
	s.mu.Lock()
	delete(s.entries, token)
	s.mu.Unlock()
}

// PruneExpired drops entries whose Azure tokens expired and cannot be
// refreshed (no refresh token). Returns the user ids that were dropped.
func (s *tokenStore) PruneExpired() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var dropped []string
	for token, e := range s.entries {
		if e.token.Expired(now) && e.token.RefreshToken == "" {
			delete(s.entries, token)
			dropped = append(dropped, e.identity.UserID)
		}
	}
	return dropped
}
