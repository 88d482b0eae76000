// Package auth holds the bearer-token store consulted by the HTTP transport.
package auth

import (
	"sync"
	"time"
)

// TokenStore is an expiring key-value store of accepted bearer tokens. It is
// explicitly owned: cmd constructs one and hands it to the server, there is
// no process-wide instance. Expired entries are pruned lazily on access.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]time.Time // zero time means no expiry
	now    func() time.Time
}

// NewTokenStore creates an empty store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Put registers a token. A non-positive ttl means the token never expires.
func (s *TokenStore) Put(token string, ttl time.Duration) {
	if token == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var expiry time.Time
	if ttl > 0 {
		expiry = s.now().Add(ttl)
	}
	s.tokens[token] = expiry
}

// Valid reports whether token is registered and unexpired.
func (s *TokenStore) Valid(token string) bool {
	if token == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()
	_, ok := s.tokens[token]
	return ok
}

// Revoke removes a token immediately.
func (s *TokenStore) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// Len returns the number of live tokens.
func (s *TokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()
	return len(s.tokens)
}

func (s *TokenStore) pruneLocked() {
	now := s.now()
	for token, expiry := range s.tokens {
		if !expiry.IsZero() && now.After(expiry) {
			delete(s.tokens, token)
		}
	}
}
