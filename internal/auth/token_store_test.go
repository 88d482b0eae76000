package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenStore_StaticToken(t *testing.T) {
	s := NewTokenStore()
	s.Put("secret", 0)

	assert.True(t, s.Valid("secret"))
	assert.False(t, s.Valid("wrong"))
	assert.False(t, s.Valid(""))
}

func TestTokenStore_Expiry(t *testing.T) {
	s := NewTokenStore()
	current := time.Unix(1700000000, 0)
	s.now = func() time.Time { return current }

	s.Put("short", time.Minute)
	s.Put("forever", 0)

	assert.True(t, s.Valid("short"))

	current = current.Add(2 * time.Minute)
	assert.False(t, s.Valid("short"))
	assert.True(t, s.Valid("forever"))
}

func TestTokenStore_LazyPrune(t *testing.T) {
	s := NewTokenStore()
	current := time.Unix(1700000000, 0)
	s.now = func() time.Time { return current }

	s.Put("a", time.Second)
	s.Put("b", time.Second)
	s.Put("c", 0)
	assert.Equal(t, 3, s.Len())

	current = current.Add(time.Hour)
	assert.Equal(t, 1, s.Len())
}

func TestTokenStore_Revoke(t *testing.T) {
	s := NewTokenStore()
	s.Put("secret", 0)
	s.Revoke("secret")

	assert.False(t, s.Valid("secret"))
}

func TestTokenStore_EmptyTokenNeverStored(t *testing.T) {
	s := NewTokenStore()
	s.Put("", 0)

	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Valid(""))
}
