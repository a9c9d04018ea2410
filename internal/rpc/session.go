package rpc

import (
	"sync"
	"time"
)

// Session is the per-connection authentication state. It is written by the
// authenticate handler and read by every worker and feed on the same
// connection. Re-authentication with a fresh token simply overwrites the
// identity.
type Session struct {
	mu        sync.RWMutex
	accountID int64
	exp       int64
	set       bool
}

// Authenticate binds the session to an account until exp.
func (s *Session) Authenticate(accountID, exp int64) {
	s.mu.Lock()
	s.accountID = accountID
	s.exp = exp
	s.set = true
	s.mu.Unlock()
}

// AccountID returns the bound account, or false when unauthenticated.
func (s *Session) AccountID() (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accountID, s.set
}

// CheckAuth fails when no account is bound or the token has lapsed. It is
// called on every request and re-checked on every feed tick.
func (s *Session) CheckAuth() *Error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set || s.exp < time.Now().Unix() {
		return NewError(CodeInvalidRequest, "Please authenticate")
	}
	return nil
}
