package web

import "sync"

// LockTable remembers which redis lock token belongs to which live session so
// the per-user upgrade lock can be released when the session reaches a
// terminal state, from whichever path got there first.
type LockTable struct {
	mu     sync.Mutex
	tokens map[string]string // session ID -> lock token
}

func NewLockTable() *LockTable {
	return &LockTable{tokens: make(map[string]string)}
}

func (t *LockTable) Put(sessionID, token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tokens[sessionID] = token
}

// Take removes and returns the token for a session. The second return is
// false when the lock was already released.
func (t *LockTable) Take(sessionID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	token, ok := t.tokens[sessionID]
	if ok {
		delete(t.tokens, sessionID)
	}
	return token, ok
}
