package worker

import (
	"sync"
	"sync/atomic"
)

// Token is a cancellation flag that moves from false to true exactly once.
//
// The zero value is ready to use. A Token must not be copied after first use.
type Token struct {
	mu        sync.Mutex
	done      chan struct{}
	requested atomic.Bool
}

// NewToken returns a token that has not been requested.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Request sets the flag. Safe to call any number of times from any goroutine.
func (t *Token) Request() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.requested.Load() {
		return
	}
	if t.done == nil {
		t.done = make(chan struct{})
	}
	t.requested.Store(true)
	close(t.done)
}

// IsRequested reports whether [Token.Request] has been called.
func (t *Token) IsRequested() bool {
	return t.requested.Load()
}

// Done returns a channel that is closed once the token is requested.
func (t *Token) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done == nil {
		t.done = make(chan struct{})
	}
	return t.done
}
