// Package cancel provides the write-once abort flag shared by the components
// of a single pipeline run.
package cancel

import "sync/atomic"

// Token is set at most once and never reset. A fresh token is created for
// every run.
type Token struct {
	set atomic.Bool
}

// New returns an unset token.
func New() *Token {
	return &Token{}
}

// Set marks the token. Later calls are no-ops.
func (t *Token) Set() {
	if t == nil {
		return
	}
	t.set.Store(true)
}

// IsSet reports whether Set has been called. A nil token is never set.
func (t *Token) IsSet() bool {
	if t == nil {
		return false
	}
	return t.set.Load()
}
