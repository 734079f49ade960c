package pool

import (
	"context"
	"sync"
)

// Token is one unit of pool capacity. Releasing it more than once has no effect.
type Token struct {
	once sync.Once
}

// Gate bounds the number of tabs in use at the same time
type Gate struct {
	slots chan struct{}
}

// NewGate creates a gate with capacity slots
func NewGate(capacity int) *Gate {
	return &Gate{slots: make(chan struct{}, capacity)}
}

// Acquire blocks until a slot is free or ctx is done
func (g *Gate) Acquire(ctx context.Context) (*Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	select {
	case g.slots <- struct{}{}:
		return &Token{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns the slot held by tok
func (g *Gate) Release(tok *Token) {
	if tok == nil {
		return
	}
	tok.once.Do(func() {
		<-g.slots
	})
}

// Free returns the number of slots not currently held
func (g *Gate) Free() int {
	return cap(g.slots) - len(g.slots)
}

// Capacity returns the total number of slots
func (g *Gate) Capacity() int {
	return cap(g.slots)
}
