package runner

import (
	"context"
	"fmt"
	"runtime/debug"
)

// Guard serializes alert callbacks. One Guard is shared by every task of a
// manager; a callback that finds the guard busy waits for it.
type Guard struct {
	sem chan struct{}
}

func NewGuard() *Guard { return &Guard{sem: make(chan struct{}, 1)} }

// PanicError is returned by Run when fn panics.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string { return fmt.Sprintf("alert callback panicked: %v", e.Value) }

// Run waits for the guard, then calls fn. It gives up waiting when ctx is
// done. A panic in fn is returned as *PanicError and the guard is released.
func (g *Guard) Run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if fn == nil {
		return nil
	}
	if g != nil {
		select {
		case g.sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
		defer func() { <-g.sem }()
	}
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()
	return fn(ctx)
}
