// Package channel provides an unbounded asynchronous queue with a single
// consumer and an error-carrying termination.
//
// Unlike a Go channel, a Channel never blocks its producers, can be
// terminated with an arbitrary error, and lets the consumer ask whether the
// next receive would wait. The stream package uses one Channel per fragment,
// one for the fragment queue and one for the output handed to the caller.
package channel

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/kbukum/parstream/errors"
)

// ErrEndOfStream terminates a channel that finished normally.
var ErrEndOfStream = stderrors.New("end of stream")

// ErrClosed is returned by writes after the channel was terminated.
var ErrClosed = errors.New(errors.ErrCodeStreamClosed, "channel already terminated")

// compactAfter is the consumed prefix length that triggers a slide of the
// backing slice while producers keep it non-empty.
const compactAfter = 256

// Channel is an unbounded FIFO queue. Any number of goroutines may write,
// exactly one goroutine may read.
type Channel[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	err    error
	notify chan struct{}
}

// New creates an empty open channel.
func New[T any]() *Channel[T] {
	return &Channel[T]{notify: make(chan struct{}, 1)}
}

// Send appends v. It never blocks.
func (c *Channel[T]) Send(v T) error {
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return ErrClosed
	}
	c.items = append(c.items, v)
	c.mu.Unlock()
	c.wake()
	return nil
}

// SendError terminates the channel with err. Items already queued are still
// delivered before err. A nil err terminates with ErrEndOfStream.
func (c *Channel[T]) SendError(err error) error {
	if err == nil {
		err = ErrEndOfStream
	}
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return ErrClosed
	}
	c.err = err
	c.mu.Unlock()
	c.wake()
	return nil
}

// Close terminates the channel with ErrEndOfStream.
func (c *Channel[T]) Close() error {
	return c.SendError(ErrEndOfStream)
}

// Next returns the next item, waiting until one is available. Once the queue
// is drained it returns the termination error, or ctx.Err() if ctx ends first.
func (c *Channel[T]) Next(ctx context.Context) (T, error) {
	for {
		if v, ok, err := c.TryNext(); ok {
			return v, err
		}
		select {
		case <-c.notify:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// TryNext is the non-blocking form of Next. ok is false when Next would wait.
func (c *Channel[T]) TryNext() (v T, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.head < len(c.items) {
		v = c.items[c.head]
		var zero T
		c.items[c.head] = zero
		c.head++
		switch {
		case c.head == len(c.items):
			c.items = c.items[:0]
			c.head = 0
		case c.head >= compactAfter && c.head*2 >= len(c.items):
			n := copy(c.items, c.items[c.head:])
			clear(c.items[n:])
			c.items = c.items[:n]
			c.head = 0
		}
		return v, true, nil
	}
	if c.err != nil {
		return v, true, c.err
	}
	return v, false, nil
}

// Ready reports whether Next would return without waiting.
func (c *Channel[T]) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head < len(c.items) || c.err != nil
}

// Len returns the number of queued items.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items) - c.head
}

// Terminated reports whether SendError or Close has been called.
func (c *Channel[T]) Terminated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err != nil
}

// Collect reads until termination. It returns every item received and the
// termination error, with ErrEndOfStream mapped to nil.
func (c *Channel[T]) Collect(ctx context.Context) ([]T, error) {
	var out []T
	for {
		v, err := c.Next(ctx)
		if stderrors.Is(err, ErrEndOfStream) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
}

func (c *Channel[T]) wake() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}
