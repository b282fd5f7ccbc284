package ytrpc

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DoneCode identifies why a Context became done.
type DoneCode uint32

const (
	DoneUnknown DoneCode = iota
	DoneTimeout
	DoneCancel
	DoneCallFailed
)

func (c DoneCode) String() string {
	switch c {
	case DoneTimeout:
		return "TIMEOUT"
	case DoneCancel:
		return "CANCEL"
	case DoneCallFailed:
		return "CALL_FAILED"
	default:
		return "UNKNOWN"
	}
}

// Context carries the per-call metadata described by spec.md §3/§4.5: a
// deadline, a set of string key/value attachments, and an idempotent
// done-flag with a reason. It is safe to mutate from the calling goroutine
// before Invoke begins; once a handler is running it should be treated as
// read-only aside from the done-related methods, which are safe for
// concurrent use from any goroutine.
//
// The kv map itself is not guarded by a lock: the source document describes
// it as single-writer-then-single-reader (set by the caller before Invoke,
// read by the handler), so callers must not mutate it concurrently with an
// in-flight Invoke.
type Context struct {
	mu       sync.Mutex
	deadline time.Time
	kv       map[string]string

	doneFlag int32
	doneCh   chan struct{}
	code     DoneCode
	doneInfo string
}

// NewContext returns a Context with no deadline (infinite) and an empty kv map.
func NewContext() *Context {
	return &Context{kv: make(map[string]string), doneCh: make(chan struct{})}
}

// SetDeadline sets the absolute instant after which the call is considered
// timed out.
func (c *Context) SetDeadline(t time.Time) {
	c.mu.Lock()
	c.deadline = t
	c.mu.Unlock()
}

// SetTimeout is sugar for SetDeadline(time.Now().Add(d)).
func (c *Context) SetTimeout(d time.Duration) {
	c.SetDeadline(time.Now().Add(d))
}

// Deadline returns the current absolute deadline. The zero Time means "no
// deadline".
func (c *Context) Deadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deadline
}

// ContextKV returns the mutable key/value attachment map.
func (c *Context) ContextKV() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kv == nil {
		c.kv = make(map[string]string)
	}
	return c.kv
}

// done marks the Context done with the given code/info, exactly once. Later
// calls are no-ops, matching the source's atomic_exchange-guarded Done().
func (c *Context) done(code DoneCode, info string) {
	if !atomic.CompareAndSwapInt32(&c.doneFlag, 0, 1) {
		return
	}
	c.code = code
	c.doneInfo = info
	close(c.doneCh)
}

// Done returns a channel that's closed the moment the Context becomes done,
// so a waiter (Invoke's response-wait select loop) can treat cancellation as
// an additional wake edge alongside the response-arrived and timer-expired
// edges.
func (c *Context) Done() <-chan struct{} {
	return c.doneCh
}

// DoTimeout marks the Context done with DoneTimeout.
func (c *Context) DoTimeout(info string) { c.done(DoneTimeout, info) }

// DoCancel marks the Context done with DoneCancel.
func (c *Context) DoCancel(info string) { c.done(DoneCancel, info) }

// DoCallFailed marks the Context done with DoneCallFailed.
func (c *Context) DoCallFailed(info string) { c.done(DoneCallFailed, info) }

// IsDone reports whether the Context has been marked done.
func (c *Context) IsDone() bool {
	return atomic.LoadInt32(&c.doneFlag) != 0
}

// Code returns the reason the Context became done. Only meaningful once
// IsDone() is true.
func (c *Context) Code() DoneCode {
	return c.code
}

// DoneInfo returns the informational string attached when the Context
// became done.
func (c *Context) DoneInfo() string {
	return c.doneInfo
}

func (c *Context) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "is done: %v, code: %s, done info: %s, deadline: %s", c.IsDone(), c.code, c.doneInfo, c.Deadline())
	return b.String()
}
