package ytrpc

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// callEntry is the outstanding-call table's value: one per in-flight Invoke,
// keyed by req_id. complete takes effect at most once: whichever of
// handleFrame / failOutstanding calls it first sets the result, and later
// calls are no-ops.
type callEntry struct {
	done      chan struct{}
	closeOnce sync.Once
	rsp       RspHeader
	payload   []byte
	err       error
}

func (e *callEntry) complete(rsp RspHeader, payload []byte, err error) {
	e.closeOnce.Do(func() {
		e.rsp = rsp
		e.payload = payload
		e.err = err
		close(e.done)
	})
}

// Client owns at most one Session per instance, recreating it on loss. It
// assigns request IDs and correlates responses to callers via an
// outstanding-call table, the handle-strand equivalent described in
// spec.md §5.
type Client struct {
	cfg ClientConfig

	running   atomic.Bool
	nextReqID uint32

	mu    sync.Mutex
	sess  *session
	calls map[uint32]*callEntry

	// sf ensures exactly one Session is dialed even when many concurrent
	// Invoke calls observe no live Session at once, the Go equivalent of
	// "post to mgr-strand a closure that creates a Session if none is
	// running" (spec.md §4.3 step 4).
	sf singleflight.Group
}

// NewClient returns a Client configured to dial cfg.ServerEndpoint on
// demand. No connection is made until the first Invoke.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{cfg: cfg.normalize(), calls: make(map[uint32]*callEntry)}
	c.running.Store(true)
	return c
}

// Invoke sends funcName(reqPayload) to the server and waits for a response,
// a timeout, or ctx's cancellation, implementing spec.md §4.3's algorithm.
func (c *Client) Invoke(ctx *Context, funcName string, reqPayload []byte) (Status, []byte, error) {
	if !c.running.Load() {
		return NewCodeStatus(CliIsNotRunning), nil, ErrNotRunning
	}
	if ctx.IsDone() {
		return NewCodeStatus(CtxDone), nil, nil
	}

	reqID := atomic.AddUint32(&c.nextReqID, 1)

	var deadlineMs int64
	deadline := ctx.Deadline()
	if !deadline.IsZero() {
		deadlineMs = deadline.UnixMilli()
	}
	hdr := ReqHeader{
		ReqID:          reqID,
		FuncName:       funcName,
		DeadlineUnixMs: deadlineMs,
		ContextKV:      ctx.ContextKV(),
	}
	headerBytes := appendReqHeader(nil, hdr)
	vec := buildFrame(headerBytes, reqPayload)

	sess, err := c.ensureSession()
	if err != nil {
		return NewCodeStatus(Unknown), nil, err
	}

	// Re-check immediately before handing the frame to the send queue: once
	// it's enqueued the call cannot be un-sent, so a cancel observed here
	// converts into a local CANCELLED completion instead (spec.md §5).
	if ctx.IsDone() {
		return NewCodeStatus(Cancelled), nil, nil
	}

	entry := &callEntry{done: make(chan struct{})}
	c.mu.Lock()
	c.calls[reqID] = entry
	c.mu.Unlock()

	// The insert above happens-before this enqueue, so the recv loop can
	// never observe a response for reqID before the entry exists — the
	// ordering guarantee spec.md §4.3 calls out.
	sess.enqueue(vec)

	var timerC <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		timerC = timer.C
	}

	select {
	case <-entry.done:
		c.removeCall(reqID)
		if entry.err != nil {
			ctx.DoCallFailed(entry.err.Error())
			return NewCodeStatus(Unknown), nil, entry.err
		}
		rsp := entry.rsp
		if rsp.RetCode != OK {
			// Matches the source's ctx->DoCallFailed(...) on a non-OK
			// ret_code: the Context records why the call didn't succeed
			// even though a response did arrive.
			ctx.DoCallFailed(rsp.RetCode.String())
		}
		return Status{Ret: rsp.RetCode, FuncRet: rsp.FuncRetCode, FuncRetMsg: rsp.FuncRetMsg}, entry.payload, nil
	case <-timerC:
		c.removeCall(reqID)
		ctx.DoTimeout("invoke deadline exceeded")
		return NewCodeStatus(Timeout), nil, nil
	case <-ctx.Done():
		c.removeCall(reqID)
		return NewCodeStatus(Cancelled), nil, nil
	}
}

func (c *Client) removeCall(reqID uint32) {
	c.mu.Lock()
	delete(c.calls, reqID)
	c.mu.Unlock()
}

// ensureSession returns the current live Session, dialing a fresh one if
// none exists or the current one has stopped.
func (c *Client) ensureSession() (*session, error) {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess != nil && sess.isRunning() {
		return sess, nil
	}

	v, err, _ := c.sf.Do("session", func() (interface{}, error) {
		c.mu.Lock()
		sess := c.sess
		c.mu.Unlock()
		if sess != nil && sess.isRunning() {
			return sess, nil
		}

		conn, err := net.Dial("tcp", c.cfg.ServerEndpoint)
		if err != nil {
			return nil, err
		}
		ns := newSession(conn, c.cfg.MaxRecvSize, c.handleFrame)
		ns.heartbeatInterval = c.cfg.HeartbeatInterval
		ns.onClose = c.failOutstanding

		c.mu.Lock()
		c.sess = ns
		c.mu.Unlock()

		ns.start()
		return ns, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*session), nil
}

// handleFrame is the Session dispatch callback: decode the response header,
// look the call up by req_id, and deliver the result. An unknown req_id
// (already timed out, or a stray frame) is silently dropped, per spec.md
// §4.2.1's "unknown req_id: log and drop".
func (c *Client) handleFrame(headerLen uint16, body []byte) {
	hdr, err := parseRspHeader(body[:headerLen])
	if err != nil {
		return
	}
	payload := body[headerLen:]

	c.mu.Lock()
	entry, ok := c.calls[hdr.ReqID]
	c.mu.Unlock()
	if !ok {
		return
	}
	entry.complete(hdr, payload, nil)
}

// failOutstanding runs once a Session stops: every call still waiting on it
// resolves with Status{Ret: Unknown}, matching spec.md §5's "Session stop
// during an in-flight Invoke: the client observes UNKNOWN".
func (c *Client) failOutstanding() {
	c.mu.Lock()
	calls := c.calls
	c.calls = make(map[uint32]*callEntry)
	c.mu.Unlock()

	for _, e := range calls {
		e.complete(RspHeader{}, nil, ErrSessionClosed)
	}
}

// Stop idempotently tears down the current Session, if any, and refuses
// further Invoke calls.
func (c *Client) Stop() {
	if !c.running.CompareAndSwap(true, false) {
		return
	}
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return
	}
	sess.stop()
	sess.wait()
}
