package ytrpc

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sagernet/sing/common/bufio"
)

// minRecvBufSize is the initial size and the floor of the recv loop's
// adaptive read buffer, per spec.md §4.2.2: it starts small, doubles when
// saturated, halves when under-utilised, and is hard-capped by maxRecvSize.
const minRecvBufSize = 256

// session is one TCP connection plus its send/recv/supervisor goroutines.
// It is symmetric between client and server except for connection
// establishment (done by the caller before newSession), correlation table
// vs. dispatch table (owned by the caller via the dispatch callback), and
// which side runs a keepalive sender vs. an idle supervisor — exactly the
// three asymmetries spec.md §4.2 calls out.
//
// The two "strands" spec.md describes (socket-strand, handle-strand) are
// realized here as: the sendLoop goroutine plus a mutex-guarded pending
// BufferVec (socket-strand), and whatever mutex-guarded state the dispatch
// callback's owner (Client or Server) keeps privately (handle-strand). See
// SPEC_FULL.md §1 for the full task-runtime mapping.
type session struct {
	conn        net.Conn
	maxRecvSize uint32

	// heartbeatInterval > 0 enables the client-role keepalive sender.
	heartbeatInterval time.Duration
	// maxNoData > 0 enables the server-role idle supervisor.
	maxNoData time.Duration

	// dispatch is handed the structured-header length and the full body
	// (structured header + payload) of every non-keepalive frame the recv
	// loop decodes. It is always invoked from its own goroutine so a slow
	// handler (server side) or correlation lookup (client side) never stalls
	// the recv loop, matching "post to handle-strand" / "spawn on the
	// general executor".
	dispatch func(headerLen uint16, body []byte)

	// onClose runs exactly once, after the session has fully stopped
	// accepting work, so the owner (Client/Server) can fail any state still
	// tracking this session.
	onClose func()

	running atomic.Bool
	die     chan struct{}
	wg      sync.WaitGroup

	sendMu  sync.Mutex
	pending BufferVec
	wake    chan struct{}

	dataSinceTick atomic.Bool
}

func newSession(conn net.Conn, maxRecvSize uint32, dispatch func(uint16, []byte)) *session {
	return &session{
		conn:        conn,
		maxRecvSize: maxRecvSize,
		dispatch:    dispatch,
		die:         make(chan struct{}),
		wake:        make(chan struct{}, 1),
	}
}

// start spawns the send loop, recv loop, and (if maxNoData > 0) the idle
// supervisor. The session must not be started twice.
func (s *session) start() {
	s.running.Store(true)
	s.wg.Add(2)
	go s.sendLoop()
	go s.recvLoop()
	if s.maxNoData > 0 {
		s.wg.Add(1)
		go s.idleSupervisor()
	}
}

// isRunning reports whether the session is still accepting work.
func (s *session) isRunning() bool {
	return s.running.Load()
}

// enqueue merges vec into the pending send queue and wakes the send loop,
// the Go analogue of "post to socket-strand a closure that appends to
// send_queue then calls signal_timer.cancel()" (spec.md §4.2.1).
func (s *session) enqueue(vec *BufferVec) {
	s.sendMu.Lock()
	s.pending.Merge(vec)
	s.sendMu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// stop is idempotent: the first caller closes die and the underlying
// socket; every loop observes this on its next suspension point and exits.
// It does not block for the loops to finish — call wait for that.
func (s *session) stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	close(s.die)
	s.conn.Close()
	if s.onClose != nil {
		s.onClose()
	}
}

// wait blocks until the send/recv/supervisor goroutines have all exited.
func (s *session) wait() {
	s.wg.Wait()
}

func (s *session) sendLoop() {
	defer s.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time
	if s.heartbeatInterval > 0 {
		timer = time.NewTimer(s.heartbeatInterval)
		timerC = timer.C
		defer timer.Stop()
	}

	resetTimer := func() {
		if timer == nil {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.heartbeatInterval)
	}

	for s.isRunning() {
		s.sendMu.Lock()
		hasWork := !s.pending.Empty()
		var local BufferVec
		if hasWork {
			local.Swap(&s.pending)
		}
		s.sendMu.Unlock()

		if hasWork {
			if err := s.gatherWrite(&local); err != nil {
				s.stop()
				return
			}
			resetTimer()
			continue
		}

		select {
		case <-s.wake:
			resetTimer()
		case <-timerC:
			kv := buildKeepaliveVec()
			if err := s.gatherWrite(kv); err != nil {
				s.stop()
				return
			}
			timer.Reset(s.heartbeatInterval)
		case <-s.die:
			return
		}
	}
}

// gatherWrite performs a single vectorised write of vec's chunks, falling
// back to one concatenated Write if the connection doesn't support
// scatter-gather I/O — the same fallback smux.Session.sendLoop uses around
// bufio.CreateVectorisedWriter.
func (s *session) gatherWrite(vec *BufferVec) error {
	buffers := vec.Buffers()
	if len(buffers) == 0 {
		return nil
	}
	if bw, ok := bufio.CreateVectorisedWriter(s.conn); ok {
		_, err := bufio.WriteVectorised(bw, buffers)
		return err
	}
	_, err := s.conn.Write(vec.Bytes())
	return err
}

func (s *session) recvLoop() {
	defer s.wg.Done()

	bufCap := minRecvBufSize
	buf := make([]byte, bufCap)
	offset := 0

	for s.isRunning() {
		prevCap := bufCap
		n, err := s.conn.Read(buf[offset:])
		if err != nil {
			s.stop()
			return
		}
		s.dataSinceTick.Store(true)

		total := offset + n
		pos := 0
		frameNeed := 0
		for total-pos >= frameHeaderSize {
			hdr, err := parseFrameHeader(buf[pos : pos+frameHeaderSize])
			if err != nil {
				s.stop()
				return
			}
			if hdr.bodyLen > s.maxRecvSize {
				s.stop()
				return
			}
			// body_len = header_len + payload_len (spec.md §3): a frame
			// whose header_len exceeds its own body_len is malformed and
			// would otherwise panic the dispatch callback's body[:headerLen]
			// slice. Treat it the same as a bad magic byte: a framing
			// error that closes the Session.
			if uint32(hdr.headerLen) > hdr.bodyLen {
				s.stop()
				return
			}
			need := frameHeaderSize + int(hdr.bodyLen)
			if total-pos < need {
				frameNeed = need
				break
			}
			if hdr.isKeepalive() {
				pos += frameHeaderSize
				continue
			}

			body := make([]byte, hdr.bodyLen)
			copy(body, buf[pos+frameHeaderSize:pos+need])
			headerLen := hdr.headerLen
			go s.dispatch(headerLen, body)

			pos += need
		}
		remaining := total - pos

		// Adaptive sizing per spec.md §4.2.2: shrink when under-utilised,
		// grow when saturated, but never below what's needed to hold the
		// carried-over partial frame or the unconsumed tail.
		newCap := prevCap
		switch {
		case n < prevCap/2 && prevCap > minRecvBufSize:
			newCap = prevCap / 2
			if newCap < minRecvBufSize {
				newCap = minRecvBufSize
			}
		case n >= prevCap:
			newCap = prevCap * 2
		}
		if frameNeed > newCap {
			newCap = frameNeed
		}
		if remaining > newCap {
			newCap = remaining
		}
		if hardCap := int(s.maxRecvSize) + frameHeaderSize; newCap > hardCap {
			newCap = hardCap
		}
		bufCap = newCap

		next := make([]byte, bufCap)
		copy(next, buf[pos:total])
		buf = next
		offset = remaining
	}
}

func (s *session) idleSupervisor() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.maxNoData)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !s.dataSinceTick.Swap(false) {
				s.stop()
				return
			}
		case <-s.die:
			return
		}
	}
}
