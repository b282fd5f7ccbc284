package ytrpc

import (
	"net"
	"sync"
	"testing"
	"time"
)

func TestSessionSendRecvFrame(t *testing.T) {
	a, b := net.Pipe()

	var mu sync.Mutex
	var gotHeader []byte
	var gotPayload []byte
	received := make(chan struct{})

	server := newSession(b, DefaultMaxRecvSize, func(headerLen uint16, body []byte) {
		mu.Lock()
		gotHeader = append([]byte(nil), body[:headerLen]...)
		gotPayload = append([]byte(nil), body[headerLen:]...)
		mu.Unlock()
		close(received)
	})
	server.start()
	defer func() {
		server.stop()
		server.wait()
	}()

	client := newSession(a, DefaultMaxRecvSize, func(uint16, []byte) {})
	client.start()
	defer func() {
		client.stop()
		client.wait()
	}()

	headerBytes := []byte("hdr")
	payload := []byte("payload")
	client.enqueue(buildFrame(headerBytes, payload))

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatalf("TestSessionSendRecvFrame: dispatch never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	if string(gotHeader) != "hdr" {
		t.Errorf("TestSessionSendRecvFrame: got header %q, want %q", gotHeader, "hdr")
	}
	if string(gotPayload) != "payload" {
		t.Errorf("TestSessionSendRecvFrame: got payload %q, want %q", gotPayload, "payload")
	}
}

func TestSessionKeepaliveNotDispatched(t *testing.T) {
	a, b := net.Pipe()

	dispatched := make(chan struct{}, 1)
	server := newSession(b, DefaultMaxRecvSize, func(uint16, []byte) {
		select {
		case dispatched <- struct{}{}:
		default:
		}
	})
	server.start()
	defer func() {
		server.stop()
		server.wait()
	}()

	client := newSession(a, DefaultMaxRecvSize, func(uint16, []byte) {})
	client.start()
	defer func() {
		client.stop()
		client.wait()
	}()

	client.enqueue(buildKeepaliveVec())
	headerBytes := []byte("h")
	client.enqueue(buildFrame(headerBytes, []byte("p")))

	select {
	case <-dispatched:
	case <-time.After(2 * time.Second):
		t.Fatalf("TestSessionKeepaliveNotDispatched: real frame never dispatched")
	}

	select {
	case <-dispatched:
		t.Fatalf("TestSessionKeepaliveNotDispatched: a second dispatch fired; the keepalive frame was dispatched")
	default:
	}
}

func TestSessionOversizedFrameCloses(t *testing.T) {
	a, b := net.Pipe()

	server := newSession(b, 4, func(uint16, []byte) {})
	server.start()
	defer server.wait()

	client := newSession(a, 4, func(uint16, []byte) {})
	client.start()
	defer func() {
		client.stop()
		client.wait()
	}()

	client.enqueue(buildFrame([]byte("h"), []byte("this payload is far larger than four bytes")))

	deadline := time.Now().Add(2 * time.Second)
	for server.isRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if server.isRunning() {
		t.Errorf("TestSessionOversizedFrameCloses: server session still running after oversized frame")
	}
}

func TestSessionHeaderLenExceedsBodyLenCloses(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()

	server := newSession(b, DefaultMaxRecvSize, func(uint16, []byte) {})
	server.start()
	defer server.wait()

	// header_len (100) > body_len (10) is malformed per spec.md §3's
	// body_len = header_len + payload_len invariant; the recv loop must
	// reject it as a framing error rather than let a dispatch callback
	// slice body[:headerLen] out of bounds.
	var hdr [frameHeaderSize]byte
	putFrameHeader(hdr[:], 100, 10)
	body := make([]byte, 10)
	go func() {
		combined := append(append([]byte(nil), hdr[:]...), body...)
		a.Write(combined)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for server.isRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if server.isRunning() {
		t.Errorf("TestSessionHeaderLenExceedsBodyLenCloses: server session still running after malformed header_len")
	}
}

func TestSessionStopIsIdempotent(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()

	s := newSession(a, DefaultMaxRecvSize, func(uint16, []byte) {})
	var closeCount int
	var mu sync.Mutex
	s.onClose = func() {
		mu.Lock()
		closeCount++
		mu.Unlock()
	}
	s.start()

	s.stop()
	s.stop()
	s.wait()

	mu.Lock()
	defer mu.Unlock()
	if closeCount != 1 {
		t.Errorf("TestSessionStopIsIdempotent: onClose ran %d times, want 1", closeCount)
	}
}
