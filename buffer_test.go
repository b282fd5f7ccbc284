package ytrpc

import (
	"bytes"
	"testing"
)

func TestBufferVecMergeEmptiesSource(t *testing.T) {
	var a, b BufferVec
	a.NewBuffer(4)
	b.NewBuffer(8)

	a.Merge(&b)

	if !b.Empty() {
		t.Errorf("TestBufferVecMergeEmptiesSource: source not emptied")
	}
	if len(a.Buffers()) != 2 {
		t.Errorf("TestBufferVecMergeEmptiesSource: got %d chunks, want 2", len(a.Buffers()))
	}
}

func TestBufferVecSwap(t *testing.T) {
	var a, b BufferVec
	a.NewBuffer(1)
	a.Swap(&b)

	if !a.Empty() {
		t.Errorf("TestBufferVecSwap: a not emptied")
	}
	if b.Empty() {
		t.Errorf("TestBufferVecSwap: b still empty")
	}
}

func TestOutputStreamWriteAllAcrossChunks(t *testing.T) {
	var vec BufferVec
	os := newOutputStream(&vec)

	head := os.InitHead(frameHeaderSize)
	if len(head) < frameHeaderSize {
		t.Fatalf("TestOutputStreamWriteAllAcrossChunks: InitHead returned %d bytes, want >= %d", len(head), frameHeaderSize)
	}

	payload := make([]byte, initBlockSize*3+17)
	for i := range payload {
		payload[i] = byte(i)
	}
	os.WriteAll(payload)
	vec.CommitLast(os.LastBufSize())

	got := vec.Bytes()[frameHeaderSize:]
	if !bytes.Equal(got, payload) {
		t.Errorf("TestOutputStreamWriteAllAcrossChunks: round trip mismatch, got %d bytes, want %d", len(got), len(payload))
	}
}

func TestOutputStreamByteCount(t *testing.T) {
	var vec BufferVec
	os := newOutputStream(&vec)
	os.InitHead(frameHeaderSize)
	os.WriteAll([]byte("hello"))
	if got := os.ByteCount(); got != frameHeaderSize+5 {
		t.Errorf("TestOutputStreamByteCount: got %d, want %d", got, frameHeaderSize+5)
	}
}
