package ytrpc

// BufferVec is an owned scatter/gather buffer: an ordered sequence of
// heap-allocated chunks. It is the Go port of the source's BufferVec
// (ytlib/ytrpc/rpc_util/buffer.hpp): a serializer writes directly into the
// chunks via outputStream, and the Session's send loop later gathers them
// into a single vectorised write without copying. Go slices already carry
// pointer+len+cap, so unlike the C++ original there is no manual malloc/free
// bookkeeping — chunks are just [][]byte entries.
type BufferVec struct {
	chunks [][]byte
}

// NewBuffer appends a fresh chunk of size n and returns it.
func (b *BufferVec) NewBuffer(n int) []byte {
	buf := make([]byte, n)
	b.chunks = append(b.chunks, buf)
	return buf
}

// Current returns the last appended chunk. It panics if no chunk has been
// appended yet, matching the source's CurBuffer() precondition.
func (b *BufferVec) Current() []byte {
	return b.chunks[len(b.chunks)-1]
}

// CommitLast truncates the last chunk's logical length to k. The caller
// must ensure a chunk exists and 0 <= k <= len(current chunk).
func (b *BufferVec) CommitLast(k int) {
	last := len(b.chunks) - 1
	b.chunks[last] = b.chunks[last][:k]
}

// Swap exchanges the chunk lists of b and other.
func (b *BufferVec) Swap(other *BufferVec) {
	b.chunks, other.chunks = other.chunks, b.chunks
}

// Merge appends other's chunks onto b and empties other, the append-steal
// operation used by the send strand to fold newly queued buffers into the
// pending queue without a data copy.
func (b *BufferVec) Merge(other *BufferVec) {
	b.chunks = append(b.chunks, other.chunks...)
	other.chunks = nil
}

// Empty reports whether the BufferVec holds no chunks.
func (b *BufferVec) Empty() bool {
	return len(b.chunks) == 0
}

// Buffers returns the chunk list as a gather-write source.
func (b *BufferVec) Buffers() [][]byte {
	return b.chunks
}

// ByteLen returns the total number of bytes across all chunks.
func (b *BufferVec) ByteLen() int {
	n := 0
	for _, c := range b.chunks {
		n += len(c)
	}
	return n
}

// Bytes concatenates all chunks into a single slice. Used by tests and by
// callers that need a contiguous view; the send path calls it only in
// gatherWrite's fallback for connections without vectorised writes.
func (b *BufferVec) Bytes() []byte {
	out := make([]byte, 0, b.ByteLen())
	for _, c := range b.chunks {
		out = append(out, c...)
	}
	return out
}

// initBlockSize is the first chunk size an outputStream allocates, matching
// the source's kInitBlockSize.
const initBlockSize = 256

// outputStream is a ZeroCopyOutputStream over a BufferVec: repeated calls to
// Next hand out unused tail space in the last chunk, or allocate a new chunk
// whose size doubles each time, exactly mirroring
// BufferVecZeroCopyOutputStream in rpc_util/buffer.hpp. It lets a header/
// payload serializer write directly into the chunks that will later be
// gather-written to the socket, with zero intermediate copies.
type outputStream struct {
	vec           *BufferVec
	curBlockSize  int
	curBufUsed    int
	byteCount     int64
}

func newOutputStream(vec *BufferVec) *outputStream {
	return &outputStream{vec: vec, curBlockSize: initBlockSize / 2, curBufUsed: initBlockSize / 2}
}

// InitHead must be called immediately after construction, before any Next
// call. It allocates the first chunk and reserves headSize bytes at its
// front for the fixed frame header, returning that reserved region so the
// caller can patch header_len/body_len into it once the rest of the frame
// has been serialized.
func (o *outputStream) InitHead(headSize int) []byte {
	o.byteCount = int64(headSize)
	o.curBufUsed = headSize
	o.curBlockSize <<= 1
	return o.vec.NewBuffer(o.curBlockSize)
}

// Next hands out a contiguous region to write into: either the unused tail
// of the current chunk, or a freshly doubled chunk.
func (o *outputStream) Next() []byte {
	if o.curBufUsed == o.curBlockSize {
		o.curBlockSize <<= 1
		buf := o.vec.NewBuffer(o.curBlockSize)
		o.curBufUsed = o.curBlockSize
		o.byteCount += int64(o.curBlockSize)
		return buf
	}
	buf := o.vec.Current()[o.curBufUsed:o.curBlockSize]
	o.byteCount += int64(len(buf))
	o.curBufUsed = o.curBlockSize
	return buf
}

// BackUp returns k unused trailing bytes of the most recent Next() call to
// the stream.
func (o *outputStream) BackUp(k int) {
	o.curBufUsed -= k
	o.byteCount -= int64(k)
}

// ByteCount is the total number of bytes handed out minus backed-up bytes.
func (o *outputStream) ByteCount() int64 {
	return o.byteCount
}

// LastBufSize is the logical size the current chunk should be committed to.
func (o *outputStream) LastBufSize() int {
	return o.curBufUsed
}

// WriteAll copies data into the stream via repeated Next()/BackUp() calls,
// the way a schema-based serializer's zero-copy write loop would. It never
// allocates beyond what Next() already hands out.
func (o *outputStream) WriteAll(data []byte) {
	for len(data) > 0 {
		buf := o.Next()
		n := copy(buf, data)
		if n < len(buf) {
			o.BackUp(len(buf) - n)
		}
		data = data[n:]
	}
}
