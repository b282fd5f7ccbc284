package ytrpc

import "encoding/binary"

// frameHeaderSize is the fixed 8-byte frame header: 2-byte magic, 2-byte
// header_len, 4-byte body_len, all little-endian per spec.md §6.
const frameHeaderSize = 8

var frameMagic = [2]byte{'Y', 'T'}

// frameHeader is the decoded form of the fixed 8-byte prefix that begins
// every frame on the wire.
type frameHeader struct {
	headerLen uint16
	bodyLen   uint32
}

// isKeepalive reports whether this header describes a keepalive frame: a
// frame with body_len == 0 and therefore no structured header or payload.
func (h frameHeader) isKeepalive() bool {
	return h.bodyLen == 0
}

// putFrameHeader writes the fixed 8-byte frame header into dst (which must
// be at least frameHeaderSize bytes), for a frame whose structured header is
// headerLen bytes and whose structured-header+payload together are bodyLen
// bytes.
func putFrameHeader(dst []byte, headerLen uint16, bodyLen uint32) {
	dst[0] = frameMagic[0]
	dst[1] = frameMagic[1]
	binary.LittleEndian.PutUint16(dst[2:4], headerLen)
	binary.LittleEndian.PutUint32(dst[4:8], bodyLen)
}

// parseFrameHeader decodes the fixed 8-byte frame header from src (which
// must be at least frameHeaderSize bytes). It returns ErrBadMagic if the
// leading two bytes aren't the expected magic.
func parseFrameHeader(src []byte) (frameHeader, error) {
	if src[0] != frameMagic[0] || src[1] != frameMagic[1] {
		return frameHeader{}, ErrBadMagic
	}
	return frameHeader{
		headerLen: binary.LittleEndian.Uint16(src[2:4]),
		bodyLen:   binary.LittleEndian.Uint32(src[4:8]),
	}, nil
}

// keepaliveFrame is the literal 8 bytes of a keepalive frame: magic plus a
// zeroed header_len/body_len.
var keepaliveFrame = [frameHeaderSize]byte{frameMagic[0], frameMagic[1], 0, 0, 0, 0, 0, 0}

// buildFrame serializes a complete frame (fixed header + structured header +
// payload) into a fresh BufferVec, ready for a gather-write. It reserves the
// frame header via outputStream.InitHead, writes headerBytes and payload
// through the zero-copy Next()/BackUp() protocol, then patches the reserved
// region with the final header_len/body_len once both lengths are known —
// the same two-pass-free technique as BufferVecZeroCopyOutputStream in the
// source (ytlib/ytrpc/rpc_util/buffer.hpp).
func buildFrame(headerBytes, payload []byte) *BufferVec {
	vec := &BufferVec{}
	os := newOutputStream(vec)

	headBuf := os.InitHead(frameHeaderSize)
	os.WriteAll(headerBytes)
	headerLen := os.ByteCount() - frameHeaderSize
	os.WriteAll(payload)
	bodyLen := os.ByteCount() - frameHeaderSize

	putFrameHeader(headBuf[:frameHeaderSize], uint16(headerLen), uint32(bodyLen))
	vec.CommitLast(os.LastBufSize())
	return vec
}

// buildKeepaliveVec returns a BufferVec containing exactly one keepalive
// frame.
func buildKeepaliveVec() *BufferVec {
	vec := &BufferVec{}
	buf := vec.NewBuffer(frameHeaderSize)
	copy(buf, keepaliveFrame[:])
	return vec
}
