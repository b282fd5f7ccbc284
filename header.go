package ytrpc

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ReqHeader and RspHeader are the structured sub-headers described in
// spec.md §3. Per the Design Notes (§9) the framing is agnostic to how the
// header itself is encoded as long as it round-trips this field set; this
// implementation encodes both with the protobuf wire format via
// google.golang.org/protobuf/encoding/protowire, which gives a compact,
// self-describing, forward-extensible encoding without a protoc/codegen
// step. Field numbers are fixed below and must not change without breaking
// wire compatibility.
const (
	reqFieldReqID      = protowire.Number(1)
	reqFieldFuncName   = protowire.Number(2)
	reqFieldDeadlineMs = protowire.Number(3)
	reqFieldContextKV  = protowire.Number(4)
	kvFieldKey         = protowire.Number(1)
	kvFieldValue       = protowire.Number(2)

	rspFieldReqID       = protowire.Number(1)
	rspFieldRetCode     = protowire.Number(2)
	rspFieldFuncRetCode = protowire.Number(3)
	rspFieldFuncRetMsg  = protowire.Number(4)
)

// ReqHeader is the per-request structured header.
type ReqHeader struct {
	ReqID          uint32
	FuncName       string
	DeadlineUnixMs int64
	ContextKV      map[string]string
}

// RspHeader is the per-response structured header.
type RspHeader struct {
	ReqID       uint32
	RetCode     Code
	FuncRetCode int32
	FuncRetMsg  string
}

// appendReqHeader appends the wire encoding of h to dst and returns the
// extended slice.
func appendReqHeader(dst []byte, h ReqHeader) []byte {
	dst = protowire.AppendTag(dst, reqFieldReqID, protowire.VarintType)
	dst = protowire.AppendVarint(dst, uint64(h.ReqID))

	dst = protowire.AppendTag(dst, reqFieldFuncName, protowire.BytesType)
	dst = protowire.AppendBytes(dst, []byte(h.FuncName))

	dst = protowire.AppendTag(dst, reqFieldDeadlineMs, protowire.VarintType)
	dst = protowire.AppendVarint(dst, protowire.EncodeZigZag(h.DeadlineUnixMs))

	for k, v := range h.ContextKV {
		var entry []byte
		entry = protowire.AppendTag(entry, kvFieldKey, protowire.BytesType)
		entry = protowire.AppendBytes(entry, []byte(k))
		entry = protowire.AppendTag(entry, kvFieldValue, protowire.BytesType)
		entry = protowire.AppendBytes(entry, []byte(v))

		dst = protowire.AppendTag(dst, reqFieldContextKV, protowire.BytesType)
		dst = protowire.AppendBytes(dst, entry)
	}
	return dst
}

// parseReqHeader decodes a ReqHeader from src.
func parseReqHeader(src []byte) (ReqHeader, error) {
	var h ReqHeader
	for len(src) > 0 {
		num, typ, n := protowire.ConsumeTag(src)
		if n < 0 {
			return h, fmt.Errorf("ytrpc: malformed req header tag: %w", protowire.ParseError(n))
		}
		src = src[n:]

		switch num {
		case reqFieldReqID:
			v, n := protowire.ConsumeVarint(src)
			if n < 0 {
				return h, fmt.Errorf("ytrpc: malformed req_id: %w", protowire.ParseError(n))
			}
			h.ReqID = uint32(v)
			src = src[n:]
		case reqFieldFuncName:
			v, n := protowire.ConsumeBytes(src)
			if n < 0 {
				return h, fmt.Errorf("ytrpc: malformed func_name: %w", protowire.ParseError(n))
			}
			h.FuncName = string(v)
			src = src[n:]
		case reqFieldDeadlineMs:
			v, n := protowire.ConsumeVarint(src)
			if n < 0 {
				return h, fmt.Errorf("ytrpc: malformed deadline_unix_ms: %w", protowire.ParseError(n))
			}
			h.DeadlineUnixMs = protowire.DecodeZigZag(v)
			src = src[n:]
		case reqFieldContextKV:
			v, n := protowire.ConsumeBytes(src)
			if n < 0 {
				return h, fmt.Errorf("ytrpc: malformed context_kv entry: %w", protowire.ParseError(n))
			}
			k, val, err := parseKVEntry(v)
			if err != nil {
				return h, err
			}
			if h.ContextKV == nil {
				h.ContextKV = make(map[string]string)
			}
			h.ContextKV[k] = val
			src = src[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, src)
			if n < 0 {
				return h, fmt.Errorf("ytrpc: malformed req header field: %w", protowire.ParseError(n))
			}
			src = src[n:]
		}
	}
	return h, nil
}

func parseKVEntry(src []byte) (key, value string, err error) {
	for len(src) > 0 {
		num, typ, n := protowire.ConsumeTag(src)
		if n < 0 {
			return "", "", fmt.Errorf("ytrpc: malformed kv entry tag: %w", protowire.ParseError(n))
		}
		src = src[n:]
		switch num {
		case kvFieldKey:
			v, n := protowire.ConsumeBytes(src)
			if n < 0 {
				return "", "", fmt.Errorf("ytrpc: malformed kv key: %w", protowire.ParseError(n))
			}
			key = string(v)
			src = src[n:]
		case kvFieldValue:
			v, n := protowire.ConsumeBytes(src)
			if n < 0 {
				return "", "", fmt.Errorf("ytrpc: malformed kv value: %w", protowire.ParseError(n))
			}
			value = string(v)
			src = src[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, src)
			if n < 0 {
				return "", "", fmt.Errorf("ytrpc: malformed kv entry field: %w", protowire.ParseError(n))
			}
			src = src[n:]
		}
	}
	return key, value, nil
}

// appendRspHeader appends the wire encoding of h to dst and returns the
// extended slice.
func appendRspHeader(dst []byte, h RspHeader) []byte {
	dst = protowire.AppendTag(dst, rspFieldReqID, protowire.VarintType)
	dst = protowire.AppendVarint(dst, uint64(h.ReqID))

	dst = protowire.AppendTag(dst, rspFieldRetCode, protowire.VarintType)
	dst = protowire.AppendVarint(dst, protowire.EncodeZigZag(int64(h.RetCode)))

	dst = protowire.AppendTag(dst, rspFieldFuncRetCode, protowire.VarintType)
	dst = protowire.AppendVarint(dst, protowire.EncodeZigZag(int64(h.FuncRetCode)))

	dst = protowire.AppendTag(dst, rspFieldFuncRetMsg, protowire.BytesType)
	dst = protowire.AppendBytes(dst, []byte(h.FuncRetMsg))
	return dst
}

// parseRspHeader decodes a RspHeader from src.
func parseRspHeader(src []byte) (RspHeader, error) {
	var h RspHeader
	for len(src) > 0 {
		num, typ, n := protowire.ConsumeTag(src)
		if n < 0 {
			return h, fmt.Errorf("ytrpc: malformed rsp header tag: %w", protowire.ParseError(n))
		}
		src = src[n:]

		switch num {
		case rspFieldReqID:
			v, n := protowire.ConsumeVarint(src)
			if n < 0 {
				return h, fmt.Errorf("ytrpc: malformed req_id: %w", protowire.ParseError(n))
			}
			h.ReqID = uint32(v)
			src = src[n:]
		case rspFieldRetCode:
			v, n := protowire.ConsumeVarint(src)
			if n < 0 {
				return h, fmt.Errorf("ytrpc: malformed ret_code: %w", protowire.ParseError(n))
			}
			h.RetCode = Code(protowire.DecodeZigZag(v))
			src = src[n:]
		case rspFieldFuncRetCode:
			v, n := protowire.ConsumeVarint(src)
			if n < 0 {
				return h, fmt.Errorf("ytrpc: malformed func_ret_code: %w", protowire.ParseError(n))
			}
			h.FuncRetCode = int32(protowire.DecodeZigZag(v))
			src = src[n:]
		case rspFieldFuncRetMsg:
			v, n := protowire.ConsumeBytes(src)
			if n < 0 {
				return h, fmt.Errorf("ytrpc: malformed func_ret_msg: %w", protowire.ParseError(n))
			}
			h.FuncRetMsg = string(v)
			src = src[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, src)
			if n < 0 {
				return h, fmt.Errorf("ytrpc: malformed rsp header field: %w", protowire.ParseError(n))
			}
			src = src[n:]
		}
	}
	return h, nil
}
