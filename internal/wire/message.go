// Package wire implements the rendezvous/relay envelope codec. There is no
// .proto file and no generated *.pb.go: every message is hand-encoded with
// google.golang.org/protobuf/encoding/protowire's low-level Append/Consume
// functions, which still exercises the real protobuf module without
// requiring protoc codegen.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Message is implemented by every payload type that can ride inside an
// Envelope's oneof. The envelopeField method is unexported so external
// packages cannot construct spurious union members.
type Message interface {
	envelopeField() uint32
	appendTo(b []byte) []byte
}

// Envelope is the RendezvousMessage oneof: exactly one of its Union field's
// concrete types is set at a time.
type Envelope struct {
	Union Message
}

// Encode serializes the envelope to wire bytes.
func Encode(m Message) []byte {
	b := protowire.AppendTag(nil, m.envelopeField(), protowire.BytesType)
	b = protowire.AppendBytes(b, m.appendTo(nil))
	return b
}

// Decode parses wire bytes into whichever Message the field number selects.
func Decode(data []byte) (Message, error) {
	num, typ, n := protowire.ConsumeTag(data)
	if n < 0 {
		return nil, fmt.Errorf("wire: malformed envelope tag")
	}
	if typ != protowire.BytesType {
		return nil, fmt.Errorf("wire: envelope field must be length-delimited")
	}
	payload, m := protowire.ConsumeBytes(data[n:])
	if m < 0 {
		return nil, fmt.Errorf("wire: malformed envelope payload")
	}

	switch uint32(num) {
	case fieldRegisterPeer:
		return parseRegisterPeer(payload)
	case fieldRegisterPeerResponse:
		return parseRegisterPeerResponse(payload)
	case fieldRegisterPk:
		return parseRegisterPk(payload)
	case fieldRegisterPkResponse:
		return parseRegisterPkResponse(payload)
	case fieldPunchHoleRequest:
		return parsePunchHoleRequest(payload)
	case fieldPunchHole:
		return parsePunchHole(payload)
	case fieldPunchHoleSent:
		return parsePunchHoleSent(payload)
	case fieldFetchLocalAddr:
		return parseFetchLocalAddr(payload)
	case fieldLocalAddr:
		return parseLocalAddr(payload)
	case fieldPunchHoleResponse:
		return parsePunchHoleResponse(payload)
	case fieldConfigureUpdate:
		return parseConfigureUpdate(payload)
	case fieldConfigUpdate:
		return parseConfigUpdate(payload)
	case fieldSoftwareUpdate:
		return parseSoftwareUpdate(payload)
	case fieldRequestRelay:
		return parseRequestRelay(payload)
	case fieldRelayResponse:
		return parseRelayResponse(payload)
	case fieldTestNatRequest:
		return parseTestNatRequest(payload)
	case fieldTestNatResponse:
		return parseTestNatResponse(payload)
	case fieldOnlineRequest:
		return parseOnlineRequest(payload)
	case fieldOnlineResponse:
		return parseOnlineResponse(payload)
	default:
		return nil, fmt.Errorf("wire: unknown envelope field %d", num)
	}
}

// --- small append/consume helpers shared across message encodings ---

func appendString(b []byte, num uint32, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, num uint32, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarint(b []byte, num uint32, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendBool(b []byte, num uint32, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

func appendStrings(b []byte, num uint32, vs []string) []byte {
	for _, s := range vs {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, s)
	}
	return b
}

func appendMessage(b []byte, num uint32, sub []byte) []byte {
	if sub == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, sub)
}

// fieldVisitor is called once per top-level field found while parsing a
// message body; it returns the number of bytes consumed for that field's
// value (not including the tag), or -1 on error.
type fieldVisitor func(num protowire.Number, typ protowire.Type, b []byte) int

func walkFields(data []byte, visit fieldVisitor) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("wire: malformed field tag")
		}
		data = data[n:]
		consumed := visit(num, typ, data)
		if consumed < 0 {
			return fmt.Errorf("wire: malformed field %d", num)
		}
		data = data[consumed:]
	}
	return nil
}
