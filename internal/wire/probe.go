package wire

import "google.golang.org/protobuf/encoding/protowire"

// TestNatRequest asks the rendezvous server to report the source port it
// observed, letting the client infer its NAT's port-mapping behavior.
type TestNatRequest struct {
	Serial int32
}

func (m *TestNatRequest) envelopeField() uint32 { return fieldTestNatRequest }

func (m *TestNatRequest) appendTo(b []byte) []byte {
	return appendVarint(b, 1, int64(m.Serial))
}

func parseTestNatRequest(data []byte) (*TestNatRequest, error) {
	m := &TestNatRequest{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(b)
			m.Serial = int32(v)
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	return m, err
}

// TestNatResponse carries the observed source port and, when the client's
// Serial is stale, a piggy-backed ConfigUpdate.
type TestNatResponse struct {
	Port int32
	Cu   *ConfigUpdate
}

func (m *TestNatResponse) envelopeField() uint32 { return fieldTestNatResponse }

func (m *TestNatResponse) appendTo(b []byte) []byte {
	b = appendVarint(b, 1, int64(m.Port))
	if m.Cu != nil {
		b = appendMessage(b, 2, m.Cu.appendTo(nil))
	}
	return b
}

func parseTestNatResponse(data []byte) (*TestNatResponse, error) {
	m := &TestNatResponse{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(b)
			m.Port = int32(v)
			return n
		case 2:
			sub, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n
			}
			cu, err := parseConfigUpdate(sub)
			if err != nil {
				return -1
			}
			m.Cu = cu
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	return m, err
}

// OnlineRequest asks whether each peer id in Peers is currently registered.
type OnlineRequest struct {
	Peers []string
}

func (m *OnlineRequest) envelopeField() uint32 { return fieldOnlineRequest }

func (m *OnlineRequest) appendTo(b []byte) []byte {
	return appendStrings(b, 1, m.Peers)
}

func parseOnlineRequest(data []byte) (*OnlineRequest, error) {
	m := &OnlineRequest{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			s, n := protowire.ConsumeString(b)
			m.Peers = append(m.Peers, s)
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	return m, err
}

// OnlineResponse carries a tightly-packed, MSB-first presence bitmap: bit i
// of States is 1 iff the i-th requested peer is live.
type OnlineResponse struct {
	States []byte
}

func (m *OnlineResponse) envelopeField() uint32 { return fieldOnlineResponse }

func (m *OnlineResponse) appendTo(b []byte) []byte {
	return appendBytes(b, 1, m.States)
}

func parseOnlineResponse(data []byte) (*OnlineResponse, error) {
	m := &OnlineResponse{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			v, n := protowire.ConsumeBytes(b)
			m.States = v
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	return m, err
}
