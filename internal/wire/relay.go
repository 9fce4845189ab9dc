package wire

import "google.golang.org/protobuf/encoding/protowire"

// RequestRelay asks the rendezvous server (or the relay server directly) to
// pair a relay session under uuid. SocketAddr is populated by the
// rendezvous engine when it forwards the request on to the target; the
// original sender leaves it empty.
type RequestRelay struct {
	ID         string
	UUID       string
	LicenceKey string
	SocketAddr []byte
}

func (m *RequestRelay) envelopeField() uint32 { return fieldRequestRelay }

func (m *RequestRelay) appendTo(b []byte) []byte {
	b = appendString(b, 1, m.ID)
	b = appendString(b, 2, m.UUID)
	b = appendString(b, 3, m.LicenceKey)
	b = appendBytes(b, 4, m.SocketAddr)
	return b
}

func parseRequestRelay(data []byte) (*RequestRelay, error) {
	m := &RequestRelay{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			s, n := protowire.ConsumeString(b)
			m.ID = s
			return n
		case 2:
			s, n := protowire.ConsumeString(b)
			m.UUID = s
			return n
		case 3:
			s, n := protowire.ConsumeString(b)
			m.LicenceKey = s
			return n
		case 4:
			v, n := protowire.ConsumeBytes(b)
			m.SocketAddr = v
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	return m, err
}

// RelayResponse is the target's acceptance of a relay pairing, forwarded
// back to the stashed requester half with PK signed by the rendezvous
// server's identity.
type RelayResponse struct {
	SocketAddr  []byte
	ID          string
	Version     string
	RelayServer string
	PK          []byte
}

func (m *RelayResponse) envelopeField() uint32 { return fieldRelayResponse }

func (m *RelayResponse) appendTo(b []byte) []byte {
	b = appendBytes(b, 1, m.SocketAddr)
	b = appendString(b, 2, m.ID)
	b = appendString(b, 3, m.Version)
	b = appendString(b, 4, m.RelayServer)
	b = appendBytes(b, 5, m.PK)
	return b
}

func parseRelayResponse(data []byte) (*RelayResponse, error) {
	m := &RelayResponse{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			v, n := protowire.ConsumeBytes(b)
			m.SocketAddr = v
			return n
		case 2:
			s, n := protowire.ConsumeString(b)
			m.ID = s
			return n
		case 3:
			s, n := protowire.ConsumeString(b)
			m.Version = s
			return n
		case 4:
			s, n := protowire.ConsumeString(b)
			m.RelayServer = s
			return n
		case 5:
			v, n := protowire.ConsumeBytes(b)
			m.PK = v
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	return m, err
}
