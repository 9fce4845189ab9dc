package wire

import "google.golang.org/protobuf/encoding/protowire"

// PunchHoleRequest asks the rendezvous server to broker a hole-punch with id.
type PunchHoleRequest struct {
	ID         string
	LicenceKey string
	NatType    int32
}

func (m *PunchHoleRequest) envelopeField() uint32 { return fieldPunchHoleRequest }

func (m *PunchHoleRequest) appendTo(b []byte) []byte {
	b = appendString(b, 1, m.ID)
	b = appendString(b, 2, m.LicenceKey)
	b = appendVarint(b, 3, int64(m.NatType))
	return b
}

func parsePunchHoleRequest(data []byte) (*PunchHoleRequest, error) {
	m := &PunchHoleRequest{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			s, n := protowire.ConsumeString(b)
			m.ID = s
			return n
		case 2:
			s, n := protowire.ConsumeString(b)
			m.LicenceKey = s
			return n
		case 3:
			v, n := protowire.ConsumeVarint(b)
			m.NatType = int32(v)
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	return m, err
}

// PunchHole is forwarded to the target so it can begin punching toward the
// requester's mangled socket address.
type PunchHole struct {
	SocketAddr  []byte
	NatType     int32
	RelayServer string
}

func (m *PunchHole) envelopeField() uint32 { return fieldPunchHole }

func (m *PunchHole) appendTo(b []byte) []byte {
	b = appendBytes(b, 1, m.SocketAddr)
	b = appendVarint(b, 2, int64(m.NatType))
	b = appendString(b, 3, m.RelayServer)
	return b
}

func parsePunchHole(data []byte) (*PunchHole, error) {
	m := &PunchHole{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			v, n := protowire.ConsumeBytes(b)
			m.SocketAddr = v
			return n
		case 2:
			v, n := protowire.ConsumeVarint(b)
			m.NatType = int32(v)
			return n
		case 3:
			s, n := protowire.ConsumeString(b)
			m.RelayServer = s
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	return m, err
}

// PunchHoleSent is the target's reply to PunchHole, echoing back toward the
// original requester.
type PunchHoleSent struct {
	SocketAddr  []byte
	ID          string
	Version     string
	NatType     int32
	RelayServer string
}

func (m *PunchHoleSent) envelopeField() uint32 { return fieldPunchHoleSent }

func (m *PunchHoleSent) appendTo(b []byte) []byte {
	b = appendBytes(b, 1, m.SocketAddr)
	b = appendString(b, 2, m.ID)
	b = appendString(b, 3, m.Version)
	b = appendVarint(b, 4, int64(m.NatType))
	b = appendString(b, 5, m.RelayServer)
	return b
}

func parsePunchHoleSent(data []byte) (*PunchHoleSent, error) {
	m := &PunchHoleSent{}
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
			v, n := protowire.ConsumeVarint(b)
			m.NatType = int32(v)
			return n
		case 5:
			s, n := protowire.ConsumeString(b)
			m.RelayServer = s
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	return m, err
}

// FetchLocalAddr asks a same-intranet target to reply with its local
// address list instead of attempting a NAT punch.
type FetchLocalAddr struct {
	SocketAddr  []byte
	RelayServer string
}

func (m *FetchLocalAddr) envelopeField() uint32 { return fieldFetchLocalAddr }

func (m *FetchLocalAddr) appendTo(b []byte) []byte {
	b = appendBytes(b, 1, m.SocketAddr)
	b = appendString(b, 2, m.RelayServer)
	return b
}

func parseFetchLocalAddr(data []byte) (*FetchLocalAddr, error) {
	m := &FetchLocalAddr{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			v, n := protowire.ConsumeBytes(b)
			m.SocketAddr = v
			return n
		case 2:
			s, n := protowire.ConsumeString(b)
			m.RelayServer = s
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	return m, err
}

// LocalAddr is the same-intranet target's reply to FetchLocalAddr.
type LocalAddr struct {
	ID          string
	Version     string
	SocketAddr  []byte
	LocalAddr   []byte
	RelayServer string
}

func (m *LocalAddr) envelopeField() uint32 { return fieldLocalAddr }

func (m *LocalAddr) appendTo(b []byte) []byte {
	b = appendString(b, 1, m.ID)
	b = appendString(b, 2, m.Version)
	b = appendBytes(b, 3, m.SocketAddr)
	b = appendBytes(b, 4, m.LocalAddr)
	b = appendString(b, 5, m.RelayServer)
	return b
}

func parseLocalAddr(data []byte) (*LocalAddr, error) {
	m := &LocalAddr{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			s, n := protowire.ConsumeString(b)
			m.ID = s
			return n
		case 2:
			s, n := protowire.ConsumeString(b)
			m.Version = s
			return n
		case 3:
			v, n := protowire.ConsumeBytes(b)
			m.SocketAddr = v
			return n
		case 4:
			v, n := protowire.ConsumeBytes(b)
			m.LocalAddr = v
			return n
		case 5:
			s, n := protowire.ConsumeString(b)
			m.RelayServer = s
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	return m, err
}

// PunchHoleResponse is delivered back to the original requester: either a
// successful punch (SocketAddr/PK/RelayServer/IsLocal set) or a Failure.
type PunchHoleResponse struct {
	SocketAddr  []byte
	PK          []byte
	RelayServer string
	NatType     int32
	Failure     PunchHoleFailure
	IsLocal     bool
}

func (m *PunchHoleResponse) envelopeField() uint32 { return fieldPunchHoleResponse }

func (m *PunchHoleResponse) appendTo(b []byte) []byte {
	b = appendBytes(b, 1, m.SocketAddr)
	b = appendBytes(b, 2, m.PK)
	b = appendString(b, 3, m.RelayServer)
	b = appendVarint(b, 4, int64(m.NatType))
	b = appendVarint(b, 5, int64(m.Failure))
	b = appendBool(b, 6, m.IsLocal)
	return b
}

func parsePunchHoleResponse(data []byte) (*PunchHoleResponse, error) {
	m := &PunchHoleResponse{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			v, n := protowire.ConsumeBytes(b)
			m.SocketAddr = v
			return n
		case 2:
			v, n := protowire.ConsumeBytes(b)
			m.PK = v
			return n
		case 3:
			s, n := protowire.ConsumeString(b)
			m.RelayServer = s
			return n
		case 4:
			v, n := protowire.ConsumeVarint(b)
			m.NatType = int32(v)
			return n
		case 5:
			v, n := protowire.ConsumeVarint(b)
			m.Failure = PunchHoleFailure(v)
			return n
		case 6:
			v, n := protowire.ConsumeVarint(b)
			m.IsLocal = v != 0
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	return m, err
}
