package wire

import "google.golang.org/protobuf/encoding/protowire"

// RegisterPeer is sent by a peer to announce its current socket address.
type RegisterPeer struct {
	ID     string
	Serial int32
}

func (m *RegisterPeer) envelopeField() uint32 { return fieldRegisterPeer }

func (m *RegisterPeer) appendTo(b []byte) []byte {
	b = appendString(b, 1, m.ID)
	b = appendVarint(b, 2, int64(m.Serial))
	return b
}

func parseRegisterPeer(data []byte) (*RegisterPeer, error) {
	m := &RegisterPeer{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			s, n := protowire.ConsumeString(b)
			m.ID = s
			return n
		case 2:
			v, n := protowire.ConsumeVarint(b)
			m.Serial = int32(v)
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	return m, err
}

// RegisterPeerResponse tells the peer whether it must also RegisterPk.
type RegisterPeerResponse struct {
	RequestPk bool
}

func (m *RegisterPeerResponse) envelopeField() uint32 { return fieldRegisterPeerResponse }

func (m *RegisterPeerResponse) appendTo(b []byte) []byte {
	return appendBool(b, 1, m.RequestPk)
}

func parseRegisterPeerResponse(data []byte) (*RegisterPeerResponse, error) {
	m := &RegisterPeerResponse{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(b)
			m.RequestPk = v != 0
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	return m, err
}

// RegisterPk registers (or re-registers) a peer's public key.
type RegisterPk struct {
	ID   string
	UUID []byte
	PK   []byte
}

func (m *RegisterPk) envelopeField() uint32 { return fieldRegisterPk }

func (m *RegisterPk) appendTo(b []byte) []byte {
	b = appendString(b, 1, m.ID)
	b = appendBytes(b, 2, m.UUID)
	b = appendBytes(b, 3, m.PK)
	return b
}

func parseRegisterPk(data []byte) (*RegisterPk, error) {
	m := &RegisterPk{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			s, n := protowire.ConsumeString(b)
			m.ID = s
			return n
		case 2:
			v, n := protowire.ConsumeBytes(b)
			m.UUID = v
			return n
		case 3:
			v, n := protowire.ConsumeBytes(b)
			m.PK = v
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	return m, err
}

// RegisterPkResponse carries the outcome of a RegisterPk attempt.
type RegisterPkResponse struct {
	Result RegisterPkResult
}

func (m *RegisterPkResponse) envelopeField() uint32 { return fieldRegisterPkResponse }

func (m *RegisterPkResponse) appendTo(b []byte) []byte {
	return appendVarint(b, 1, int64(m.Result))
}

func parseRegisterPkResponse(data []byte) (*RegisterPkResponse, error) {
	m := &RegisterPkResponse{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(b)
			m.Result = RegisterPkResult(v)
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	return m, err
}
