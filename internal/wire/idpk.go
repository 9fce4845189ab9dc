package wire

import "google.golang.org/protobuf/encoding/protowire"

// IdPk is the small payload signed into PunchHoleResponse/RelayResponse
// pk fields per §4.3: a peer's id bound to its registered public key, so the
// receiving side can be sure the pk it just got actually belongs to the id
// it asked for and not a different peer behind the same rendezvous server.
type IdPk struct {
	ID string
	PK []byte
}

// Encode serializes the bundle; it has no envelope field number of its own
// since it only ever appears embedded inside a signed byte blob, never as a
// top-level Message.
func (m IdPk) Encode() []byte {
	var b []byte
	b = appendString(b, 1, m.ID)
	b = appendBytes(b, 2, m.PK)
	return b
}

func ParseIdPk(data []byte) (IdPk, error) {
	var m IdPk
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			s, n := protowire.ConsumeString(b)
			m.ID = s
			return n
		case 2:
			v, n := protowire.ConsumeBytes(b)
			m.PK = v
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	return m, err
}
