package wire

import "google.golang.org/protobuf/encoding/protowire"

// ConfigureUpdate is a loopback-only operator request that pushes a new
// rendezvous server list out to all connected clients.
type ConfigureUpdate struct {
	Serial            int32
	RendezvousServers []string
}

func (m *ConfigureUpdate) envelopeField() uint32 { return fieldConfigureUpdate }

func (m *ConfigureUpdate) appendTo(b []byte) []byte {
	b = appendVarint(b, 1, int64(m.Serial))
	b = appendStrings(b, 2, m.RendezvousServers)
	return b
}

func parseConfigureUpdate(data []byte) (*ConfigureUpdate, error) {
	m := &ConfigureUpdate{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(b)
			m.Serial = int32(v)
			return n
		case 2:
			s, n := protowire.ConsumeString(b)
			m.RendezvousServers = append(m.RendezvousServers, s)
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	return m, err
}

// ConfigUpdate is the outbound counterpart sent to clients whose cached
// Serial trails the server's.
type ConfigUpdate struct {
	Serial            int32
	RendezvousServers []string
}

func (m *ConfigUpdate) envelopeField() uint32 { return fieldConfigUpdate }

func (m *ConfigUpdate) appendTo(b []byte) []byte {
	b = appendVarint(b, 1, int64(m.Serial))
	b = appendStrings(b, 2, m.RendezvousServers)
	return b
}

func parseConfigUpdate(data []byte) (*ConfigUpdate, error) {
	m := &ConfigUpdate{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(b)
			m.Serial = int32(v)
			return n
		case 2:
			s, n := protowire.ConsumeString(b)
			m.RendezvousServers = append(m.RendezvousServers, s)
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	return m, err
}

// SoftwareUpdate probes (when sent by a client, URL is empty) or answers
// (when sent by the server, URL points at the latest release) the current
// software-update location.
type SoftwareUpdate struct {
	URL string
}

func (m *SoftwareUpdate) envelopeField() uint32 { return fieldSoftwareUpdate }

func (m *SoftwareUpdate) appendTo(b []byte) []byte {
	return appendString(b, 1, m.URL)
}

func parseSoftwareUpdate(data []byte) (*SoftwareUpdate, error) {
	m := &SoftwareUpdate{}
	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			s, n := protowire.ConsumeString(b)
			m.URL = s
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	return m, err
}
