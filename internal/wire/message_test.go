package wire

import (
	"reflect"
	"testing"
)

func roundTrip(t *testing.T, m Message) Message {
	t.Helper()
	encoded := Encode(m)
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	return decoded
}

func TestRegisterPeerRoundTrip(t *testing.T) {
	in := &RegisterPeer{ID: "AAAAAA", Serial: 7}
	out := roundTrip(t, in)
	if !reflect.DeepEqual(in, out) {
		t.Errorf("RegisterPeer round trip = %+v, want %+v", out, in)
	}
}

func TestRegisterPkRoundTrip(t *testing.T) {
	in := &RegisterPk{ID: "AAAAAA", UUID: []byte{0x01, 0x02, 0x03}, PK: []byte{0xAA, 0xBB}}
	out := roundTrip(t, in)
	if !reflect.DeepEqual(in, out) {
		t.Errorf("RegisterPk round trip = %+v, want %+v", out, in)
	}
}

func TestRegisterPkResponseZeroResultRoundTrip(t *testing.T) {
	in := &RegisterPkResponse{Result: RegisterPkOK}
	out := roundTrip(t, in).(*RegisterPkResponse)
	if out.Result != RegisterPkOK {
		t.Errorf("RegisterPkResponse.Result = %v, want RegisterPkOK", out.Result)
	}
}

func TestRegisterPkResponseNonZeroResultRoundTrip(t *testing.T) {
	in := &RegisterPkResponse{Result: RegisterPkTooFrequent}
	out := roundTrip(t, in)
	if !reflect.DeepEqual(in, out) {
		t.Errorf("RegisterPkResponse round trip = %+v, want %+v", out, in)
	}
}

func TestPunchHoleRequestRoundTrip(t *testing.T) {
	in := &PunchHoleRequest{ID: "BBBBBB", LicenceKey: "K", NatType: 1}
	out := roundTrip(t, in)
	if !reflect.DeepEqual(in, out) {
		t.Errorf("PunchHoleRequest round trip = %+v, want %+v", out, in)
	}
}

func TestPunchHoleResponseWithFailureRoundTrip(t *testing.T) {
	in := &PunchHoleResponse{Failure: FailureOffline}
	out := roundTrip(t, in)
	if !reflect.DeepEqual(in, out) {
		t.Errorf("PunchHoleResponse round trip = %+v, want %+v", out, in)
	}
}

func TestPunchHoleResponseSuccessRoundTrip(t *testing.T) {
	in := &PunchHoleResponse{
		SocketAddr:  []byte{1, 2, 3, 4},
		PK:          []byte{9, 9},
		RelayServer: "relay1",
		IsLocal:     true,
	}
	out := roundTrip(t, in)
	if !reflect.DeepEqual(in, out) {
		t.Errorf("PunchHoleResponse round trip = %+v, want %+v", out, in)
	}
}

func TestRequestRelayRoundTrip(t *testing.T) {
	in := &RequestRelay{ID: "A", UUID: "tok-1", LicenceKey: "K", SocketAddr: []byte{1, 2, 3, 4}}
	out := roundTrip(t, in)
	if !reflect.DeepEqual(in, out) {
		t.Errorf("RequestRelay round trip = %+v, want %+v", out, in)
	}
}

func TestOnlineRequestResponseRoundTrip(t *testing.T) {
	in := &OnlineRequest{Peers: []string{"AAAAAA", "BBBBBB", "CCCCCC"}}
	out := roundTrip(t, in)
	if !reflect.DeepEqual(in, out) {
		t.Errorf("OnlineRequest round trip = %+v, want %+v", out, in)
	}

	resp := &OnlineResponse{States: []byte{0b10100000}}
	outResp := roundTrip(t, resp)
	if !reflect.DeepEqual(resp, outResp) {
		t.Errorf("OnlineResponse round trip = %+v, want %+v", outResp, resp)
	}
}

func TestConfigureUpdateRoundTrip(t *testing.T) {
	in := &ConfigureUpdate{Serial: 3, RendezvousServers: []string{"r1:21116", "r2:21116"}}
	out := roundTrip(t, in)
	if !reflect.DeepEqual(in, out) {
		t.Errorf("ConfigureUpdate round trip = %+v, want %+v", out, in)
	}
}

func TestTestNatResponseWithNestedConfigUpdate(t *testing.T) {
	in := &TestNatResponse{
		Port: 50001,
		Cu:   &ConfigUpdate{Serial: 2, RendezvousServers: []string{"r1:21116"}},
	}
	out := roundTrip(t, in)
	if !reflect.DeepEqual(in, out) {
		t.Errorf("TestNatResponse round trip = %+v, want %+v", out, in)
	}
}

func TestTestNatResponseWithoutNestedConfigUpdate(t *testing.T) {
	in := &TestNatResponse{Port: 50001}
	out := roundTrip(t, in).(*TestNatResponse)
	if out.Port != in.Port || out.Cu != nil {
		t.Errorf("TestNatResponse round trip = %+v, want %+v", out, in)
	}
}

func TestDecodeUnknownFieldFails(t *testing.T) {
	if _, err := Decode([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x7F}); err == nil {
		t.Fatal("Decode() with an unknown envelope field should fail")
	}
}

func TestDecodeEmptyFails(t *testing.T) {
	if _, err := Decode(nil); err == nil {
		t.Fatal("Decode(nil) should fail")
	}
}
