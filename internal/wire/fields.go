package wire

// Field numbers for the RendezvousMessage oneof envelope. Each constant is
// assigned once and never reused, matching the stability rule a .proto file
// would enforce for a oneof's member fields.
const (
	fieldRegisterPeer         = 1
	fieldRegisterPeerResponse = 2
	fieldPunchHoleRequest     = 3
	fieldPunchHole            = 4
	fieldPunchHoleSent        = 5
	fieldPunchHoleResponse    = 6
	fieldFetchLocalAddr       = 7
	fieldLocalAddr            = 8
	fieldConfigureUpdate      = 9
	fieldConfigUpdate         = 10
	fieldRegisterPk           = 11
	fieldRegisterPkResponse   = 12
	fieldSoftwareUpdate       = 13
	fieldRequestRelay         = 14
	fieldRelayResponse        = 15
	fieldTestNatRequest       = 16
	fieldTestNatResponse      = 17
	fieldOnlineRequest        = 18
	fieldOnlineResponse       = 19
)
