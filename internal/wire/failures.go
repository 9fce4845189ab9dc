package wire

// PunchHoleFailure enumerates the reasons a PunchHoleRequest can fail,
// carried inside a PunchHoleResponse rather than as a transport-level error.
type PunchHoleFailure int32

const (
	FailureNone PunchHoleFailure = iota
	FailureLicenseMismatch
	FailureOffline
	FailureIDNotExist
)

// RegisterPkResult enumerates RegisterPkResponse outcomes. TooFrequent and
// UUIDMismatch travel in the same Result field on the wire, as distinct
// values, so the client can tell the throttle from the identity check.
type RegisterPkResult int32

const (
	RegisterPkOK RegisterPkResult = iota
	RegisterPkUUIDMismatch
	RegisterPkTooFrequent
	RegisterPkNotSupport
	RegisterPkServerError
)
