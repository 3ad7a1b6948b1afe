package notary

import "errors"

// Error taxonomy for the Notary Engine (C8).
var (
	// ErrGovernanceNotFound covers governance-not-found, subject-not-found
	// and invalid-id responses from the governance view.
	ErrGovernanceNotFound = errors.New("notary: governance not found")
	// ErrGovernanceVersionTooHigh is returned when the request claims a
	// governance version the notary cannot yet see.
	ErrGovernanceVersionTooHigh = errors.New("notary: governance version too high")
	// ErrEventSnLowerThanLastSigned is returned when the request's sn is
	// strictly lower than the register's last_sn for this key.
	ErrEventSnLowerThanLastSigned = errors.New("notary: event sn lower than last signed")
	// ErrDifferentHashForEvent is returned when the request's sn matches
	// the register's last_sn but the event hash differs.
	ErrDifferentHashForEvent = errors.New("notary: different hash for event at same sn")
	// ErrSerializingError covers a failure serializing the signed payload.
	ErrSerializingError = errors.New("notary: serializing error")
	// ErrChannelError covers a closed/unavailable governance-view channel.
	ErrChannelError = errors.New("notary: channel error")
	// ErrGovApiUnexpectedResponse covers any other ungraceful governance
	// view failure.
	ErrGovApiUnexpectedResponse = errors.New("notary: unexpected governance api response")
	// ErrProtocolErrors covers signer failures.
	ErrProtocolErrors = errors.New("notary: protocol error")
)
