package derror

import "errors"

// Code is the wire-visible classification of a purchase failure. Codes end up
// in published failure actions and in the projector's outcome, so they are
// stable strings rather than error values.
type Code string

const (
	CodeUnknown     Code = "UNKNOWN_ERROR"
	CodeNotSignedIn Code = "NOT_SIGNED_IN"
	CodeNetwork     Code = "NETWORK_ERROR"
	CodeServer      Code = "SERVER_ERROR"
	CodeConnection  Code = "CONNECTION_ERROR"

	// Not failures of a call; classification branches of a successful
	// server response.
	CodeAlreadyApplied                Code = "PURCHASES_ALREADY_APPLIED"
	CodeAlreadyAppliedToOtherAccounts Code = "PURCHASES_ALREADY_APPLIED_TO_OTHER_ACCOUNTS"
)

var (
	ErrNotSignedIn      = errors.New("no signed-in session")
	ErrServer           = errors.New("entitlement server error")
	ErrConnectionInited = errors.New("store connection already initialized")
	ErrChannelClosed    = errors.New("purchase event channel closed")
	ErrInvalidArgument  = errors.New("invalid argument")
)
