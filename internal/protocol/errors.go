package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Rule/action layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrNoPermission  = "E_NO_PERMISSION"
	ErrNoFunds       = "E_NO_FUNDS"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrBidTooLow     = "E_BID_TOO_LOW"
	ErrNoBuyout      = "E_NO_BUYOUT"
	ErrHasBids       = "E_HAS_BIDS"
	ErrRateLimit     = "E_RATE_LIMIT"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrNoPermission:    {},
	ErrNoFunds:         {},
	ErrInvalidTarget:   {},
	ErrBidTooLow:       {},
	ErrNoBuyout:        {},
	ErrHasBids:         {},
	ErrRateLimit:       {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
