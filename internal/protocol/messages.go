package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	PlayerName      string            `json:"player_name"`
	Capabilities    HelloCapabilities `json:"capabilities,omitempty"`
	Auth            *HelloAuth        `json:"auth,omitempty"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	PlayerID        string        `json:"player_id"`
	WorldID         string        `json:"world_id"`
	Tick            uint64        `json:"tick"`
	Currencies      []CurrencyRef `json:"currencies"`
}

type CurrencyRef struct {
	ID      string `json:"id"`
	Symbol  string `json:"symbol"`
	Name    string `json:"name,omitempty"`
	Primary bool   `json:"primary,omitempty"`
}

// ACT (client -> server): a batch of instant requests.
type ActMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	PlayerID        string       `json:"player_id,omitempty"`
	Instants        []InstantReq `json:"instants,omitempty"`
}

// InstantReq is a single player action. Amount-bearing fields carry
// decimal strings ("120.50") so the wire never loses precision.
type InstantReq struct {
	ID   string `json:"id"`
	Type string `json:"type"`

	// PAY
	To          string `json:"to,omitempty"`
	Amount      string `json:"amount,omitempty"`
	CurrencyID  string `json:"currency_id,omitempty"`
	Description string `json:"description,omitempty"`

	// LIST_AUCTION
	ItemID   string `json:"item_id,omitempty"`
	Count    int    `json:"count,omitempty"`
	StartBid string `json:"start_bid,omitempty"`
	Buyout   string `json:"buyout,omitempty"`

	// BID / BUYOUT / CANCEL_AUCTION
	AuctionID uint64 `json:"auction_id,omitempty"`

	// AUCTIONS (browse)
	Limit int `json:"limit,omitempty"`
}

// Instant types.
const (
	InstPay           = "PAY"
	InstBalance       = "BALANCE"
	InstListAuction   = "LIST_AUCTION"
	InstBid           = "BID"
	InstBuyout        = "BUYOUT"
	InstCancelAuction = "CANCEL_AUCTION"
	InstAuctions      = "AUCTIONS"
	InstClaim         = "CLAIM_DELIVERIES"
)

// Event is a loosely-typed server -> client payload; every event
// carries "t" (tick) and "type".
type Event map[string]interface{}

// ActionResult builds the standard response event for an instant.
func ActionResult(tick uint64, ref string, ok bool, code string, message string) Event {
	ev := Event{
		"t":    tick,
		"type": "ACTION_RESULT",
		"ref":  ref,
		"ok":   ok,
	}
	if code != "" {
		ev["code"] = code
	}
	if message != "" {
		ev["message"] = message
	}
	return ev
}
