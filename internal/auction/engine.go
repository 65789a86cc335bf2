package auction

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"stonevault.gg/internal/econ"
	"stonevault.gg/internal/persistence/snapshot"
)

// Result is the caller-visible outcome of an engine operation.
type Result string

const (
	OK       Result = "OK"
	Canceled Result = "CANCELED"

	ErrNotFound   Result = "NOT_FOUND"
	ErrTooLow     Result = "TOO_LOW"
	ErrNoFunds    Result = "INSUFFICIENT_FUNDS"
	ErrNotAllowed Result = "NOT_ALLOWED"
	ErrNoBuyout   Result = "NO_BUYOUT"
	ErrHasBids    Result = "HAS_BIDS"
)

// ItemStack is the opaque transportable unit an auction sells.
type ItemStack struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

// Courier is the host's delivery capability. Deliver returns false
// when the recipient cannot receive right now (offline); Fallback must
// always place the item somewhere (e.g. drop it at the recipient's
// stash) and is only used while draining claimed deliveries.
type Courier interface {
	Deliver(recipient string, it ItemStack) bool
	Fallback(recipient string, it ItemStack)
}

// Settlement describes a terminal auction transition for observers.
type Settlement struct {
	AuctionID uint64
	Tick      uint64
	Seller    string
	Winner    string
	Item      ItemStack
	Price     decimal.Decimal
	Outcome   string // SOLD, BUYOUT, EXPIRED, CANCELED
}

// SettlementSink receives settlements; must not block.
type SettlementSink interface {
	RecordSettlement(s Settlement)
}

type Config struct {
	Currency           econ.Currency
	ListingFeePermille int
	DurationTicks      uint64
}

func (c *Config) applyDefaults() {
	if c.ListingFeePermille <= 0 {
		c.ListingFeePermille = 50
	}
	if c.DurationTicks == 0 {
		c.DurationTicks = 18000
	}
}

// Auction is owned by the engine. Bids, buyouts, cancels and sweeps on
// the same id serialize on mu; settled flips exactly once, under mu,
// and afterwards every operation reports NOT_FOUND.
type Auction struct {
	mu      sync.Mutex
	settled bool

	ID          uint64
	Seller      string
	Item        ItemStack
	StartBid    decimal.Decimal
	CurrentBid  decimal.Decimal
	Bidder      string
	Buyout      decimal.Decimal
	HasBuyout   bool
	CreatedTick uint64
	EndTick     uint64
}

// Engine manages active auctions and pending deliveries. Safe for
// concurrent use: mu guards the active map and id counter, each
// auction carries its own lock, and the delivery queue has its own.
// Lock order: an auction's mu is never acquired while holding the
// engine mu for writing; settlement takes auction mu first, then the
// engine mu to remove the entry.
type Engine struct {
	cfg     Config
	ledger  *econ.Ledger
	courier Courier
	sink    SettlementSink

	mu     sync.RWMutex
	active map[uint64]*Auction
	nextID uint64

	queue deliveryQueue
}

func NewEngine(cfg Config, ledger *econ.Ledger, courier Courier) *Engine {
	cfg.applyDefaults()
	if cfg.Currency == "" {
		cfg.Currency = ledger.Catalog().Primary()
	}
	return &Engine{
		cfg:     cfg,
		ledger:  ledger,
		courier: courier,
		active:  make(map[uint64]*Auction),
		queue:   newDeliveryQueue(),
	}
}

// SetSink wires a settlement observer. Call before the engine is
// shared.
func (e *Engine) SetSink(s SettlementSink) { e.sink = s }

// SetCourier wires the host's delivery capability; the engine and the
// world reference each other, so construction passes nil and the
// composition root closes the loop before anything runs.
func (e *Engine) SetCourier(c Courier) { e.courier = c }

func (e *Engine) Currency() econ.Currency { return e.cfg.Currency }

// ListingFee computes the non-refundable creation fee for a starting
// bid.
func (e *Engine) ListingFee(startBid decimal.Decimal) decimal.Decimal {
	return econ.Clamp2(startBid.Mul(decimal.NewFromInt(int64(e.cfg.ListingFeePermille))).Div(decimal.NewFromInt(1000)))
}

// Create lists an item. The fee is charged up front and kept whatever
// happens to the auction later.
func (e *Engine) Create(seller string, item ItemStack, startBid decimal.Decimal, buyout *decimal.Decimal, nowTick uint64) (uint64, Result) {
	startBid = econ.Clamp2(startBid)
	if item.Item == "" || item.Count <= 0 || !startBid.IsPositive() {
		return 0, ErrTooLow
	}
	var buy decimal.Decimal
	hasBuyout := false
	if buyout != nil {
		buy = econ.Clamp2(*buyout)
		if buy.LessThan(startBid) {
			return 0, ErrNotAllowed
		}
		hasBuyout = true
	}
	if !e.ledger.Charge(seller, e.cfg.Currency, e.ListingFee(startBid), econ.TxAuctionFee, "auction listing fee") {
		return 0, ErrNoFunds
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	a := &Auction{
		ID:          e.nextID,
		Seller:      seller,
		Item:        item,
		StartBid:    startBid,
		CurrentBid:  startBid,
		Buyout:      buy,
		HasBuyout:   hasBuyout,
		CreatedTick: nowTick,
		EndTick:     nowTick + e.cfg.DurationTicks,
	}
	e.active[a.ID] = a
	return a.ID, OK
}

func (e *Engine) get(id uint64) *Auction {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active[id]
}

// Bid escrows the new bidder's funds before releasing the previous
// bidder's: if the charge fails nothing changes, and escrow is never
// released without a replacement locked in.
func (e *Engine) Bid(bidder string, id uint64, amount decimal.Decimal) Result {
	a := e.get(id)
	if a == nil {
		return ErrNotFound
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.settled {
		return ErrNotFound
	}
	if bidder == a.Seller {
		return ErrNotAllowed
	}
	amount = econ.Clamp2(amount)
	if amount.LessThanOrEqual(a.CurrentBid) {
		return ErrTooLow
	}
	if !e.ledger.Charge(bidder, e.cfg.Currency, amount, econ.TxAuctionBid, "auction bid") {
		return ErrNoFunds
	}
	if a.Bidder != "" {
		e.ledger.Reward(a.Bidder, e.cfg.Currency, a.CurrentBid, econ.TxAuctionRefund, "outbid refund")
	}
	a.CurrentBid = amount
	a.Bidder = bidder
	return OK
}

// BuyNow settles immediately at the buyout price. The charge comes
// first; the instant it succeeds the auction is marked settled and no
// other call can touch it. The current bidder's escrow is refunded
// even when that bidder is the buyer itself, so the buyer's net spend
// is exactly the buyout price.
func (e *Engine) BuyNow(buyer string, id uint64, nowTick uint64) Result {
	a := e.get(id)
	if a == nil {
		return ErrNotFound
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.settled {
		return ErrNotFound
	}
	if !a.HasBuyout {
		return ErrNoBuyout
	}
	if buyer == a.Seller {
		return ErrNotAllowed
	}
	if !e.ledger.Charge(buyer, e.cfg.Currency, a.Buyout, econ.TxAuctionBid, "auction buyout") {
		return ErrNoFunds
	}
	a.settled = true
	if a.Bidder != "" {
		e.ledger.Reward(a.Bidder, e.cfg.Currency, a.CurrentBid, econ.TxAuctionRefund, "outbid refund")
	}
	e.ledger.Reward(a.Seller, e.cfg.Currency, a.Buyout, econ.TxAuctionPayout, "auction sold (buyout)")
	e.deliver(buyer, a.Item)
	e.remove(a.ID)
	e.settle(Settlement{
		AuctionID: a.ID, Tick: nowTick, Seller: a.Seller, Winner: buyer,
		Item: a.Item, Price: a.Buyout, Outcome: "BUYOUT",
	})
	return OK
}

// Cancel returns the item to the seller. Only the seller (or an admin
// override) may cancel, only before any bid; the listing fee stays
// charged.
func (e *Engine) Cancel(requester string, id uint64, allowAdmin bool, nowTick uint64) Result {
	a := e.get(id)
	if a == nil {
		return ErrNotFound
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.settled {
		return ErrNotFound
	}
	if requester != a.Seller && !allowAdmin {
		return ErrNotAllowed
	}
	if a.Bidder != "" {
		return ErrHasBids
	}
	a.settled = true
	e.deliver(a.Seller, a.Item)
	e.remove(a.ID)
	e.settle(Settlement{
		AuctionID: a.ID, Tick: nowTick, Seller: a.Seller,
		Item: a.Item, Price: decimal.Zero, Outcome: "CANCELED",
	})
	return Canceled
}

// SweepExpired settles every active auction whose end tick has passed.
// Settlement removes the auction from the active set first, so
// sweeping an already-settled auction is a no-op. Returns the number
// of auctions settled.
func (e *Engine) SweepExpired(nowTick uint64) int {
	e.mu.RLock()
	candidates := make([]*Auction, 0, 8)
	for _, a := range e.active {
		candidates = append(candidates, a)
	}
	e.mu.RUnlock()

	settled := 0
	for _, a := range candidates {
		a.mu.Lock()
		if a.settled || a.EndTick > nowTick {
			a.mu.Unlock()
			continue
		}
		a.settled = true
		if a.Bidder != "" {
			// Winner's funds are already escrowed; pay the seller and
			// hand over the item.
			e.ledger.Reward(a.Seller, e.cfg.Currency, a.CurrentBid, econ.TxAuctionPayout, "auction sold")
			e.deliver(a.Bidder, a.Item)
			e.remove(a.ID)
			e.settle(Settlement{
				AuctionID: a.ID, Tick: nowTick, Seller: a.Seller, Winner: a.Bidder,
				Item: a.Item, Price: a.CurrentBid, Outcome: "SOLD",
			})
		} else {
			e.deliver(a.Seller, a.Item)
			e.remove(a.ID)
			e.settle(Settlement{
				AuctionID: a.ID, Tick: nowTick, Seller: a.Seller,
				Item: a.Item, Price: decimal.Zero, Outcome: "EXPIRED",
			})
		}
		a.mu.Unlock()
		settled++
	}
	return settled
}

func (e *Engine) remove(id uint64) {
	e.mu.Lock()
	delete(e.active, id)
	e.mu.Unlock()
}

func (e *Engine) settle(s Settlement) {
	if e.sink != nil {
		e.sink.RecordSettlement(s)
	}
}

// deliver tries immediate delivery and falls back to the pending
// queue. Items are never dropped: either the courier takes them now or
// a later ClaimDeliveries places them.
func (e *Engine) deliver(recipient string, it ItemStack) {
	if e.courier != nil && e.courier.Deliver(recipient, it) {
		return
	}
	e.queue.push(recipient, it)
}

// ClaimDeliveries drains every queued item for the recipient in one
// atomic take, then places each one: normal delivery first, the
// courier's unconditional fallback otherwise. Once dequeued, always
// placed somewhere.
func (e *Engine) ClaimDeliveries(recipient string) int {
	if e.courier == nil {
		return 0
	}
	items := e.queue.drain(recipient)
	for _, it := range items {
		if !e.courier.Deliver(recipient, it) {
			e.courier.Fallback(recipient, it)
		}
	}
	return len(items)
}

// PendingCount reports queued deliveries for a recipient.
func (e *Engine) PendingCount(recipient string) int {
	return e.queue.count(recipient)
}

// Listing is a read-only copy of one active auction.
type Listing struct {
	ID         uint64          `json:"id"`
	Seller     string          `json:"seller"`
	Item       ItemStack       `json:"item"`
	CurrentBid decimal.Decimal `json:"current_bid"`
	Bidder     string          `json:"bidder,omitempty"`
	Buyout     decimal.Decimal `json:"buyout,omitempty"`
	HasBuyout  bool            `json:"has_buyout"`
	EndTick    uint64          `json:"end_tick"`
}

// Active returns a consistent copy of each active auction, ordered by
// id.
func (e *Engine) Active() []Listing {
	e.mu.RLock()
	ptrs := make([]*Auction, 0, len(e.active))
	for _, a := range e.active {
		ptrs = append(ptrs, a)
	}
	e.mu.RUnlock()

	out := make([]Listing, 0, len(ptrs))
	for _, a := range ptrs {
		a.mu.Lock()
		if !a.settled {
			out = append(out, Listing{
				ID: a.ID, Seller: a.Seller, Item: a.Item,
				CurrentBid: a.CurrentBid, Bidder: a.Bidder,
				Buyout: a.Buyout, HasBuyout: a.HasBuyout, EndTick: a.EndTick,
			})
		}
		a.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Export serializes the engine for the auctions.json snapshot.
func (e *Engine) Export(tick uint64) snapshot.MarketDocV1 {
	doc := snapshot.MarketDocV1{Version: 1, Tick: tick, Pending: e.queue.export()}

	e.mu.RLock()
	ptrs := make([]*Auction, 0, len(e.active))
	for _, a := range e.active {
		ptrs = append(ptrs, a)
	}
	doc.NextID = e.nextID
	e.mu.RUnlock()

	for _, a := range ptrs {
		a.mu.Lock()
		if !a.settled {
			av := snapshot.AuctionV1{
				ID:          a.ID,
				Seller:      a.Seller,
				Item:        a.Item.Item,
				Count:       a.Item.Count,
				StartBid:    a.StartBid.String(),
				CurrentBid:  a.CurrentBid.String(),
				Bidder:      a.Bidder,
				CreatedTick: a.CreatedTick,
				EndTick:     a.EndTick,
			}
			if a.HasBuyout {
				av.Buyout = a.Buyout.String()
			}
			doc.Auctions = append(doc.Auctions, av)
		}
		a.mu.Unlock()
	}
	sort.Slice(doc.Auctions, func(i, j int) bool { return doc.Auctions[i].ID < doc.Auctions[j].ID })
	return doc
}

// Import replaces engine state from a snapshot document. Malformed
// entries are dropped; the id counter never moves backwards so ids are
// not reused even across a partial restore.
func (e *Engine) Import(doc snapshot.MarketDocV1) {
	e.queue.replace(doc.Pending)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = make(map[uint64]*Auction, len(doc.Auctions))
	if doc.NextID > e.nextID {
		e.nextID = doc.NextID
	}
	for _, av := range doc.Auctions {
		start, err := decimal.NewFromString(av.StartBid)
		if err != nil || !start.IsPositive() {
			continue
		}
		cur, err := decimal.NewFromString(av.CurrentBid)
		if err != nil || cur.LessThan(start) {
			continue
		}
		a := &Auction{
			ID:          av.ID,
			Seller:      av.Seller,
			Item:        ItemStack{Item: av.Item, Count: av.Count},
			StartBid:    start,
			CurrentBid:  cur,
			Bidder:      av.Bidder,
			CreatedTick: av.CreatedTick,
			EndTick:     av.EndTick,
		}
		if av.Buyout != "" {
			if buy, err := decimal.NewFromString(av.Buyout); err == nil && !buy.LessThan(start) {
				a.Buyout = buy
				a.HasBuyout = true
			}
		}
		e.active[a.ID] = a
		if a.ID > e.nextID {
			e.nextID = a.ID
		}
	}
}
