package world

import (
	"strings"

	"github.com/shopspring/decimal"

	"stonevault.gg/internal/auction"
	"stonevault.gg/internal/econ"
	"stonevault.gg/internal/protocol"
)

func (w *World) applyInstant(playerID string, inst protocol.InstantReq, tick uint64) {
	switch inst.Type {
	case protocol.InstPay:
		w.handlePay(playerID, inst, tick)
	case protocol.InstBalance:
		w.handleBalance(playerID, inst, tick)
	case protocol.InstListAuction:
		w.handleListAuction(playerID, inst, tick)
	case protocol.InstBid:
		w.handleBid(playerID, inst, tick)
	case protocol.InstBuyout:
		w.handleBuyout(playerID, inst, tick)
	case protocol.InstCancelAuction:
		w.handleCancelAuction(playerID, inst, tick)
	case protocol.InstAuctions:
		w.handleAuctions(playerID, inst, tick)
	case protocol.InstClaim:
		w.handleClaim(playerID, inst, tick)
	default:
		w.notify(playerID, protocol.ActionResult(tick, inst.ID, false, protocol.ErrBadRequest, "unknown instant "+inst.Type))
	}
}

// currencyFor resolves the request currency, defaulting to the
// primary.
func (w *World) currencyFor(id string) (econ.Currency, bool) {
	cat := w.ledger.Catalog()
	if id == "" {
		return cat.Primary(), true
	}
	if _, ok := cat.Lookup(econ.Currency(id)); !ok {
		return "", false
	}
	return econ.Currency(id), true
}

func parseAmount(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func (w *World) handlePay(playerID string, inst protocol.InstantReq, tick uint64) {
	to := strings.TrimSpace(inst.To)
	amount, ok := parseAmount(inst.Amount)
	if !ok || to == "" {
		w.notify(playerID, protocol.ActionResult(tick, inst.ID, false, protocol.ErrBadRequest, "bad recipient or amount"))
		return
	}
	if to == playerID || !amount.IsPositive() {
		w.notify(playerID, protocol.ActionResult(tick, inst.ID, false, protocol.ErrBadRequest, "cannot pay yourself or non-positive amounts"))
		return
	}
	cur, ok := w.currencyFor(inst.CurrencyID)
	if !ok {
		w.notify(playerID, protocol.ActionResult(tick, inst.ID, false, protocol.ErrBadRequest, "unknown currency "+inst.CurrencyID))
		return
	}
	desc := inst.Description
	if desc == "" {
		desc = "player payment"
	}
	if !w.ledger.Transfer(playerID, to, cur, amount, econ.TxPay, desc) {
		w.notify(playerID, protocol.ActionResult(tick, inst.ID, false, protocol.ErrNoFunds, "insufficient funds"))
		return
	}
	w.notify(to, protocol.Event{
		"t":        tick,
		"type":     "PAYMENT",
		"from":     playerID,
		"amount":   amount.String(),
		"currency": string(cur),
	})
	w.notify(playerID, protocol.ActionResult(tick, inst.ID, true, "", "paid "+w.ledger.Format(cur, amount)))
}

func (w *World) handleBalance(playerID string, inst protocol.InstantReq, tick uint64) {
	balances := map[string]string{}
	formatted := map[string]string{}
	for _, def := range w.ledger.Catalog().All() {
		v := w.ledger.Balance(playerID, def.ID)
		balances[string(def.ID)] = v.String()
		formatted[string(def.ID)] = w.ledger.Format(def.ID, v)
	}
	w.notify(playerID, protocol.Event{
		"t":         tick,
		"type":      "BALANCE",
		"ref":       inst.ID,
		"balances":  balances,
		"formatted": formatted,
	})
}

func (w *World) handleListAuction(playerID string, inst protocol.InstantReq, tick uint64) {
	item := strings.TrimSpace(inst.ItemID)
	startBid, ok := parseAmount(inst.StartBid)
	if item == "" || inst.Count <= 0 || !ok || !startBid.IsPositive() {
		w.notify(playerID, protocol.ActionResult(tick, inst.ID, false, protocol.ErrBadRequest, "bad item or starting bid"))
		return
	}
	var buyout *decimal.Decimal
	if inst.Buyout != "" {
		b, ok := parseAmount(inst.Buyout)
		if !ok {
			w.notify(playerID, protocol.ActionResult(tick, inst.ID, false, protocol.ErrBadRequest, "bad buyout"))
			return
		}
		buyout = &b
	}

	// Take the items out of the inventory before listing; hand them
	// back if the listing is rejected.
	stack := auction.ItemStack{Item: item, Count: inst.Count}
	if !w.takeItems(playerID, stack) {
		w.notify(playerID, protocol.ActionResult(tick, inst.ID, false, protocol.ErrBadRequest, "you do not have those items"))
		return
	}
	id, res := w.market.Create(playerID, stack, startBid, buyout, tick)
	if res != auction.OK {
		w.returnItems(playerID, stack)
		ok, code, msg := marketOutcome(res)
		w.notify(playerID, protocol.ActionResult(tick, inst.ID, ok, code, msg))
		return
	}
	fee := w.market.ListingFee(startBid)
	w.notify(playerID, protocol.Event{
		"t":          tick,
		"type":       "ACTION_RESULT",
		"ref":        inst.ID,
		"ok":         true,
		"auction_id": id,
		"fee":        fee.String(),
	})
}

func (w *World) takeItems(playerID string, it auction.ItemStack) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := w.players[playerID]
	if p == nil || p.Inventory[it.Item] < it.Count {
		return false
	}
	p.Inventory[it.Item] -= it.Count
	if p.Inventory[it.Item] == 0 {
		delete(p.Inventory, it.Item)
	}
	return true
}

func (w *World) returnItems(playerID string, it auction.ItemStack) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p := w.players[playerID]; p != nil {
		p.Inventory[it.Item] += it.Count
	}
}

func (w *World) handleBid(playerID string, inst protocol.InstantReq, tick uint64) {
	amount, ok := parseAmount(inst.Amount)
	if !ok || inst.AuctionID == 0 {
		w.notify(playerID, protocol.ActionResult(tick, inst.ID, false, protocol.ErrBadRequest, "bad auction id or amount"))
		return
	}
	res := w.market.Bid(playerID, inst.AuctionID, amount)
	ok, code, msg := marketOutcome(res)
	w.notify(playerID, protocol.ActionResult(tick, inst.ID, ok, code, msg))
}

func (w *World) handleBuyout(playerID string, inst protocol.InstantReq, tick uint64) {
	if inst.AuctionID == 0 {
		w.notify(playerID, protocol.ActionResult(tick, inst.ID, false, protocol.ErrBadRequest, "bad auction id"))
		return
	}
	res := w.market.BuyNow(playerID, inst.AuctionID, tick)
	ok, code, msg := marketOutcome(res)
	w.notify(playerID, protocol.ActionResult(tick, inst.ID, ok, code, msg))
}

func (w *World) handleCancelAuction(playerID string, inst protocol.InstantReq, tick uint64) {
	if inst.AuctionID == 0 {
		w.notify(playerID, protocol.ActionResult(tick, inst.ID, false, protocol.ErrBadRequest, "bad auction id"))
		return
	}
	res := w.market.Cancel(playerID, inst.AuctionID, false, tick)
	ok, code, msg := marketOutcome(res)
	w.notify(playerID, protocol.ActionResult(tick, inst.ID, ok, code, msg))
}

func (w *World) handleAuctions(playerID string, inst protocol.InstantReq, tick uint64) {
	listings := w.market.Active()
	limit := inst.Limit
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	if len(listings) > limit {
		listings = listings[:limit]
	}
	rows := make([]protocol.Event, 0, len(listings))
	for _, l := range listings {
		row := protocol.Event{
			"id":          l.ID,
			"seller":      l.Seller,
			"item":        l.Item.Item,
			"count":       l.Item.Count,
			"current_bid": l.CurrentBid.String(),
			"end_tick":    l.EndTick,
		}
		if l.Bidder != "" {
			row["bidder"] = l.Bidder
		}
		if l.HasBuyout {
			row["buyout"] = l.Buyout.String()
		}
		rows = append(rows, row)
	}
	w.notify(playerID, protocol.Event{
		"t":        tick,
		"type":     "AUCTIONS",
		"ref":      inst.ID,
		"auctions": rows,
	})
}

func (w *World) handleClaim(playerID string, inst protocol.InstantReq, tick uint64) {
	n := w.market.ClaimDeliveries(playerID)
	w.notify(playerID, protocol.Event{
		"t":         tick,
		"type":      "ACTION_RESULT",
		"ref":       inst.ID,
		"ok":        true,
		"delivered": n,
	})
}

// marketOutcome maps an engine result to the wire code.
func marketOutcome(res auction.Result) (ok bool, code string, msg string) {
	switch res {
	case auction.OK:
		return true, "", "ok"
	case auction.Canceled:
		return true, "", "canceled"
	case auction.ErrNotFound:
		return false, protocol.ErrInvalidTarget, "auction not found"
	case auction.ErrTooLow:
		return false, protocol.ErrBidTooLow, "bid too low"
	case auction.ErrNoFunds:
		return false, protocol.ErrNoFunds, "insufficient funds"
	case auction.ErrNotAllowed:
		return false, protocol.ErrNoPermission, "not allowed"
	case auction.ErrNoBuyout:
		return false, protocol.ErrNoBuyout, "auction has no buyout"
	case auction.ErrHasBids:
		return false, protocol.ErrHasBids, "auction already has bids"
	default:
		return false, protocol.ErrInternal, string(res)
	}
}
