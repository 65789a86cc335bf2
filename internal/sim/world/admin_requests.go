package world

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"stonevault.gg/internal/econ"
	"stonevault.gg/internal/protocol"
)

type adjustReq struct {
	Account  string
	Currency econ.Currency
	Delta    decimal.Decimal
	Reason   string
	Resp     chan adjustResp
}

type adjustResp struct {
	Balance decimal.Decimal
	Err     string
}

// RequestAdjust asks the world loop to apply an admin balance
// adjustment and notify the player if online. Safe to call from other
// goroutines (HTTP handlers); the context bounds the wait so the
// caller fails rather than hanging.
func (w *World) RequestAdjust(ctx context.Context, account string, cur econ.Currency, delta decimal.Decimal, reason string) (decimal.Decimal, error) {
	resp := make(chan adjustResp, 1)
	req := adjustReq{Account: account, Currency: cur, Delta: delta, Reason: reason, Resp: resp}

	select {
	case w.adjust <- req:
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	}

	select {
	case r := <-resp:
		if r.Err != "" {
			return r.Balance, errors.New(r.Err)
		}
		return r.Balance, nil
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	}
}

func (w *World) handleAdjustRequests(reqs []adjustReq) {
	for _, req := range reqs {
		resp := w.applyAdjust(req)
		if req.Resp == nil {
			continue
		}
		select {
		case req.Resp <- resp:
		default:
			// Client timed out; don't block the loop.
		}
	}
}

func (w *World) applyAdjust(req adjustReq) adjustResp {
	if _, ok := w.ledger.Catalog().Lookup(req.Currency); !ok {
		return adjustResp{Err: "unknown currency " + string(req.Currency)}
	}
	if req.Account == "" || req.Delta.IsZero() {
		return adjustResp{Err: "empty account or zero delta"}
	}
	reason := req.Reason
	if reason == "" {
		reason = "admin adjustment"
	}

	if req.Delta.IsPositive() {
		w.ledger.Reward(req.Account, req.Currency, req.Delta, econ.TxAdminAdjust, reason)
	} else if !w.ledger.Charge(req.Account, req.Currency, req.Delta.Neg(), econ.TxAdminAdjust, reason) {
		return adjustResp{
			Balance: w.ledger.Balance(req.Account, req.Currency),
			Err:     "insufficient funds",
		}
	}

	bal := w.ledger.Balance(req.Account, req.Currency)
	w.notify(req.Account, protocol.Event{
		"t":        w.tick.Load(),
		"type":     "BALANCE_ADJUSTED",
		"currency": string(req.Currency),
		"delta":    req.Delta.String(),
		"balance":  bal.String(),
		"reason":   reason,
	})
	w.logger.Printf("admin adjust: %s %s %s (%s)", req.Account, req.Delta.String(), req.Currency, reason)
	return adjustResp{Balance: bal}
}

type snapshotReq struct {
	Resp chan snapshotResp
}

type snapshotResp struct {
	Tick uint64
	Err  string
}

// RequestSnapshot asks the world loop to enqueue a snapshot. Safe to
// call from other goroutines.
func (w *World) RequestSnapshot(ctx context.Context) (uint64, error) {
	resp := make(chan snapshotResp, 1)

	select {
	case w.snapReq <- snapshotReq{Resp: resp}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	select {
	case r := <-resp:
		if r.Err != "" {
			return r.Tick, errors.New(r.Err)
		}
		return r.Tick, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (w *World) handleSnapshotRequests(reqs []snapshotReq) {
	if len(reqs) == 0 {
		return
	}
	tick := w.tick.Load()
	resp := snapshotResp{Tick: tick}
	if w.autosave == nil {
		resp.Err = "snapshot sink not configured"
	} else {
		w.autosave(tick)
	}
	for _, r := range reqs {
		if r.Resp == nil {
			continue
		}
		select {
		case r.Resp <- resp:
		default:
		}
	}
}
