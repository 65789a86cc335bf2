package world

import (
	"context"
	"time"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingActions []ActionEnvelope
	var pendingAdjust []adjustReq
	var pendingSnap []snapshotReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			w.handleJoin(req)
		case id := <-w.leave:
			w.handleLeave(id)
		case env := <-w.inbox:
			pendingActions = append(pendingActions, env)
		case req := <-w.adjust:
			pendingAdjust = append(pendingAdjust, req)
		case req := <-w.snapReq:
			pendingSnap = append(pendingSnap, req)
		case <-ticker.C:
			w.step(pendingActions)
			w.handleAdjustRequests(pendingAdjust)
			w.handleSnapshotRequests(pendingSnap)
			pendingActions = pendingActions[:0]
			pendingAdjust = pendingAdjust[:0]
			pendingSnap = pendingSnap[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// step advances one tick: queued player actions first, then the
// time-driven work (auction sweep, autosave cadence).
func (w *World) step(actions []ActionEnvelope) {
	tick := w.tick.Add(1)

	for _, env := range actions {
		for _, inst := range env.Act.Instants {
			w.applyInstant(env.PlayerID, inst, tick)
		}
	}

	if tick%w.cfg.SweepEveryTicks == 0 {
		if n := w.market.SweepExpired(tick); n > 0 {
			w.logger.Printf("tick %d: settled %d expired auctions", tick, n)
		}
	}
	if w.autosave != nil && tick%w.cfg.SnapshotEveryTicks == 0 {
		w.autosave(tick)
	}
}

// StepOnce advances the world by a single tick with the same ordering
// semantics as Run. Intended for tests.
func (w *World) StepOnce(actions []ActionEnvelope) uint64 {
	w.step(actions)
	return w.tick.Load()
}
