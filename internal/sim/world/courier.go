package world

import (
	"stonevault.gg/internal/auction"
	"stonevault.gg/internal/protocol"
)

// Courier returns the world's delivery capability for the auction
// engine. Settlement paths call it from arbitrary goroutines.
func (w *World) Courier() auction.Courier { return courier{w} }

type courier struct{ w *World }

// Deliver places the item into a live player's inventory. Returns
// false when the recipient is offline so the engine queues the item
// instead.
func (c courier) Deliver(recipient string, it auction.ItemStack) bool {
	w := c.w
	w.mu.Lock()
	p := w.players[recipient]
	if p == nil || p.out == nil {
		w.mu.Unlock()
		return false
	}
	p.Inventory[it.Item] += it.Count
	w.mu.Unlock()

	w.addEvent(p, protocol.Event{
		"t":     w.tick.Load(),
		"type":  "DELIVERY",
		"item":  it.Item,
		"count": it.Count,
	})
	return true
}

// Fallback drops the item at the recipient's stash. It cannot fail;
// the stash is handed over on the player's next join.
func (c courier) Fallback(recipient string, it auction.ItemStack) {
	w := c.w
	w.mu.Lock()
	s := w.stash[recipient]
	if s == nil {
		s = make(map[string]int)
		w.stash[recipient] = s
	}
	s[it.Item] += it.Count
	p := w.players[recipient]
	w.mu.Unlock()

	if p != nil {
		w.addEvent(p, protocol.Event{
			"t":     w.tick.Load(),
			"type":  "STASH_DROP",
			"item":  it.Item,
			"count": it.Count,
		})
	}
}
