package auction

import (
	"sync"

	"stonevault.gg/internal/persistence/snapshot"
)

// deliveryQueue holds undelivered items per recipient. Push and drain
// are atomic under one mutex: a claim takes the whole queue for a
// recipient or nothing, so concurrent claims can never double-deliver.
type deliveryQueue struct {
	mu          sync.Mutex
	byRecipient map[string][]ItemStack
}

func newDeliveryQueue() deliveryQueue {
	return deliveryQueue{byRecipient: make(map[string][]ItemStack)}
}

func (q *deliveryQueue) push(recipient string, it ItemStack) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.byRecipient[recipient] = append(q.byRecipient[recipient], it)
}

func (q *deliveryQueue) drain(recipient string) []ItemStack {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.byRecipient[recipient]
	delete(q.byRecipient, recipient)
	return items
}

func (q *deliveryQueue) count(recipient string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byRecipient[recipient])
}

func (q *deliveryQueue) export() map[string][]snapshot.ItemStackV1 {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[string][]snapshot.ItemStackV1, len(q.byRecipient))
	for rcpt, items := range q.byRecipient {
		vs := make([]snapshot.ItemStackV1, 0, len(items))
		for _, it := range items {
			vs = append(vs, snapshot.ItemStackV1{Item: it.Item, Count: it.Count})
		}
		out[rcpt] = vs
	}
	return out
}

func (q *deliveryQueue) replace(m map[string][]snapshot.ItemStackV1) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.byRecipient = make(map[string][]ItemStack, len(m))
	for rcpt, items := range m {
		for _, it := range items {
			if it.Item == "" || it.Count <= 0 {
				continue
			}
			q.byRecipient[rcpt] = append(q.byRecipient[rcpt], ItemStack{Item: it.Item, Count: it.Count})
		}
	}
}
