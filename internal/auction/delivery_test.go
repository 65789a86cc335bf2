package auction

import (
	"sync"
	"testing"

	"stonevault.gg/internal/persistence/snapshot"
)

func TestOfflineDeliveryQueuesUntilClaim(t *testing.T) {
	l := testLedger(t)
	fund(t, l, "seller", "20")
	fund(t, l, "alice", "500")
	c := newMemCourier("seller") // alice offline
	e := testEngine(t, l, c)

	buyout := dec("150")
	id, _ := e.Create("seller", sword(), dec("100"), &buyout, 0)
	if res := e.BuyNow("alice", id, 1); res != OK {
		t.Fatalf("buyout: %v", res)
	}

	if e.PendingCount("alice") != 1 {
		t.Fatalf("expected 1 pending delivery, got %d", e.PendingCount("alice"))
	}
	if c.deliveredCount("alice") != 0 {
		t.Fatalf("offline recipient received a direct delivery")
	}

	// Back online: claim hands everything over and empties the queue.
	c.mu.Lock()
	c.online["alice"] = true
	c.mu.Unlock()

	if n := e.ClaimDeliveries("alice"); n != 1 {
		t.Fatalf("claimed %d", n)
	}
	if c.deliveredCount("alice") != 1 {
		t.Fatalf("item lost on claim")
	}
	if e.PendingCount("alice") != 0 {
		t.Fatalf("queue not drained")
	}
	if n := e.ClaimDeliveries("alice"); n != 0 {
		t.Fatalf("second claim delivered %d", n)
	}
}

func TestClaimUsesFallbackWhenDeliveryFails(t *testing.T) {
	l := testLedger(t)
	fund(t, l, "seller", "20")
	fund(t, l, "alice", "500")
	c := newMemCourier("seller")
	e := testEngine(t, l, c)

	buyout := dec("150")
	id, _ := e.Create("seller", sword(), dec("100"), &buyout, 0)
	if res := e.BuyNow("alice", id, 1); res != OK {
		t.Fatalf("buyout: %v", res)
	}

	// Still offline at claim time: items must land in the fallback,
	// never back in the queue and never dropped.
	if n := e.ClaimDeliveries("alice"); n != 1 {
		t.Fatalf("claimed %d", n)
	}
	if len(c.stashed["alice"]) != 1 {
		t.Fatalf("fallback not used: %v", c.stashed)
	}
	if e.PendingCount("alice") != 0 {
		t.Fatalf("claimed item re-queued")
	}
}

func TestConcurrentClaimsNeverDoubleDeliver(t *testing.T) {
	l := testLedger(t)
	fund(t, l, "seller", "100")
	c := newMemCourier("alice")
	e := testEngine(t, l, c)

	const items = 20
	for i := 0; i < items; i++ {
		e.queue.push("alice", ItemStack{Item: "BREAD", Count: 1})
	}

	var wg sync.WaitGroup
	total := make([]int, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			total[i] = e.ClaimDeliveries("alice")
		}(i)
	}
	wg.Wait()

	sum := 0
	for _, n := range total {
		sum += n
	}
	if sum != items {
		t.Fatalf("claims delivered %d of %d", sum, items)
	}
	if c.deliveredCount("alice") != items {
		t.Fatalf("courier saw %d of %d", c.deliveredCount("alice"), items)
	}
}

func TestExportImportRoundtrip(t *testing.T) {
	l := testLedger(t)
	fund(t, l, "seller", "20")
	fund(t, l, "alice", "500")
	e := testEngine(t, l, newMemCourier())

	buyout := dec("300")
	id1, _ := e.Create("seller", sword(), dec("100"), &buyout, 10)
	id2, _ := e.Create("seller", ItemStack{Item: "BREAD", Count: 3}, dec("10"), nil, 10)
	if res := e.Bid("alice", id1, dec("120")); res != OK {
		t.Fatalf("bid: %v", res)
	}
	e.queue.push("ghost", ItemStack{Item: "BREAD", Count: 2})

	doc := e.Export(42)
	if doc.Tick != 42 || len(doc.Auctions) != 2 {
		t.Fatalf("export: tick %d, %d auctions", doc.Tick, len(doc.Auctions))
	}

	l2 := testLedger(t)
	e2 := testEngine(t, l2, newMemCourier())
	e2.Import(doc)

	a := e2.Active()
	if len(a) != 2 {
		t.Fatalf("imported %d auctions", len(a))
	}
	if a[0].ID != id1 || !a[0].CurrentBid.Equal(dec("120")) || a[0].Bidder != "alice" {
		t.Fatalf("auction 1: %+v", a[0])
	}
	if !a[0].HasBuyout || !a[0].Buyout.Equal(dec("300")) {
		t.Fatalf("buyout lost: %+v", a[0])
	}
	if a[1].ID != id2 || a[1].HasBuyout {
		t.Fatalf("auction 2: %+v", a[1])
	}
	if e2.PendingCount("ghost") != 2 {
		t.Fatalf("pending deliveries lost")
	}

	// Ids keep counting up from the restored counter.
	fund(t, l2, "seller", "20")
	id3, res := e2.Create("seller", sword(), dec("50"), nil, 50)
	if res != OK || id3 <= id2 {
		t.Fatalf("id went backwards after import: %d (res %v)", id3, res)
	}
}

func TestImportDropsMalformedEntries(t *testing.T) {
	l := testLedger(t)
	e := testEngine(t, l, newMemCourier())

	doc := snapshot.MarketDocV1{
		Version: 1,
		NextID:  10,
		Auctions: []snapshot.AuctionV1{
			// Unparseable bid.
			{ID: 1, Seller: "s", Item: "X", Count: 1, StartBid: "abc", CurrentBid: "100", EndTick: 100},
			// Current bid below start.
			{ID: 2, Seller: "s", Item: "X", Count: 1, StartBid: "100", CurrentBid: "50", EndTick: 100},
			// Fine.
			{ID: 3, Seller: "s", Item: "X", Count: 1, StartBid: "100", CurrentBid: "100", EndTick: 100},
			// Buyout below start is stripped, auction kept.
			{ID: 4, Seller: "s", Item: "X", Count: 1, StartBid: "100", CurrentBid: "100", Buyout: "50", EndTick: 100},
		},
		Pending: map[string][]snapshot.ItemStackV1{
			"alice": {{Item: "BREAD", Count: 2}, {Item: "", Count: 1}, {Item: "X", Count: 0}},
		},
	}

	e.Import(doc)
	a := e.Active()
	if len(a) != 2 {
		t.Fatalf("expected 2 surviving auctions, got %d", len(a))
	}
	if a[0].ID != 3 {
		t.Fatalf("wrong survivor: %+v", a[0])
	}
	if a[1].ID != 4 || a[1].HasBuyout {
		t.Fatalf("bad buyout should be stripped: %+v", a[1])
	}
	if e.PendingCount("alice") != 1 {
		t.Fatalf("expected only the valid pending item, got %d", e.PendingCount("alice"))
	}
}
