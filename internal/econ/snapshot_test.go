package econ

import (
	"encoding/json"
	"testing"
)

func TestAddBalance(t *testing.T) {
	l := NewLedger(testCatalog(t), 100)

	if !l.AddBalance("alice", "COIN", dec("-100")) {
		t.Fatalf("debit within balance rejected")
	}
	if got := l.Balance("alice", "COIN"); !got.Equal(dec("150")) {
		t.Fatalf("balance: %s", got)
	}
	if l.AddBalance("alice", "COIN", dec("-200")) {
		t.Fatalf("overdraft accepted")
	}
	if got := l.Balance("alice", "COIN"); !got.Equal(dec("150")) {
		t.Fatalf("rejected delta mutated balance: %s", got)
	}
	if l.AddBalance("alice", "PEBBLE", dec("1")) {
		t.Fatalf("unknown currency accepted")
	}
}

// Save, clear, load: balances and histories come back identical.
func TestSnapshotDocRoundtrip(t *testing.T) {
	l := NewLedger(testCatalog(t), 100)
	l.Transfer("alice", "bob", "COIN", dec("120.50"), TxPay, "rent")
	l.Reward("alice", "SHARD", dec("3"), TxBounty, "quest")
	l.Charge("bob", "COIN", dec("10"), TxAuctionFee, "listing fee")

	balDoc := l.ExportLedgerDoc()
	histDoc := l.ExportHistoryDoc()

	// Survives serialization, not just the in-memory shape.
	rawBal, err := json.Marshal(balDoc)
	if err != nil {
		t.Fatalf("marshal balances: %v", err)
	}
	rawHist, err := json.Marshal(histDoc)
	if err != nil {
		t.Fatalf("marshal history: %v", err)
	}
	if err := json.Unmarshal(rawBal, &balDoc); err != nil {
		t.Fatalf("unmarshal balances: %v", err)
	}
	if err := json.Unmarshal(rawHist, &histDoc); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}

	l2 := NewLedger(testCatalog(t), 100)
	l2.ImportBalances(balDoc.Balances)
	l2.ImportHistoryDoc(histDoc)

	for _, acct := range []string{"alice", "bob"} {
		for _, cur := range []Currency{"COIN", "SHARD"} {
			if a, b := l.Balance(acct, cur), l2.Balance(acct, cur); !a.Equal(b) {
				t.Fatalf("%s/%s: %s != %s", acct, cur, a, b)
			}
		}
		h1, h2 := l.History(acct), l2.History(acct)
		if len(h1) != len(h2) {
			t.Fatalf("%s history: %d != %d records", acct, len(h1), len(h2))
		}
		for i := range h1 {
			if h1[i].ID != h2[i].ID || h1[i].Kind != h2[i].Kind || !h1[i].Amount.Equal(h2[i].Amount) {
				t.Fatalf("%s record %d: %+v != %+v", acct, i, h1[i], h2[i])
			}
		}
	}
}
