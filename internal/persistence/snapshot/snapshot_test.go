package snapshot

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteReadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	doc := MarketDocV1{
		Version: 1,
		Tick:    42,
		NextID:  7,
		Auctions: []AuctionV1{
			{ID: 3, Seller: "alice", Item: "IRON_SWORD", Count: 1, StartBid: "100", CurrentBid: "120", Bidder: "bob", Buyout: "200", CreatedTick: 1, EndTick: 101},
		},
		Pending: map[string][]ItemStackV1{
			"bob": {{Item: "BREAD", Count: 2}},
		},
	}
	if err := WriteDoc(dir, MarketFile, doc); err != nil {
		t.Fatalf("write: %v", err)
	}
	// No temp file left behind.
	if _, err := os.Stat(filepath.Join(dir, MarketFile+".tmp")); !os.IsNotExist(err) {
		t.Fatalf("temp file survived the rename")
	}

	var got MarketDocV1
	if err := ReadDoc(dir, MarketFile, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Tick != 42 || got.NextID != 7 || len(got.Auctions) != 1 {
		t.Fatalf("roundtrip: %+v", got)
	}
	if got.Auctions[0].Buyout != "200" || got.Auctions[0].Bidder != "bob" {
		t.Fatalf("auction fields: %+v", got.Auctions[0])
	}
	if len(got.Pending["bob"]) != 1 || got.Pending["bob"][0].Count != 2 {
		t.Fatalf("pending: %+v", got.Pending)
	}
}

func TestReadDocMissingFile(t *testing.T) {
	var doc MarketDocV1
	err := ReadDoc(t.TempDir(), MarketFile, &doc)
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist, got %v", err)
	}
}

func TestReadDocQuarantinesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, MarketFile)
	if err := os.WriteFile(path, []byte("{truncated"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var doc MarketDocV1
	err := ReadDoc(dir, MarketFile, &doc)
	if !IsCorrupt(err) {
		t.Fatalf("expected corrupt error, got %v", err)
	}

	// Original gone, backup present.
	if _, serr := os.Stat(path); !os.IsNotExist(serr) {
		t.Fatalf("corrupt file should have been moved")
	}
	ents, _ := os.ReadDir(dir)
	found := false
	for _, e := range ents {
		if strings.Contains(e.Name(), ".corrupt-") {
			found = true
		}
	}
	if !found {
		t.Fatalf("no quarantine backup in %v", ents)
	}
}

func TestReadLedgerDocCurrentFormat(t *testing.T) {
	dir := t.TempDir()
	raw := `{
	  "version": 1,
	  "balances": {
	    "alice": {"COIN": "120.50", "SHARD": "3"},
	    "bob": {"COIN": "10"}
	  }
	}`
	if err := os.WriteFile(filepath.Join(dir, BalancesFile), []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	doc, err := ReadLedgerDoc(dir, "COIN")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if doc.Balances["alice"]["COIN"] != "120.50" || doc.Balances["alice"]["SHARD"] != "3" {
		t.Fatalf("alice: %+v", doc.Balances["alice"])
	}
	if doc.Balances["bob"]["COIN"] != "10" {
		t.Fatalf("bob: %+v", doc.Balances["bob"])
	}
}

// The store this server inherits kept one bare number per account.
// Those files must load as primary-currency balances.
func TestReadLedgerDocLegacyUpgrade(t *testing.T) {
	dir := t.TempDir()
	raw := `{"alice": 120.5, "bob": "75.25", "broken": [1,2]}`
	if err := os.WriteFile(filepath.Join(dir, BalancesFile), []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	doc, err := ReadLedgerDoc(dir, "COIN")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if doc.Balances["alice"]["COIN"] != "120.5" {
		t.Fatalf("alice: %+v", doc.Balances["alice"])
	}
	if doc.Balances["bob"]["COIN"] != "75.25" {
		t.Fatalf("bob: %+v", doc.Balances["bob"])
	}
	if _, ok := doc.Balances["broken"]; ok {
		t.Fatalf("undecodable account should be dropped")
	}
}

func TestReadLedgerDocBadCellDropped(t *testing.T) {
	dir := t.TempDir()
	raw := `{"version":1,"balances":{"alice":{"COIN":"10","SHARD":[1]}}}`
	if err := os.WriteFile(filepath.Join(dir, BalancesFile), []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	doc, err := ReadLedgerDoc(dir, "COIN")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	cells := doc.Balances["alice"]
	if cells["COIN"] != "10" {
		t.Fatalf("good cell lost: %+v", cells)
	}
	if _, ok := cells["SHARD"]; ok {
		t.Fatalf("bad cell kept: %+v", cells)
	}
}

func TestReadLedgerDocCorrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, BalancesFile), []byte("not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := ReadLedgerDoc(dir, "COIN")
	if !IsCorrupt(err) {
		t.Fatalf("expected corrupt error, got %v", err)
	}
}
