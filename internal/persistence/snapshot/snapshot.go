package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Durable snapshot documents, one file per store. Documents are plain
// JSON so the loader can inspect and upgrade the legacy formats the
// server inherits; the append-only audit stream (persistence/log) is
// where compression pays off.

const (
	BalancesFile     = "balances.json"
	TransactionsFile = "transactions.json"
	MarketFile       = "auctions.json"
)

// LedgerDocV1 maps account -> currency -> decimal amount (as string).
type LedgerDocV1 struct {
	Version  int                          `json:"version"`
	Balances map[string]map[string]string `json:"balances"`
}

// HistoryDocV1 maps account -> ordered transaction records. Records
// are kept opaque here (raw JSON) so the document survives additions
// to the record shape without a schema migration.
type HistoryDocV1 struct {
	Version  int                          `json:"version"`
	Accounts map[string][]json.RawMessage `json:"accounts"`
}

// MarketDocV1 holds the auction engine state: active auctions by id,
// pending deliveries by recipient, and the next-id counter.
type MarketDocV1 struct {
	Version  int                      `json:"version"`
	Tick     uint64                   `json:"tick"`
	NextID   uint64                   `json:"next_id"`
	Auctions []AuctionV1              `json:"auctions"`
	Pending  map[string][]ItemStackV1 `json:"pending"`
}

type AuctionV1 struct {
	ID          uint64 `json:"id"`
	Seller      string `json:"seller"`
	Item        string `json:"item"`
	Count       int    `json:"count"`
	StartBid    string `json:"start_bid"`
	CurrentBid  string `json:"current_bid"`
	Bidder      string `json:"bidder,omitempty"`
	Buyout      string `json:"buyout,omitempty"`
	CreatedTick uint64 `json:"created_tick"`
	EndTick     uint64 `json:"end_tick"`
}

type ItemStackV1 struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

// WriteDoc marshals v and atomically replaces dir/name (tmp + rename),
// so a crash mid-write never leaves a truncated document.
func WriteDoc(dir, name string, v any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	tmp := filepath.Join(dir, name+".tmp")
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, name))
}

// ReadDoc loads dir/name into v. A missing file returns os.ErrNotExist
// untouched; a file that fails to parse is preserved as a timestamped
// .corrupt backup and reported via *CorruptError so the caller can
// reset to an empty store instead of aborting startup.
func ReadDoc(dir, name string, v any) error {
	path := filepath.Join(dir, name)
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		backup := quarantine(path)
		return &CorruptError{Path: path, Backup: backup, Err: err}
	}
	return nil
}

type CorruptError struct {
	Path   string
	Backup string
	Err    error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt snapshot %s (backed up to %s): %v", e.Path, e.Backup, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

func IsCorrupt(err error) bool {
	var ce *CorruptError
	return errors.As(err, &ce)
}

func quarantine(path string) string {
	backup := fmt.Sprintf("%s.corrupt-%d.bak", path, time.Now().Unix())
	if err := os.Rename(path, backup); err != nil {
		return ""
	}
	return backup
}

// ReadLedgerDoc loads the balances document, upgrading the legacy
// format where an account's value is a bare number (the old
// single-currency store) into a map under the primary currency.
func ReadLedgerDoc(dir, primary string) (LedgerDocV1, error) {
	doc := LedgerDocV1{Version: 1, Balances: map[string]map[string]string{}}
	path := filepath.Join(dir, BalancesFile)
	raw, err := os.ReadFile(path)
	if err != nil {
		return doc, err
	}

	var versioned struct {
		Version  int                        `json:"version"`
		Balances map[string]json.RawMessage `json:"balances"`
	}
	accounts := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &versioned); err == nil && versioned.Balances != nil {
		accounts = versioned.Balances
	} else if err := json.Unmarshal(raw, &accounts); err != nil {
		// Legacy files are a bare account -> value object.
		backup := quarantine(path)
		return doc, &CorruptError{Path: path, Backup: backup, Err: err}
	}

	for acct, rawVal := range accounts {
		var cells map[string]json.RawMessage
		if err := json.Unmarshal(rawVal, &cells); err == nil && cells != nil {
			m := make(map[string]string, len(cells))
			for cur, cell := range cells {
				if v, ok := decodeAmount(cell); ok {
					m[cur] = v
				}
				// A bad cell is dropped; it should not void the store.
			}
			doc.Balances[acct] = m
			continue
		}
		// Legacy single-value balance: upgrade to the primary currency.
		if v, ok := decodeAmount(rawVal); ok {
			doc.Balances[acct] = map[string]string{primary: v}
		}
	}
	return doc, nil
}

func decodeAmount(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}
