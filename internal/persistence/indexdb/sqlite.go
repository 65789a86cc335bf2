package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	_ "modernc.org/sqlite"

	"stonevault.gg/internal/auction"
	"stonevault.gg/internal/econ"
)

// SQLiteIndex is a best-effort read-model index of committed ledger
// transactions and settled auctions. Rows are applied by a single
// writer goroutine; enqueue never blocks the ledger or the engine,
// and a full queue drops rows (the JSONL audit stream remains the
// source of truth).
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqTx reqKind = iota + 1
	reqSettlement
	reqFlush
)

type req struct {
	kind reqKind

	account    string
	tx         econ.Transaction
	settlement auction.Settlement
	done       chan struct{}
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// High buffer: bursty settlement sweeps must not stall the sim.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			tx_id TEXT NOT NULL,
			account TEXT NOT NULL,
			at INTEGER NOT NULL,
			kind TEXT NOT NULL,
			currency TEXT NOT NULL,
			amount TEXT NOT NULL,
			description TEXT,
			counterparty TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_account_seq ON transactions(account, seq);`,
		`CREATE TABLE IF NOT EXISTS settlements (
			auction_id INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			seller TEXT NOT NULL,
			winner TEXT,
			item TEXT NOT NULL,
			count INTEGER NOT NULL,
			price TEXT NOT NULL,
			outcome TEXT NOT NULL,
			PRIMARY KEY (auction_id, outcome)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_settlements_seller_tick ON settlements(seller, tick);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordTx implements econ.TxSink.
func (s *SQLiteIndex) RecordTx(account string, tx econ.Transaction) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqTx, account: account, tx: tx}:
	default:
		// Drop if the indexer falls behind.
	}
}

// RecordSettlement implements auction.SettlementSink.
func (s *SQLiteIndex) RecordSettlement(st auction.Settlement) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqSettlement, settlement: st}:
	default:
	}
}

func (s *SQLiteIndex) loop() {
	for r := range s.ch {
		switch r.kind {
		case reqTx:
			_, _ = s.db.Exec(
				`INSERT INTO transactions (tx_id, account, at, kind, currency, amount, description, counterparty)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				r.tx.ID, r.account, r.tx.At, string(r.tx.Kind), string(r.tx.Currency),
				r.tx.Amount.String(), r.tx.Description, r.tx.Counterparty,
			)
		case reqSettlement:
			st := r.settlement
			_, _ = s.db.Exec(
				`INSERT OR REPLACE INTO settlements (auction_id, tick, seller, winner, item, count, price, outcome)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				st.AuctionID, st.Tick, st.Seller, st.Winner,
				st.Item.Item, st.Item.Count, st.Price.String(), st.Outcome,
			)
		case reqFlush:
			close(r.done)
		}
	}
}

// TxRow is one indexed transaction for admin queries.
type TxRow struct {
	TxID         string `json:"tx_id"`
	Account      string `json:"account"`
	At           int64  `json:"at"`
	Kind         string `json:"kind"`
	Currency     string `json:"currency"`
	Amount       string `json:"amount"`
	Description  string `json:"description,omitempty"`
	Counterparty string `json:"counterparty,omitempty"`
}

// RecentTransactions returns the newest rows for an account, newest
// first.
func (s *SQLiteIndex) RecentTransactions(ctx context.Context, account string, limit int) ([]TxRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT tx_id, account, at, kind, currency, amount, COALESCE(description, ''), COALESCE(counterparty, '')
		 FROM transactions WHERE account = ? ORDER BY seq DESC LIMIT ?`, account, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TxRow
	for rows.Next() {
		var r TxRow
		if err := rows.Scan(&r.TxID, &r.Account, &r.At, &r.Kind, &r.Currency, &r.Amount, &r.Description, &r.Counterparty); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SettlementRow is one settled auction for admin queries.
type SettlementRow struct {
	AuctionID uint64 `json:"auction_id"`
	Tick      uint64 `json:"tick"`
	Seller    string `json:"seller"`
	Winner    string `json:"winner,omitempty"`
	Item      string `json:"item"`
	Count     int    `json:"count"`
	Price     string `json:"price"`
	Outcome   string `json:"outcome"`
}

// RecentSettlements returns the newest settled auctions.
func (s *SQLiteIndex) RecentSettlements(ctx context.Context, limit int) ([]SettlementRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT auction_id, tick, seller, COALESCE(winner, ''), item, count, price, outcome
		 FROM settlements ORDER BY tick DESC, auction_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SettlementRow
	for rows.Next() {
		var r SettlementRow
		if err := rows.Scan(&r.AuctionID, &r.Tick, &r.Seller, &r.Winner, &r.Item, &r.Count, &r.Price, &r.Outcome); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Flush blocks until every previously enqueued row has been applied.
// Test helper; production code never waits on the index.
func (s *SQLiteIndex) Flush() {
	if s == nil || s.closed.Load() {
		return
	}
	done := make(chan struct{})
	s.ch <- req{kind: reqFlush, done: done}
	<-done
}
