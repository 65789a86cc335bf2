package econ

import (
	"encoding/json"

	"stonevault.gg/internal/persistence/snapshot"
)

// ExportLedgerDoc serializes balances into the balances.json shape.
func (l *Ledger) ExportLedgerDoc() snapshot.LedgerDocV1 {
	return snapshot.LedgerDocV1{Version: 1, Balances: l.ExportBalances()}
}

// ExportHistoryDoc serializes per-account histories into the
// transactions.json shape.
func (l *Ledger) ExportHistoryDoc() snapshot.HistoryDocV1 {
	doc := snapshot.HistoryDocV1{Version: 1, Accounts: map[string][]json.RawMessage{}}
	for acct, txs := range l.ExportHistory() {
		rows := make([]json.RawMessage, 0, len(txs))
		for _, tx := range txs {
			b, err := json.Marshal(tx)
			if err != nil {
				continue
			}
			rows = append(rows, b)
		}
		doc.Accounts[acct] = rows
	}
	return doc
}

// ImportHistoryDoc loads per-account histories from a snapshot
// document, dropping records that no longer decode.
func (l *Ledger) ImportHistoryDoc(doc snapshot.HistoryDocV1) {
	m := make(map[string][]Transaction, len(doc.Accounts))
	for acct, rows := range doc.Accounts {
		txs := make([]Transaction, 0, len(rows))
		for _, raw := range rows {
			var tx Transaction
			if err := json.Unmarshal(raw, &tx); err != nil {
				continue
			}
			txs = append(txs, tx)
		}
		m[acct] = txs
	}
	l.ImportHistory(m)
}
