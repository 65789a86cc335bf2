package econ

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Ledger holds per-account, per-currency balances. All operations are
// safe under concurrent invocation from network handlers, the sim
// loop, and admin HTTP. A single coarse RWMutex guards both balances
// and history: critical sections are tiny, two-cell transfers are
// trivially atomic, and per-account history order always matches
// commit order.
type Ledger struct {
	mu       sync.RWMutex
	cat      *Catalog
	balances map[string]map[Currency]decimal.Decimal
	log      *txLog
	sink     TxSink
}

func NewLedger(cat *Catalog, historyCap int) *Ledger {
	return &Ledger{
		cat:      cat,
		balances: make(map[string]map[Currency]decimal.Decimal),
		log:      newTxLog(historyCap),
	}
}

// SetSink wires an observer for committed transactions. Call before
// the ledger is shared; the sink runs under the ledger lock and must
// not block.
func (l *Ledger) SetSink(s TxSink) { l.sink = s }

func (l *Ledger) Catalog() *Catalog { return l.cat }

// Balance never fails: absent cells read as the currency's configured
// starting balance (zero for non-primary currencies).
func (l *Ledger) Balance(account string, cur Currency) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceLocked(account, cur)
}

func (l *Ledger) balanceLocked(account string, cur Currency) decimal.Decimal {
	if cells, ok := l.balances[account]; ok {
		if v, ok := cells[cur]; ok {
			return v
		}
	}
	return l.cat.Start(cur)
}

func (l *Ledger) setLocked(account string, cur Currency, v decimal.Decimal) {
	cells, ok := l.balances[account]
	if !ok {
		cells = make(map[Currency]decimal.Decimal, 2)
		l.balances[account] = cells
	}
	cells[cur] = Clamp2(v)
}

func (l *Ledger) commitLocked(account string, tx Transaction) {
	l.log.append(account, tx)
	if l.sink != nil {
		l.sink.RecordTx(account, tx)
	}
}

// SetBalance overwrites a cell. Rejects negative amounts and unknown
// currencies.
func (l *Ledger) SetBalance(account string, cur Currency, amount decimal.Decimal) bool {
	if _, ok := l.cat.Lookup(cur); !ok {
		return false
	}
	if amount.IsNegative() {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setLocked(account, cur, amount)
	return true
}

// AddBalance applies a signed delta. The resulting balance must not go
// negative; rejection has no effect.
func (l *Ledger) AddBalance(account string, cur Currency, delta decimal.Decimal) bool {
	if _, ok := l.cat.Lookup(cur); !ok {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.balanceLocked(account, cur).Add(Clamp2(delta))
	if next.IsNegative() {
		return false
	}
	l.setLocked(account, cur, next)
	return true
}

// Charge debits the account and appends a negative transaction record.
// A non-positive amount is a no-op success. Insufficient funds reject
// with no mutation.
func (l *Ledger) Charge(account string, cur Currency, amount decimal.Decimal, kind TxKind, desc string) bool {
	return l.charge(account, cur, amount, kind, desc, "")
}

func (l *Ledger) charge(account string, cur Currency, amount decimal.Decimal, kind TxKind, desc, counterparty string) bool {
	if _, ok := l.cat.Lookup(cur); !ok {
		return false
	}
	amount = Clamp2(amount)
	if !amount.IsPositive() {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	bal := l.balanceLocked(account, cur)
	if bal.LessThan(amount) {
		return false
	}
	l.setLocked(account, cur, bal.Sub(amount))
	l.commitLocked(account, newTransaction(kind, cur, amount.Neg(), desc, counterparty))
	return true
}

// Reward credits the account and appends a positive transaction
// record. Cannot fail; non-positive amounts are ignored.
func (l *Ledger) Reward(account string, cur Currency, amount decimal.Decimal, kind TxKind, desc string) {
	l.reward(account, cur, amount, kind, desc, "")
}

func (l *Ledger) reward(account string, cur Currency, amount decimal.Decimal, kind TxKind, desc, counterparty string) {
	if _, ok := l.cat.Lookup(cur); !ok {
		return
	}
	amount = Clamp2(amount)
	if !amount.IsPositive() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setLocked(account, cur, l.balanceLocked(account, cur).Add(amount))
	l.commitLocked(account, newTransaction(kind, cur, amount, desc, counterparty))
}

// Transfer atomically moves funds between two accounts and appends one
// record on each side referencing the counterparty. The currency total
// across all accounts is unchanged by a successful transfer.
func (l *Ledger) Transfer(from, to string, cur Currency, amount decimal.Decimal, kind TxKind, desc string) bool {
	if _, ok := l.cat.Lookup(cur); !ok {
		return false
	}
	if from == to {
		return false
	}
	amount = Clamp2(amount)
	if !amount.IsPositive() {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fromBal := l.balanceLocked(from, cur)
	if fromBal.LessThan(amount) {
		return false
	}
	l.setLocked(from, cur, fromBal.Sub(amount))
	l.setLocked(to, cur, l.balanceLocked(to, cur).Add(amount))
	l.commitLocked(from, newTransaction(kind, cur, amount.Neg(), desc, to))
	l.commitLocked(to, newTransaction(kind, cur, amount, desc, from))
	return true
}

// Balances returns a point-in-time-consistent copy of every explicit
// cell for the currency (accounts still on the configured default are
// not listed).
func (l *Ledger) Balances(cur Currency) map[string]decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]decimal.Decimal)
	for acct, cells := range l.balances {
		if v, ok := cells[cur]; ok {
			out[acct] = v
		}
	}
	return out
}

// History returns a copy of the account's audit trail, oldest first.
func (l *Ledger) History(account string) []Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.log.history(account)
}

// Format renders an amount with the currency's display symbol.
func (l *Ledger) Format(cur Currency, amount decimal.Decimal) string {
	return l.cat.Format(cur, amount)
}

// ExportBalances serializes every cell as account -> currency ->
// decimal string, the shape persisted in balances.json.
func (l *Ledger) ExportBalances() map[string]map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]map[string]string, len(l.balances))
	for acct, cells := range l.balances {
		m := make(map[string]string, len(cells))
		for cur, v := range cells {
			m[string(cur)] = v.String()
		}
		out[acct] = m
	}
	return out
}

// ImportBalances replaces the in-memory store with a deserialized
// snapshot. Unknown currencies and malformed or negative amounts are
// dropped rather than aborting the load.
func (l *Ledger) ImportBalances(m map[string]map[string]string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances = make(map[string]map[Currency]decimal.Decimal, len(m))
	for acct, cells := range m {
		for cur, raw := range cells {
			if _, ok := l.cat.Lookup(Currency(cur)); !ok {
				continue
			}
			v, err := decimal.NewFromString(raw)
			if err != nil || v.IsNegative() {
				continue
			}
			l.setLocked(acct, Currency(cur), v)
		}
	}
}

// ExportHistory returns a deep copy of all per-account histories.
func (l *Ledger) ExportHistory() map[string][]Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.log.export()
}

// ImportHistory replaces all per-account histories.
func (l *Ledger) ImportHistory(m map[string][]Transaction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log.replace(m)
}
