package econ

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TxKind classifies a ledger mutation for the audit trail.
type TxKind string

const (
	TxPay           TxKind = "PAY"
	TxShopBuy       TxKind = "SHOP_BUY"
	TxShopSell      TxKind = "SHOP_SELL"
	TxClaimCost     TxKind = "CLAIM_COST"
	TxBounty        TxKind = "BOUNTY"
	TxAuctionFee    TxKind = "AUCTION_FEE"
	TxAuctionBid    TxKind = "AUCTION_BID"
	TxAuctionRefund TxKind = "AUCTION_REFUND"
	TxAuctionPayout TxKind = "AUCTION_PAYOUT"
	TxAdminAdjust   TxKind = "ADMIN_ADJUST"
	TxBankDeposit   TxKind = "BANK_DEPOSIT"
	TxBankWithdraw  TxKind = "BANK_WITHDRAW"
)

// Transaction is one immutable audit record. Amount is signed: debits
// are negative. Records are never replayed to rebuild balances.
type Transaction struct {
	ID           string          `json:"id"`
	At           int64           `json:"at"`
	Kind         TxKind          `json:"kind"`
	Currency     Currency        `json:"currency"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description,omitempty"`
	Counterparty string          `json:"counterparty,omitempty"`
}

func newTransaction(kind TxKind, cur Currency, amount decimal.Decimal, desc, counterparty string) Transaction {
	return Transaction{
		ID:           uuid.NewString(),
		At:           time.Now().Unix(),
		Kind:         kind,
		Currency:     cur,
		Amount:       amount,
		Description:  desc,
		Counterparty: counterparty,
	}
}

// TxSink receives every committed transaction record, in per-account
// commit order. Implementations must not block; the ledger calls the
// sink while holding its lock.
type TxSink interface {
	RecordTx(account string, tx Transaction)
}

// txLog keeps the most recent records per account, oldest first.
type txLog struct {
	cap       int
	byAccount map[string][]Transaction
}

func newTxLog(capPerAccount int) *txLog {
	if capPerAccount <= 0 {
		capPerAccount = 100
	}
	return &txLog{cap: capPerAccount, byAccount: make(map[string][]Transaction)}
}

func (t *txLog) append(account string, tx Transaction) {
	h := append(t.byAccount[account], tx)
	if over := len(h) - t.cap; over > 0 {
		h = append(h[:0], h[over:]...)
	}
	t.byAccount[account] = h
}

func (t *txLog) history(account string) []Transaction {
	h := t.byAccount[account]
	out := make([]Transaction, len(h))
	copy(out, h)
	return out
}

func (t *txLog) export() map[string][]Transaction {
	out := make(map[string][]Transaction, len(t.byAccount))
	for acct, h := range t.byAccount {
		cp := make([]Transaction, len(h))
		copy(cp, h)
		out[acct] = cp
	}
	return out
}

func (t *txLog) replace(m map[string][]Transaction) {
	t.byAccount = make(map[string][]Transaction, len(m))
	for acct, h := range m {
		if len(h) == 0 {
			continue
		}
		if over := len(h) - t.cap; over > 0 {
			h = h[over:]
		}
		cp := make([]Transaction, len(h))
		copy(cp, h)
		t.byAccount[acct] = cp
	}
}
