package persistence

import (
	"log"
	"sync"
	"sync/atomic"

	"stonevault.gg/internal/econ"
	"stonevault.gg/internal/persistence/indexdb"
	persistlog "stonevault.gg/internal/persistence/log"
)

// TxFanout decouples the ledger from its observers: RecordTx runs
// under the ledger lock, so it only enqueues; a single goroutine feeds
// the audit stream and the sqlite index. Per-account order is
// preserved because the ledger commits in order and the channel is
// FIFO.
type TxFanout struct {
	logger *log.Logger
	audit  *persistlog.AuditLogger
	index  *indexdb.SQLiteIndex

	ch      chan fanoutEntry
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64
}

type fanoutEntry struct {
	account string
	tx      econ.Transaction
}

func NewTxFanout(logger *log.Logger, audit *persistlog.AuditLogger, index *indexdb.SQLiteIndex) *TxFanout {
	f := &TxFanout{
		logger: logger,
		audit:  audit,
		index:  index,
		ch:     make(chan fanoutEntry, 4096),
	}
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for e := range f.ch {
			if f.audit != nil {
				if err := f.audit.WriteTx(e.account, e.tx); err != nil {
					f.logger.Printf("audit write: %v", err)
				}
			}
			if f.index != nil {
				f.index.RecordTx(e.account, e.tx)
			}
		}
	}()
	return f
}

// RecordTx implements econ.TxSink. Never blocks; drops when the
// observers fall behind (the ledger stays the source of truth).
func (f *TxFanout) RecordTx(account string, tx econ.Transaction) {
	select {
	case f.ch <- fanoutEntry{account: account, tx: tx}:
	default:
		if f.dropped.Add(1)%1000 == 1 {
			f.logger.Printf("tx fanout: observers behind, dropping (total %d)", f.dropped.Load())
		}
	}
}

// Close flushes queued entries and the audit stream.
func (f *TxFanout) Close() error {
	f.once.Do(func() { close(f.ch) })
	f.wg.Wait()
	if f.audit != nil {
		return f.audit.Close()
	}
	return nil
}
