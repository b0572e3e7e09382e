package store

import (
	"github.com/thistonyuncle/docstore/backend"
	"github.com/thistonyuncle/docstore/dberrors"
	"github.com/thistonyuncle/docstore/doclog"
)

var txnLog = doclog.New("store")

// Transaction is scoped exclusive write access to a DataFile, per spec.md
// §3/§4.1: at most one Transaction may be open on a given file path at a
// time, regardless of how many in-process DataFile instances reference it.
type Transaction struct {
	df    *DataFile
	tx    backend.BatchTx
	state TxState
	done  bool
}

// BeginTransaction acquires df's per-path write lock (waiting on the
// shared file-state condvar if another Transaction is already open
// anywhere in the process) and begins a backend batch transaction.
func (df *DataFile) BeginTransaction() (*Transaction, error) {
	if df.closed {
		return nil, dberrors.New(dberrors.NotOpen, "BeginTransaction: DataFile is closed")
	}
	if !df.opts.Writeable {
		return nil, dberrors.New(dberrors.NotWriteable, "BeginTransaction: DataFile opened read-only")
	}
	txn := &Transaction{df: df, state: TxNoOp}
	df.fileState.beginTxn(txn)
	txn.tx = df.engine.BatchTx()
	txn.tx.Lock()
	return txn, nil
}

// Commit commits the transaction durably (flush is always requested; the
// bbolt/sqlite backends do not distinguish CommitWithDurableFlush from a
// plain Commit).
func (t *Transaction) Commit() error {
	return t.finish(TxCommit)
}

// CommitDurable is the spec's CommitWithDurableFlush variant.
func (t *Transaction) CommitDurable() error {
	return t.finish(TxCommitDurable)
}

// Abort rolls back; it never returns an error to the caller in the sense
// that rollback failures are logged, not propagated, mirroring spec.md
// §4.1 ("Abort: call backend rollback; never throws").
func (t *Transaction) Abort() {
	_ = t.finish(TxAbort)
}

func (t *Transaction) finish(state TxState) error {
	if t.done {
		return nil
	}
	t.done = true
	t.state = state
	defer func() {
		t.tx.Unlock()
		t.df.fileState.endTxn()
	}()
	switch state {
	case TxCommit, TxCommitDurable:
		if err := t.tx.Commit(); err != nil {
			t.state = TxAbort
			return dberrors.Wrap(dberrors.CommitFailed, dberrors.DomainCore, "transaction commit failed", err)
		}
		return nil
	case TxAbort:
		if err := t.tx.Rollback(); err != nil {
			txnLog.Warningf("rollback failed: %v", err)
		}
		return nil
	default: // NoOp
		return nil
	}
}

// State reports the transaction's final disposition.
func (t *Transaction) State() TxState { return t.state }

// batchTx exposes the underlying backend.BatchTx to KeyStore methods in
// this package only.
func (t *Transaction) batchTx() backend.BatchTx { return t.tx }
