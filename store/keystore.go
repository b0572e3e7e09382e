package store

import (
	"sync/atomic"

	"github.com/thistonyuncle/docstore/backend"
	"github.com/thistonyuncle/docstore/dberrors"
	"github.com/thistonyuncle/docstore/sliceutil"
)

// KeyStore is a named ordered map inside a DataFile, per spec.md §4.1.
type KeyStore struct {
	df   *DataFile
	name string
	caps Capabilities

	lastSequence   uint64
	deletionCount  uint64
}

func seqBucket(name string) string { return name + "$seq" }

// KeyStore returns (creating if necessary, on a writeable DataFile) the
// named KeyStore, declaring caps as a subset of what the DataFile's
// backend supports.
func (df *DataFile) KeyStore(name string, caps Capabilities) (*KeyStore, error) {
	df.mu.Lock()
	if ks, ok := df.keyStores[name]; ok {
		df.mu.Unlock()
		return ks, nil
	}
	df.mu.Unlock()

	if df.opts.Backend == BackendSQL && caps.GetByOffset {
		return nil, dberrors.New(dberrors.NotOpen, "GetByOffset capability is not supported on the SQL backend")
	}

	ks := &KeyStore{df: df, name: name, caps: caps}

	// A read-only DataFile cannot create buckets; open the KeyStore as found.
	if !df.opts.Writeable {
		err := df.engine.View(func(tx backend.ReadTx) error {
			v, found, err := tx.UnsafeGet(metaBucket, []byte(metaKeySeqPrefix+name))
			if found && len(v) == 8 {
				ks.lastSequence = beUint64(v)
			}
			return err
		})
		if err != nil {
			return nil, err
		}
		return ks, nil
	}

	txn, err := df.BeginTransaction()
	if err != nil {
		return nil, err
	}
	bt := txn.batchTx()
	if err := bt.UnsafeCreateBucket(name); err != nil {
		txn.Abort()
		return nil, err
	}
	if caps.Sequences {
		if err := bt.UnsafeCreateBucket(seqBucket(name)); err != nil {
			txn.Abort()
			return nil, err
		}
	}
	if err := bt.UnsafeCreateBucket(metaBucket); err != nil {
		txn.Abort()
		return nil, err
	}
	if v, found, _ := bt.UnsafeGet(metaBucket, []byte(metaKeySeqPrefix+name)); found && len(v) == 8 {
		ks.lastSequence = beUint64(v)
	}
	if err := txn.Commit(); err != nil {
		return nil, err
	}

	df.mu.Lock()
	df.keyStores[name] = ks
	df.mu.Unlock()
	return ks, nil
}

func (ks *KeyStore) Name() string { return ks.name }

func (ks *KeyStore) LastSequence() uint64 { return atomic.LoadUint64(&ks.lastSequence) }

func (ks *KeyStore) Capabilities() Capabilities { return ks.caps }

func recordFromDecoded(key []byte, d decodedValue, metaOnly bool) Record {
	r := Record{
		Key:      sliceutil.Slice(key),
		Meta:     sliceutil.Slice(d.meta),
		Sequence: d.sequence,
		Deleted:  d.deleted,
		Exists:   true,
	}
	if metaOnly {
		r.BodySize = len(d.body)
	} else {
		r.Body = sliceutil.Slice(d.body)
		r.BodySize = len(d.body)
	}
	return r
}

// Get never returns a NotFound error: a missing key yields a Record with
// Exists=false, per spec.md §7.
func (ks *KeyStore) Get(key []byte, metaOnly bool) (Record, error) {
	if len(key) == 0 {
		return Record{}, dberrors.New(dberrors.InvalidParameter, "Get: empty key")
	}
	var result Record
	err := ks.df.engine.View(func(tx backend.ReadTx) error {
		v, found, err := tx.UnsafeGet(ks.name, key)
		if err != nil {
			return err
		}
		if !found {
			result = notFound(key)
			return nil
		}
		d, err := decodeRecordValue(v)
		if err != nil {
			return err
		}
		result = recordFromDecoded(key, d, metaOnly)
		return nil
	})
	return result, err
}

// GetBySequence requires the Sequences capability; absence of the key is
// reported as NotFound, since callers ask for a specific historical point
// rather than probing existence (spec.md §7).
func (ks *KeyStore) GetBySequence(seq uint64, metaOnly bool) (Record, error) {
	if !ks.caps.Sequences {
		return Record{}, dberrors.New(dberrors.NoSequences, "GetBySequence: KeyStore has no sequences capability")
	}
	var key []byte
	var result Record
	err := ks.df.engine.View(func(tx backend.ReadTx) error {
		v, found, err := tx.UnsafeGet(seqBucket(ks.name), beBytes(seq))
		if err != nil {
			return err
		}
		if !found {
			return dberrors.New(dberrors.NotFound, "GetBySequence: no such sequence")
		}
		key = append([]byte(nil), v...)
		rv, found, err := tx.UnsafeGet(ks.name, key)
		if err != nil {
			return err
		}
		if !found {
			return dberrors.New(dberrors.NotFound, "GetBySequence: dangling sequence index entry")
		}
		d, err := decodeRecordValue(rv)
		if err != nil {
			return err
		}
		result = recordFromDecoded(key, d, metaOnly)
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	return result, nil
}

// GetByOffset loads a record by an opaque offset token. The log-structured
// backend would use a true file offset; bbolt exposes no such thing, so
// here the "offset" is the record's own sequence number (see DESIGN.md) —
// GetByOffset never throws on a bad token, returning an empty record
// instead, per spec.md §4.1.
func (ks *KeyStore) GetByOffset(offset, sequence uint64) Record {
	if !ks.caps.GetByOffset {
		return Record{}
	}
	r, err := ks.GetBySequence(offset, false)
	if err != nil {
		return Record{}
	}
	_ = sequence
	return r
}

// Set overwrites key's record, returning the newly assigned sequence if
// the Sequences capability is enabled.
func (ks *KeyStore) Set(key, meta, body []byte, txn *Transaction) (uint64, error) {
	if len(key) == 0 || len(key) > MaxKeyLength {
		return 0, dberrors.New(dberrors.InvalidParameter, "Set: invalid key length")
	}
	if len(meta) > MaxMetaLength {
		return 0, dberrors.New(dberrors.InvalidParameter, "Set: meta too large")
	}
	if txn == nil {
		return 0, dberrors.New(dberrors.NoTransaction, "Set: requires a Transaction")
	}
	bt := txn.batchTx()

	var seq uint64
	if ks.caps.Sequences {
		seq = atomic.AddUint64(&ks.lastSequence, 1)
		if err := bt.UnsafePut(seqBucket(ks.name), beBytes(seq), key); err != nil {
			return 0, err
		}
		if err := ks.persistLastSequence(bt, seq); err != nil {
			return 0, err
		}
	}
	if err := bt.UnsafePut(ks.name, key, encodeRecordValue(meta, body, seq, false)); err != nil {
		return 0, err
	}
	return seq, nil
}

func (ks *KeyStore) persistLastSequence(bt backend.BatchTx, seq uint64) error {
	return bt.UnsafePut(metaBucket, []byte(metaKeySeqPrefix+ks.name), beBytes(seq))
}

// Delete removes key, or (if SoftDeletes is enabled) replaces it with a
// tombstone that retains a fresh sequence number. Returns true if a record
// existed to remove.
func (ks *KeyStore) Delete(key []byte, txn *Transaction) (bool, error) {
	if txn == nil {
		return false, dberrors.New(dberrors.NoTransaction, "Delete: requires a Transaction")
	}
	bt := txn.batchTx()
	existing, found, err := bt.UnsafeGet(ks.name, key)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	_ = existing
	atomic.AddUint64(&ks.deletionCount, 1)

	if ks.caps.SoftDeletes {
		var seq uint64
		if ks.caps.Sequences {
			seq = atomic.AddUint64(&ks.lastSequence, 1)
			if err := bt.UnsafePut(seqBucket(ks.name), beBytes(seq), key); err != nil {
				return false, err
			}
			if err := ks.persistLastSequence(bt, seq); err != nil {
				return false, err
			}
		}
		if err := bt.UnsafePut(ks.name, key, encodeRecordValue(nil, nil, seq, true)); err != nil {
			return false, err
		}
		return true, nil
	}

	if err := bt.UnsafeDelete(ks.name, key); err != nil {
		return false, err
	}
	return true, nil
}

// Erase removes every record and resets lastSequence to zero.
func (ks *KeyStore) Erase(txn *Transaction) error {
	if txn == nil {
		return dberrors.New(dberrors.NoTransaction, "Erase: requires a Transaction")
	}
	bt := txn.batchTx()
	if err := bt.UnsafeDeleteBucket(ks.name); err != nil {
		return err
	}
	if err := bt.UnsafeCreateBucket(ks.name); err != nil {
		return err
	}
	if ks.caps.Sequences {
		if err := bt.UnsafeDeleteBucket(seqBucket(ks.name)); err != nil {
			return err
		}
		if err := bt.UnsafeCreateBucket(seqBucket(ks.name)); err != nil {
			return err
		}
	}
	atomic.StoreUint64(&ks.lastSequence, 0)
	return ks.persistLastSequence(bt, 0)
}

// compactTombstones removes soft-deleted records during DataFile.Compact;
// returns whether anything was removed.
func (ks *KeyStore) compactTombstones() (bool, error) {
	if !ks.caps.SoftDeletes {
		return false, nil
	}
	var toRemove [][]byte
	err := ks.df.engine.View(func(tx backend.ReadTx) error {
		return tx.UnsafeForEach(ks.name, func(k, v []byte) error {
			d, err := decodeRecordValue(v)
			if err != nil {
				return err
			}
			if d.deleted {
				toRemove = append(toRemove, append([]byte(nil), k...))
			}
			return nil
		})
	})
	if err != nil {
		return false, err
	}
	if len(toRemove) == 0 {
		return false, nil
	}

	txn, err := ks.df.BeginTransaction()
	if err != nil {
		return false, err
	}
	bt := txn.batchTx()
	for _, k := range toRemove {
		if err := bt.UnsafeDelete(ks.name, k); err != nil {
			txn.Abort()
			return false, err
		}
	}
	if err := txn.Commit(); err != nil {
		return false, err
	}
	return true, nil
}
