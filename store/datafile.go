package store

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/thistonyuncle/docstore/backend"
	"github.com/thistonyuncle/docstore/dberrors"
	"github.com/thistonyuncle/docstore/doclog"
)

var dfLog = doclog.New("store")

// metaBucket holds DataFile-wide bookkeeping: purge counter and each
// KeyStore's persisted lastSequence watermark.
const metaBucket = "_dfmeta"

const (
	metaKeyPurgeCount = "purgeCount"
	metaKeySeqPrefix  = "lastSeq:"
)

// sCompactCount is the process-wide "compactions in progress" counter of
// spec.md §5, shared across every open DataFile in the process.
var sCompactCount int32

// CompactionsInProgress returns the current value of the process-wide
// compaction counter, for observability (spec.md §4.1's purgeCount()
// sibling).
func CompactionsInProgress() int32 {
	return atomic.LoadInt32(&sCompactCount)
}

// CompactionObserver is invoked with (starting=true) before a compaction
// and (starting=false) after, per spec.md §4.1.
type CompactionObserver func(starting bool)

// DataFile is the logical file container of spec.md §4.1.
type DataFile struct {
	path      string
	opts      Options
	engine    backend.Engine
	cipher    *backend.PageCipher
	fileState *fileState
	closed    bool

	mu        sync.Mutex
	keyStores map[string]*KeyStore

	purgeCount uint64
}

// Open opens (or creates) path as a DataFile per the given Options.
func Open(path string, opts Options) (*DataFile, error) {
	var cipher *backend.PageCipher
	if opts.EncryptionAlgorithm != "" {
		if opts.EncryptionAlgorithm != "AES256" {
			return nil, dberrors.New(dberrors.UnsupportedEncryption, "unsupported encryption algorithm: "+opts.EncryptionAlgorithm)
		}
		if opts.Backend != BackendLogStructured {
			return nil, dberrors.New(dberrors.UnsupportedEncryption, "encryption is only supported on the log-structured backend")
		}
		c, err := backend.NewPageCipher(opts.EncryptionKey)
		if err != nil {
			return nil, err
		}
		cipher = c
	}

	if opts.Create {
		if dir := filepath.Dir(path); dir != "." {
			if _, err := os.Stat(dir); err != nil {
				return nil, dberrors.Wrap(dberrors.CantOpenFile, dberrors.DomainPOSIX, "parent directory missing", err)
			}
		}
	}

	var engine backend.Engine
	var err error
	switch opts.Backend {
	case BackendSQL:
		engine, err = backend.OpenSQLite(path, opts.Create)
	default:
		engine, err = backend.OpenBBolt(path, opts.Create, cipher)
	}
	if err != nil {
		return nil, err
	}

	df := &DataFile{
		path:      path,
		opts:      opts,
		engine:    engine,
		cipher:    cipher,
		fileState: acquireFileState(path),
		keyStores: map[string]*KeyStore{},
	}

	if err := df.loadMeta(); err != nil {
		engine.Close()
		releaseFileState(path)
		return nil, err
	}
	return df, nil
}

func (df *DataFile) loadMeta() error {
	return df.engine.View(func(tx backend.ReadTx) error {
		v, found, err := tx.UnsafeGet(metaBucket, []byte(metaKeyPurgeCount))
		if err != nil {
			return err
		}
		if found && len(v) == 8 {
			df.purgeCount = beUint64(v)
		}
		return nil
	})
}

// Close closes all KeyStores; subsequent operations fail with NotOpen.
func (df *DataFile) Close() error {
	df.mu.Lock()
	defer df.mu.Unlock()
	if df.closed {
		return nil
	}
	df.closed = true
	err := df.engine.Close()
	releaseFileState(df.path)
	return err
}

// Path returns the DataFile's path.
func (df *DataFile) Path() string { return df.path }

// PurgeCount returns the monotonic compaction-purge counter.
func (df *DataFile) PurgeCount() uint64 {
	return atomic.LoadUint64(&df.purgeCount)
}

// AllKeyStoreNames lists every KeyStore bucket present in the file.
func (df *DataFile) AllKeyStoreNames() ([]string, error) {
	names, err := df.engine.Buckets()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, n := range names {
		if n == metaBucket || strings.HasSuffix(n, "$seq") {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// DeleteDataFile removes path and every sibling file beginning with path's
// base name (auxiliary WAL/shm/meta files), per spec.md §6.
func DeleteDataFile(path string) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return dberrors.Wrap(dberrors.IOError, dberrors.DomainPOSIX, "readdir failed", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), base) {
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !os.IsNotExist(err) {
				return dberrors.Wrap(dberrors.IOError, dberrors.DomainPOSIX, "remove failed", err)
			}
		}
	}
	return nil
}

// Rekey atomically re-encrypts the file under a new key; must be called
// outside a Transaction (spec.md §4.1), enforced via the same fileState
// used to serialize Transactions.
func (df *DataFile) Rekey(newKey []byte) error {
	df.fileState.mu.Lock()
	inTxn := df.fileState.current != nil
	df.fileState.mu.Unlock()
	if inTxn {
		return dberrors.New(dberrors.InTransaction, "Rekey: cannot run inside an open Transaction")
	}
	if df.opts.Backend != BackendLogStructured {
		return dberrors.New(dberrors.UnsupportedEncryption, "Rekey is only supported on the log-structured backend")
	}
	newCipher, err := backend.NewPageCipher(newKey)
	if err != nil {
		return err
	}
	// Re-encrypt every bucket's values under the new cipher, inside a
	// single Transaction so a crash mid-rekey cannot leave mixed-key data.
	txn, err := df.BeginTransaction()
	if err != nil {
		return err
	}
	names, err := df.engine.Buckets()
	if err != nil {
		txn.Abort()
		return err
	}
	bt := txn.batchTx()
	for _, name := range names {
		var keys, vals [][]byte
		err := bt.UnsafeForEach(name, func(k, v []byte) error {
			keys = append(keys, append([]byte(nil), k...))
			vals = append(vals, append([]byte(nil), v...))
			return nil
		})
		if err != nil {
			txn.Abort()
			return err
		}
		for i := range keys {
			if err := bt.UnsafePut(name, keys[i], vals[i]); err != nil {
				txn.Abort()
				return err
			}
		}
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	df.cipher = newCipher
	return nil
}

// Compact drops soft-deleted records from every KeyStore this DataFile has
// already opened with the SoftDeletes capability and, when any record was
// removed, increments the purge counter. observer, if non-nil, is called
// with (true) before and (false) after.
func (df *DataFile) Compact(observer CompactionObserver) error {
	atomic.AddInt32(&sCompactCount, 1)
	defer atomic.AddInt32(&sCompactCount, -1)

	if observer != nil {
		observer(true)
	}
	defer func() {
		if observer != nil {
			observer(false)
		}
	}()

	names, err := df.AllKeyStoreNames()
	if err != nil {
		return err
	}

	removedAny := false
	for _, name := range names {
		ks, err := df.KeyStore(name, Capabilities{})
		if err != nil {
			return err
		}
		removed, err := ks.compactTombstones()
		if err != nil {
			return err
		}
		if removed {
			removedAny = true
		}
	}

	if removedAny {
		txn, err := df.BeginTransaction()
		if err != nil {
			return err
		}
		newCount := atomic.AddUint64(&df.purgeCount, 1)
		bt := txn.batchTx()
		if err := bt.UnsafeCreateBucket(metaBucket); err != nil {
			txn.Abort()
			return err
		}
		if err := bt.UnsafePut(metaBucket, []byte(metaKeyPurgeCount), beBytes(newCount)); err != nil {
			txn.Abort()
			return err
		}
		if err := txn.Commit(); err != nil {
			return err
		}
	}

	dfLog.Infof("compact: purgeCount=%d", atomic.LoadUint64(&df.purgeCount))
	return nil
}

func beBytes(v uint64) []byte {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = byte(v >> uint(56-8*i))
	}
	return out
}

func beUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}
