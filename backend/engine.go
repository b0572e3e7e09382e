// Package backend defines the minimal per-file contract the two concrete
// storage backends of spec.md §4.1 satisfy, and implements it over
// go.etcd.io/bbolt (the log-structured-style backend; real etcd's own
// mvcc/backend wraps the same library) and modernc.org/sqlite (the
// SQL-relational backend). KeyStore/DataFile, the public API spec.md
// describes, is built on top of Engine in package store.
package backend

// Engine is a single open logical file: it owns the handle and serializes
// transactions, mirroring the teacher's own backend.Backend/BatchTx split
// (mvcc's store holds a `b backend.Backend` and calls `s.b.BatchTx()`,
// `tx.Lock()`, `tx.UnsafePut(...)`, `s.b.ForceCommit()`).
type Engine interface {
	// BatchTx returns the engine's single batch-transaction handle. Callers
	// must Lock it before issuing Unsafe* calls and Unlock when done; this
	// mirrors the per-file single-writer serialization of spec.md §5.
	BatchTx() BatchTx
	// ForceCommit flushes any pending writes durably.
	ForceCommit() error
	// Hash returns a content hash over all buckets, used for consistency
	// checks; ignoreBucket/ignoreKey name one key to skip (mirrors the
	// teacher's DefaultIgnores for "consistent_index").
	Hash(ignoreBucket, ignoreKey string) (uint32, error)
	Close() error
	Path() string
	Buckets() ([]string, error)
	// Size reports the on-disk size of the backing file(s), used for
	// observability and by the inspector CLI.
	Size() (int64, error)
	// View runs fn against a read-only snapshot, independent of and
	// concurrent with any open BatchTx — this is how KeyStore reads avoid
	// needing a Transaction (spec.md §5 "concurrent reads").
	View(fn func(ReadTx) error) error
}

// ReadTx is the read-only subset of BatchTx, used for snapshot reads.
type ReadTx interface {
	UnsafeGet(bucket string, key []byte) (value []byte, found bool, err error)
	UnsafeRange(bucket string, startKey, endKey []byte, limit int, descending bool) (keys, vals [][]byte, err error)
	UnsafeForEach(bucket string, fn func(k, v []byte) error) error
}

// BatchTx is the raw bucket-oriented transaction both backends expose.
// "Unsafe" follows the teacher's own naming: callers must hold the lock.
type BatchTx interface {
	Lock()
	Unlock()

	UnsafeCreateBucket(bucket string) error
	UnsafeDeleteBucket(bucket string) error
	UnsafePut(bucket string, key, value []byte) error
	UnsafeDelete(bucket string, key []byte) error
	UnsafeGet(bucket string, key []byte) (value []byte, found bool, err error)

	// UnsafeRange returns keys/values in [startKey, endKey). endKey == nil
	// means "through the end of the bucket". limit == 0 means unlimited.
	// descending reverses iteration order.
	UnsafeRange(bucket string, startKey, endKey []byte, limit int, descending bool) (keys, vals [][]byte, err error)

	UnsafeForEach(bucket string, fn func(k, v []byte) error) error

	Commit() error
	Rollback() error
}

// Options configures engine construction; both backends accept the subset
// that applies to them.
type Options struct {
	Create      bool
	Writeable   bool
	PageCipher  *PageCipher // nil for no encryption (bbolt engine only)
}
