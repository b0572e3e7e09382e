package backend

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/thistonyuncle/docstore/dberrors"
)

// SQLiteEngine is the SQL-relational backend of spec.md §4.1: one
// `kv_<bucket>` table per KeyStore plus the driver's own WAL journal
// (auxiliary `-wal`/`-shm` files). It does not implement getByOffset.
//
// Record structure (meta/body/sequence/deleted) is opaque to this layer —
// store.KeyStore encodes/decodes a Record into a single value blob (see
// store/record_codec.go) so the same generic Engine/BatchTx contract backs
// both the document KeyStores and the index engine's row storage. This
// collapses spec.md's literal five-column `kv_<name>` schema into a
// two-column one; see DESIGN.md for why.
type SQLiteEngine struct {
	path string
	db   *sql.DB
	tx   *sqlBatchTx
}

func bucketTable(bucket string) string {
	return "kv_" + bucket
}

// OpenSQLite opens or creates a SQLite-backed engine at path.
func OpenSQLite(path string, create bool) (*SQLiteEngine, error) {
	if !create {
		if _, err := os.Stat(path); err != nil {
			return nil, dberrors.Wrap(dberrors.CantOpenFile, dberrors.DomainPOSIX, "open", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, dberrors.Wrap(dberrors.CantOpenFile, dberrors.DomainBackendSQL, "sqlite open failed", err)
	}
	db.SetMaxOpenConns(1) // SQLite allows one writer; keep the pool singular like bbolt's single-writer model
	e := &SQLiteEngine{path: path, db: db}
	e.tx = &sqlBatchTx{db: db}
	return e, nil
}

func (e *SQLiteEngine) BatchTx() BatchTx { return e.tx }

func (e *SQLiteEngine) ForceCommit() error { return nil }

func (e *SQLiteEngine) Hash(ignoreBucket, ignoreKey string) (uint32, error) {
	buckets, err := e.Buckets()
	if err != nil {
		return 0, err
	}
	var sum uint32
	for _, bkt := range buckets {
		rows, err := e.db.Query(fmt.Sprintf("SELECT key, value FROM %s ORDER BY key", bucketTable(bkt)))
		if err != nil {
			return 0, dberrors.Wrap(dberrors.IOError, dberrors.DomainBackendSQL, "hash query failed", err)
		}
		for rows.Next() {
			var k, v []byte
			if err := rows.Scan(&k, &v); err != nil {
				rows.Close()
				return 0, dberrors.Wrap(dberrors.IOError, dberrors.DomainBackendSQL, "hash scan failed", err)
			}
			if bkt == ignoreBucket && string(k) == ignoreKey {
				continue
			}
			for _, b := range k {
				sum = sum*31 + uint32(b)
			}
			for _, b := range v {
				sum = sum*31 + uint32(b)
			}
		}
		rows.Close()
	}
	return sum, nil
}

func (e *SQLiteEngine) Close() error { return e.db.Close() }

func (e *SQLiteEngine) Path() string { return e.path }

func (e *SQLiteEngine) Buckets() ([]string, error) {
	rows, err := e.db.Query("SELECT name FROM sqlite_master WHERE type='table' AND name LIKE 'kv_%'")
	if err != nil {
		return nil, dberrors.Wrap(dberrors.IOError, dberrors.DomainBackendSQL, "listing tables failed", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, strings.TrimPrefix(n, "kv_"))
	}
	return names, nil
}

func (e *SQLiteEngine) Size() (int64, error) {
	fi, err := os.Stat(e.path)
	if err != nil {
		return 0, dberrors.Wrap(dberrors.IOError, dberrors.DomainPOSIX, "stat failed", err)
	}
	return fi.Size(), nil
}

func (e *SQLiteEngine) View(fn func(ReadTx) error) error {
	tx, err := e.db.Begin()
	if err != nil {
		return dberrors.Wrap(dberrors.IOError, dberrors.DomainBackendSQL, "begin read tx failed", err)
	}
	defer tx.Rollback()
	return fn(&sqlReadTx{tx: tx})
}

// sqlBatchTx mirrors bboltEngine's batchTx: a lazily-begun *sql.Tx reused
// across Lock/Unlock calls until Commit/Rollback.
type sqlBatchTx struct {
	mu sync.Mutex
	db *sql.DB
	tx *sql.Tx
}

func (b *sqlBatchTx) Lock() {
	b.mu.Lock()
	if b.tx == nil {
		tx, err := b.db.Begin()
		if err == nil {
			b.tx = tx
		}
	}
}

func (b *sqlBatchTx) Unlock() { b.mu.Unlock() }

func (b *sqlBatchTx) current() (*sql.Tx, error) {
	if b.tx == nil {
		return nil, dberrors.New(dberrors.NoTransaction, "sqlBatchTx: not locked")
	}
	return b.tx, nil
}

func (b *sqlBatchTx) UnsafeCreateBucket(bucket string) error {
	tx, err := b.current()
	if err != nil {
		return err
	}
	_, err = tx.Exec(fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (key BLOB PRIMARY KEY, value BLOB)", bucketTable(bucket)))
	if err != nil {
		return dberrors.Wrap(dberrors.IOError, dberrors.DomainBackendSQL, "create table failed", err)
	}
	return nil
}

func (b *sqlBatchTx) UnsafeDeleteBucket(bucket string) error {
	tx, err := b.current()
	if err != nil {
		return err
	}
	_, err = tx.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", bucketTable(bucket)))
	return err
}

func (b *sqlBatchTx) UnsafePut(bucket string, key, value []byte) error {
	tx, err := b.current()
	if err != nil {
		return err
	}
	_, err = tx.Exec(fmt.Sprintf("INSERT OR REPLACE INTO %s(key, value) VALUES(?, ?)", bucketTable(bucket)), key, value)
	if err != nil {
		return dberrors.Wrap(dberrors.IOError, dberrors.DomainBackendSQL, "put failed", err)
	}
	return nil
}

func (b *sqlBatchTx) UnsafeDelete(bucket string, key []byte) error {
	tx, err := b.current()
	if err != nil {
		return err
	}
	_, err = tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE key = ?", bucketTable(bucket)), key)
	return err
}

func (b *sqlBatchTx) UnsafeGet(bucket string, key []byte) ([]byte, bool, error) {
	tx, err := b.current()
	if err != nil {
		return nil, false, nil
	}
	return scanGet(tx, bucket, key)
}

func (b *sqlBatchTx) UnsafeRange(bucket string, startKey, endKey []byte, limit int, descending bool) ([][]byte, [][]byte, error) {
	tx, err := b.current()
	if err != nil {
		return nil, nil, nil
	}
	return scanRange(tx, bucket, startKey, endKey, limit, descending)
}

func (b *sqlBatchTx) UnsafeForEach(bucket string, fn func(k, v []byte) error) error {
	tx, err := b.current()
	if err != nil {
		return nil
	}
	return scanForEach(tx, bucket, fn)
}

func (b *sqlBatchTx) Commit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tx == nil {
		return nil
	}
	err := b.tx.Commit()
	b.tx = nil
	if err != nil {
		return dberrors.Wrap(dberrors.CommitFailed, dberrors.DomainBackendSQL, "sqlite commit failed", err)
	}
	return nil
}

func (b *sqlBatchTx) Rollback() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tx == nil {
		return nil
	}
	err := b.tx.Rollback()
	b.tx = nil
	return err
}

type sqlQuerier interface {
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

func scanGet(q sqlQuerier, bucket string, key []byte) ([]byte, bool, error) {
	row := q.QueryRow(fmt.Sprintf("SELECT value FROM %s WHERE key = ?", bucketTable(bucket)), key)
	var v []byte
	if err := row.Scan(&v); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, nil // table may not exist yet; treat as not found
	}
	return v, true, nil
}

func scanRange(q sqlQuerier, bucket string, startKey, endKey []byte, limit int, descending bool) ([][]byte, [][]byte, error) {
	query := fmt.Sprintf("SELECT key, value FROM %s WHERE 1=1", bucketTable(bucket))
	var args []interface{}
	if startKey != nil {
		query += " AND key >= ?"
		args = append(args, startKey)
	}
	if endKey != nil {
		query += " AND key < ?"
		args = append(args, endKey)
	}
	if descending {
		query += " ORDER BY key DESC"
	} else {
		query += " ORDER BY key ASC"
	}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, nil, nil // bucket/table absent
	}
	defer rows.Close()
	var keys, vals [][]byte
	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, nil, dberrors.Wrap(dberrors.IOError, dberrors.DomainBackendSQL, "range scan failed", err)
		}
		keys = append(keys, k)
		vals = append(vals, v)
	}
	return keys, vals, nil
}

func scanForEach(q sqlQuerier, bucket string, fn func(k, v []byte) error) error {
	keys, vals, err := scanRange(q, bucket, nil, nil, 0, false)
	if err != nil {
		return err
	}
	for i := range keys {
		if err := fn(keys[i], vals[i]); err != nil {
			return err
		}
	}
	return nil
}

type sqlReadTx struct {
	tx *sql.Tx
}

func (r *sqlReadTx) UnsafeGet(bucket string, key []byte) ([]byte, bool, error) {
	return scanGet(r.tx, bucket, key)
}

func (r *sqlReadTx) UnsafeRange(bucket string, startKey, endKey []byte, limit int, descending bool) ([][]byte, [][]byte, error) {
	return scanRange(r.tx, bucket, startKey, endKey, limit, descending)
}

func (r *sqlReadTx) UnsafeForEach(bucket string, fn func(k, v []byte) error) error {
	return scanForEach(r.tx, bucket, fn)
}
