package revstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thistonyuncle/docstore/store"
	"github.com/thistonyuncle/docstore/vvec"
)

func openTestStore(t *testing.T, localID string) (*store.DataFile, *RevisionStore) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.docstore")
	df, err := store.Open(path, store.Options{Create: true, Writeable: true, Backend: store.BackendLogStructured})
	require.NoError(t, err)
	t.Cleanup(func() { df.Close() })
	rs, err := Open(df, localID)
	require.NoError(t, err)
	return df, rs
}

func TestCreateFirstRevision(t *testing.T) {
	df, rs := openTestStore(t, "peerA")
	txn, err := df.BeginTransaction()
	require.NoError(t, err)
	rev, ok, err := rs.Create("doc1", vvec.VersionVector{}, []byte("body"), "note", txn)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, txn.Commit())

	head, _ := rev.Vector.Current()
	assert.Equal(t, "peerA", head.Author)
	assert.Equal(t, uint64(1), head.Generation)

	got, exists, err := rs.Get("doc1")
	require.NoError(t, err)
	require.True(t, exists)
	assert.Equal(t, []byte("body"), got.Body)
}

func TestCreateRejectsConflictingParent(t *testing.T) {
	df, rs := openTestStore(t, "peerA")
	txn, _ := df.BeginTransaction()
	rs.Create("doc1", vvec.VersionVector{}, []byte("body"), "", txn)
	require.NoError(t, txn.Commit())

	txn, _ = df.BeginTransaction()
	stale := vvec.VersionVector{}
	_, ok, err := rs.Create("doc1", stale, []byte("body2"), "", txn)
	require.NoError(t, err)
	assert.False(t, ok)
	txn.Abort()
}

func TestInsertNewerReplacesCurrent(t *testing.T) {
	df, rs := openTestStore(t, "peerA")
	txn, _ := df.BeginTransaction()
	rs.Create("doc1", vvec.VersionVector{}, []byte("v1"), "", txn)
	require.NoError(t, txn.Commit())

	newVector, err := vvec.Parse("2@peerA")
	require.NoError(t, err)
	incoming := Revision{DocID: "doc1", Vector: newVector, Body: []byte("v2")}

	txn, _ = df.BeginTransaction()
	result, err := rs.Insert(incoming, txn)
	require.NoError(t, err)
	assert.Equal(t, vvec.Newer, result)
	require.NoError(t, txn.Commit())

	got, _, _ := rs.Get("doc1")
	assert.Equal(t, []byte("v2"), got.Body)
}

func TestInsertConflictingStoresNonCurrent(t *testing.T) {
	df, rs := openTestStore(t, "peerA")
	txn, _ := df.BeginTransaction()
	rs.Create("doc1", vvec.VersionVector{}, []byte("v1"), "", txn)
	require.NoError(t, txn.Commit())

	conflictVector, err := vvec.Parse("1@peerB")
	require.NoError(t, err)
	incoming := Revision{DocID: "doc1", Vector: conflictVector, Body: []byte("conflict")}

	txn, _ = df.BeginTransaction()
	result, err := rs.Insert(incoming, txn)
	require.NoError(t, err)
	assert.Equal(t, vvec.Conflicting, result)
	require.NoError(t, txn.Commit())

	cur, _, _ := rs.Get("doc1")
	assert.True(t, cur.IsConflicted())

	revs, err := rs.ConflictingRevisions("doc1")
	require.NoError(t, err)
	require.Len(t, revs, 1)
	assert.Equal(t, []byte("conflict"), revs[0].Body)
}

func TestResolveConflictMergesVectors(t *testing.T) {
	df, rs := openTestStore(t, "peerA")
	txn, _ := df.BeginTransaction()
	rs.Create("doc1", vvec.VersionVector{}, []byte("v1"), "", txn)
	require.NoError(t, txn.Commit())

	conflictVector, _ := vvec.Parse("1@peerB")
	incoming := Revision{DocID: "doc1", Vector: conflictVector, Body: []byte("conflict")}
	txn, _ = df.BeginTransaction()
	rs.Insert(incoming, txn)
	require.NoError(t, txn.Commit())

	cur, _, _ := rs.Get("doc1")
	conflicting, err := rs.ConflictingRevisions("doc1")
	require.NoError(t, err)

	txn, _ = df.BeginTransaction()
	merged, err := rs.ResolveConflict("doc1", append(conflicting, cur), []byte("merged"), "", txn)
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	assert.Equal(t, []byte("merged"), merged.Body)
	got, _, _ := rs.Get("doc1")
	assert.False(t, got.IsConflicted())

	remaining, err := rs.ConflictingRevisions("doc1")
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestCheckRevision(t *testing.T) {
	df, rs := openTestStore(t, "peerA")
	txn, _ := df.BeginTransaction()
	rs.Create("doc1", vvec.VersionVector{}, []byte("v1"), "", txn)
	require.NoError(t, txn.Commit())

	result, err := rs.CheckRevision("doc1", vvec.Version{Generation: 1, Author: "peerA"})
	require.NoError(t, err)
	assert.Equal(t, vvec.Same, result)

	// The doc is at 1@peerA, so it lacks 2@peerA.
	result, err = rs.CheckRevision("doc1", vvec.Version{Generation: 2, Author: "peerA"})
	require.NoError(t, err)
	assert.Equal(t, vvec.Newer, result)
}
