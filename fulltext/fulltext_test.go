package fulltext

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thistonyuncle/docstore/index"
	"github.com/thistonyuncle/docstore/store"
)

func TestTokenizerSplitsAndStemsWords(t *testing.T) {
	tok := NewTokenizer("english", false)
	it := tok.Tokens("The quick cats are jumping", false)
	var words []string
	for it.Next() {
		words = append(words, it.Token().Text)
	}
	// "the" and "are" are stop words and dropped.
	assert.Equal(t, []string{"quick", "cat", "jump"}, words)
}

func TestTokenizerUniqueDeduplicates(t *testing.T) {
	tok := NewTokenizer("english", false)
	it := tok.Tokens("cat cat cats", true)
	var words []string
	for it.Next() {
		words = append(words, it.Token().Text)
	}
	assert.Equal(t, []string{"cat"}, words)
}

func TestTokenizerRemovesDiacritics(t *testing.T) {
	tok := NewTokenizer("", true)
	it := tok.Tokens("café", false)
	require.True(t, it.Next())
	assert.Equal(t, "cafe", it.Token().Text)
}

func openTestFullText(t *testing.T) (*store.DataFile, *Index) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.docstore")
	df, err := store.Open(path, store.Options{Create: true, Writeable: true, Backend: store.BackendLogStructured})
	require.NoError(t, err)
	t.Cleanup(func() { df.Close() })
	ks, err := df.KeyStore("fulltext", store.Capabilities{Sequences: true})
	require.NoError(t, err)
	return df, Open(ks, NewTokenizer("english", false))
}

func indexDoc(t *testing.T, df *store.DataFile, fi *Index, docID string, sequence uint64, text string) {
	t.Helper()
	emitted := EmitTextTokens(fi.tok, 0, text, nil)
	w := index.NewWriter(fi.Underlying())
	defer w.Close()
	txn, err := df.BeginTransaction()
	require.NoError(t, err)
	var rowCount int64
	_, err = w.Update(docID, sequence, emitted, txn, &rowCount)
	require.NoError(t, err)
	require.NoError(t, txn.Commit())
}

func TestQueryFindsDocumentMatchingAllTerms(t *testing.T) {
	df, fi := openTestFullText(t)
	indexDoc(t, df, fi, "doc1", 1, "the quick brown fox jumps")
	indexDoc(t, df, fi, "doc2", 2, "a lazy dog sleeps")

	results, err := fi.Query("quick fox", false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc1", results[0].DocID)
}

func TestQueryRequiresEveryTerm(t *testing.T) {
	df, fi := openTestFullText(t)
	indexDoc(t, df, fi, "doc1", 1, "quick brown fox")
	indexDoc(t, df, fi, "doc2", 2, "quick lazy dog")

	results, err := fi.Query("quick fox", false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc1", results[0].DocID)
}

func TestQueryRankedOrdersByTermRarity(t *testing.T) {
	df, fi := openTestFullText(t)
	indexDoc(t, df, fi, "doc1", 1, "fox fox fox rare")
	indexDoc(t, df, fi, "doc2", 2, "fox rare")

	results, err := fi.Query("fox rare", true)
	require.NoError(t, err)
	require.Len(t, results, 2)
	// fox occurs 4 times in all and rare twice: doc1 ranks 3/4 + 1/2 = 1.25,
	// doc2 ranks 1/4 + 1/2 = 0.75, so doc1 comes first.
	ids := map[string]bool{results[0].DocID: true, results[1].DocID: true}
	assert.True(t, ids["doc1"])
	assert.True(t, ids["doc2"])
	assert.Equal(t, "doc1", results[0].DocID)
	assert.Greater(t, results[0].Rank, results[1].Rank)
}

func TestTermMatchesSortedByStart(t *testing.T) {
	df, fi := openTestFullText(t)
	indexDoc(t, df, fi, "doc1", 1, "fox saw another fox near the fox den")

	results, err := fi.Query("fox", false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	matches := results[0].Matches
	for i := 1; i < len(matches); i++ {
		assert.LessOrEqual(t, matches[i-1].Start, matches[i].Start)
	}
}
