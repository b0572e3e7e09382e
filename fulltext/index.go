package fulltext

import (
	"sort"

	"github.com/thistonyuncle/docstore/collatable"
	"github.com/thistonyuncle/docstore/dberrors"
	"github.com/thistonyuncle/docstore/index"
	"github.com/thistonyuncle/docstore/store"
)

// Index is a full-text index: a generic Index plus the Tokenizer used for
// both emission and querying, per spec.md §4.10 ("Tokenize the query with
// the index's tokenizer").
type Index struct {
	idx *index.Index
	tok *Tokenizer
}

// Open returns a full-text Index over ks, queried and populated with tok.
func Open(ks *store.KeyStore, tok *Tokenizer) *Index {
	return &Index{idx: index.Open(ks), tok: tok}
}

// Underlying returns the generic Index.
func (fi *Index) Underlying() *index.Index { return fi.idx }

// TermMatch is one occurrence of a query term within the matched text, per
// spec.md §4.10. TermMatch order is by Start ascending.
type TermMatch struct {
	TermIndex int
	Start     int
	Length    int
}

// Match is one surviving result of a full-text query: a (docID, sequence)
// pair that matched every term of the query string.
type Match struct {
	DocID      string
	Sequence   uint64
	FullTextID uint64
	Matches    []TermMatch
	Rank       float64
}

type candidate struct {
	docID         string
	sequence      uint64
	fullTextID    uint64
	matches       []TermMatch
	lastTermIndex int
}

func decodeTermRow(value []byte, termIndex int) (fullTextID uint64, matches []TermMatch, err error) {
	r := collatable.NewReader(value)
	if err := r.BeginArray(); err != nil {
		return 0, nil, err
	}
	fullTextID, err = r.ReadFullTextKey()
	if err != nil {
		return 0, nil, err
	}
	for !r.AtSequenceEnd() {
		offset, err := r.ReadInt()
		if err != nil {
			return 0, nil, err
		}
		length, err := r.ReadInt()
		if err != nil {
			return 0, nil, err
		}
		matches = append(matches, TermMatch{TermIndex: termIndex, Start: int(offset), Length: int(length)})
	}
	if err := r.EndArray(); err != nil {
		return 0, nil, err
	}
	return fullTextID, matches, nil
}

// Query runs a full-text search over fi, per spec.md §4.10: tokenizes
// queryString with unique=true, opens an IndexEnumerator over each
// distinct term's rows in term order, and joins by (sequence, fullTextID),
// keeping only rows present for every term. If ranked, results are sorted
// by sum(1/totalMatchesForTerm) descending.
func (fi *Index) Query(queryString string, ranked bool) ([]Match, error) {
	var terms []string
	it := fi.tok.Tokens(queryString, true)
	for it.Next() {
		terms = append(terms, it.Token().Text)
	}
	if len(terms) == 0 {
		return nil, nil
	}

	live := make(map[[2]uint64]*candidate) // (sequence, fullTextID) -> candidate
	keyOf := func(seq, fullTextID uint64) [2]uint64 { return [2]uint64{seq, fullTextID} }
	termTotals := make([]int, len(terms))

	for i, term := range terms {
		min, max := index.KeyRangeForExactKey(collatable.String(term))
		en := index.NewEnumerator(fi.idx, []index.KeyRange{{Min: min, Max: max, InclusiveEnd: true}}, store.DefaultEnumOptions(), nil)

		seenThisRound := make(map[[2]uint64]bool)
		for {
			ok, err := en.Next()
			if err != nil {
				en.Close()
				return nil, err
			}
			if !ok {
				break
			}
			row := en.Row()
			fullTextID, matches, err := decodeTermRow(row.Value, i)
			if err != nil {
				en.Close()
				return nil, err
			}
			termTotals[i] += len(matches)

			docID, _, err := index.DecodeRowKey(row.Key)
			if err != nil {
				en.Close()
				return nil, err
			}
			k := keyOf(row.Sequence, fullTextID)
			seenThisRound[k] = true

			if i == 0 {
				live[k] = &candidate{docID: docID, sequence: row.Sequence, fullTextID: fullTextID, matches: matches, lastTermIndex: 0}
				continue
			}
			c, ok := live[k]
			if !ok || c.lastTermIndex != i-1 {
				continue // missed an earlier term, can never survive
			}
			c.matches = append(c.matches, matches...)
			c.lastTermIndex = i
		}
		en.Close()

		if i > 0 {
			for k, c := range live {
				if !seenThisRound[k] && c.lastTermIndex < i {
					delete(live, k)
				}
			}
		}
	}

	var results []Match
	lastTerm := len(terms) - 1
	for _, c := range live {
		if c.lastTermIndex != lastTerm {
			continue
		}
		sort.Slice(c.matches, func(a, b int) bool { return c.matches[a].Start < c.matches[b].Start })
		m := Match{DocID: c.docID, Sequence: c.sequence, FullTextID: c.fullTextID, Matches: c.matches}
		if ranked {
			var rank float64
			for _, tm := range c.matches {
				if total := termTotals[tm.TermIndex]; total > 0 {
					rank += 1.0 / float64(total)
				}
			}
			m.Rank = rank
		}
		results = append(results, m)
	}
	if ranked {
		sort.Slice(results, func(a, b int) bool { return results[a].Rank > results[b].Rank })
	}
	return results, nil
}

// ReadText returns the canonical indexed text (and raw original-value
// bytes, if any) for one special row, identified by the docID and
// emitIndex the map function assigned it (the position of the
// EmitTextTokens call's first Emitted within that document's full
// emission list).
func (fi *Index) ReadText(docID string, fullTextID uint64, emitIndex int) (string, []byte, error) {
	row, err := fi.idx.KeyStore().Get(index.RowKey(collatable.FullTextKey(fullTextID), docID, emitIndex), false)
	if err != nil {
		return "", nil, err
	}
	if !row.Exists {
		return "", nil, dberrors.New(dberrors.NotFound, "ReadText: no special row for fullTextID")
	}
	r := collatable.NewReader(row.Body)
	if err := r.BeginArray(); err != nil {
		return "", nil, err
	}
	text, err := r.ReadString()
	if err != nil {
		return "", nil, err
	}
	var original []byte
	if !r.AtSequenceEnd() {
		if err := r.BeginArray(); err != nil {
			return "", nil, err
		}
		raw, err := r.Read()
		if err != nil {
			return "", nil, err
		}
		original = raw
		if err := r.EndArray(); err != nil {
			return "", nil, err
		}
	}
	if err := r.EndArray(); err != nil {
		return "", nil, err
	}
	return text, original, nil
}
