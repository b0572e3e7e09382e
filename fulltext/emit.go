package fulltext

import (
	"github.com/thistonyuncle/docstore/collatable"
	"github.com/thistonyuncle/docstore/index"
)

// EmitTextTokens implements spec.md §4.10's map-side emission: one special
// row carrying the canonical text (and an optional original emitted
// value), plus one row per distinct token pointing back to fullTextID with
// every occurrence's byte offset/length. Callers indexing more than one
// text field per document must assign each field a distinct fullTextID
// (the spec leaves allocation of this id to the caller).
func EmitTextTokens(tok *Tokenizer, fullTextID uint64, text string, originalValue collatable.Value) []index.Emitted {
	type occurrence struct{ offset, length int }
	positions := make(map[string][]occurrence)
	var order []string

	it := tok.Tokens(text, false)
	for it.Next() {
		tk := it.Token()
		if _, ok := positions[tk.Text]; !ok {
			order = append(order, tk.Text)
		}
		positions[tk.Text] = append(positions[tk.Text], occurrence{tk.Offset, tk.Length})
	}

	specialElems := []collatable.Value{collatable.String(text)}
	if originalValue != nil {
		specialElems = append(specialElems, collatable.Array(originalValue))
	}

	out := make([]index.Emitted, 0, len(order)+1)
	out = append(out, index.Emitted{
		Key:   collatable.FullTextKey(fullTextID),
		Value: collatable.Encode(collatable.Array(specialElems...)),
	})

	for _, word := range order {
		occs := positions[word]
		elems := make([]collatable.Value, 0, 1+2*len(occs))
		elems = append(elems, collatable.FullTextKey(fullTextID))
		for _, o := range occs {
			elems = append(elems, collatable.Int(int64(o.offset)), collatable.Int(int64(o.length)))
		}
		out = append(out, index.Emitted{
			Key:   collatable.String(word),
			Value: collatable.Encode(collatable.Array(elems...)),
		})
	}
	return out
}
