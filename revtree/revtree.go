package revtree

import (
	"sort"

	"github.com/thistonyuncle/docstore/dberrors"
	"github.com/thistonyuncle/docstore/doclog"
	"github.com/thistonyuncle/docstore/varint"
)

var rtLog = doclog.New("revtree")

// Flags are the per-revision bits of spec.md §3.
type Flags uint8

const (
	FlagDeleted Flags = 1 << iota
	FlagLeaf
	FlagNew
	FlagHasAttachments
)

const noParent = -1

// revision is the arena element; RevTree stores these by value and refers
// to parents by integer index, per spec.md §4.4's "arena+index" guidance
// ("never store an external reference to a revision beyond the lifetime of
// the enclosing tree").
type revision struct {
	revID         RevID
	parentIndex   int
	sequence      uint64
	flags         Flags
	inlineBody    []byte
	oldBodyOffset uint64
}

// RevTree is an ordered sequence of revisions for one document, per
// spec.md §3/§4.4.
type RevTree struct {
	revs []revision
}

// New returns an empty RevTree.
func New() *RevTree { return &RevTree{} }

// Node is a read handle on one revision, injected with its owning tree at
// read time (spec.md §4.4's "owner back-pointer"). A Node is valid only as
// long as the RevTree it came from is not subsequently mutated.
type Node struct {
	tree  *RevTree
	index int
}

func (n Node) valid() bool { return n.tree != nil && n.index >= 0 && n.index < len(n.tree.revs) }

func (n Node) r() revision {
	if !n.valid() {
		return revision{parentIndex: noParent}
	}
	return n.tree.revs[n.index]
}

func (n Node) RevID() RevID           { return n.r().revID }
func (n Node) Sequence() uint64       { return n.r().sequence }
func (n Node) Flags() Flags           { return n.r().flags }
func (n Node) IsLeaf() bool           { return n.r().flags&FlagLeaf != 0 }
func (n Node) IsDeleted() bool        { return n.r().flags&FlagDeleted != 0 }
func (n Node) IsNew() bool            { return n.r().flags&FlagNew != 0 }
func (n Node) HasAttachments() bool   { return n.r().flags&FlagHasAttachments != 0 }
func (n Node) InlineBody() []byte     { return n.r().inlineBody }
func (n Node) OldBodyOffset() uint64  { return n.r().oldBodyOffset }
func (n Node) Index() int             { return n.index }

// Parent returns the parent Node, or ok=false at a root.
func (n Node) Parent() (Node, bool) {
	r := n.r()
	if r.parentIndex == noParent {
		return Node{}, false
	}
	return Node{tree: n.tree, index: r.parentIndex}, true
}

// BodyGetter loads a historic revision's body by its old_body_offset, when
// no inline body is stored — the RevTree-side half of spec.md §4.4's "Body
// loading" contract. KeyStore.GetByOffset returns a Record rather than
// (body, found), so it serves as a BodyGetter through a small adapter.
type BodyGetter func(offset, sequence uint64) (body []byte, found bool)

// Body returns n's body, loading it via get if it has no inline body but a
// non-zero old_body_offset. Returns ok=false if unavailable.
func (n Node) Body(get BodyGetter) ([]byte, bool) {
	r := n.r()
	if r.inlineBody != nil {
		return r.inlineBody, true
	}
	if r.oldBodyOffset == 0 || get == nil {
		return nil, false
	}
	body, found := get(r.oldBodyOffset, r.sequence)
	if !found {
		return nil, false
	}
	return body, true
}

// Size is the number of revisions currently in the tree.
func (t *RevTree) Size() int { return len(t.revs) }

// Get finds the revision matching revID.
func (t *RevTree) Get(revID RevID) (Node, bool) {
	for i, r := range t.revs {
		if r.revID.Equal(revID) {
			return Node{tree: t, index: i}, true
		}
	}
	return Node{}, false
}

// CurrentRevision returns the tree's winning revision: the tree is kept
// sorted after every mutation so that element 0 — leaves before
// non-leaves, non-deleted before deleted, ties broken by revID descending
// (see sortRevisions) — is always the current one.
func (t *RevTree) CurrentRevision() (Node, bool) {
	if len(t.revs) == 0 {
		return Node{}, false
	}
	return Node{tree: t, index: 0}, true
}

// Leaves returns every leaf revision, in tree order.
func (t *RevTree) Leaves() []Node {
	var out []Node
	for i, r := range t.revs {
		if r.flags&FlagLeaf != 0 {
			out = append(out, Node{tree: t, index: i})
		}
	}
	return out
}

// InsertResult is the outcome of Insert.
type InsertResult struct {
	Rev        Node
	HTTPStatus int
}

// Insert implements spec.md §4.4's insert contract. parentRevID is nil for
// a new root.
func (t *RevTree) Insert(revID RevID, body []byte, deleted, hasAttachments bool, parentRevID *RevID, allowConflict bool) (InsertResult, error) {
	if revID.Generation == 0 {
		return InsertResult{HTTPStatus: 400}, nil
	}
	if _, exists := t.Get(revID); exists {
		return InsertResult{HTTPStatus: 200}, nil
	}

	parentIndex := noParent
	var parentGen uint64
	if parentRevID != nil {
		pn, ok := t.Get(*parentRevID)
		if !ok {
			return InsertResult{HTTPStatus: 404}, nil
		}
		parentIndex = pn.index
		parentGen = pn.RevID().Generation

		if !allowConflict && !pn.IsLeaf() {
			return InsertResult{HTTPStatus: 409}, nil
		}
	} else if !allowConflict && len(t.revs) > 0 {
		return InsertResult{HTTPStatus: 409}, nil
	}

	wantGen := parentGen + 1
	if parentRevID == nil {
		wantGen = 1
	}
	if revID.Generation != wantGen {
		return InsertResult{HTTPStatus: 400}, nil
	}

	flags := FlagLeaf | FlagNew
	if deleted {
		flags |= FlagDeleted
	}
	if hasAttachments {
		flags |= FlagHasAttachments
	}
	newIndex := len(t.revs)
	t.revs = append(t.revs, revision{
		revID:       revID,
		parentIndex: parentIndex,
		flags:       flags,
		inlineBody:  body,
	})
	if parentIndex != noParent {
		t.revs[parentIndex].flags &^= FlagLeaf
	}

	t.sortRevisions()
	node, _ := t.Get(revID)
	status := 201
	if deleted {
		status = 200
	}
	return InsertResult{Rev: node, HTTPStatus: status}, nil
}

// InsertHistory implements spec.md §4.4's insertHistory: history is
// ordered newest-to-oldest. Returns the index within history of the
// common ancestor (the newest entry already present in the tree),
// len(history) if none of history's entries
// were already present (a clean new-root insert, not an error), or -1 if
// history's generations are non-contiguous or the chain insert was
// rejected (a genuine error).
func (t *RevTree) InsertHistory(history []RevID, body []byte, deleted, hasAttachments, allowConflict bool) (int, error) {
	if len(history) == 0 {
		return -1, dberrors.New(dberrors.InvalidParameter, "insertHistory: empty history")
	}
	for i := 1; i < len(history); i++ {
		if history[i-1].Generation != history[i].Generation+1 {
			return -1, dberrors.New(dberrors.BadRevisionID, "insertHistory: non-contiguous generations")
		}
	}

	commonIndex := -1
	newestAlreadyPresent := -1
	for i, revID := range history {
		if n, ok := t.Get(revID); ok {
			commonIndex = n.index
			newestAlreadyPresent = i
			break
		}
	}
	if newestAlreadyPresent == 0 {
		return 0, nil // nothing new to insert
	}

	// Insert from oldest-new entry down to the newest, chaining parents.
	var parentRevID *RevID
	if commonIndex >= 0 {
		rid := t.revs[commonIndex].revID
		parentRevID = &rid
	}
	end := len(history)
	if newestAlreadyPresent >= 0 {
		end = newestAlreadyPresent
	}
	for i := end - 1; i >= 0; i-- {
		isNewest := i == 0
		entryDeleted, entryAttachments := false, false
		var entryBody []byte
		if isNewest {
			entryDeleted, entryAttachments, entryBody = deleted, hasAttachments, body
		}
		res, err := t.Insert(history[i], entryBody, entryDeleted, entryAttachments, parentRevID, allowConflict || !isNewest)
		if err != nil {
			return -1, err
		}
		if res.HTTPStatus >= 400 {
			return -1, dberrors.New(dberrors.BadRevisionID, "insertHistory: chain insert rejected")
		}
		rid := history[i]
		parentRevID = &rid
	}
	if commonIndex < 0 {
		// No ancestor found anywhere in history: a clean new-root insert,
		// distinct from the generation-sequence error above. len(history)
		// is never a valid history index, so it is an unambiguous sentinel.
		return len(history), nil
	}
	return newestAlreadyPresent, nil
}

// sortRevisions re-sorts t.revs per spec.md §4.4's sibling order (leaves
// before non-leaves, non-deleted before deleted, ties by revID descending)
// and remaps every parentIndex through the old→new index table built
// during the sort.
func (t *RevTree) sortRevisions() {
	n := len(t.revs)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := t.revs[order[i]], t.revs[order[j]]
		aLeaf, bLeaf := a.flags&FlagLeaf != 0, b.flags&FlagLeaf != 0
		if aLeaf != bLeaf {
			return aLeaf
		}
		aDel, bDel := a.flags&FlagDeleted != 0, b.flags&FlagDeleted != 0
		if aDel != bDel {
			return !aDel
		}
		return a.revID.Compare(b.revID) > 0
	})

	oldToNew := make([]int, n)
	newRevs := make([]revision, n)
	for newIdx, oldIdx := range order {
		oldToNew[oldIdx] = newIdx
		newRevs[newIdx] = t.revs[oldIdx]
	}
	for i := range newRevs {
		if newRevs[i].parentIndex != noParent {
			newRevs[i].parentIndex = oldToNew[newRevs[i].parentIndex]
		}
	}
	t.revs = newRevs
}

// Prune implements spec.md §4.4: from every leaf, trace the parent chain;
// revisions within maxDepth of some leaf are marked kept, and compact
// drops every other revision.
func (t *RevTree) Prune(maxDepth int) int {
	keep := make([]bool, len(t.revs))
	for i, r := range t.revs {
		if r.flags&FlagLeaf == 0 {
			continue
		}
		depth := 0
		idx := i
		for idx != noParent && depth < maxDepth {
			keep[idx] = true
			idx = t.revs[idx].parentIndex
			depth++
		}
	}
	return t.compact(keep)
}

// Purge implements spec.md §4.4: marks revID's leaf purged, then walks
// upward clearing any ancestor whose only descendant was the purged
// branch, recomputing leaf state as it goes.
func (t *RevTree) Purge(revID RevID) int {
	n, ok := t.Get(revID)
	if !ok {
		return 0
	}
	keep := make([]bool, len(t.revs))
	for i := range keep {
		keep[i] = true
	}
	keep[n.index] = false

	// Any other revision whose parent chain still reaches a kept leaf
	// stays; walk from n upward, dropping ancestors that have no other
	// kept child.
	hasKeptChild := make([]bool, len(t.revs))
	for i, r := range t.revs {
		if keep[i] && r.parentIndex != noParent {
			hasKeptChild[r.parentIndex] = true
		}
	}
	idx := t.revs[n.index].parentIndex
	for idx != noParent && !hasKeptChild[idx] {
		next := t.revs[idx].parentIndex
		keep[idx] = false
		idx = next
	}
	return t.compact(keep)
}

// compact drops every revision not marked keep, remapping parentIndex
// through the resulting old→new table (dropped parents become roots'
// worth of orphans removed transitively since callers only drop whole
// dangling chains).
func (t *RevTree) compact(keep []bool) int {
	oldToNew := make([]int, len(t.revs))
	var newRevs []revision
	removed := 0
	for i, r := range t.revs {
		if !keep[i] {
			oldToNew[i] = noParent
			removed++
			continue
		}
		oldToNew[i] = len(newRevs)
		newRevs = append(newRevs, r)
	}
	for i := range newRevs {
		if newRevs[i].parentIndex != noParent {
			newRevs[i].parentIndex = oldToNew[newRevs[i].parentIndex]
		}
	}
	t.revs = newRevs
	if removed > 0 {
		rtLog.Debugf("compact: removed %d revisions", removed)
	}
	return removed
}

// Encode serializes the tree per spec.md §4.4: concatenated
// {size,parentIndex,flags,revIDLen,revID,sequence,body-or-offset} records
// terminated by a four-byte zero.
func (t *RevTree) Encode() []byte {
	var out []byte
	for _, r := range t.revs {
		rec := encodeRevision(r)
		out = varint.PutBEUint32(out, uint32(len(rec)))
		out = append(out, rec...)
	}
	out = varint.PutBEUint32(out, 0)
	return out
}

func encodeRevision(r revision) []byte {
	pIdx := uint16(0xFFFF)
	if r.parentIndex != noParent {
		pIdx = uint16(r.parentIndex)
	}
	var out []byte
	out = varint.PutBEUint16(out, pIdx)
	out = append(out, byte(r.flags))
	ridBytes := r.revID.Encode()
	out = append(out, byte(len(ridBytes)))
	out = append(out, ridBytes...)
	out = varint.PutUvarint(out, r.sequence)
	out = varint.PutUvarint(out, r.oldBodyOffset)
	out = varint.PutUvarint(out, uint64(len(r.inlineBody)))
	if len(r.inlineBody) > 0 {
		out = append(out, r.inlineBody...)
	}
	return out
}

// Decode reverses Encode.
func Decode(data []byte) (*RevTree, error) {
	t := &RevTree{}
	for len(data) > 0 {
		if len(data) < 4 {
			return nil, dberrors.New(dberrors.CorruptRevisionData, "revtree: truncated record size")
		}
		size := varint.BEUint32(data)
		data = data[4:]
		if size == 0 {
			break
		}
		if uint64(len(data)) < uint64(size) {
			return nil, dberrors.New(dberrors.CorruptRevisionData, "revtree: truncated record")
		}
		rec := data[:size]
		data = data[size:]
		r, err := decodeRevision(rec)
		if err != nil {
			return nil, err
		}
		t.revs = append(t.revs, r)
	}
	return t, nil
}

func decodeRevision(rec []byte) (revision, error) {
	corrupt := func() (revision, error) {
		return revision{}, dberrors.New(dberrors.CorruptRevisionData, "revtree: malformed revision record")
	}
	if len(rec) < 2 {
		return corrupt()
	}
	pIdx := varint.BEUint16(rec)
	rec = rec[2:]
	if len(rec) < 1 {
		return corrupt()
	}
	flags := Flags(rec[0])
	rec = rec[1:]
	if len(rec) < 1 {
		return corrupt()
	}
	ridLen := int(rec[0])
	rec = rec[1:]
	if len(rec) < ridLen {
		return corrupt()
	}
	revID, err := DecodeRevID(rec[:ridLen])
	if err != nil {
		return revision{}, err
	}
	rec = rec[ridLen:]

	seq, n := varint.Uvarint(rec)
	if n <= 0 {
		return corrupt()
	}
	rec = rec[n:]

	offset, n := varint.Uvarint(rec)
	if n <= 0 {
		return corrupt()
	}
	rec = rec[n:]

	bodyLen, n := varint.Uvarint(rec)
	if n <= 0 {
		return corrupt()
	}
	rec = rec[n:]
	if uint64(len(rec)) < bodyLen {
		return corrupt()
	}
	var body []byte
	if bodyLen > 0 {
		body = append([]byte(nil), rec[:bodyLen]...)
	}

	parentIndex := noParent
	if pIdx != 0xFFFF {
		parentIndex = int(pIdx)
	}
	return revision{
		revID:         revID,
		parentIndex:   parentIndex,
		sequence:      seq,
		flags:         flags,
		inlineBody:    body,
		oldBodyOffset: offset,
	}, nil
}

// SetSequence assigns n's sequence number; used by RevisionStore once the
// enclosing KeyStore.Set has returned the committed sequence.
func (t *RevTree) SetSequence(n Node, sequence uint64) {
	if n.valid() && n.tree == t {
		t.revs[n.index].sequence = sequence
	}
}
