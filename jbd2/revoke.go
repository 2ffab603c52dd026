package jbd2

import "github.com/google/btree"

// revokeDegree is the branching factor used for both the revoke table and
// the block-record table; 32 is the value google/btree's own examples use
// for small in-memory indexes of this size.
const revokeDegree = 32

// revokeEntry is one entry of the revoke table: a home block number and
// the highest transaction id that revoked it.
type revokeEntry struct {
	block   uint64
	transID uint32
}

func (e *revokeEntry) Less(than btree.Item) bool {
	return e.block < than.(*revokeEntry).block
}

// revokeTable is an ordered map from block number to the highest
// transaction id that revoked it, consulted during replay to suppress
// stale data.
type revokeTable struct {
	tree *btree.BTree
}

func newRevokeTable() *revokeTable {
	return &revokeTable{tree: btree.New(revokeDegree)}
}

// Lookup returns the revoking transaction id for block, if any.
func (t *revokeTable) Lookup(block uint64) (uint32, bool) {
	item := t.tree.Get(&revokeEntry{block: block})
	if item == nil {
		return 0, false
	}
	return item.(*revokeEntry).transID, true
}

// Add records that transID revoked block. If block is already present,
// its recorded transaction id is overwritten unconditionally: later
// passes over the log (in chronological order) see newer revocations
// replace older ones, so the final value is the highest transaction id
// that revoked this block.
func (t *revokeTable) Add(block uint64, transID uint32) {
	if item := t.tree.Get(&revokeEntry{block: block}); item != nil {
		item.(*revokeEntry).transID = transID
		return
	}
	t.tree.ReplaceOrInsert(&revokeEntry{block: block, transID: transID})
}

// Destroy tears down all entries.
func (t *revokeTable) Destroy() {
	t.tree = btree.New(revokeDegree)
}

// Len reports the number of revoked blocks currently tracked.
func (t *revokeTable) Len() int {
	return t.tree.Len()
}
