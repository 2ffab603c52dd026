package jbd2

import "github.com/google/btree"

// blockRecord tracks which transaction currently owns a home block's
// in-flight journal state, and the buffer carrying that state. The record
// is deleted, not cleared, once that buffer's write-back completes or the
// owning transaction is freed.
type blockRecord struct {
	lba   uint64
	buf   Buffer
	trans *Transaction
}

func (r *blockRecord) Less(than btree.Item) bool {
	return r.lba < than.(*blockRecord).lba
}

// blockRecordTable is the journal-wide home-lba -> blockRecord map that
// arbitrates cross-transaction writes to the same block.
type blockRecordTable struct {
	tree *btree.BTree
}

func newBlockRecordTable() *blockRecordTable {
	return &blockRecordTable{tree: btree.New(revokeDegree)}
}

// Lookup returns the block record for lba, if any.
func (t *blockRecordTable) Lookup(lba uint64) *blockRecord {
	item := t.tree.Get(&blockRecord{lba: lba})
	if item == nil {
		return nil
	}
	return item.(*blockRecord)
}

// GetOrInsert enforces single ownership of a home block's in-flight
// journal state: if no record exists for lba, it inserts one owned by
// trans with the given buf. If one exists, its buf must already be nil
// (the previous owner's write-back completed); otherwise the caller's
// GetAccess should have flushed it first, and this is a programmer
// error.
func (t *blockRecordTable) GetOrInsert(lba uint64, buf Buffer, trans *Transaction) (*blockRecord, error) {
	const op = "blockRecordTable.GetOrInsert"
	if existing := t.Lookup(lba); existing != nil {
		if existing.buf != nil {
			return nil, errInvariant(op, "block record still owned by a live buffer")
		}
		existing.buf = buf
		existing.trans = trans
		return existing, nil
	}
	rec := &blockRecord{lba: lba, buf: buf, trans: trans}
	t.tree.ReplaceOrInsert(rec)
	return rec, nil
}

// RemoveIfOwnedBy deletes the block record for lba iff it is still owned
// by trans, per the checkpoint-completion and free_trans teardown rules.
func (t *blockRecordTable) RemoveIfOwnedBy(lba uint64, trans *Transaction) {
	if rec := t.Lookup(lba); rec != nil && rec.trans == trans {
		t.tree.Delete(&blockRecord{lba: lba})
	}
}

// Len reports the number of live block records.
func (t *blockRecordTable) Len() int {
	return t.tree.Len()
}
