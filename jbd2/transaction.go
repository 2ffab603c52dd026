package jbd2

import "container/list"

// bufEntry is the journal's own bookkeeping record for one enlisted
// buffer: it is installed as a buffer's write-completion argument, so
// the checkpoint hook can find its way back to the owning transaction
// and block record without the buffer cache knowing anything about
// transactions. bufEntry is owned by the transaction's buffer list; the
// underlying Buffer only borrows the pointer via SetEndWrite and must
// have it cleared on detach.
type bufEntry struct {
	buf   Buffer
	lba   uint64
	trans *Transaction
	elem  *list.Element // this entry's handle into trans.bufList
}

// Transaction is the in-memory staging area for one atomic group of
// modifications.
type Transaction struct {
	journal *Journal

	// TransID is assigned from the journal's allocTransID at commit
	// time; zero until then.
	TransID uint32

	// StartIblock is the log block where this transaction's first
	// descriptor landed. Zero until the first log allocation.
	StartIblock uint32

	// AllocBlocks counts the log blocks this transaction has consumed.
	AllocBlocks uint32

	// RevokeList holds the block numbers this transaction revokes.
	RevokeList []uint64

	// DataCnt counts enlisted dirty buffers; WrittenCnt counts how many
	// have completed their home write-back. DataCnt == WrittenCnt means
	// the transaction has fully checkpointed.
	DataCnt    uint32
	WrittenCnt uint32

	// Err is the sticky first I/O error observed by a write completion
	// for a buffer this transaction owns.
	Err error

	bufList *list.List // of *bufEntry

	cpElem *list.Element // this transaction's handle into journal.cpQueue, once enqueued
}

// NewTrans allocates a new, empty Transaction against journal.
func NewTrans(journal *Journal) *Transaction {
	return &Transaction{
		journal: journal,
		bufList: list.New(),
	}
}

// hasWork reports whether the transaction enlisted any buffers or
// revokes, used by CommitTrans to decide whether a commit block is
// needed at all.
func (t *Transaction) hasWork() bool {
	return t.bufList.Len() > 0 || len(t.RevokeList) > 0
}

// GetAccess must be called before a caller touches block lba on behalf of
// trans. If some other transaction already has in-flight journal state
// for this block (its buffer is dirty and bears the journal's
// write-completion hook), that buffer is force-flushed synchronously
// first, guaranteeing at most one transaction owns a block's journal
// state at a time.
func (t *Transaction) GetAccess(lba uint64) error {
	const op = "GetAccess"
	buf, err := t.journal.cache.Get(lba)
	if err != nil {
		return errIO(op, err)
	}
	if !buf.Dirty() {
		return nil
	}
	entry, ok := buf.EndWriteArg().(*bufEntry)
	if !ok || entry == nil || entry.trans == t {
		return nil
	}
	if err := t.journal.cache.Flush(buf); err != nil {
		return errIO(op, err)
	}
	return nil
}

// SetBlockDirty enlists lba's buffer into trans, installing the
// journal's write-completion hook so the buffer's eventual home
// write-back is tracked as part of this transaction's checkpoint.
// It is a no-op if the buffer is already enlisted by some transaction
// (including trans itself).
func (t *Transaction) SetBlockDirty(lba uint64) error {
	const op = "SetBlockDirty"
	buf, err := t.journal.cache.Get(lba)
	if err != nil {
		return errIO(op, err)
	}
	if buf.Dirty() {
		if _, ok := buf.EndWriteArg().(*bufEntry); ok {
			return nil
		}
	}

	if _, err := t.journal.blockRec.GetOrInsert(lba, buf, t); err != nil {
		return err
	}

	entry := &bufEntry{buf: buf, lba: lba, trans: t}
	buf.IncRef()
	buf.SetEndWrite(t.journal.endWrite, entry)
	entry.elem = t.bufList.PushBack(entry)
	t.DataCnt++
	buf.SetDirty()
	return nil
}

// RevokeBlock unconditionally appends lba to trans's revoke list. Used
// when the filesystem frees a block and no longer cares whether earlier
// journal content for it is ever replayed.
func (t *Transaction) RevokeBlock(lba uint64) {
	t.RevokeList = append(t.RevokeList, lba)
}

// TryRevokeBlock revokes lba only if some other transaction currently
// owns its block record, flushing that transaction's buffer first if it
// is still live. It is a no-op if no other transaction owns lba.
func (t *Transaction) TryRevokeBlock(lba uint64) error {
	const op = "TryRevokeBlock"
	rec := t.journal.blockRec.Lookup(lba)
	if rec == nil || rec.trans == t {
		return nil
	}
	if rec.buf != nil {
		if err := t.journal.cache.Flush(rec.buf); err != nil {
			return errIO(op, err)
		}
	}
	t.RevokeBlock(lba)
	return nil
}

// FreeTrans tears down trans: for each enlisted buffer, if abort is set
// its journal hook and dirty flag are cleared and it is released
// uncommitted (the caller must reissue the work); block records still
// owned by trans are removed either way. The revoke list is discarded.
func FreeTrans(trans *Transaction, abort bool) {
	for e := trans.bufList.Front(); e != nil; {
		next := e.Next()
		entry := e.Value.(*bufEntry)
		if abort {
			entry.buf.SetEndWrite(nil, nil)
			entry.buf.ClearDirty()
			entry.buf.Release()
		}
		trans.journal.blockRec.RemoveIfOwnedBy(entry.lba, trans)
		trans.bufList.Remove(e)
		e = next
	}
	trans.RevokeList = nil
}
