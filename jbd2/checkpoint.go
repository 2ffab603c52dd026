package jbd2

// This file implements checkpointing: the write-completion hook
// installed on every enlisted buffer by Transaction.SetBlockDirty, and
// the logic that advances the log's start pointer as transactions
// finish checkpointing.
//
// Every committed transaction is enqueued onto Journal.cpQueue as part of
// CommitTrans, whether or not it enlisted any buffers: the queue tracks
// "committed but not yet fully checkpointed" transactions in commit
// order, which is what lets flushAllCheckpoints find a transaction's
// still-live buffers even before any of them have completed.

// enqueueCheckpoint adds trans to the checkpoint queue and immediately
// drains whatever is now checkpointable from the front of it (trans
// itself, if it enlisted no buffers; otherwise whatever was already
// ahead of it).
func (j *Journal) enqueueCheckpoint(trans *Transaction) {
	trans.cpElem = j.cpQueue.PushBack(trans)
	j.drainCpQueueFront()
}

// endWrite is installed as every enlisted buffer's completion hook via
// SetEndWrite(j.endWrite, entry). It must never perform I/O itself: write
// completions run synchronously inline with whatever triggered them (a
// cache flush, a device write callback), and recursing into another
// flush from here would re-enter the cache.
func (j *Journal) endWrite(arg any, err error) {
	entry, ok := arg.(*bufEntry)
	if !ok || entry == nil {
		return
	}
	trans := entry.trans

	entry.buf.SetEndWrite(nil, nil)
	trans.bufList.Remove(entry.elem)
	j.blockRec.RemoveIfOwnedBy(entry.lba, trans)

	if err != nil && trans.Err == nil {
		trans.Err = err
	}
	trans.WrittenCnt++
	entry.buf.Release()

	j.drainCpQueueFront()
}

// drainCpQueueFront advances Journal.start past every fully checkpointed
// transaction at the front of the checkpoint queue, in commit order:
// start may only advance past transactions whose buffers have all
// landed at their home blocks.
func (j *Journal) drainCpQueueFront() {
	drained := false
	for e := j.cpQueue.Front(); e != nil; e = j.cpQueue.Front() {
		trans := e.Value.(*Transaction)
		if trans.WrittenCnt < trans.DataCnt {
			break
		}
		j.cpQueue.Remove(e)
		trans.cpElem = nil
		j.start = j.wrap(trans.StartIblock + trans.AllocBlocks)
		j.startTransID = trans.TransID + 1
		drained = true
	}
	if drained && j.sb != nil {
		// Best effort: persisting here just keeps the on-disk state
		// current as checkpoints land; a failure means the next
		// persistSuperblock call (or Stop) catches up, not that the
		// checkpoint itself failed.
		_ = j.persistSuperblock()
	}
}

// flushAllCheckpoints synchronously flushes every buffer still enlisted
// on a committed, not-yet-checkpointed transaction, used when the log
// tail has caught up with the log head (AllocBlock) or during Stop, to
// force checkpoint progress instead of blocking forever.
func (j *Journal) flushAllCheckpoints() error {
	const op = "flushAllCheckpoints"

	// Snapshot the queue before flushing anything: draining removes
	// transactions from the front of cpQueue as their buffers complete,
	// which would invalidate an *list.Element-based walk of the queue
	// itself while it is in progress.
	transactions := make([]*Transaction, 0, j.cpQueue.Len())
	for e := j.cpQueue.Front(); e != nil; e = e.Next() {
		transactions = append(transactions, e.Value.(*Transaction))
	}

	for _, trans := range transactions {
		for be := trans.bufList.Front(); be != nil; {
			beNext := be.Next()
			entry := be.Value.(*bufEntry)
			if err := j.cache.Flush(entry.buf); err != nil {
				return errIO(op, err)
			}
			be = beNext
		}
	}
	return nil
}
