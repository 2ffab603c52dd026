package jbd2

import "testing"

func TestEndWriteAdvancesStartOnceFullyWritten(t *testing.T) {
	j, _, cache, _ := newTestJournal(t)
	trans := NewTrans(j)
	if err := trans.SetBlockDirty(30); err != nil {
		t.Fatalf("SetBlockDirty: %v", err)
	}

	startBefore := j.start
	if err := j.CommitTrans(trans); err != nil {
		t.Fatalf("CommitTrans: %v", err)
	}
	if j.start != startBefore {
		t.Fatalf("start advanced before any buffer was written back: got %d, want %d", j.start, startBefore)
	}

	buf, _ := cache.Get(30)
	if err := cache.Flush(buf); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if trans.WrittenCnt != trans.DataCnt {
		t.Fatalf("WrittenCnt = %d, want %d", trans.WrittenCnt, trans.DataCnt)
	}
	if j.cpQueue.Len() != 0 {
		t.Fatalf("cpQueue.Len() = %d, want 0 once fully checkpointed", j.cpQueue.Len())
	}
	want := j.wrap(trans.StartIblock + trans.AllocBlocks)
	if j.start != want {
		t.Fatalf("start = %d, want %d", j.start, want)
	}
}

func TestCheckpointOrderingHoldsStartForEarlierTransaction(t *testing.T) {
	j, _, cache, _ := newTestJournal(t)
	t1 := NewTrans(j)
	t2 := NewTrans(j)
	if err := t1.SetBlockDirty(1); err != nil {
		t.Fatalf("SetBlockDirty: %v", err)
	}
	if err := t2.SetBlockDirty(2); err != nil {
		t.Fatalf("SetBlockDirty: %v", err)
	}
	if err := j.CommitTrans(t1); err != nil {
		t.Fatalf("CommitTrans t1: %v", err)
	}
	if err := j.CommitTrans(t2); err != nil {
		t.Fatalf("CommitTrans t2: %v", err)
	}

	// Finish t2's buffer first; start must not advance past t1, which is
	// still ahead of it in the queue and not yet fully written.
	buf2, _ := cache.Get(2)
	if err := cache.Flush(buf2); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if j.cpQueue.Len() != 2 {
		t.Fatalf("cpQueue.Len() = %d, want 2 (t1 still blocking the front)", j.cpQueue.Len())
	}

	buf1, _ := cache.Get(1)
	if err := cache.Flush(buf1); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if j.cpQueue.Len() != 0 {
		t.Fatalf("cpQueue.Len() = %d, want 0 once both finish", j.cpQueue.Len())
	}
	want := j.wrap(t2.StartIblock + t2.AllocBlocks)
	if j.start != want {
		t.Fatalf("start = %d, want %d", j.start, want)
	}
}

func TestFlushAllCheckpointsDrainsQueue(t *testing.T) {
	j, _, _, _ := newTestJournal(t)
	trans := NewTrans(j)
	if err := trans.SetBlockDirty(15); err != nil {
		t.Fatalf("SetBlockDirty: %v", err)
	}
	if err := j.CommitTrans(trans); err != nil {
		t.Fatalf("CommitTrans: %v", err)
	}

	if err := j.flushAllCheckpoints(); err != nil {
		t.Fatalf("flushAllCheckpoints: %v", err)
	}
	if j.cpQueue.Len() != 0 {
		t.Fatalf("cpQueue.Len() = %d, want 0", j.cpQueue.Len())
	}
}
