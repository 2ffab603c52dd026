package jbd2

import "testing"

func TestWrap(t *testing.T) {
	j := &Journal{first: 1, maxLen: 10}
	cases := []struct{ in, want uint32 }{
		{5, 5},
		{9, 9},
		{10, 1},
		{11, 2},
	}
	for _, c := range cases {
		if got := j.wrap(c.in); got != c.want {
			t.Errorf("wrap(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestAllocBlockAdvancesAndTracksTransaction(t *testing.T) {
	j, _, _, _ := newTestJournal(t)
	j.last = j.first
	trans := NewTrans(j)

	blk, err := j.AllocBlock(trans)
	if err != nil {
		t.Fatalf("AllocBlock: %v", err)
	}
	if blk != j.first {
		t.Fatalf("got block %d, want first block %d", blk, j.first)
	}
	if trans.StartIblock != blk {
		t.Fatalf("StartIblock = %d, want %d", trans.StartIblock, blk)
	}
	if trans.AllocBlocks != 1 {
		t.Fatalf("AllocBlocks = %d, want 1", trans.AllocBlocks)
	}

	blk2, err := j.AllocBlock(trans)
	if err != nil {
		t.Fatalf("AllocBlock: %v", err)
	}
	if blk2 != blk+1 {
		t.Fatalf("second alloc = %d, want %d", blk2, blk+1)
	}
	if trans.StartIblock != blk {
		t.Fatalf("StartIblock should not move on second alloc, got %d", trans.StartIblock)
	}
}

func TestAllocBlockTriggersCheckpointFlushOnFullLog(t *testing.T) {
	j, _, cache, _ := newTestJournal(t)

	committed := NewTrans(j)
	if err := committed.SetBlockDirty(20); err != nil {
		t.Fatalf("SetBlockDirty: %v", err)
	}
	if err := j.CommitTrans(committed); err != nil {
		t.Fatalf("CommitTrans: %v", err)
	}

	// Force the log full: put the tail one block behind the head, so the
	// next AllocBlock advances j.last onto j.start and must flush the
	// checkpoint queue before handing out the block.
	if j.start == j.first {
		j.last = j.maxLen - 1
	} else {
		j.last = j.start - 1
	}

	trans := NewTrans(j)
	if _, err := j.AllocBlock(trans); err != nil {
		t.Fatalf("AllocBlock: %v", err)
	}

	buf, _ := cache.Get(20)
	if buf.Dirty() {
		t.Fatal("expected committed transaction's buffer to have been checkpoint-flushed")
	}
}
