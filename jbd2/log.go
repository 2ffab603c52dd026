package jbd2

// This file implements the log navigator: circular arithmetic over the
// log's usable block range [first, maxlen), and block allocation for an
// in-progress transaction.

// wrap folds x back into [first, maxlen) when it has run off the end of
// the log.
func (j *Journal) wrap(x uint32) uint32 {
	if x >= j.maxLen {
		x -= j.maxLen - j.first
	}
	return x
}

// AllocBlock hands out the next free log block to trans, advancing the
// log tail. If the tail catches up with the log head (the log is full),
// it synchronously flushes the checkpoint queue to free space before
// returning; callers must tolerate that Journal.start may have advanced
// as a result.
func (j *Journal) AllocBlock(trans *Transaction) (uint32, error) {
	const op = "AllocBlock"
	blk := j.last
	j.last = j.wrap(j.last + 1)
	trans.AllocBlocks++
	if trans.StartIblock == 0 {
		trans.StartIblock = blk
	}

	if j.last == j.start {
		if err := j.flushAllCheckpoints(); err != nil {
			return 0, errIO(op, err)
		}
	}

	return blk, nil
}

// blockOffset returns the byte offset of log block iblock on the
// underlying device, via the filesystem's journal-inode translation.
func (j *Journal) blockOffset(iblock uint32) (int64, error) {
	fblock, err := j.fs.InodeDblkIdx(uint64(iblock))
	if err != nil {
		return 0, err
	}
	return int64(fblock) * int64(j.blockSize), nil
}

// readLogBlock reads log block iblock's raw contents.
func (j *Journal) readLogBlock(iblock uint32) ([]byte, error) {
	off, err := j.blockOffset(iblock)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, j.blockSize)
	if err := j.device.ReadBytes(off, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// writeLogBlock writes data as log block iblock's raw contents.
func (j *Journal) writeLogBlock(iblock uint32, data []byte) error {
	off, err := j.blockOffset(iblock)
	if err != nil {
		return err
	}
	return j.device.WriteBytes(off, data)
}
