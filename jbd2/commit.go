package jbd2

import "encoding/binary"

// CommitTrans writes trans to the log: a descriptor block (with one tag
// per enlisted buffer, splitting into further descriptor blocks as the
// tag table fills), the corresponding data blocks, any revoke blocks,
// and finally a commit block, then hands trans off to the checkpoint
// queue. trans must not be reused after CommitTrans returns. It is freed
// (via FreeTrans) on failure and when it has nothing to commit; on
// success it stays on the checkpoint queue until its buffers have been
// written back.
//
// Callers must serialize calls to CommitTrans; it does not lock
// anything itself.
func (j *Journal) CommitTrans(trans *Transaction) error {
	const op = "CommitTrans"

	if !trans.hasWork() {
		FreeTrans(trans, false)
		return nil
	}

	trans.TransID = j.nextTransID()
	startLast := j.last

	if err := j.commitData(trans); err != nil {
		j.last = startLast
		FreeTrans(trans, true)
		return errIO(op, err)
	}
	if err := j.commitRevokes(trans); err != nil {
		j.last = startLast
		FreeTrans(trans, true)
		return errIO(op, err)
	}
	if err := j.commitCommitBlock(trans); err != nil {
		j.last = startLast
		FreeTrans(trans, true)
		return errIO(op, err)
	}

	j.enqueueCheckpoint(trans)
	return nil
}

// commitData writes one or more descriptor blocks and their data blocks
// for every buffer enlisted on trans, in enlistment order.
func (j *Journal) commitData(trans *Transaction) error {
	const op = "commitData"
	if trans.bufList.Len() == 0 {
		return nil
	}

	tagCapacity := int(j.blockSize) - headerSize

	var descIblock uint32
	var descBuf []byte
	var tagOffset int
	var firstTagInDesc bool

	startNewDescriptor := func() error {
		blk, err := j.AllocBlock(trans)
		if err != nil {
			return err
		}
		descIblock = blk
		descBuf = make([]byte, j.blockSize)
		Header{BlockType: BlockTypeDescriptor, Sequence: trans.TransID}.toBytes(descBuf[0:headerSize])
		tagOffset = headerSize
		firstTagInDesc = true
		return nil
	}

	flushDescriptor := func(lastOverall bool) error {
		if descBuf == nil {
			return nil
		}
		return j.writeLogBlock(descIblock, descBuf)
	}

	if err := startNewDescriptor(); err != nil {
		return errIO(op, err)
	}

	total := trans.bufList.Len()
	i := 0
	for e := trans.bufList.Front(); e != nil; e = e.Next() {
		i++
		entry := e.Value.(*bufEntry)

		tag := &BlockTag{Block: entry.lba}
		if !firstTagInDesc {
			tag.Flags |= TagFlagSameUUID
		}
		if i == total {
			tag.Flags |= TagFlagLastTag
		}

		data := append([]byte(nil), entry.buf.Data()...)
		if len(data) >= 4 && binary.BigEndian.Uint32(data[0:4]) == journalMagic {
			tag.Flags |= TagFlagEscape
			binary.BigEndian.PutUint32(data[0:4], 0)
		}

		if !firstTagInDesc {
			tag.UUID = nil
		} else {
			tag.UUID = j.sb.UUID[:]
		}

		need, err := tagNeedsBytes(tag, j.opts)
		if err != nil {
			return errInvariant(op, err.Error())
		}
		remaining := tagCapacity - (tagOffset - headerSize)
		if need > remaining {
			if err := flushDescriptor(false); err != nil {
				return errIO(op, err)
			}
			if err := startNewDescriptor(); err != nil {
				return errIO(op, err)
			}
			remaining = tagCapacity
			tag.Flags &^= TagFlagSameUUID
			tag.UUID = j.sb.UUID[:]
		}

		written, err := WriteTag(descBuf[tagOffset:], remaining, tag, j.opts)
		if err != nil {
			return errInvariant(op, err.Error())
		}
		tagOffset += written
		firstTagInDesc = false

		dataIblock, err := j.AllocBlock(trans)
		if err != nil {
			return errIO(op, err)
		}
		if err := j.writeLogBlock(dataIblock, data); err != nil {
			return errIO(op, err)
		}
	}

	if err := flushDescriptor(true); err != nil {
		return errIO(op, err)
	}
	return nil
}

// tagNeedsBytes reports how many bytes WriteTag would consume for tag
// under opts, without requiring a destination buffer.
func tagNeedsBytes(tag *BlockTag, opts *Options) (int, error) {
	fixed := tagFixedSize(opts)
	if tag.Flags&TagFlagSameUUID == 0 {
		return fixed + 16, nil
	}
	return fixed, nil
}

// commitRevokes packs trans.RevokeList into one or more revoke blocks.
func (j *Journal) commitRevokes(trans *Transaction) error {
	const op = "commitRevokes"
	if len(trans.RevokeList) == 0 {
		return nil
	}

	numSize := blockNumSize(j.opts)
	perBlock := int((j.blockSize - RevokeBlockHeaderSize) / numSize)
	if perBlock <= 0 {
		return errInvariant(op, "block size too small for any revoke entries")
	}

	for start := 0; start < len(trans.RevokeList); start += perBlock {
		end := start + perBlock
		if end > len(trans.RevokeList) {
			end = len(trans.RevokeList)
		}
		rec := &RevokeRecord{
			Header: Header{BlockType: BlockTypeRevoke, Sequence: trans.TransID},
			Blocks: trans.RevokeList[start:end],
		}
		b, err := rec.ToBytes(j.blockSize, j.opts)
		if err != nil {
			return errInvariant(op, err.Error())
		}
		blk, err := j.AllocBlock(trans)
		if err != nil {
			return errIO(op, err)
		}
		if err := j.writeLogBlock(blk, b); err != nil {
			return errIO(op, err)
		}
	}
	return nil
}

// commitCommitBlock writes the trailing commit block that makes trans
// durable: once this block is on the device, replay will consider trans
// fully committed.
func (j *Journal) commitCommitBlock(trans *Transaction) error {
	const op = "commitCommitBlock"
	b := make([]byte, j.blockSize)
	Header{BlockType: BlockTypeCommit, Sequence: trans.TransID}.toBytes(b[0:headerSize])
	blk, err := j.AllocBlock(trans)
	if err != nil {
		return errIO(op, err)
	}
	return j.writeLogBlock(blk, b)
}
