package jbd2

// This file implements the three-pass replay engine (SCAN, REVOKE,
// RECOVER) sharing one iteration loop over the committed transactions
// found in the log, and Recover, which orchestrates all three and leaves
// the journal empty and the filesystem superblock marked clean on
// success.

type replayAction int

const (
	passScan replayAction = iota
	passRevoke
	passRecover
)

// replayPass walks the log starting at sb.Start, transaction by
// transaction, dispatching each block by type. It stops at the first bad
// magic, unexpected block type, or block whose sequence does not match
// the transaction id currently expected (the uncommitted tail, or the
// end of a log that never wrapped). lastTransID is the highest
// transaction id for which a commit block was found; for SCAN this is
// the value the other two passes must stop at.
func (j *Journal) replayPass(action replayAction, sb *Superblock, stopAfterTransID uint32, revokes *revokeTable) (lastTransID uint32, err error) {
	const op = "replayPass"
	if sb.Start == 0 {
		return sb.Sequence - 1, nil
	}

	opts := sb.options()
	cursor := sb.Start
	expected := sb.Sequence
	lastTransID = expected - 1

	for {
		if action != passScan && expected > stopAfterTransID {
			break
		}

		raw, rerr := j.readLogBlock(cursor)
		if rerr != nil {
			return 0, errIO(op, rerr)
		}
		h, herr := headerFromBytes(op, raw[0:headerSize])
		if herr != nil {
			break
		}
		if h.Sequence != expected {
			break
		}

		switch h.BlockType {
		case BlockTypeDescriptor:
			next, derr := j.replayDescriptor(action, raw, cursor, expected, opts, revokes)
			if derr != nil {
				return 0, derr
			}
			cursor = next

		case BlockTypeRevoke:
			if action == passRevoke {
				rec, rerr := RevokeRecordFromBytes(raw, opts)
				if rerr != nil {
					return 0, rerr
				}
				for _, blk := range rec.Blocks {
					revokes.Add(blk, expected)
				}
			}

		case BlockTypeCommit:
			lastTransID = expected
			expected++

		default:
			return lastTransID, nil
		}

		cursor = j.wrap(cursor + 1)
		if cursor == sb.Start {
			break
		}
	}

	return lastTransID, nil
}

// replayDescriptor processes one descriptor block's tag table, returning
// the cursor position of the last data block it consumed (the caller
// advances one more to reach the block following the whole run).
func (j *Journal) replayDescriptor(action replayAction, raw []byte, descIblock, transID uint32, opts *Options, revokes *revokeTable) (uint32, error) {
	const op = "replayDescriptor"

	cursor := descIblock
	offset := headerSize
	for offset < len(raw) {
		tag, consumed, err := ExtractTag(raw[offset:], len(raw)-offset, opts)
		if err != nil {
			return 0, errCorrupt(op, err)
		}
		offset += consumed
		cursor = j.wrap(cursor + 1)

		if action == passRecover {
			if err := j.recoverTaggedBlock(tag, cursor, transID, revokes); err != nil {
				return 0, err
			}
		}

		if tag.Flags&TagFlagLastTag != 0 {
			break
		}
	}
	return cursor, nil
}

// recoverTaggedBlock copies one journaled data block to its home, unless
// a later transaction revoked it. Block 0 is the filesystem superblock
// and gets special handling to preserve live mount state; any tag can
// also carry an escaped copy of the journal magic in its first word,
// which is unescaped before the block is written to its home.
func (j *Journal) recoverTaggedBlock(tag *BlockTag, dataIblock, transID uint32, revokes *revokeTable) error {
	const op = "recoverTaggedBlock"

	isSuperblock := tag.Block == 0

	if !isSuperblock {
		if revokedBy, ok := revokes.Lookup(tag.Block); ok && transID < revokedBy {
			return nil
		}
	}

	data, err := j.readLogBlock(dataIblock)
	if err != nil {
		return errIO(op, err)
	}
	if tag.Flags&TagFlagEscape != 0 && len(data) >= 4 {
		data[0], data[1], data[2], data[3] = 0xC0, 0x3B, 0x39, 0x98
	}

	if isSuperblock {
		return j.recoverSuperblockBlock(data)
	}
	return j.recoverHomeBlock(tag.Block, data)
}

// recoverHomeBlock writes data to home block lba. Unlike journal log
// blocks, a tag's home block number is already a device-relative block
// address: InodeDblkIdx only translates offsets within the journal
// inode itself, which home blocks are not.
func (j *Journal) recoverHomeBlock(lba uint64, data []byte) error {
	const op = "recoverHomeBlock"
	off := int64(lba) * int64(j.blockSize)
	if err := j.device.WriteBytes(off, data); err != nil {
		return errIO(op, err)
	}
	return nil
}

// recoverSuperblockBlock restores the filesystem superblock's journaled
// region while preserving the live mount count and state fields: those
// two fields keep changing after the transaction that journaled this
// block was committed, so blindly overwriting block 0 with the
// journaled copy would roll them back.
func (j *Journal) recoverSuperblockBlock(data []byte) error {
	const op = "recoverSuperblockBlock"
	mountCount, state, err := j.fs.ReadHomeBlock0()
	if err != nil {
		return errIO(op, err)
	}
	return j.fs.WriteSuperblock(data, mountCount, state)
}

// Recover runs SCAN, REVOKE, then RECOVER against sb in turn, and on
// success marks the journal empty (Start == 0) and clears the
// filesystem's FINCOM_RECOVER bit. It starts the journal itself, so
// callers mounting a filesystem with FINCOM_RECOVER set call Recover
// instead of Start, not before it.
func (j *Journal) Recover(sb *Superblock) error {
	const op = "Recover"
	if err := j.Start(sb); err != nil {
		return err
	}

	if sb.Start == 0 {
		j.fs.SetNeedsRecovery(false)
		return j.fs.WriteFeatures()
	}

	lastTransID, err := j.replayPass(passScan, sb, 0, nil)
	if err != nil {
		return errCorrupt(op, err)
	}

	revokes := newRevokeTable()
	if _, err := j.replayPass(passRevoke, sb, lastTransID, revokes); err != nil {
		return errCorrupt(op, err)
	}

	if _, err := j.replayPass(passRecover, sb, lastTransID, revokes); err != nil {
		return errIO(op, err)
	}

	j.start = 0
	j.last = sb.First
	j.allocTransID = lastTransID + 1
	j.startTransID = lastTransID + 1
	j.sb.Start = 0
	if err := j.persistSuperblock(); err != nil {
		return err
	}
	j.fs.SetNeedsRecovery(false)
	return j.fs.WriteFeatures()
}
