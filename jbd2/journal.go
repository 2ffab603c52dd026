package jbd2

import "container/list"

// Journal is one mounted journaling session: the log navigator's current
// state, the set of transactions still checkpointing, and the external
// collaborators it was started against.
type Journal struct {
	device BlockDevice
	cache  BufferCache
	fs     Filesystem
	opts   *Options

	blockSize uint32
	first     uint32
	maxLen    uint32
	last      uint32
	start     uint32

	// allocTransID is the transaction id nextTransID will hand out next;
	// it only ever increases, independent of checkpointing.
	allocTransID uint32

	// startTransID is the transaction id expected at log block `start`:
	// the oldest transaction the log still holds, and therefore where a
	// future replay must begin. It advances only as drainCpQueueFront
	// retires transactions from the front of the checkpoint queue, and
	// is what persistSuperblock writes as the superblock's Sequence
	// field.
	startTransID uint32

	cpQueue  *list.List // of *Transaction, oldest-committed-first
	blockRec *blockRecordTable

	sb *Superblock
}

// NewJournal constructs a Journal bound to device/cache/fs, not yet
// started. opts may be nil, in which case defaults apply.
func NewJournal(device BlockDevice, cache BufferCache, fs Filesystem, opts *Options) *Journal {
	if opts == nil {
		opts = NewOptions()
	}
	return &Journal{
		device:   device,
		cache:    cache,
		fs:       fs,
		opts:     opts,
		cpQueue:  list.New(),
		blockRec: newBlockRecordTable(),
	}
}

// Start loads log navigator state from sb and readies the journal for
// CommitTrans. It does not itself run recovery: a filesystem mounting
// with FINCOM_RECOVER already set calls Recover instead, which starts
// the journal as part of replaying it.
//
// Start marks the filesystem as needing recovery before anything else
// happens: once a journal session is open, any commit it makes must be
// recoverable even if the process dies before Stop ever runs, so the
// on-disk signal has to go down first, not last.
func (j *Journal) Start(sb *Superblock) error {
	const op = "Start"
	if sb.BlockSize != j.device.BlockSize() {
		return errInvariant(op, "superblock block size does not match device")
	}
	j.fs.SetNeedsRecovery(true)
	if err := j.fs.WriteFeatures(); err != nil {
		return errIO(op, err)
	}
	j.blockSize = sb.BlockSize
	j.first = sb.First
	j.maxLen = sb.MaxLen
	// A caller reaches Start with sb.Start already 0: either a journal
	// that has never logged anything, or one Stop (or Recover) left
	// clean. The one exception is Recover itself, which calls Start with
	// the dirty superblock and then replays the log from sb, not from
	// these cursors. Either way, new commits begin on a logically empty
	// log and both cursors begin at first — persisting Start == 0 here (the "clean"
	// sentinel) the instant a transaction commits but before it
	// checkpoints would make that transaction unrecoverable.
	j.start = sb.First
	j.last = sb.First
	j.allocTransID = sb.Sequence
	j.startTransID = sb.Sequence
	if j.allocTransID == 0 {
		// A stopped journal persists sequence 0; a session starting
		// from there begins numbering transactions at 1 again, same
		// as a brand new journal.
		j.allocTransID = 1
		j.startTransID = 1
	}
	j.sb = sb
	// The on-disk superblock's feature bits, not whatever Options the
	// caller built the journal with, govern the wire layout from here
	// on: a journal opened against an existing filesystem must honor
	// the format it actually finds.
	j.opts = sb.options()
	return nil
}

// persistSuperblock writes the journal's current log navigator state
// (start, sequence) back to its on-disk superblock region.
func (j *Journal) persistSuperblock() error {
	const op = "persistSuperblock"
	j.sb.Start = j.start
	j.sb.Sequence = j.startTransID
	b, err := j.sb.ToBytes()
	if err != nil {
		return errInvariant(op, err.Error())
	}
	if err := j.device.WriteBytes(0, b); err != nil {
		return errIO(op, err)
	}
	return nil
}

// Stop flushes every outstanding checkpoint and persists the journal's
// final state. It is an error to call Stop while a transaction obtained
// via NewTrans has not yet been committed or freed.
func (j *Journal) Stop() error {
	const op = "Stop"
	if err := j.flushAllCheckpoints(); err != nil {
		return errIO(op, err)
	}
	if j.cpQueue.Len() != 0 {
		return errInvariant(op, "checkpoint queue not empty after flush")
	}
	// Everything is checkpointed: there is nothing left to recover, so
	// the persisted state must say so explicitly rather than point at
	// wherever the last checkpoint happened to leave the tail.
	j.start = 0
	j.startTransID = 0
	if err := j.persistSuperblock(); err != nil {
		return err
	}
	j.fs.SetNeedsRecovery(false)
	return j.fs.WriteFeatures()
}

// nextTransID allocates the next transaction id, used by CommitTrans. Ids
// are handed out in the same order transactions commit, with no gaps, so
// that startTransID (the oldest transaction still in the log) always
// identifies a contiguous run of committed ids.
func (j *Journal) nextTransID() uint32 {
	id := j.allocTransID
	j.allocTransID++
	return id
}
