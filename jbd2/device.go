package jbd2

// This file declares the external collaborators jbd2 needs by role: the
// block device, the buffer cache, and the filesystem/superblock layer.
// jbd2 depends only on these narrow interfaces; concrete implementations
// (a real buffer cache with LRU eviction, a real ext4 inode/extent layer)
// live outside this module. backend.go in this package provides one
// concrete, file-backed BlockDevice so the package's tests (and callers
// without a fuller filesystem stack) have something to run against.

// BlockDevice is byte-addressable storage with a fixed block size.
type BlockDevice interface {
	// BlockSize returns the device's block size in bytes.
	BlockSize() uint32

	// ReadBytes reads len(buf) bytes starting at byte offset.
	ReadBytes(offset int64, buf []byte) error

	// WriteBytes writes buf starting at byte offset.
	WriteBytes(offset int64, buf []byte) error
}

// CompletionFunc is the one-shot write-completion hook a Buffer exposes:
// the journal installs exactly one per enlisted buffer, which the buffer
// cache invokes when the buffer's write reaches the device (synchronously
// or out of band).
type CompletionFunc func(arg any, err error)

// Buffer is a reference-counted, cacheable block buffer. Implementations
// are expected to be addressed by home logical block address (Lba) and
// to carry at most one installed EndWrite hook at a time.
type Buffer interface {
	// Lba is the buffer's home logical block address.
	Lba() uint64

	// Data returns the buffer's in-memory contents. The returned slice
	// is BlockSize bytes and may be written in place by the caller.
	Data() []byte

	// SetDirty marks the buffer for write-back.
	SetDirty()

	// ClearDirty clears the dirty flag without writing the buffer back.
	ClearDirty()

	// Dirty reports the buffer's dirty flag.
	Dirty() bool

	// IncRef increments the buffer's reference count.
	IncRef()

	// Release decrements the buffer's reference count, releasing it to
	// the cache when it reaches zero.
	Release()

	// SetEndWrite installs the one-shot write-completion hook and its
	// opaque argument. Passing a nil fn clears any installed hook.
	SetEndWrite(fn CompletionFunc, arg any)

	// EndWriteArg returns the opaque argument installed by the last
	// SetEndWrite call, or nil if no hook is installed. Used by
	// GetAccess to recognize "a transaction already owns this buffer".
	EndWriteArg() any
}

// BufferCache is the buffer cache collaborator: reference counted block
// buffers with dirty/flush flags and a per-buffer completion callback
// that the journal hooks.
type BufferCache interface {
	// Get returns the buffer for lba, reading it from the device if it
	// is not already cached.
	Get(lba uint64) (Buffer, error)

	// GetNoRead returns the buffer for lba without reading its current
	// contents from the device (the caller is about to overwrite it
	// entirely), allocating a zeroed buffer if not cached.
	GetNoRead(lba uint64) (Buffer, error)

	// Flush forces buf's current contents to the device synchronously,
	// firing its completion hook inline if one is installed.
	Flush(buf Buffer) error
}

// Filesystem is the filesystem/superblock collaborator: used to locate
// the journal inode, translate journal block indices to device offsets,
// toggle the "needs recovery" feature flag, and give the replay engine
// somewhere to write the recovered home blocks and filesystem
// superblock.
type Filesystem interface {
	// InodeDblkIdx translates iblock (a logical block index within the
	// journal inode) to fblock (a device-relative logical block
	// address).
	InodeDblkIdx(iblock uint64) (fblock uint64, err error)

	// SetNeedsRecovery sets or clears the FINCOM_RECOVER incompatible
	// feature bit on the filesystem superblock.
	SetNeedsRecovery(needed bool)

	// NeedsRecovery reports the current value of FINCOM_RECOVER.
	NeedsRecovery() bool

	// WriteFeatures persists the filesystem superblock's incompatible
	// feature word (including whatever SetNeedsRecovery last set) to
	// the device. Start and Stop call this directly, without touching
	// the journaled region of block 0.
	WriteFeatures() error

	// WriteSuperblock writes the raw, already-journaled filesystem
	// superblock block (block 0, blockData) to the device, patching
	// mountCount and state into it first: those two fields live inside
	// the journaled region but must reflect the live filesystem, not
	// whatever was in effect when the block was originally logged.
	WriteSuperblock(blockData []byte, mountCount, state uint16) error

	// ReadHomeBlock0 reads the live mount count and state the
	// filesystem is currently using, for the replay engine to pass
	// back into WriteSuperblock after the journaled block lands.
	ReadHomeBlock0() (mountCount uint16, state uint16, err error)
}
