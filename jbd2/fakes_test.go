package jbd2

// Hand-written fakes for the journal's three collaborators (block
// device, buffer cache, filesystem). No mocking framework is used
// anywhere in this package's tests.

type fakeDevice struct {
	blockSize uint32
	data      []byte
}

func newFakeDevice(blockSize uint32, blocks uint32) *fakeDevice {
	return &fakeDevice{blockSize: blockSize, data: make([]byte, blockSize*blocks)}
}

func (d *fakeDevice) BlockSize() uint32 { return d.blockSize }

func (d *fakeDevice) ReadBytes(offset int64, buf []byte) error {
	copy(buf, d.data[offset:offset+int64(len(buf))])
	return nil
}

func (d *fakeDevice) WriteBytes(offset int64, buf []byte) error {
	copy(d.data[offset:offset+int64(len(buf))], buf)
	return nil
}

type fakeBuffer struct {
	lba      uint64
	data     []byte
	dirty    bool
	refCount int
	endWrite CompletionFunc
	endArg   any
}

func (b *fakeBuffer) Lba() uint64  { return b.lba }
func (b *fakeBuffer) Data() []byte { return b.data }
func (b *fakeBuffer) SetDirty()    { b.dirty = true }
func (b *fakeBuffer) ClearDirty()  { b.dirty = false }
func (b *fakeBuffer) Dirty() bool  { return b.dirty }
func (b *fakeBuffer) IncRef()      { b.refCount++ }
func (b *fakeBuffer) Release()     { b.refCount-- }
func (b *fakeBuffer) SetEndWrite(fn CompletionFunc, arg any) {
	b.endWrite = fn
	b.endArg = arg
}
func (b *fakeBuffer) EndWriteArg() any { return b.endArg }

type fakeCache struct {
	device  *fakeDevice
	buffers map[uint64]*fakeBuffer
}

func newFakeCache(device *fakeDevice) *fakeCache {
	return &fakeCache{device: device, buffers: make(map[uint64]*fakeBuffer)}
}

func (c *fakeCache) Get(lba uint64) (Buffer, error) {
	if buf, ok := c.buffers[lba]; ok {
		return buf, nil
	}
	data := make([]byte, c.device.blockSize)
	off := int64(lba) * int64(c.device.blockSize)
	_ = c.device.ReadBytes(off, data)
	buf := &fakeBuffer{lba: lba, data: data}
	c.buffers[lba] = buf
	return buf, nil
}

func (c *fakeCache) GetNoRead(lba uint64) (Buffer, error) {
	if buf, ok := c.buffers[lba]; ok {
		return buf, nil
	}
	buf := &fakeBuffer{lba: lba, data: make([]byte, c.device.blockSize)}
	c.buffers[lba] = buf
	return buf, nil
}

func (c *fakeCache) Flush(buf Buffer) error {
	fb := buf.(*fakeBuffer)
	off := int64(fb.lba) * int64(c.device.blockSize)
	if err := c.device.WriteBytes(off, fb.data); err != nil {
		return err
	}
	fb.dirty = false
	if fb.endWrite != nil {
		fn, arg := fb.endWrite, fb.endArg
		fb.endWrite = nil
		fb.endArg = nil
		fn(arg, nil)
	}
	return nil
}

// fakeFilesystem maps journal inode blocks directly onto device blocks
// starting at a fixed offset, and records superblock-recovery and
// feature-persist calls.
type fakeFilesystem struct {
	device          *fakeDevice
	journalBase     uint64
	needsRecovery   bool
	featuresWritten int
	wroteSuperblock int
	mountCount      uint16
	state           uint16

	// lastSuperblockData, lastMountCount and lastState capture the most
	// recent WriteSuperblock call's arguments, for tests that need to
	// confirm mount count and state were patched in rather than copied
	// verbatim from the journaled block.
	lastSuperblockData []byte
	lastMountCount     uint16
	lastState          uint16
}

func newFakeFilesystem(device *fakeDevice, journalBase uint64) *fakeFilesystem {
	return &fakeFilesystem{device: device, journalBase: journalBase, mountCount: 3, state: 1}
}

func (f *fakeFilesystem) InodeDblkIdx(iblock uint64) (uint64, error) {
	return f.journalBase + iblock, nil
}

func (f *fakeFilesystem) SetNeedsRecovery(needed bool) { f.needsRecovery = needed }
func (f *fakeFilesystem) NeedsRecovery() bool          { return f.needsRecovery }

func (f *fakeFilesystem) WriteFeatures() error {
	f.featuresWritten++
	return nil
}

func (f *fakeFilesystem) WriteSuperblock(blockData []byte, mountCount, state uint16) error {
	f.wroteSuperblock++
	f.lastSuperblockData = blockData
	f.lastMountCount = mountCount
	f.lastState = state
	return nil
}

func (f *fakeFilesystem) ReadHomeBlock0() (uint16, uint16, error) {
	return f.mountCount, f.state, nil
}
