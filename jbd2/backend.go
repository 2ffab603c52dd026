package jbd2

import (
	"io"

	"github.com/jbd2fs/jbd2/backend"
)

// FileBlockDevice adapts a backend.Storage (a plain file or block device
// opened via backend/file) to BlockDevice, giving callers without a
// fuller filesystem stack something concrete to run a Journal against.
type FileBlockDevice struct {
	storage   backend.Storage
	writable  backend.WritableFile
	blockSize uint32
}

// NewFileBlockDevice wraps storage as a BlockDevice with the given block
// size. storage must support Writable() if the caller intends to call
// WriteBytes.
func NewFileBlockDevice(storage backend.Storage, blockSize uint32) *FileBlockDevice {
	return &FileBlockDevice{storage: storage, blockSize: blockSize}
}

func (d *FileBlockDevice) BlockSize() uint32 { return d.blockSize }

func (d *FileBlockDevice) ReadBytes(offset int64, buf []byte) error {
	const op = "FileBlockDevice.ReadBytes"
	n, err := d.storage.ReadAt(buf, offset)
	if err != nil {
		return errIO(op, err)
	}
	if n != len(buf) {
		return errIO(op, io.ErrUnexpectedEOF)
	}
	return nil
}

func (d *FileBlockDevice) WriteBytes(offset int64, buf []byte) error {
	const op = "FileBlockDevice.WriteBytes"
	if d.writable == nil {
		w, err := d.storage.Writable()
		if err != nil {
			return errIO(op, err)
		}
		d.writable = w
	}
	if _, err := d.writable.WriteAt(buf, offset); err != nil {
		return errIO(op, err)
	}
	return nil
}
