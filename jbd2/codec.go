package jbd2

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// Journal magic number, common to every non-data log block.
const journalMagic uint32 = 0xC03B3998

// BlockType identifies the kind of a journal log block, from its header.
type BlockType uint32

const (
	BlockTypeDescriptor   BlockType = 1
	BlockTypeCommit       BlockType = 2
	BlockTypeSuperblockV1 BlockType = 3
	BlockTypeSuperblockV2 BlockType = 4
	BlockTypeRevoke       BlockType = 5
)

// headerSize is the fixed 12-byte prefix of every non-data log block.
const headerSize = 12

// SuperblockSize is the fixed on-disk size of the journal superblock,
// matching the ext4 superblock region it shares space with.
const SuperblockSize = 1024

// Tag flags.
const (
	TagFlagEscape   uint32 = 0x1
	TagFlagSameUUID uint32 = 0x2
	TagFlagLastTag  uint32 = 0x8
)

// Header is the common prefix of descriptor, commit, revoke, and
// superblock log blocks.
type Header struct {
	BlockType BlockType
	Sequence  uint32
}

func headerFromBytes(op string, b []byte) (Header, error) {
	if len(b) < headerSize {
		return Header{}, errCorruptf(op, "header: need %d bytes, got %d", headerSize, len(b))
	}
	magic := binary.BigEndian.Uint32(b[0:4])
	if magic != journalMagic {
		return Header{}, errCorruptf(op, "bad journal magic 0x%x", magic)
	}
	return Header{
		BlockType: BlockType(binary.BigEndian.Uint32(b[4:8])),
		Sequence:  binary.BigEndian.Uint32(b[8:12]),
	}, nil
}

func (h Header) toBytes(b []byte) {
	binary.BigEndian.PutUint32(b[0:4], journalMagic)
	binary.BigEndian.PutUint32(b[4:8], uint32(h.BlockType))
	binary.BigEndian.PutUint32(b[8:12], h.Sequence)
}

// Superblock is the jbd2 journal superblock.
type Superblock struct {
	Header           Header
	BlockSize        uint32
	MaxLen           uint32
	First            uint32
	Sequence         uint32
	Start            uint32
	Errno            uint32
	CompatFeatures   uint32
	IncompatFeatures uint32
	RoCompatFeatures uint32
	UUID             uuid.UUID
	NrUsers          uint32
	Checksum         uint32
}

// NewSuperblock builds a fresh, clean (Start == 0) superblock for a journal
// occupying maxLen blocks of blockSize bytes each, usable starting at
// block `first`.
func NewSuperblock(blockSize, maxLen, first uint32, opts *Options) *Superblock {
	id, _ := uuid.NewRandom()
	incompat := uint32(0)
	if opts != nil {
		incompat = opts.IncompatFeatures()
	}
	return &Superblock{
		Header:           Header{BlockType: BlockTypeSuperblockV2, Sequence: 0},
		BlockSize:        blockSize,
		MaxLen:           maxLen,
		First:            first,
		Sequence:         1,
		Start:            0,
		IncompatFeatures: incompat,
		UUID:             id,
		NrUsers:          1,
	}
}

// SuperblockFromBytes parses a Superblock from a SuperblockSize-byte
// region.
func SuperblockFromBytes(b []byte) (*Superblock, error) {
	const op = "SuperblockFromBytes"
	if len(b) != SuperblockSize {
		return nil, errCorruptf(op, "need %d bytes, got %d", SuperblockSize, len(b))
	}
	h, err := headerFromBytes(op, b[0:headerSize])
	if err != nil {
		return nil, err
	}
	if h.BlockType != BlockTypeSuperblockV1 && h.BlockType != BlockTypeSuperblockV2 {
		return nil, errCorruptf(op, "expected superblock block type, got %d", h.BlockType)
	}

	sb := &Superblock{
		Header:    h,
		BlockSize: binary.BigEndian.Uint32(b[0x0c:0x10]),
		MaxLen:    binary.BigEndian.Uint32(b[0x10:0x14]),
		First:     binary.BigEndian.Uint32(b[0x14:0x18]),
		Sequence:  binary.BigEndian.Uint32(b[0x18:0x1c]),
		Start:     binary.BigEndian.Uint32(b[0x1c:0x20]),
		Errno:     binary.BigEndian.Uint32(b[0x20:0x24]),
	}

	if h.BlockType == BlockTypeSuperblockV2 {
		sb.CompatFeatures = binary.BigEndian.Uint32(b[0x24:0x28])
		sb.IncompatFeatures = binary.BigEndian.Uint32(b[0x28:0x2c])
		sb.RoCompatFeatures = binary.BigEndian.Uint32(b[0x2c:0x30])
		if id, err := uuid.FromBytes(b[0x30:0x40]); err == nil {
			sb.UUID = id
		}
		sb.NrUsers = binary.BigEndian.Uint32(b[0x40:0x44])
		sb.Checksum = binary.BigEndian.Uint32(b[0xfc:0x100])
	}

	if err := validateSuperblock(sb); err != nil {
		return nil, err
	}
	return sb, nil
}

// validateSuperblock enforces the on-disk invariant that start is either
// 0 (empty log) or within [first, maxlen), and that maxlen exceeds first.
func validateSuperblock(sb *Superblock) error {
	const op = "validateSuperblock"
	if sb.MaxLen <= sb.First {
		return errCorruptf(op, "maxlen %d must exceed first %d", sb.MaxLen, sb.First)
	}
	if sb.Start != 0 && (sb.Start < sb.First || sb.Start >= sb.MaxLen) {
		return errCorruptf(op, "start %d out of range [%d, %d)", sb.Start, sb.First, sb.MaxLen)
	}
	return nil
}

// ToBytes serializes the Superblock to a SuperblockSize-byte region.
// Checksum generation is not implemented; the Checksum field is written
// back exactly as it was last set, so
// Superblock -> ToBytes -> SuperblockFromBytes is the identity.
func (sb *Superblock) ToBytes() ([]byte, error) {
	if err := validateSuperblock(sb); err != nil {
		return nil, err
	}
	b := make([]byte, SuperblockSize)
	h := sb.Header
	if h.BlockType == 0 {
		h.BlockType = BlockTypeSuperblockV2
	}
	h.toBytes(b[0:headerSize])

	binary.BigEndian.PutUint32(b[0x0c:0x10], sb.BlockSize)
	binary.BigEndian.PutUint32(b[0x10:0x14], sb.MaxLen)
	binary.BigEndian.PutUint32(b[0x14:0x18], sb.First)
	binary.BigEndian.PutUint32(b[0x18:0x1c], sb.Sequence)
	binary.BigEndian.PutUint32(b[0x1c:0x20], sb.Start)
	binary.BigEndian.PutUint32(b[0x20:0x24], sb.Errno)

	if h.BlockType == BlockTypeSuperblockV2 {
		binary.BigEndian.PutUint32(b[0x24:0x28], sb.CompatFeatures)
		binary.BigEndian.PutUint32(b[0x28:0x2c], sb.IncompatFeatures)
		binary.BigEndian.PutUint32(b[0x2c:0x30], sb.RoCompatFeatures)
		copy(b[0x30:0x40], sb.UUID[:])
		binary.BigEndian.PutUint32(b[0x40:0x44], sb.NrUsers)
		binary.BigEndian.PutUint32(b[0xfc:0x100], sb.Checksum)
	}

	return b, nil
}

// Has64Bit, HasCsumV2, HasCsumV3 report the corresponding incompatible
// feature bits, mirroring the Options accessors of the same name for
// superblocks read off disk during recovery (where there is no caller
// supplied Options).
func (sb *Superblock) Has64Bit() bool { return sb.IncompatFeatures&Incompat64Bit != 0 }
func (sb *Superblock) HasCsumV2() bool { return sb.IncompatFeatures&IncompatCsumV2 != 0 }
func (sb *Superblock) HasCsumV3() bool { return sb.IncompatFeatures&IncompatCsumV3 != 0 }

func (sb *Superblock) options() *Options {
	return optionsFromFeatures(sb.IncompatFeatures)
}

// BlockTag is a single entry of a descriptor block's tag stream, pointing
// at one home block that the following data log block should be copied
// to on replay.
type BlockTag struct {
	Block    uint64
	Flags    uint32
	Checksum uint32
	UUID     []byte // 16 bytes, present only when SAME_UUID is not set
}

// tagFixedSize returns the size, in bytes, of the fixed (non-UUID)
// portion of a block tag for the given feature configuration. CSUM_V3
// implies 64-bit sizing regardless of the 64-bit feature bit.
func tagFixedSize(opts *Options) int {
	if opts.HasCsumV3() {
		return 16 // blocknr_low(4) + flags(4) + checksum(4) + blocknr_high(4)
	}
	size := 6 // blocknr_low(4) + flags(2)
	if opts.Has64Bit() {
		size += 4 // blocknr_high
	}
	if opts.HasCsumV2() {
		size += 2 // checksum
	}
	return size
}

// ExtractTag parses one block tag from the front of buffer, which has
// `remaining` valid bytes. It returns the tag and the number of bytes
// consumed (including any inline UUID).
func ExtractTag(buffer []byte, remaining int, opts *Options) (*BlockTag, int, error) {
	const op = "ExtractTag"
	fixed := tagFixedSize(opts)
	if remaining < fixed || len(buffer) < fixed {
		return nil, 0, errInvariant(op, "buffer too small for fixed tag")
	}

	tag := &BlockTag{}
	if opts.HasCsumV3() {
		low := binary.BigEndian.Uint32(buffer[0:4])
		tag.Flags = binary.BigEndian.Uint32(buffer[4:8])
		tag.Checksum = binary.BigEndian.Uint32(buffer[8:12])
		high := binary.BigEndian.Uint32(buffer[12:16])
		tag.Block = uint64(low) | uint64(high)<<32
	} else {
		low := binary.BigEndian.Uint32(buffer[0:4])
		tag.Flags = uint32(binary.BigEndian.Uint16(buffer[4:6]))
		offset := 6
		var high uint32
		if opts.Has64Bit() {
			high = binary.BigEndian.Uint32(buffer[offset : offset+4])
			offset += 4
		}
		if opts.HasCsumV2() {
			tag.Checksum = uint32(binary.BigEndian.Uint16(buffer[offset : offset+2]))
		}
		tag.Block = uint64(low) | uint64(high)<<32
	}

	consumed := fixed
	if tag.Flags&TagFlagSameUUID == 0 {
		if remaining < fixed+16 || len(buffer) < fixed+16 {
			return nil, 0, errInvariant(op, "buffer too small for tag UUID")
		}
		tag.UUID = append([]byte(nil), buffer[fixed:fixed+16]...)
		consumed = fixed + 16
	}

	return tag, consumed, nil
}

// WriteTag serializes tag into the front of buffer, which has `remaining`
// usable bytes. It returns the number of bytes written.
func WriteTag(buffer []byte, remaining int, tag *BlockTag, opts *Options) (int, error) {
	const op = "WriteTag"
	fixed := tagFixedSize(opts)
	needUUID := tag.Flags&TagFlagSameUUID == 0
	need := fixed
	if needUUID {
		need += 16
	}
	if remaining < need || len(buffer) < need {
		return 0, errInvariant(op, "buffer too small to write tag")
	}

	low := uint32(tag.Block & 0xffffffff)
	high := uint32(tag.Block >> 32)

	if opts.HasCsumV3() {
		binary.BigEndian.PutUint32(buffer[0:4], low)
		binary.BigEndian.PutUint32(buffer[4:8], tag.Flags)
		binary.BigEndian.PutUint32(buffer[8:12], tag.Checksum)
		binary.BigEndian.PutUint32(buffer[12:16], high)
	} else {
		binary.BigEndian.PutUint32(buffer[0:4], low)
		binary.BigEndian.PutUint16(buffer[4:6], uint16(tag.Flags))
		offset := 6
		if opts.Has64Bit() {
			binary.BigEndian.PutUint32(buffer[offset:offset+4], high)
			offset += 4
		}
		if opts.HasCsumV2() {
			binary.BigEndian.PutUint16(buffer[offset:offset+2], uint16(tag.Checksum))
		}
	}

	if needUUID {
		copy(buffer[fixed:fixed+16], tag.UUID)
	}

	return need, nil
}

// RevokeBlockHeaderSize is the fixed portion (header + count) of a revoke
// block, before the packed block-number array.
const RevokeBlockHeaderSize = headerSize + 4

// RevokeRecord is a parsed revoke block: a header plus the packed block
// numbers it revokes.
type RevokeRecord struct {
	Header Header
	Blocks []uint64
}

// blockNumSize returns 4 or 8 depending on whether 64-bit block numbers
// are in effect.
func blockNumSize(opts *Options) uint32 {
	if opts.Has64Bit() {
		return 8
	}
	return 4
}

// RevokeRecordFromBytes parses a revoke block.
func RevokeRecordFromBytes(b []byte, opts *Options) (*RevokeRecord, error) {
	const op = "RevokeRecordFromBytes"
	if len(b) < RevokeBlockHeaderSize {
		return nil, errCorruptf(op, "need at least %d bytes, got %d", RevokeBlockHeaderSize, len(b))
	}
	h, err := headerFromBytes(op, b[0:headerSize])
	if err != nil {
		return nil, err
	}
	if h.BlockType != BlockTypeRevoke {
		return nil, errCorruptf(op, "expected revoke block type, got %d", h.BlockType)
	}
	count := binary.BigEndian.Uint32(b[headerSize : headerSize+4])
	if count < RevokeBlockHeaderSize {
		return nil, errCorruptf(op, "revoke count %d smaller than header", count)
	}

	rec := &RevokeRecord{Header: h}
	numSize := blockNumSize(opts)
	offset := uint32(RevokeBlockHeaderSize)
	for offset < count && offset+numSize <= uint32(len(b)) {
		if numSize == 8 {
			rec.Blocks = append(rec.Blocks, binary.BigEndian.Uint64(b[offset:offset+8]))
		} else {
			rec.Blocks = append(rec.Blocks, uint64(binary.BigEndian.Uint32(b[offset:offset+4])))
		}
		offset += numSize
	}
	return rec, nil
}

// ToBytes serializes a revoke block into a blockSize-byte buffer. Count is
// computed as the number of bytes used including the header.
func (r *RevokeRecord) ToBytes(blockSize uint32, opts *Options) ([]byte, error) {
	const op = "RevokeRecord.ToBytes"
	b := make([]byte, blockSize)
	h := r.Header
	h.BlockType = BlockTypeRevoke
	h.toBytes(b[0:headerSize])

	numSize := blockNumSize(opts)
	count := uint32(RevokeBlockHeaderSize) + uint32(len(r.Blocks))*numSize
	if count > blockSize {
		return nil, errInvariant(op, "revoke block overflow")
	}
	binary.BigEndian.PutUint32(b[headerSize:headerSize+4], count)

	offset := uint32(RevokeBlockHeaderSize)
	for _, blk := range r.Blocks {
		if numSize == 8 {
			binary.BigEndian.PutUint64(b[offset:offset+8], blk)
		} else {
			binary.BigEndian.PutUint32(b[offset:offset+4], uint32(blk))
		}
		offset += numSize
	}
	return b, nil
}

// revokeCapacityRemaining returns how many more block numbers fit in a revoke block of
// blockSize bytes that already holds used bytes (including header).
func revokeCapacityRemaining(blockSize, used uint32, opts *Options) int {
	numSize := blockNumSize(opts)
	if used >= blockSize {
		return 0
	}
	return int((blockSize - used) / numSize)
}
