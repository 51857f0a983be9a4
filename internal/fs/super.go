package fs

import "corekernel/internal/util"

// Super_t is the on-disk super block: num_blocks, num_data_blocks,
// num_inodes, num_log_blocks, log_start, inode_start, bitmap_start,
// each a little-endian u32, 28 bytes used out of one full block. The
// field accessors mirror the teacher's fieldr/fieldw pattern over
// util.Readn/Writen rather than a Go struct with binary.Read, since
// the backing array is shared, mutable, page-resident memory that
// gets synced to disk as raw bytes.
type Super_t struct {
	data *[BSIZE]uint8
}

/// SuperBlockNum is the fixed block number the super block lives at;
/// the super block itself is read once at boot into a dedicated
/// in-memory copy rather than kept in the evictable block cache, since
/// every other on-disk region's location is computed from its fields.
const SuperBlockNum = 0

/// NewSuper returns a zeroed, in-memory super block, for a fresh
/// layout a host tool is about to write out.
func NewSuper() *Super_t {
	return &Super_t{data: &[BSIZE]uint8{}}
}

/// LoadSuper copies raw (as read from SuperBlockNum) into a new
/// in-memory super block.
func LoadSuper(raw *[BSIZE]uint8) *Super_t {
	cp := *raw
	return &Super_t{data: &cp}
}

/// Bytes returns the super block's raw on-disk representation, for a
/// caller writing it to SuperBlockNum.
func (s *Super_t) Bytes() *[BSIZE]uint8 { return s.data }

const (
	superOffNumBlocks     = 0
	superOffNumDataBlocks = 4
	superOffNumInodes     = 8
	superOffNumLogBlocks  = 12
	superOffLogStart      = 16
	superOffInodeStart    = 20
	superOffBitmapStart   = 24
)

func (s *Super_t) fieldr(off int) int {
	return util.Readn(s.data[:], 4, off)
}

func (s *Super_t) fieldw(off, v int) {
	util.Writen(s.data[:], 4, off, v)
}

func (s *Super_t) NumBlocks() int     { return s.fieldr(superOffNumBlocks) }
func (s *Super_t) NumDataBlocks() int { return s.fieldr(superOffNumDataBlocks) }
func (s *Super_t) NumInodes() int     { return s.fieldr(superOffNumInodes) }
func (s *Super_t) NumLogBlocks() int  { return s.fieldr(superOffNumLogBlocks) }
func (s *Super_t) LogStart() int      { return s.fieldr(superOffLogStart) }
func (s *Super_t) InodeStart() int    { return s.fieldr(superOffInodeStart) }
func (s *Super_t) BitmapStart() int   { return s.fieldr(superOffBitmapStart) }

func (s *Super_t) SetNumBlocks(v int)     { s.fieldw(superOffNumBlocks, v) }
func (s *Super_t) SetNumDataBlocks(v int) { s.fieldw(superOffNumDataBlocks, v) }
func (s *Super_t) SetNumInodes(v int)     { s.fieldw(superOffNumInodes, v) }
func (s *Super_t) SetNumLogBlocks(v int)  { s.fieldw(superOffNumLogBlocks, v) }
func (s *Super_t) SetLogStart(v int)      { s.fieldw(superOffLogStart, v) }
func (s *Super_t) SetInodeStart(v int)    { s.fieldw(superOffInodeStart, v) }
func (s *Super_t) SetBitmapStart(v int)   { s.fieldw(superOffBitmapStart, v) }

/// DataStart is one past the bitmap region: BitmapStart plus one block
/// per BSIZE*8 data blocks it covers.
func (s *Super_t) DataStart() int {
	bitmapBlocks := (s.NumDataBlocks() + BSIZE*8 - 1) / (BSIZE * 8)
	return s.BitmapStart() + bitmapBlocks
}
