// Package fs implements the storage stack above the block transport:
// the block cache, the write-ahead log, and the inode layer. blk.go
// defines the shared disk-block vocabulary (the cached block type, the
// disk-request protocol, and a block-list helper built on
// container/list) that every other file in the package, and the
// virtio transport underneath it, build on.
package fs

import (
	"container/list"
	"sync"
)

/// BSIZE is the size of a disk block in bytes: one sector.
const BSIZE = 512

/// Blockmem_i abstracts backing-memory allocation for block buffers.
type Blockmem_i interface {
	Alloc() (*[BSIZE]uint8, bool)
	Free(*[BSIZE]uint8)
}

/// Block_cb_i is implemented by callers wanting release callbacks,
/// i.e. the block cache itself.
type Block_cb_i interface {
	Relse(*Bdev_block_t, string)
}

/// blktype_t enumerates the types of blocks stored on disk.
type blktype_t int

const (
	DataBlk   blktype_t = 0
	CommitBlk blktype_t = -1
	RevokeBlk blktype_t = -2
)

/// Bdev_block_t is a cached disk block: the single unit the block
/// cache, the log, and the inode layer all pass around.
type Bdev_block_t struct {
	sync.Mutex
	Block int
	Type  blktype_t
	Data  *[BSIZE]uint8
	Name  string
	Disk  Disk_i
	Cb    Block_cb_i

	tryEvict bool
	pinned   bool
	acquired int
}

/// Tryevict marks the block eligible for eviction once released.
func (b *Bdev_block_t) Tryevict() { b.tryEvict = true }

/// Evictnow reports whether the block has been marked for eviction.
func (b *Bdev_block_t) Evictnow() bool { return b.tryEvict }

/// Done releases the block via its owning cache's callback.
func (b *Bdev_block_t) Done(s string) {
	if b.Cb == nil {
		panic("fs: block has no release callback")
	}
	b.Cb.Relse(b, s)
}

/// Bdevcmd_t enumerates disk request types.
type Bdevcmd_t uint

const (
	BDEV_WRITE Bdevcmd_t = 1
	BDEV_READ  Bdevcmd_t = 2
	BDEV_FLUSH Bdevcmd_t = 3
)

/// BlkList_t wraps a list.List of block pointers, the transport's unit
/// of batched I/O (one request can carry several blocks).
type BlkList_t struct {
	l *list.List
	e *list.Element
}

/// MkBlkList creates an empty block list.
func MkBlkList() *BlkList_t {
	return &BlkList_t{l: list.New()}
}

/// Len returns the number of blocks in the list.
func (bl *BlkList_t) Len() int { return bl.l.Len() }

/// PushBack appends a block to the list.
func (bl *BlkList_t) PushBack(b *Bdev_block_t) { bl.l.PushBack(b) }

/// FrontBlock resets the iterator and returns the first block, or nil.
func (bl *BlkList_t) FrontBlock() *Bdev_block_t {
	bl.e = bl.l.Front()
	if bl.e == nil {
		return nil
	}
	return bl.e.Value.(*Bdev_block_t)
}

/// NextBlock advances the iterator and returns the next block, or nil.
func (bl *BlkList_t) NextBlock() *Bdev_block_t {
	if bl.e == nil {
		return nil
	}
	bl.e = bl.e.Next()
	if bl.e == nil {
		return nil
	}
	return bl.e.Value.(*Bdev_block_t)
}

/// Apply calls f for every block in the list.
func (bl *BlkList_t) Apply(f func(*Bdev_block_t)) {
	for b := bl.FrontBlock(); b != nil; b = bl.NextBlock() {
		f(b)
	}
}

/// Bdev_req_t describes a batched disk request.
type Bdev_req_t struct {
	Cmd   Bdevcmd_t
	Blks  *BlkList_t
	AckCh chan bool
}

/// MkRequest allocates a new disk request.
func MkRequest(blks *BlkList_t, cmd Bdevcmd_t) *Bdev_req_t {
	return &Bdev_req_t{Cmd: cmd, Blks: blks, AckCh: make(chan bool, 1)}
}

/// Disk_i is the interface the block transport (internal/virtio)
/// implements for the rest of this package.
type Disk_i interface {
	Start(*Bdev_req_t) bool
	Stats() string
}

/// Write synchronously writes b to disk.
func (b *Bdev_block_t) Write() {
	l := MkBlkList()
	l.PushBack(b)
	req := MkRequest(l, BDEV_WRITE)
	if b.Disk.Start(req) {
		<-req.AckCh
	}
}

/// Read synchronously reads b from disk.
func (b *Bdev_block_t) Read() {
	l := MkBlkList()
	l.PushBack(b)
	req := MkRequest(l, BDEV_READ)
	if b.Disk.Start(req) {
		<-req.AckCh
	}
}

/// WriteList synchronously writes every block in bl as one batched
/// request.
func WriteList(d Disk_i, bl *BlkList_t) {
	req := MkRequest(bl, BDEV_WRITE)
	if d.Start(req) {
		<-req.AckCh
	}
}
