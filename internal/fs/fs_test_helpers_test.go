package fs

import "sync"

// memBlockmem is a trivial Blockmem_i backed by a free list of heap
// buffers; tests never actually run low on memory, so Alloc always
// succeeds.
type memBlockmem struct {
	mu   sync.Mutex
	free []*[BSIZE]uint8
}

func newMemBlockmem() *memBlockmem { return &memBlockmem{} }

func (m *memBlockmem) Alloc() (*[BSIZE]uint8, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.free); n > 0 {
		b := m.free[n-1]
		m.free = m.free[:n-1]
		return b, true
	}
	return &[BSIZE]uint8{}, true
}

func (m *memBlockmem) Free(b *[BSIZE]uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.free = append(m.free, b)
}

// memDisk is a synchronous in-memory Disk_i: it services every request
// inline before Start returns and signals completion by returning
// false, which callers in this package treat as "already done".
type memDisk struct {
	mu     sync.Mutex
	blocks map[int]*[BSIZE]uint8
}

func newMemDisk() *memDisk { return &memDisk{blocks: make(map[int]*[BSIZE]uint8)} }

func (d *memDisk) Start(req *Bdev_req_t) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	req.Blks.Apply(func(b *Bdev_block_t) {
		switch req.Cmd {
		case BDEV_WRITE:
			cp := *b.Data
			d.blocks[b.Block] = &cp
		case BDEV_READ:
			if src, ok := d.blocks[b.Block]; ok {
				*b.Data = *src
			} else {
				*b.Data = [BSIZE]uint8{}
			}
		}
	})
	return false
}

func (d *memDisk) Stats() string { return "memdisk" }

// newTestSuper builds a minimal super block large enough to exercise
// the log, cache, and inode layers: a handful of log blocks, a
// generous inode table, a one-block bitmap, and room for data blocks.
func newTestSuper(cache *Cache_t, numInodes, numDataBlocks int) *Super_t {
	sb := &Super_t{data: &[BSIZE]uint8{}}
	logStart := 1
	numLogBlocks := 16
	inodeStart := logStart + numLogBlocks
	inodeBlocks := (numInodes + inodesPerBlock - 1) / inodesPerBlock
	bitmapStart := inodeStart + inodeBlocks
	bitmapBlocks := (numDataBlocks + BSIZE*8 - 1) / (BSIZE * 8)
	dataStart := bitmapStart + bitmapBlocks

	sb.SetNumDataBlocks(numDataBlocks)
	sb.SetNumInodes(numInodes)
	sb.SetNumLogBlocks(numLogBlocks)
	sb.SetLogStart(logStart)
	sb.SetInodeStart(inodeStart)
	sb.SetBitmapStart(bitmapStart)
	sb.SetNumBlocks(dataStart + numDataBlocks)

	for n := 0; n < numInodes; n++ {
		b := cache.Acquire(inodeBlock(inodeStart, n))
		off := inodeOff(n)
		for i := off; i < off+inodeSz; i++ {
			b.Data[i] = 0
		}
		b.Write()
		cache.Release(b)
	}
	for blk := bitmapStart; blk < dataStart; blk++ {
		b := cache.Acquire(blk)
		*b.Data = [BSIZE]uint8{}
		b.Write()
		cache.Release(b)
	}

	return sb
}

func newTestStack(numInodes, numDataBlocks int) (*Cache_t, *Log_t, *Itable_t) {
	disk := newMemDisk()
	cache := NewCache(newMemBlockmem(), disk)
	sb := newTestSuper(cache, numInodes, numDataBlocks)
	log := NewLog(cache, sb)
	it := NewItable(cache, sb)
	return cache, log, it
}

// countAllocatedBits returns how many of sb's data-block bitmap bits
// are set, for tests asserting an exact block-allocation count.
func countAllocatedBits(cache *Cache_t, sb *Super_t) int {
	n := 0
	ndata := sb.NumDataBlocks()
	for bit := 0; bit < ndata; bit++ {
		blkIdx := sb.BitmapStart() + bit/(BSIZE*8)
		byteOff := (bit % (BSIZE * 8)) / 8
		mask := uint8(1) << uint(bit%8)
		b := cache.Acquire(blkIdx)
		if b.Data[byteOff]&mask != 0 {
			n++
		}
		cache.Release(b)
	}
	return n
}
