package fs

import (
	"container/list"

	"corekernel/internal/hashtable"
	"corekernel/internal/limits"
	"corekernel/internal/sem"
	"corekernel/internal/spinlock"
)

/// EvictionThreshold bounds the cache's resident set: once over this
/// many blocks, Acquire evicts one unreferenced, unpinned block from
/// the LRU tail before looking up (or inserting) the requested one.
const EvictionThreshold = 20

type cacheEntry struct {
	block        *Bdev_block_t
	acquireCount int
	pinned       bool
	valid        bool
	lk           sem.Sleeplock_t
	elem         *list.Element
}

/// Cache_t is the block cache: a bounded, LRU-ordered, hashtable-
/// indexed set of disk blocks, each individually sleep-locked for
/// mutation and collectively bounded by a single cache spinlock.
type Cache_t struct {
	lock     spinlock.Spinlock_t
	lru      list.List // front = most recently used
	index    *hashtable.Hashtable_t[*cacheEntry]
	mem      Blockmem_i
	disk     Disk_i
	resident limits.Sysatomic_t
}

/// NewCache builds a cache over mem (block backing-store allocation)
/// and disk (the transport), bounded to EvictionThreshold resident
/// blocks as a hard ceiling — a pathological pin storm that keeps
/// every block referenced or pinned panics instead of growing the
/// resident set without bound.
func NewCache(mem Blockmem_i, disk Disk_i) *Cache_t {
	return &Cache_t{
		index:    hashtable.New[*cacheEntry](64),
		mem:      mem,
		disk:     disk,
		resident: limits.Sysatomic_t(EvictionThreshold),
	}
}

// evict drops one unreferenced, unpinned block from the LRU tail;
// caller holds c.lock. It is a no-op if every resident block is
// currently acquired or pinned.
func (c *Cache_t) evict() {
	for e := c.lru.Back(); e != nil; e = e.Prev() {
		ent := e.Value.(*cacheEntry)
		if ent.acquireCount > 0 || ent.pinned {
			continue
		}
		c.lru.Remove(e)
		c.index.Del(ent.block.Block)
		c.mem.Free(ent.block.Data)
		c.resident.Give()
		return
	}
}

/// Acquire returns the cached block for blockNo, reading it from disk
/// on first reference, and holding its per-block sleep-lock on
/// return — the caller must Release it.
func (c *Cache_t) Acquire(blockNo int) *Bdev_block_t {
	c.lock.Acquire()
	if c.lru.Len() > EvictionThreshold {
		c.evict()
	}

	if ent, ok := c.index.Get(blockNo); ok {
		ent.acquireCount++
		c.lru.MoveToFront(ent.elem)
		c.lock.Release()
		ent.lk.AcquireUnalertable(sem.NewGoroutineBlocker())
		return ent.block
	}

	if !c.resident.Take() {
		c.evict()
		if !c.resident.Take() {
			panic("fs: cache resident-block limit reached")
		}
	}

	data, ok := c.mem.Alloc()
	if !ok {
		c.resident.Give()
		panic("fs: cache out of backing memory")
	}
	b := &Bdev_block_t{Block: blockNo, Data: data, Disk: c.disk, Cb: c}
	ent := &cacheEntry{block: b, acquireCount: 1}
	ent.elem = c.lru.PushFront(ent)
	c.index.Set(blockNo, ent)
	c.lock.Release()

	ent.lk.AcquireUnalertable(sem.NewGoroutineBlocker())
	if !ent.valid {
		b.Read()
		ent.valid = true
	}
	return b
}

/// Relse implements Block_cb_i: it is what Bdev_block_t.Done calls. It
/// drops the block's sleep-lock, then decrements its acquire count
/// under the cache lock.
func (c *Cache_t) Relse(b *Bdev_block_t, _ string) {
	ent, ok := c.index.Get(b.Block)
	if !ok {
		panic("fs: release of block not in cache")
	}
	ent.lk.Release()
	c.lock.Acquire()
	defer c.lock.Release()
	if ent.acquireCount <= 0 {
		panic("fs: release of unacquired block")
	}
	ent.acquireCount--
}

/// Release is the caller-facing spelling of Relse.
func (c *Cache_t) Release(b *Bdev_block_t) { b.Done("") }

func (c *Cache_t) pin(blockNo int) {
	c.lock.Acquire()
	defer c.lock.Release()
	if ent, ok := c.index.Get(blockNo); ok {
		ent.pinned = true
	}
}

func (c *Cache_t) unpin(blockNo int) {
	c.lock.Acquire()
	defer c.lock.Release()
	if ent, ok := c.index.Get(blockNo); ok {
		ent.pinned = false
	}
}

/// Sync writes b. Outside a transaction (ctx == nil) it writes
/// straight through to disk. Inside one, it defers to the log, which
/// pins the block and registers it in the commit set.
func (c *Cache_t) Sync(ctx *Op_t, b *Bdev_block_t) {
	if ctx == nil {
		b.Write()
		return
	}
	ctx.log.register(ctx, b)
}

/// Alloc finds the first unused data block via the bitmap, marks it
/// used, zeroes it, and returns its block number.
func (c *Cache_t) Alloc(ctx *Op_t, sb *Super_t) int {
	bitmapStart := sb.BitmapStart()
	ndata := sb.NumDataBlocks()
	for bit := 0; bit < ndata; bit++ {
		blkIdx := bitmapStart + bit/(BSIZE*8)
		byteOff := (bit % (BSIZE * 8)) / 8
		mask := uint8(1) << uint(bit%8)

		bb := c.Acquire(blkIdx)
		if bb.Data[byteOff]&mask != 0 {
			c.Release(bb)
			continue
		}
		bb.Data[byteOff] |= mask
		c.Sync(ctx, bb)
		c.Release(bb)

		dataBlock := sb.DataStart() + bit
		db := c.Acquire(dataBlock)
		*db.Data = [BSIZE]uint8{}
		c.Sync(ctx, db)
		c.Release(db)
		return dataBlock
	}
	panic("fs: no free data blocks")
}

/// Free clears b's bit in the bitmap.
func (c *Cache_t) Free(ctx *Op_t, sb *Super_t, b int) {
	bit := b - sb.DataStart()
	blkIdx := sb.BitmapStart() + bit/(BSIZE*8)
	byteOff := (bit % (BSIZE * 8)) / 8
	mask := uint8(1) << uint(bit%8)

	bb := c.Acquire(blkIdx)
	bb.Data[byteOff] &^= mask
	c.Sync(ctx, bb)
	c.Release(bb)
}
