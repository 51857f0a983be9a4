package fs

import (
	"container/list"

	"corekernel/internal/sem"
	"corekernel/internal/spinlock"
	"corekernel/internal/ustr"
	"corekernel/internal/util"
)

/// Itype_t enumerates on-disk inode types.
type Itype_t uint16

const (
	Invalid  Itype_t = 0
	Dir      Itype_t = 1
	File     Itype_t = 2
	DevBlk   Itype_t = 3
	inodeSz          = 32
	NumDirect        = 12
	NumIndirect      = 128
)

/// MaxFileSize is (direct + indirect pointers) × BSIZE = (12+128)×512 =
/// 71,680 bytes.
const MaxFileSize = (NumDirect + NumIndirect) * BSIZE

/// DirentSize is the on-disk size of one directory entry.
const DirentSize = 2 + ustr.NameLen

const inodesPerBlock = BSIZE / inodeSz

// inode field byte offsets within its 32-byte on-disk record.
const (
	ioffType     = 0
	ioffMajor    = 2
	ioffMinor    = 4
	ioffNumLinks = 6
	ioffNumBytes = 8
	ioffAddrs    = 12 // 12 × u32
	ioffIndirect = 12 + NumDirect*4
)

/// Inode_t is the in-memory inode record: identity, sleep-lock,
/// reference count, LRU membership, and a cached copy of the on-disk
/// fields it mirrors.
type Inode_t struct {
	InodeNo int
	lk      sem.Sleeplock_t
	refs    int
	valid   bool
	elem    *list.Element

	typ      Itype_t
	major    uint16
	minor    uint16
	numLinks uint16
	numBytes uint32
	addrs    [NumDirect]uint32
	indirect uint32
}

/// Itable_t is the in-memory inode table: a spinlock-guarded list of
/// resident inodes plus the location of the on-disk table and the
/// cache/log beneath it.
type Itable_t struct {
	lock       spinlock.Spinlock_t
	inodes     list.List // of *Inode_t
	cache      *Cache_t
	sb         *Super_t
	inodeStart int
	numInodes  int
}

/// NewItable builds the in-memory inode table.
func NewItable(cache *Cache_t, sb *Super_t) *Itable_t {
	return &Itable_t{cache: cache, sb: sb, inodeStart: sb.InodeStart(), numInodes: sb.NumInodes()}
}

func inodeBlock(start, n int) int { return start + n/inodesPerBlock }
func inodeOff(n int) int          { return (n % inodesPerBlock) * inodeSz }

func (it *Itable_t) readDisk(ip *Inode_t) {
	b := it.cache.Acquire(inodeBlock(it.inodeStart, ip.InodeNo))
	off := inodeOff(ip.InodeNo)
	data := b.Data[:]
	ip.typ = Itype_t(util.Readn(data, 2, off+ioffType))
	ip.major = uint16(util.Readn(data, 2, off+ioffMajor))
	ip.minor = uint16(util.Readn(data, 2, off+ioffMinor))
	ip.numLinks = uint16(util.Readn(data, 2, off+ioffNumLinks))
	ip.numBytes = uint32(util.Readn(data, 4, off+ioffNumBytes))
	for i := 0; i < NumDirect; i++ {
		ip.addrs[i] = uint32(util.Readn(data, 4, off+ioffAddrs+4*i))
	}
	ip.indirect = uint32(util.Readn(data, 4, off+ioffIndirect))
	it.cache.Release(b)
}

func (it *Itable_t) writeDisk(ctx *Op_t, ip *Inode_t) {
	b := it.cache.Acquire(inodeBlock(it.inodeStart, ip.InodeNo))
	off := inodeOff(ip.InodeNo)
	data := b.Data[:]
	util.Writen(data, 2, off+ioffType, int(ip.typ))
	util.Writen(data, 2, off+ioffMajor, int(ip.major))
	util.Writen(data, 2, off+ioffMinor, int(ip.minor))
	util.Writen(data, 2, off+ioffNumLinks, int(ip.numLinks))
	util.Writen(data, 4, off+ioffNumBytes, int(ip.numBytes))
	for i := 0; i < NumDirect; i++ {
		util.Writen(data, 4, off+ioffAddrs+4*i, int(ip.addrs[i]))
	}
	util.Writen(data, 4, off+ioffIndirect, int(ip.indirect))
	it.cache.Sync(ctx, b)
	it.cache.Release(b)
}

/// Alloc scans the inode table from inode 1 upward for the first
/// INVALID entry, rewrites it to {type, rest zero}, syncs it, and
/// returns its number. Panics on exhaustion.
func (it *Itable_t) Alloc(ctx *Op_t, typ Itype_t) int {
	for n := 1; n < it.numInodes; n++ {
		b := it.cache.Acquire(inodeBlock(it.inodeStart, n))
		off := inodeOff(n)
		if Itype_t(util.Readn(b.Data[:], 2, off+ioffType)) == Invalid {
			for i := off; i < off+inodeSz; i++ {
				b.Data[i] = 0
			}
			util.Writen(b.Data[:], 2, off+ioffType, int(typ))
			it.cache.Sync(ctx, b)
			it.cache.Release(b)
			return n
		}
		it.cache.Release(b)
	}
	panic("fs: inode table exhausted")
}

func (it *Itable_t) find(n int) *Inode_t {
	for e := it.inodes.Front(); e != nil; e = e.Next() {
		ip := e.Value.(*Inode_t)
		if ip.InodeNo == n {
			return ip
		}
	}
	return nil
}

/// Get returns the in-memory inode for n, reading it from disk on
/// first reference.
func (it *Itable_t) Get(n int) *Inode_t {
	it.lock.Acquire()
	if ip := it.find(n); ip != nil {
		ip.refs++
		it.lock.Release()
		ip.lk.AcquireUnalertable(sem.NewGoroutineBlocker())
		ip.lk.Release()
		return ip
	}

	ip := &Inode_t{InodeNo: n, refs: 1}
	ip.elem = it.inodes.PushBack(ip)
	it.lock.Release()

	ip.lk.AcquireUnalertable(sem.NewGoroutineBlocker())
	it.readDisk(ip)
	ip.valid = true
	ip.lk.Release()
	return ip
}

/// Sync writes or reads back an inode's on-disk record depending on
/// doWrite; invalid+doWrite is a contract violation.
func (it *Itable_t) Sync(ctx *Op_t, ip *Inode_t, doWrite bool) {
	if !ip.valid && doWrite {
		panic("fs: sync of invalid inode")
	}
	if !ip.valid {
		it.readDisk(ip)
		ip.valid = true
		return
	}
	if doWrite {
		it.writeDisk(ctx, ip)
	}
}

/// Put drops a reference; if it was the last one and the inode is a
/// valid, unlinked file, its blocks are freed and the on-disk record
/// marked INVALID.
func (it *Itable_t) Put(ctx *Op_t, ip *Inode_t) {
	it.lock.Acquire()
	last := ip.refs == 1
	freeing := last && ip.valid && ip.numLinks == 0
	if last {
		it.inodes.Remove(ip.elem)
	} else {
		ip.refs--
	}
	it.lock.Release()

	if !freeing {
		return
	}
	ip.lk.AcquireUnalertable(sem.NewGoroutineBlocker())
	it.Clear(ctx, ip)
	ip.typ = Invalid
	it.writeDisk(ctx, ip)
	ip.valid = false
	ip.lk.Release()
}

/// Clear frees every block an inode references (direct and indirect)
/// and zeroes its size.
func (it *Itable_t) Clear(ctx *Op_t, ip *Inode_t) {
	sb := it.sb
	for i := 0; i < NumDirect; i++ {
		if ip.addrs[i] != 0 {
			it.cache.Free(ctx, sb, int(ip.addrs[i]))
			ip.addrs[i] = 0
		}
	}
	if ip.indirect != 0 {
		b := it.cache.Acquire(int(ip.indirect))
		for i := 0; i < NumIndirect; i++ {
			ptr := uint32(util.Readn(b.Data[:], 4, 4*i))
			if ptr != 0 {
				it.cache.Free(ctx, sb, int(ptr))
			}
		}
		it.cache.Release(b)
		it.cache.Free(ctx, sb, int(ip.indirect))
		ip.indirect = 0
	}
	ip.numBytes = 0
	it.writeDisk(ctx, ip)
}

/// Map returns the block number backing logical block blkidx of ip,
/// allocating it (direct or indirect) if ctx is non-nil and the slot
/// is currently unallocated. *modified reports whether an allocation
/// happened.
func (it *Itable_t) Map(ctx *Op_t, ip *Inode_t, blkidx int, modified *bool) int {
	*modified = false
	if blkidx < NumDirect {
		if ip.addrs[blkidx] == 0 {
			if ctx == nil {
				return 0
			}
			ip.addrs[blkidx] = uint32(it.cache.Alloc(ctx, it.sb))
			*modified = true
		}
		return int(ip.addrs[blkidx])
	}

	blkidx -= NumDirect
	if blkidx >= NumIndirect {
		panic("fs: block index out of range")
	}

	if ip.indirect == 0 {
		if ctx == nil {
			return 0
		}
		ip.indirect = uint32(it.cache.Alloc(ctx, it.sb))
		*modified = true
	}

	b := it.cache.Acquire(int(ip.indirect))
	ptr := uint32(util.Readn(b.Data[:], 4, 4*blkidx))
	if ptr == 0 {
		if ctx == nil {
			it.cache.Release(b)
			return 0
		}
		ptr = uint32(it.cache.Alloc(ctx, it.sb))
		util.Writen(b.Data[:], 4, 4*blkidx, int(ptr))
		it.cache.Sync(ctx, b)
		*modified = true
	}
	it.cache.Release(b)
	return int(ptr)
}

/// Read copies up to n bytes starting at off from ip's data into dst,
/// clamped to the inode's recorded size.
func (it *Itable_t) Read(ip *Inode_t, dst []byte, off, n int) int {
	if off > int(ip.numBytes) {
		return 0
	}
	if off+n > int(ip.numBytes) {
		n = int(ip.numBytes) - off
	}
	got := 0
	for got < n {
		blkidx := (off + got) / BSIZE
		blkoff := (off + got) % BSIZE
		want := util.Min(n-got, BSIZE-blkoff)

		var modified bool
		blk := it.Map(nil, ip, blkidx, &modified)
		if blk == 0 {
			for i := 0; i < want; i++ {
				dst[got+i] = 0
			}
		} else {
			b := it.cache.Acquire(blk)
			copy(dst[got:got+want], b.Data[blkoff:blkoff+want])
			it.cache.Release(b)
		}
		got += want
	}
	return got
}

/// Write copies n bytes from src into ip's data starting at off,
/// allocating blocks as needed and growing num_bytes.
func (it *Itable_t) Write(ctx *Op_t, ip *Inode_t, src []byte, off, n int) int {
	if off+n > MaxFileSize || off+n < off {
		panic("fs: write exceeds max file size")
	}
	put := 0
	for put < n {
		blkidx := (off + put) / BSIZE
		blkoff := (off + put) % BSIZE
		want := util.Min(n-put, BSIZE-blkoff)

		var modified bool
		blk := it.Map(ctx, ip, blkidx, &modified)
		b := it.cache.Acquire(blk)
		copy(b.Data[blkoff:blkoff+want], src[put:put+want])
		it.cache.Sync(ctx, b)
		it.cache.Release(b)
		put += want
	}
	if uint32(off+n) > ip.numBytes {
		ip.numBytes = uint32(off + n)
	}
	it.writeDisk(ctx, ip)
	return put
}

/// Lookup linearly scans a directory's entries for name, returning
/// its inode number (0 on miss) and the byte offset of its entry.
func (it *Itable_t) Lookup(ip *Inode_t, name ustr.Name) (ino int, offOut int) {
	buf := make([]byte, DirentSize)
	for off := 0; off+DirentSize <= int(ip.numBytes); off += DirentSize {
		it.Read(ip, buf, off, DirentSize)
		n := int(util.Readn(buf, 2, 0))
		if n != 0 && ustr.FromBytes(buf[2:]).Eq(name) {
			return n, off
		}
	}
	return 0, 0
}

/// Insert adds {name, ino} to directory ip at the first free slot (or
/// appended), rejecting duplicates, and returns the slot's offset.
func (it *Itable_t) Insert(ctx *Op_t, ip *Inode_t, name ustr.Name, ino int) int {
	if n, _ := it.Lookup(ip, name); n != 0 {
		panic("fs: duplicate directory entry")
	}
	buf := make([]byte, DirentSize)
	off := 0
	for ; off+DirentSize <= int(ip.numBytes); off += DirentSize {
		it.Read(ip, buf, off, DirentSize)
		if util.Readn(buf, 2, 0) == 0 {
			break
		}
	}
	util.Writen(buf, 2, 0, ino)
	padded := name.Pad()
	copy(buf[2:], padded[:])
	it.Write(ctx, ip, buf, off, DirentSize)
	return off
}

/// Remove zeros the directory entry at off.
func (it *Itable_t) Remove(ctx *Op_t, ip *Inode_t, off int) {
	if off%DirentSize != 0 || off >= int(ip.numBytes) {
		panic("fs: bad directory entry offset")
	}
	buf := make([]byte, DirentSize)
	it.Write(ctx, ip, buf, off, DirentSize)
}
