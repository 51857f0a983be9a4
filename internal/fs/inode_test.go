package fs

import (
	"testing"

	"corekernel/internal/ustr"
)

func withOp(t *testing.T, log *Log_t, f func(ctx *Op_t)) {
	t.Helper()
	ctx := log.BeginOp()
	f(ctx)
	log.EndOp(ctx)
}

func TestAllocGetPutRoundtrip(t *testing.T) {
	_, log, it := newTestStack(64, 64)

	var n int
	withOp(t, log, func(ctx *Op_t) { n = it.Alloc(ctx, File) })
	if n == 0 {
		t.Fatalf("alloc returned inode 0")
	}

	ip := it.Get(n)
	if ip.typ != File {
		t.Fatalf("got type %v, want File", ip.typ)
	}
	it.Put(nil, ip)
}

// TestAllocateWrite600ReadBack is scenario 1: allocate a file, write
// 600 bytes of 'A', read them back, and check exactly two data blocks
// are marked allocated in the bitmap (600 bytes spans two 512-byte
// blocks: [0,512) and [512,600)).
func TestAllocateWrite600ReadBack(t *testing.T) {
	cache, log, it := newTestStack(16, 256)

	var n int
	withOp(t, log, func(ctx *Op_t) { n = it.Alloc(ctx, File) })
	ip := it.Get(n)

	data := make([]byte, 600)
	for i := range data {
		data[i] = 'A'
	}

	withOp(t, log, func(ctx *Op_t) {
		got := it.Write(ctx, ip, data, 0, len(data))
		if got != 600 {
			t.Fatalf("wrote %d bytes, want 600", got)
		}
	})
	if ip.numBytes != 600 {
		t.Fatalf("numBytes = %d, want 600", ip.numBytes)
	}

	out := make([]byte, 600)
	got := it.Read(ip, out, 0, 600)
	if got != 600 {
		t.Fatalf("read %d bytes, want 600", got)
	}
	for i := range out {
		if out[i] != 'A' {
			t.Fatalf("byte %d: got %q, want 'A'", i, out[i])
		}
	}

	if n := countAllocatedBits(cache, it.sb); n != 2 {
		t.Fatalf("bitmap reports %d allocated data blocks, want 2", n)
	}

	it.Put(nil, ip)
}

func TestWriteReadAcrossManyBlocks(t *testing.T) {
	_, log, it := newTestStack(16, 256)

	var n int
	withOp(t, log, func(ctx *Op_t) { n = it.Alloc(ctx, File) })
	ip := it.Get(n)

	data := make([]byte, BSIZE*3+100)
	for i := range data {
		data[i] = byte(i)
	}

	withOp(t, log, func(ctx *Op_t) {
		got := it.Write(ctx, ip, data, 0, len(data))
		if got != len(data) {
			t.Fatalf("wrote %d bytes, want %d", got, len(data))
		}
	})

	out := make([]byte, len(data))
	got := it.Read(ip, out, 0, len(out))
	if got != len(out) {
		t.Fatalf("read %d bytes, want %d", got, len(out))
	}
	for i := range out {
		if out[i] != data[i] {
			t.Fatalf("byte %d: got %d, want %d", i, out[i], data[i])
		}
	}
	it.Put(nil, ip)
}

func TestDirectToIndirectBoundary(t *testing.T) {
	_, log, it := newTestStack(16, 512)

	var n int
	withOp(t, log, func(ctx *Op_t) { n = it.Alloc(ctx, Dir) })
	ip := it.Get(n)

	withOp(t, log, func(ctx *Op_t) {
		var modified bool
		last := it.Map(ctx, ip, NumDirect-1, &modified)
		if last == 0 || !modified {
			t.Fatalf("expected 12th direct block to allocate")
		}
		first := it.Map(ctx, ip, NumDirect, &modified)
		if first == 0 || !modified {
			t.Fatalf("expected 13th block to allocate via indirect")
		}
		if ip.indirect == 0 {
			t.Fatalf("expected indirect block to be allocated")
		}
	})
	it.Put(nil, ip)
}

func TestMaxFileSizeRejected(t *testing.T) {
	_, log, it := newTestStack(16, 8)
	var n int
	withOp(t, log, func(ctx *Op_t) { n = it.Alloc(ctx, File) })
	ip := it.Get(n)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic writing past max file size")
		}
		it.Put(nil, ip)
	}()
	ctx := log.BeginOp()
	defer log.EndOp(ctx)
	it.Write(ctx, ip, make([]byte, 1), MaxFileSize, 1)
}

func TestDirectoryInsertLookupRemove(t *testing.T) {
	_, log, it := newTestStack(16, 64)

	var dirNo, fileNo int
	withOp(t, log, func(ctx *Op_t) {
		dirNo = it.Alloc(ctx, Dir)
		fileNo = it.Alloc(ctx, File)
	})
	dir := it.Get(dirNo)

	name := ustr.FromString("hello.txt")
	var off int
	withOp(t, log, func(ctx *Op_t) { off = it.Insert(ctx, dir, name, fileNo) })

	gotIno, gotOff := it.Lookup(dir, name)
	if gotIno != fileNo || gotOff != off {
		t.Fatalf("lookup = (%d, %d), want (%d, %d)", gotIno, gotOff, fileNo, off)
	}

	withOp(t, log, func(ctx *Op_t) { it.Remove(ctx, dir, off) })
	if gotIno, _ := it.Lookup(dir, name); gotIno != 0 {
		t.Fatalf("expected entry gone after remove, got inode %d", gotIno)
	}

	// The freed slot should be reused by the next insert.
	other := ustr.FromString("world.txt")
	var off2 int
	withOp(t, log, func(ctx *Op_t) { off2 = it.Insert(ctx, dir, other, fileNo) })
	if off2 != off {
		t.Fatalf("expected slot reuse at offset %d, got %d", off, off2)
	}

	it.Put(nil, dir)
}

func TestInsertRejectsDuplicate(t *testing.T) {
	_, log, it := newTestStack(16, 64)

	var dirNo, fileNo int
	withOp(t, log, func(ctx *Op_t) {
		dirNo = it.Alloc(ctx, Dir)
		fileNo = it.Alloc(ctx, File)
	})
	dir := it.Get(dirNo)
	name := ustr.FromString("dup")

	withOp(t, log, func(ctx *Op_t) { it.Insert(ctx, dir, name, fileNo) })

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate insert")
		}
		it.Put(nil, dir)
	}()
	ctx := log.BeginOp()
	defer log.EndOp(ctx)
	it.Insert(ctx, dir, name, fileNo)
}

func TestClearFreesBlocks(t *testing.T) {
	_, log, it := newTestStack(16, 32)

	var n int
	withOp(t, log, func(ctx *Op_t) { n = it.Alloc(ctx, File) })
	ip := it.Get(n)

	withOp(t, log, func(ctx *Op_t) {
		it.Write(ctx, ip, []byte("abc"), 0, 3)
	})
	if ip.addrs[0] == 0 {
		t.Fatalf("expected first block allocated")
	}

	withOp(t, log, func(ctx *Op_t) { it.Clear(ctx, ip) })
	if ip.addrs[0] != 0 || ip.numBytes != 0 {
		t.Fatalf("expected blocks and size cleared after Clear")
	}
	it.Put(nil, ip)
}
