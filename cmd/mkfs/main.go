// Command mkfs lays out a fresh disk image — super block, zeroed log,
// inode table, and bitmap — and optionally copies the top-level files
// of a host directory into the image's root directory, producing an
// image this kernel's virtio transport can mount.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"corekernel/internal/fs"
	"corekernel/internal/page"
	"corekernel/internal/slab"
	"corekernel/internal/ustr"
	"corekernel/internal/virtio"
)

const (
	numLogBlocks  = 64
	numInodes     = 200
	numDataBlocks = 4096
	pagePoolSize  = 64
)

// fileBackend implements virtio.Backend over a host file, addressing
// it the way a real block device would: by 512-byte sector number.
type fileBackend struct {
	f *os.File
}

func (fb *fileBackend) ReadSector(sector uint64, buf []byte) error {
	_, err := fb.f.ReadAt(buf, int64(sector)*512)
	return err
}

func (fb *fileBackend) WriteSector(sector uint64, buf []byte) error {
	_, err := fb.f.WriteAt(buf, int64(sector)*512)
	return err
}

// layout computes the fixed block numbers every on-disk region starts
// at, given the desired log/inode/data capacities.
func layout(sb *fs.Super_t) (inodeStart, bitmapStart, dataStart int) {
	logStart := 1
	inodeStart = logStart + numLogBlocks
	inodeBlocks := (numInodes*32 + fs.BSIZE - 1) / fs.BSIZE
	bitmapStart = inodeStart + inodeBlocks
	bitmapBlocks := (numDataBlocks + fs.BSIZE*8 - 1) / (fs.BSIZE * 8)
	dataStart = bitmapStart + bitmapBlocks

	sb.SetNumDataBlocks(numDataBlocks)
	sb.SetNumInodes(numInodes)
	sb.SetNumLogBlocks(numLogBlocks)
	sb.SetLogStart(logStart)
	sb.SetInodeStart(inodeStart)
	sb.SetBitmapStart(bitmapStart)
	sb.SetNumBlocks(dataStart + numDataBlocks)
	return
}

func zeroRegion(cache *fs.Cache_t, from, to int) {
	for blk := from; blk < to; blk++ {
		b := cache.Acquire(blk)
		*b.Data = [fs.BSIZE]uint8{}
		b.Write()
		cache.Release(b)
	}
}

func main() {
	out := flag.String("o", "disk.img", "output disk image path")
	skelDir := flag.String("root", "", "host directory whose top-level files seed the image's root directory")
	flag.Parse()

	sb := fs.NewSuper()
	inodeStart, bitmapStart, dataStart := layout(sb)
	imgBlocks := dataStart + numDataBlocks

	f, err := os.Create(*out)
	if err != nil {
		panic(err)
	}
	defer f.Close()
	if err := f.Truncate(int64(imgBlocks) * fs.BSIZE); err != nil {
		panic(err)
	}

	var pages page.Allocator_t
	pages.Init(pagePoolSize)
	var slabs slab.Allocator_t
	slabs.Init(&pages)
	disk := virtio.New(&fileBackend{f: f})
	defer disk.Close()
	cache := fs.NewCache(fs.NewSlabBlockmem(&slabs, 0), disk)

	sbBlock := cache.Acquire(fs.SuperBlockNum)
	*sbBlock.Data = *sb.Bytes()
	sbBlock.Write()
	cache.Release(sbBlock)

	zeroRegion(cache, 1, inodeStart)        // log region, including its header block
	zeroRegion(cache, inodeStart, bitmapStart)
	zeroRegion(cache, bitmapStart, dataStart)

	log := fs.NewLog(cache, sb)
	itable := fs.NewItable(cache, sb)

	ctx := log.BeginOp()
	rootIno := itable.Alloc(ctx, fs.Dir)
	log.EndOp(ctx)
	if rootIno != 1 {
		fmt.Fprintf(os.Stderr, "warning: root inode allocated as %d, not the conventional 1\n", rootIno)
	}
	root := itable.Get(rootIno)

	if *skelDir != "" {
		entries, err := os.ReadDir(*skelDir)
		if err != nil {
			panic(err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue // only top-level files; this layer has no nested directories
			}
			path := filepath.Join(*skelDir, e.Name())
			data, err := os.ReadFile(path)
			if err != nil {
				panic(err)
			}

			ctx := log.BeginOp()
			fino := itable.Alloc(ctx, fs.File)
			fip := itable.Get(fino)
			itable.Write(ctx, fip, data, 0, len(data))
			itable.Insert(ctx, root, ustr.FromString(e.Name()), fino)
			log.EndOp(ctx)

			fmt.Printf("mkfs: added %s (inode %d, %d bytes)\n", e.Name(), fino, len(data))
		}
	}

	fmt.Printf("mkfs: wrote %s: %d blocks, %d inodes, %d data blocks\n", *out, imgBlocks, numInodes, numDataBlocks)
}
