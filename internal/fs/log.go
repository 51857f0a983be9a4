package fs

import (
	"corekernel/internal/limits"
	"corekernel/internal/spinlock"
	"corekernel/internal/util"
)

/// MaxOpenTxns bounds the number of Op_t records that may be open
/// (BeginOp called, EndOp not yet called) at once, independent of the
/// log's own per-commit block budget.
const MaxOpenTxns = 64

/// OpMaxNumBlocks is the per-transaction write budget.
const OpMaxNumBlocks = 10

/// LogMaxSize is the number of block-number records the log header
/// can hold.
const LogMaxSize = 63

/// Op_t is an open transaction: callers pass it to Cache_t.Sync to
/// charge writes against the log instead of writing straight through.
type Op_t struct {
	log *Log_t
	rm  int
}

type logHeader struct {
	numBlocks int
	blockNos  [LogMaxSize]int
}

/// Log_t is the single-writer, group-commit write-ahead log: a fixed
/// region of the disk (one header block plus a body) that every
/// transaction's dirty blocks pass through before reaching their home
/// location, so a crash mid-commit can always be replayed forward.
type Log_t struct {
	lock       spinlock.Spinlock_t
	cache      *Cache_t
	logStart   int
	capacity   int
	count      int
	committing bool
	waitCh     chan struct{}
	header     logHeader
	openTxns   limits.Sysatomic_t
}

/// NewLog builds the log over cache using the region sb describes.
func NewLog(cache *Cache_t, sb *Super_t) *Log_t {
	return &Log_t{
		cache:    cache,
		logStart: sb.LogStart(),
		capacity: util.Min(sb.NumLogBlocks()-1, LogMaxSize),
		waitCh:   make(chan struct{}),
		openTxns: limits.Sysatomic_t(MaxOpenTxns),
	}
}

// broadcast wakes every goroutine parked in BeginOp; caller holds
// log.lock.
func (log *Log_t) broadcast() {
	close(log.waitCh)
	log.waitCh = make(chan struct{})
}

/// BeginOp blocks (sleep-on-spinlock, per the log's own condition
/// variable) until the log is not mid-commit and admitting one more
/// transaction's worst-case write budget still fits the log's
/// capacity, then opens a transaction.
func (log *Log_t) BeginOp() *Op_t {
	if !log.openTxns.Take() {
		panic("fs: too many open log transactions")
	}
	log.lock.Acquire()
	for log.committing || log.header.numBlocks+(log.count+1)*OpMaxNumBlocks > log.capacity {
		woken := log.waitCh
		spinlock.CondWait(&log.lock, woken)
	}
	log.count++
	log.lock.Release()
	return &Op_t{log: log, rm: OpMaxNumBlocks}
}

/// EndOp closes a transaction. If other transactions are still open
/// it just wakes any BeginOp waiters; the last one closing triggers a
/// group commit of every block any open transaction registered.
func (log *Log_t) EndOp(ctx *Op_t) {
	ctx.rm = 0
	log.openTxns.Give()
	log.lock.Acquire()
	log.count--
	if log.count > 0 {
		log.broadcast()
		log.lock.Release()
		return
	}
	log.committing = true
	log.lock.Release()

	log.commit()

	log.lock.Acquire()
	log.committing = false
	log.broadcast()
	log.lock.Release()
}

// register charges b against ctx's transaction, pinning it and
// appending its block number to the header unless it is already
// registered this commit cycle.
func (log *Log_t) register(ctx *Op_t, b *Bdev_block_t) {
	log.lock.Acquire()
	defer log.lock.Release()
	for i := 0; i < log.header.numBlocks; i++ {
		if log.header.blockNos[i] == b.Block {
			return
		}
	}
	if log.header.numBlocks >= log.capacity {
		panic("fs: log is over capacity")
	}
	log.header.blockNos[log.header.numBlocks] = b.Block
	log.header.numBlocks++
	log.cache.pin(b.Block)
	ctx.rm--
}

func (log *Log_t) readHeader() {
	b := log.cache.Acquire(log.logStart)
	log.header.numBlocks = util.Readn(b.Data[:], 8, 0)
	for i := 0; i < LogMaxSize; i++ {
		log.header.blockNos[i] = util.Readn(b.Data[:], 8, 8+8*i)
	}
	log.cache.Release(b)
}

func (log *Log_t) writeHeader() {
	b := log.cache.Acquire(log.logStart)
	util.Writen(b.Data[:], 8, 0, log.header.numBlocks)
	for i := 0; i < LogMaxSize; i++ {
		util.Writen(b.Data[:], 8, 8+8*i, log.header.blockNos[i])
	}
	b.Write()
	log.cache.Release(b)
}

// commit runs the four-step algorithm: write the log body, write the
// header (the commit point), write every block home, then truncate
// the log by zeroing and rewriting the header.
func (log *Log_t) commit() {
	n := log.header.numBlocks
	for i := 0; i < n; i++ {
		src := log.cache.Acquire(log.header.blockNos[i])
		dst := log.cache.Acquire(log.logStart + 1 + i)
		*dst.Data = *src.Data
		dst.Write()
		log.cache.Release(dst)
		log.cache.Release(src)
	}

	log.writeHeader()

	for i := 0; i < n; i++ {
		src := log.cache.Acquire(log.logStart + 1 + i)
		home := log.cache.Acquire(log.header.blockNos[i])
		*home.Data = *src.Data
		home.Write()
		log.cache.unpin(log.header.blockNos[i])
		log.cache.Release(home)
		log.cache.Release(src)
	}

	log.header.numBlocks = 0
	log.writeHeader()
}

/// Recover replays the log at boot: the header is authoritative, so
/// step 3 of commit runs unconditionally (no pin to clear — nothing
/// has been acquired into memory yet), then step 4 truncates it. This
/// is idempotent: a log with num_blocks == 0 recovers as a no-op.
func (log *Log_t) Recover() {
	log.readHeader()
	n := log.header.numBlocks
	for i := 0; i < n; i++ {
		src := log.cache.Acquire(log.logStart + 1 + i)
		home := log.cache.Acquire(log.header.blockNos[i])
		*home.Data = *src.Data
		home.Write()
		log.cache.Release(home)
		log.cache.Release(src)
	}
	log.header.numBlocks = 0
	log.writeHeader()
}
