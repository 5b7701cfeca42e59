// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>

package pool

import "sync"

// BytePool recycles byte slices used to hold encoded outbound frames.
// Slices larger than maxRetain are left to the GC so one huge message does
// not pin memory for the lifetime of the process.
type BytePool struct {
	pool      sync.Pool
	size      int
	maxRetain int
}

// NewBytePool returns a pool handing out slices with at least size capacity.
func NewBytePool(size, maxRetain int) *BytePool {
	if size <= 0 {
		size = 4096
	}
	if maxRetain < size {
		maxRetain = size
	}
	bp := &BytePool{size: size, maxRetain: maxRetain}
	bp.pool.New = func() any {
		b := make([]byte, 0, bp.size)
		return &b
	}
	return bp
}

// GetBuffer returns an empty slice with capacity of at least n.
func (b *BytePool) GetBuffer(n int) []byte {
	p := b.pool.Get().(*[]byte)
	buf := (*p)[:0]
	if cap(buf) < n {
		b.pool.Put(p)
		return make([]byte, 0, n)
	}
	return buf
}

// PutBuffer returns buf to the pool.
func (b *BytePool) PutBuffer(buf []byte) {
	if cap(buf) == 0 || cap(buf) > b.maxRetain {
		return
	}
	buf = buf[:0]
	b.pool.Put(&buf)
}
