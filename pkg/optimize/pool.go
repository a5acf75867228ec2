// Package optimize holds allocation helpers for the per-frame hot paths.
package optimize

import (
	"sync"
)

// BytePool hands out fixed-size byte buffers. Buffers of a different size are
// dropped on Put so one pool serves exactly one frame geometry.
type BytePool struct {
	pool sync.Pool
	size int
}

func NewBytePool(size int) *BytePool {
	p := &BytePool{size: size}
	p.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return p
}

// Size is the length of every buffer returned by Get.
func (p *BytePool) Size() int {
	return p.size
}

// Get returns a buffer of exactly Size bytes. Contents are not zeroed.
func (p *BytePool) Get() []byte {
	return *(p.pool.Get().(*[]byte))
}

func (p *BytePool) Put(b []byte) {
	if cap(b) != p.size {
		return
	}
	b = b[:p.size]
	p.pool.Put(&b)
}
