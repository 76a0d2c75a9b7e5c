package pool

import "sync"

// BufferPool hands out fixed-size byte slices. Every slice returned by
// GetBuffer has length Size.
type BufferPool struct {
	sync.Pool
	Size   int
	secure bool // zero buffers before they go back to the pool
}

func NewBufferPool(size int, secure bool) *BufferPool {
	newF := func() any {
		return make([]byte, size)
	}
	return &BufferPool{
		Pool: sync.Pool{
			New: newF,
		},
		Size:   size,
		secure: secure,
	}
}

func (b *BufferPool) PutBuffer(p []byte) {
	if cap(p) < b.Size {
		return
	}
	p = p[:b.Size]
	if b.secure {
		clear(p)
	}
	b.Put(p)
}

func (b *BufferPool) GetBuffer() []byte {
	return b.Get().([]byte)
}
