package utils

import (
	"sync"

	"github.com/valyala/bytebufferpool"
)

// BufferPool pools byte buffers for prompt assembly and other hot-path
// string building, with bytebufferpool's size-class management.
type BufferPool struct {
	pool *bytebufferpool.Pool
}

var (
	globalPool     *BufferPool
	globalPoolOnce sync.Once
)

func NewBufferPool() *BufferPool {
	return &BufferPool{pool: &bytebufferpool.Pool{}}
}

func (bp *BufferPool) Get() *bytebufferpool.ByteBuffer {
	return bp.pool.Get()
}

func (bp *BufferPool) Put(buf *bytebufferpool.ByteBuffer) {
	bp.pool.Put(buf)
}

// Global returns the process-wide buffer pool.
func Global() *BufferPool {
	globalPoolOnce.Do(func() {
		globalPool = NewBufferPool()
	})
	return globalPool
}

// Get is a convenience function that uses the global pool
func Get() *bytebufferpool.ByteBuffer {
	return Global().Get()
}

// Put is a convenience function that uses the global pool
func Put(buf *bytebufferpool.ByteBuffer) {
	Global().Put(buf)
}
