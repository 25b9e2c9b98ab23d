package native

import (
	"math/bits"
	"sync"
	"sync/atomic"
)

// Size classes run from 512 bytes to 1 MiB; larger buffers are allocated
// and dropped without pooling.
const (
	minClassShift = 9
	maxClassShift = 20
)

var classes [maxClassShift - minClassShift + 1]sync.Pool

// Buffer is an owned, fixed-size byte region used as the landing area of
// one in-flight read. It is released exactly once.
type Buffer struct {
	data     []byte
	class    int
	released atomic.Bool
}

// NewBuffer allocates a zeroed Buffer of exactly size bytes.
func NewBuffer(size int) *Buffer {
	if size < 0 {
		panic("native: negative buffer size")
	}

	class := classFor(size)
	if class < 0 {
		return &Buffer{data: make([]byte, size), class: -1}
	}

	var data []byte
	if p, ok := classes[class].Get().(*[]byte); ok {
		data = (*p)[:size]
		clear(data)
	} else {
		data = make([]byte, size, 1<<(class+minClassShift))
	}

	return &Buffer{data: data, class: class}
}

// Bytes returns the buffer's memory. It panics after Release.
func (b *Buffer) Bytes() []byte {
	if b.released.Load() {
		panic("native: use of released buffer")
	}
	return b.data
}

// Len returns the buffer size.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Released reports whether Release has run.
func (b *Buffer) Released() bool {
	return b.released.Load()
}

// Release returns the memory to the allocator. Only the first call has an
// effect; it reports whether this call performed the release.
func (b *Buffer) Release() bool {
	if !b.released.CompareAndSwap(false, true) {
		return false
	}

	data := b.data
	b.data = nil
	if b.class >= 0 {
		data = data[:0]
		classes[b.class].Put(&data)
	}

	return true
}

// Abandon marks the buffer released without returning its memory to the
// pool. Use it when a transport may still write into the buffer.
func (b *Buffer) Abandon() bool {
	if !b.released.CompareAndSwap(false, true) {
		return false
	}

	b.data = nil

	return true
}

// classFor returns the pool index for size, or -1 when it is not pooled.
func classFor(size int) int {
	if size > 1<<maxClassShift {
		return -1
	}

	shift := minClassShift
	if size > 1<<minClassShift {
		shift = bits.Len(uint(size - 1))
	}

	return shift - minClassShift
}
