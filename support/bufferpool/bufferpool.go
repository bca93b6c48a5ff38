// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package bufferpool offers pooled, reference-counted scratch buffers.
//
// Buffers are used both as fixed-size scratch space (skipping stream regions)
// and as growable assembly space (encoding a record before its length is
// known).
package bufferpool

import (
	"sync"
	"sync/atomic"
)

// maxRetainedCapacity is the largest buffer capacity that will be returned to
// a pool. Larger buffers, grown to hold an unusually large record, are left
// for the garbage collector so one huge record does not pin memory forever.
const maxRetainedCapacity = 4 * 1024 * 1024

// Pool maintains a pool of buffers. It offers a new buffer when one is
// unavailable.
type Pool struct {
	// Size is the initial size of the buffers in this pool.
	Size int

	base sync.Pool
}

// Get returns a buffer, allocating one if one is not available. The returned
// buffer holds Size bytes and has a reference count of 1.
//
// The caller should return the buffer to the pool by calling its Release method
// when done with it.
func (bp *Pool) Get() *Buffer {
	b, ok := bp.base.Get().(*Buffer)
	if !ok {
		// Create a blank buffer. When it is released, it will be added back to
		// pool.
		b = &Buffer{
			bytes: make([]byte, bp.Size),
		}
	}

	b.pool = bp
	b.bytes = b.bytes[:bp.Size]
	b.refcount = 1
	return b
}

func (bp *Pool) releaseNode(b *Buffer) {
	if cap(b.bytes) > maxRetainedCapacity {
		return
	}
	bp.base.Put(b)
}

// Buffer contains a byte buffer that can be released into a Pool for reuse.
//
// Buffer is reference counted, and can be retained and released appropriately.
// Failure to release Buffer will not cause a memory leak, but will prevent the
// reuse of the Buffer.
type Buffer struct {
	refcount int64

	bytes []byte
	pool  *Pool
}

// Bytes returns this buffer's byte slice.
func (b *Buffer) Bytes() []byte { return b.bytes }

// Len returns the number of bytes in the buffer.
func (b *Buffer) Len() int { return len(b.bytes) }

// Truncate caps the number of bytes returned by Bytes. Truncating to zero
// prepares the buffer for use with Write.
func (b *Buffer) Truncate(size int) { b.bytes = b.bytes[:size] }

// Write appends p to the buffer, growing it as needed. It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	b.bytes = append(b.bytes, p...)
	return len(p), nil
}

// WriteByte appends c to the buffer. It never fails.
func (b *Buffer) WriteByte(c byte) error {
	b.bytes = append(b.bytes, c)
	return nil
}

// Release returns the buffer to its buffer pool.
//
// Release is safe for concurrent use.
//
// A Buffer must only be released once per reference.
func (b *Buffer) Release() {
	if atomic.AddInt64(&b.refcount, -1) != 0 {
		return
	}

	var pool *Pool
	pool, b.pool = b.pool, nil
	pool.releaseNode(b)
}

// Retain increases the Buffer's reference count. It should be accompanied by
// a Release call to reuse the buffer when it's finished.
func (b *Buffer) Retain() { atomic.AddInt64(&b.refcount, 1) }
