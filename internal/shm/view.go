// SPDX-License-Identifier: MIT
package shm

import (
	"fmt"

	"accelfft/pkg/bitint"
)

// DefaultCacheLine is the data cache line size of the reference SoC.
const DefaultCacheLine = 32

type cacheLine struct {
	valid bool
	dirty bool
}

// View is one execution context's access path to a Memory, through a
// simulated private write-back, write-allocate data cache. A View is owned
// by a single goroutine; two contexts must use two Views.
type View struct {
	mem       *Memory
	lineWords uint32
	lines     []cacheLine
	words     []uint32 // cached copy, indexed like the backing words
}

// NewView returns a view of m whose cache uses lineSize-byte lines. A
// lineSize of 0 disables the cache, so every access goes to the backing
// store, as on a coherent system.
func NewView(m *Memory, lineSize int) (*View, error) {
	v := &View{mem: m}
	if lineSize == 0 {
		return v, nil
	}
	if lineSize < WordSize || !bitint.IsPowerOfTwo(lineSize) {
		return nil, fmt.Errorf("%w: cache line of %d bytes", ErrSize, lineSize)
	}
	v.lineWords = uint32(lineSize / WordSize)
	nwords := uint32(m.Size() / WordSize)
	v.lines = make([]cacheLine, (nwords+v.lineWords-1)/v.lineWords)
	v.words = make([]uint32, nwords)
	return v, nil
}

// Memory returns the backing store of the view.
func (v *View) Memory() *Memory {
	return v.mem
}

// Cached reports whether the view simulates a data cache.
func (v *View) Cached() bool {
	return v.lineWords != 0
}

func (v *View) fill(li uint32) {
	first := li * v.lineWords
	last := min(first+v.lineWords, uint32(len(v.words)))
	for w := first; w < last; w++ {
		v.words[w] = v.mem.Load32(w * WordSize)
	}
	v.lines[li] = cacheLine{valid: true}
}

func (v *View) clean(li uint32) {
	first := li * v.lineWords
	last := min(first+v.lineWords, uint32(len(v.words)))
	for w := first; w < last; w++ {
		v.mem.Store32(w*WordSize, v.words[w])
	}
	v.lines[li].dirty = false
}

// Read32 reads a word through the cache.
func (v *View) Read32(off uint32) uint32 {
	if v.lineWords == 0 {
		return v.mem.Load32(off)
	}
	w := off / WordSize
	li := w / v.lineWords
	if !v.lines[li].valid {
		v.fill(li)
	}
	return v.words[w]
}

// Write32 writes a word into the cache. The backing store is not updated
// until the line is flushed.
func (v *View) Write32(off, val uint32) {
	if v.lineWords == 0 {
		v.mem.Store32(off, val)
		return
	}
	w := off / WordSize
	li := w / v.lineWords
	if !v.lines[li].valid {
		v.fill(li)
	}
	v.words[w] = val
	v.lines[li].dirty = true
}

// ReadVolatile reads a word straight from the backing store.
func (v *View) ReadVolatile(off uint32) uint32 {
	return v.mem.Load32(off)
}

// WriteVolatile writes a word straight to the backing store.
func (v *View) WriteVolatile(off, val uint32) {
	v.mem.Store32(off, val)
}

// lineRange returns the cache lines overlapping [off, off+n).
func (v *View) lineRange(off, n uint32) (first, end uint32) {
	if n == 0 {
		return 0, 0
	}
	lineBytes := v.lineWords * WordSize
	first = bitint.AlignDown(off, lineBytes) / lineBytes
	end = min(bitint.AlignUp(off+n, lineBytes)/lineBytes, uint32(len(v.lines)))
	return first, end
}

// Flush writes every dirty line overlapping [off, off+n) back to the
// backing store and drops the lines from the cache.
func (v *View) Flush(off, n uint32) {
	if v.lineWords == 0 {
		return
	}
	first, end := v.lineRange(off, n)
	for li := first; li < end; li++ {
		if v.lines[li].valid && v.lines[li].dirty {
			v.clean(li)
		}
		v.lines[li].valid = false
	}
}

// Invalidate drops every line overlapping [off, off+n) from the cache.
// Dirty data in those lines is lost.
func (v *View) Invalidate(off, n uint32) {
	if v.lineWords == 0 {
		return
	}
	first, end := v.lineRange(off, n)
	for li := first; li < end; li++ {
		v.lines[li] = cacheLine{}
	}
}
