// SPDX-License-Identifier: MIT
package shm

import (
	"errors"
	"path/filepath"
	"testing"

	"accelfft/internal/spectral"
)

func newTestMemory(t *testing.T, n int) (*Memory, Layout) {
	t.Helper()
	l := DefaultLayout(n)
	m, err := NewMemory(l.Size())
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	return m, l
}

func newTestView(t *testing.T, m *Memory) *View {
	t.Helper()
	v, err := NewView(m, DefaultCacheLine)
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}
	return v
}

func TestPackSample(t *testing.T) {
	tests := []struct {
		re, im int16
		want   uint32
	}{
		{0, 0, 0x00000000},
		{1, 0, 0x00000001},
		{-1, 0, 0x0000ffff},
		{0x1234, 0x0567, 0x05671234},
		{-32768, 32767, 0x7fff8000},
	}
	for _, tt := range tests {
		if got := PackSample(tt.re, tt.im); got != tt.want {
			t.Errorf("PackSample(%d, %d) = 0x%08x, want 0x%08x", tt.re, tt.im, got, tt.want)
		}
		re, im := UnpackSample(tt.want)
		if re != tt.re || im != tt.im {
			t.Errorf("UnpackSample(0x%08x) = %d, %d; want %d, %d", tt.want, re, im, tt.re, tt.im)
		}
	}
}

func TestLayoutValidate(t *testing.T) {
	tests := []struct {
		name    string
		layout  Layout
		memSize int
		wantErr bool
	}{
		{"default 128", DefaultLayout(128), 0, false},
		{"default 1024", DefaultLayout(1024), DefaultFlagOffset + WordSize, false},
		{"default 2048 overlaps", DefaultLayout(2048), 0, true},
		{"not power of two", DefaultLayout(100), 0, true},
		{"flag inside tx", Layout{RX: 0, TX: 0x1000, Flag: 0x1010, N: 128}, 0, true},
		{"unaligned flag", Layout{RX: 0, TX: 0x1000, Flag: 0x2002, N: 128}, 0, true},
		{"too small", DefaultLayout(1024), 0x1000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.layout.Validate(tt.memSize)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrLayout) {
				t.Errorf("Validate() error = %v, want ErrLayout", err)
			}
		})
	}
}

func TestNewMemoryRejectsBadSizes(t *testing.T) {
	for _, size := range []int{0, -4, 6} {
		if _, err := NewMemory(size); !errors.Is(err, ErrSize) {
			t.Errorf("NewMemory(%d) error = %v, want ErrSize", size, err)
		}
	}
	m, _ := NewMemory(64)
	for _, line := range []int{2, 24} {
		if _, err := NewView(m, line); !errors.Is(err, ErrSize) {
			t.Errorf("NewView(line %d) error = %v, want ErrSize", line, err)
		}
	}
}

func TestWriteWithoutFlushIsInvisible(t *testing.T) {
	m, l := newTestMemory(t, 128)
	producer := newTestView(t, m)
	consumer := newTestView(t, m)

	producer.WritePowers(l.TX, []float32{1.5, 2.5})
	consumer.Invalidate(l.TX, l.BlockBytes())
	if got := consumer.Read32(l.TX); got != 0 {
		t.Fatalf("consumer saw unflushed data 0x%08x", got)
	}

	producer.Flush(l.TX, l.BlockBytes())
	consumer.Invalidate(l.TX, l.BlockBytes())
	got := make([]float32, 2)
	consumer.ReadPowers(l.TX, got)
	if got[0] != 1.5 || got[1] != 2.5 {
		t.Errorf("after flush and invalidate consumer read %v, want [1.5 2.5]", got)
	}
}

func TestReadWithoutInvalidateIsStale(t *testing.T) {
	m, l := newTestMemory(t, 128)
	producer := newTestView(t, m)
	consumer := newTestView(t, m)

	producer.Write32(l.TX, 1)
	producer.Flush(l.TX, l.BlockBytes())
	if got := consumer.Read32(l.TX); got != 1 {
		t.Fatalf("first read = %d, want 1", got)
	}

	producer.Write32(l.TX, 2)
	producer.Flush(l.TX, l.BlockBytes())
	if got := consumer.Read32(l.TX); got != 1 {
		t.Fatalf("read without invalidate = %d, want the stale value 1", got)
	}

	consumer.Invalidate(l.TX, l.BlockBytes())
	if got := consumer.Read32(l.TX); got != 2 {
		t.Errorf("read after invalidate = %d, want 2", got)
	}
}

func TestInvalidateDiscardsDirtyLines(t *testing.T) {
	m, l := newTestMemory(t, 128)
	v := newTestView(t, m)

	v.Write32(l.RX, 0xdeadbeef)
	v.Invalidate(l.RX, WordSize)
	if got := v.Read32(l.RX); got != 0 {
		t.Errorf("dirty write survived invalidate: 0x%08x", got)
	}
	if got := m.Load32(l.RX); got != 0 {
		t.Errorf("invalidate wrote back: 0x%08x", got)
	}
}

func TestFlushPartialRangeCoversWholeLines(t *testing.T) {
	m, _ := newTestMemory(t, 128)
	v := newTestView(t, m)

	// Words 0 and 7 share the first 32-byte line.
	v.Write32(0, 10)
	v.Write32(28, 17)
	v.Write32(32, 99)
	v.Flush(4, 4)

	if m.Load32(0) != 10 || m.Load32(28) != 17 {
		t.Errorf("line 0 not written back: %d, %d", m.Load32(0), m.Load32(28))
	}
	if m.Load32(32) != 0 {
		t.Errorf("line 1 written back by a flush outside its range")
	}
}

func TestVolatileBypassesCache(t *testing.T) {
	m, l := newTestMemory(t, 128)
	a := newTestView(t, m)
	b := newTestView(t, m)

	a.WriteVolatile(l.Flag, 0xCAFEBABE)
	if got := b.ReadVolatile(l.Flag); got != 0xCAFEBABE {
		t.Errorf("volatile read = 0x%08x, want 0xCAFEBABE", got)
	}
}

func TestUncachedViewIsCoherent(t *testing.T) {
	m, l := newTestMemory(t, 128)
	a, err := NewView(m, 0)
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}
	b, _ := NewView(m, 0)
	if a.Cached() {
		t.Fatal("line size 0 should disable the cache")
	}
	a.Write32(l.TX, 42)
	if got := b.Read32(l.TX); got != 42 {
		t.Errorf("uncached read = %d, want 42", got)
	}
}

func TestSamplesRoundTripWithSaturation(t *testing.T) {
	m, l := newTestMemory(t, 8)
	v := newTestView(t, m)

	in := spectral.Block{0, 1.4, -1.6, 40000, -40000, complex(5, -3), 100, -100}
	v.WriteSamples(l.RX, in)
	v.Flush(l.RX, l.BlockBytes())

	out := make(spectral.Block, len(in))
	r := newTestView(t, m)
	r.ReadSamples(l.RX, out)

	want := spectral.Block{0, 1, -2, 32767, -32768, complex(5, -3), 100, -100}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestOpenSharedMapsOneRegion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accelfft.shm")
	l := DefaultLayout(128)

	a, err := OpenShared(path, l.Size())
	if err != nil {
		t.Fatalf("OpenShared: %v", err)
	}
	defer a.Close()
	b, err := OpenShared(path, l.Size())
	if err != nil {
		t.Fatalf("second OpenShared: %v", err)
	}
	defer b.Close()

	a.Store32(l.Flag, 0xCAFEBABE)
	if got := b.Load32(l.Flag); got != 0xCAFEBABE {
		t.Errorf("second mapping read 0x%08x, want 0xCAFEBABE", got)
	}
	if a.Path() != path || a.Size() != l.Size() {
		t.Errorf("Path() = %q, Size() = %d", a.Path(), a.Size())
	}
}

func BenchmarkWritePowersFlush(b *testing.B) {
	l := DefaultLayout(1024)
	m, _ := NewMemory(l.Size())
	v, _ := NewView(m, DefaultCacheLine)
	powers := make([]float32, l.N)

	b.ReportAllocs()

	b.ResetTimer()
	for loop := 0; loop < b.N; loop++ {
		v.WritePowers(l.TX, powers)
		v.Flush(l.TX, l.BlockBytes())
	}
}
