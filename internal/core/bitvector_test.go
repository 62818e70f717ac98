package core

import (
	"sync"
	"testing"
)

func TestPackedVectorBasic(t *testing.T) {
	size := uint64(200)
	v := NewPackedVector(size)

	if v.NumBits() != size {
		t.Fatalf("Expected size %d, got %d", size, v.NumBits())
	}
	if !v.Mutable() {
		t.Fatalf("Packed backing should be mutable")
	}
	for i := uint64(0); i < size; i++ {
		if v.Get(i) {
			t.Errorf("Bit %d should be 0 initially", i)
		}
	}

	v.SetAtomic(0)
	v.SetAtomic(63)
	v.SetAtomic(64)
	v.SetAtomic(199)

	if !v.Get(0) || !v.Get(63) || !v.Get(64) || !v.Get(199) {
		t.Errorf("Set bits should read back as 1")
	}
	if v.Get(1) || v.Get(65) {
		t.Errorf("Unset bits should read back as 0")
	}

	v.Unset(63)
	if v.Get(63) {
		t.Errorf("Bit 63 should be unset")
	}
	if v.PopCount() != 3 {
		t.Errorf("PopCount = %d, want 3", v.PopCount())
	}
}

func TestPackedVectorOutOfBounds(t *testing.T) {
	v := NewPackedVector(100)
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Get out of bounds should panic")
		}
	}()
	_ = v.Get(100)
}

func TestGetWordPatterns(t *testing.T) {
	v := NewPackedVector(256)

	// Pattern 10110 at pos 5 (low bit first: bits 5, 7, 8).
	v.SetAtomic(5)
	v.SetAtomic(7)
	v.SetAtomic(8)
	if got := v.GetWord(5, 5); got != 0b01101 {
		t.Errorf("GetWord(5, 5) = %05b, want 01101", got)
	}

	// Across the word boundary: bits 62, 63, 66 -> reading 5 bits at 62
	// yields 1,1,0,0,1 low-first.
	v.SetAtomic(62)
	v.SetAtomic(63)
	v.SetAtomic(66)
	if got := v.GetWord(62, 5); got != 0b10011 {
		t.Errorf("GetWord(62, 5) = %05b, want 10011", got)
	}

	// Full word, aligned and unaligned.
	if got := v.GetWord(64, 64); got != 0b100 {
		t.Errorf("GetWord(64, 64) = %b, want 100", got)
	}
	if got := v.GetWord(63, 64); got != 0b1001 {
		t.Errorf("GetWord(63, 64) = %b, want 1001", got)
	}

	if got := v.GetWord(10, 0); got != 0 {
		t.Errorf("GetWord(10, 0) = %d, want 0", got)
	}
}

func TestSetAtomicConcurrent(t *testing.T) {
	const workers = 8
	const bitsPerWorker = 1000
	v := NewPackedVector(workers * bitsPerWorker)

	// Workers interleave on shared words: worker w owns every position
	// p with p % workers == w, so each word sees all writers.
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w uint64) {
			defer wg.Done()
			for i := uint64(0); i < bitsPerWorker; i++ {
				v.SetAtomic(i*workers + w)
			}
		}(uint64(w))
	}
	wg.Wait()

	if got := v.PopCount(); got != workers*bitsPerWorker {
		t.Fatalf("lost updates: PopCount = %d, want %d", got, workers*bitsPerWorker)
	}
}

func TestResizeBlockRemap(t *testing.T) {
	// 4 blocks of 64 bits; bit i of block b encodes (b, i).
	v := NewPackedVector(256)
	set := [][2]uint64{{0, 0}, {0, 63}, {1, 5}, {2, 40}, {3, 63}}
	for _, p := range set {
		v.SetAtomic(p[0]*64 + p[1])
	}

	v.Resize(512, 64, 128)

	if v.NumBits() != 512 {
		t.Fatalf("NumBits = %d, want 512", v.NumBits())
	}
	for _, p := range set {
		if !v.Get(p[0]*128 + p[1]) {
			t.Errorf("bit (%d, %d) lost after resize", p[0], p[1])
		}
	}
	if got := v.PopCount(); got != uint64(len(set)) {
		t.Errorf("PopCount = %d, want %d", got, len(set))
	}
}

func TestResizeSameBlockSizeIsNoop(t *testing.T) {
	v := NewPackedVector(256)
	v.SetAtomic(100)
	v.Resize(256, 64, 64)
	if !v.Get(100) || v.PopCount() != 1 {
		t.Errorf("no-op resize disturbed the vector")
	}
}

func TestFrozenVector(t *testing.T) {
	p := NewPackedVector(128)
	p.SetAtomic(3)
	p.SetAtomic(100)

	f := FrozenFromWords(p.Words(), 128)
	if f.Mutable() {
		t.Fatalf("Frozen backing should not be mutable")
	}
	if !f.Get(3) || !f.Get(100) || f.Get(4) {
		t.Errorf("frozen reads disagree with packed source")
	}
	if got, want := f.GetWord(0, 8), p.GetWord(0, 8); got != want {
		t.Errorf("GetWord = %d, want %d", got, want)
	}

	defer func() {
		if r := recover(); r == nil {
			t.Errorf("SetAtomic on frozen backing should panic")
		}
	}()
	f.SetAtomic(0)
}
