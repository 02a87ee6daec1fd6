package blazestore

import (
	"math/rand"
	"testing"
)

func benchStore(b *testing.B) *Store[uint32] {
	b.Helper()
	opts := DefaultOptions()
	opts.Log = discardLogger()
	s, err := NewWithOptions[uint32](opts)
	if err != nil {
		b.Fatal(err)
	}
	return s
}

// BenchmarkSetBlockCompact benchmarks bare-id writes that stay in the packed
// slot array.
func BenchmarkSetBlockCompact(b *testing.B) {
	s := benchStore(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.SetBlock(i&15, (i>>4)&15, (i>>8)&15, BlockState[uint32]{ID: uint16(i & 0x3fff)})
	}
}

// BenchmarkSetBlockOverflow benchmarks writes that spill into the auxiliary
// store, including the release of the record they replace.
func BenchmarkSetBlockOverflow(b *testing.B) {
	s := benchStore(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.SetBlock(i&15, (i>>4)&15, (i>>8)&15, BlockState[uint32]{ID: uint16(i & 0x3fff), Data: 1})
	}
}

// BenchmarkBlock benchmarks reads over a mixed compact/overflow grid.
func BenchmarkBlock(b *testing.B) {
	s := benchStore(b)
	for i := 0; i < 4096; i++ {
		bs := BlockState[uint32]{ID: uint16(i&0x3fff) + 1}
		if i%4 == 0 {
			bs.Data = 2
		}
		s.SetBlock(i&15, (i>>4)&15, (i>>8)&15, bs)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = s.Block(i&15, (i>>4)&15, (i>>8)&15)
	}
}

// BenchmarkCompareAndSetBlock benchmarks uncontended conditional writes.
func BenchmarkCompareAndSetBlock(b *testing.B) {
	s := benchStore(b)
	s.SetBlock(0, 0, 0, BlockState[uint32]{ID: 1})
	id := uint16(1)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		next := id%0x3fff + 1
		if !s.CompareAndSetBlock(0, 0, 0, BlockState[uint32]{ID: id}, BlockState[uint32]{ID: next}) {
			b.Fatal("uncontended CAS failed")
		}
		id = next
	}
}

// BenchmarkMixedParallel benchmarks the store under goroutine contention:
// mostly reads with writes mixed in, the usual shape of a tick loop shared
// between game logic and network senders.
func BenchmarkMixedParallel(b *testing.B) {
	s := benchStore(b)
	for i := 0; i < 4096; i++ {
		s.SetBlock(i&15, (i>>4)&15, (i>>8)&15, BlockState[uint32]{ID: uint16(i) % 512})
	}
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		rng := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			x, y, z := rng.Intn(16), rng.Intn(16), rng.Intn(16)
			if rng.Intn(8) == 0 {
				s.SetBlock(x, y, z, BlockState[uint32]{ID: uint16(rng.Intn(512)), Data: uint16(rng.Intn(2))})
			} else {
				_ = s.Block(x, y, z)
			}
		}
	})
}
