package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cqdetdev/blazestore"
	"github.com/google/uuid"
)

// entity is the attached payload written during the soak. Its Energy always
// mirrors the block id it was written with, so a torn attachment read is
// detectable from the state alone.
type entity struct {
	Owner  string
	Energy int32
}

func main() {
	shift := flag.Int("shift", 4, "Store side shift (side = 1<<shift)")
	workers := flag.Int("workers", 8, "Concurrent writer goroutines")
	duration := flag.Duration("duration", 10*time.Second, "Soak run length")
	overflow := flag.Int("overflow", 30, "Percent of writes carrying block data")
	attach := flag.Int("attach", 25, "Percent of overflow writes carrying an attached entity")
	drain := flag.Duration("drain", 250*time.Millisecond, "Dirty drain and snapshot interval")
	codecName := flag.String("codec", "snappy", "Snapshot codec: none, snappy or lz4")
	seed := flag.Int64("seed", 0, "Random seed (0 seeds from the clock)")
	statsEvery := flag.Duration("stats", 0, "Stats logging interval (0 disables)")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	c, err := parseCodec(*codecName)
	if err != nil {
		fmt.Println("BlazeStore Soak - hammer a block store with concurrent writers and snapshot it")
		fmt.Println()
		fmt.Println("Usage:")
		fmt.Println("  soak -shift 4 -workers 8 -duration 10s -codec snappy")
		fmt.Println()
		fmt.Println("Codecs: none, snappy, lz4")
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	runID := uuid.New()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})).
		With("run", runID.String())

	opts := blazestore.DefaultOptions()
	opts.Shift = *shift
	opts.DirtyCapacity = 512
	opts.Log = logger
	store, err := blazestore.NewWithOptions[entity](opts)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	if *statsEvery > 0 {
		stopStats := store.StartStatsLogger(*statsEvery)
		defer stopStats()
	}
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	run := &soak{
		store:    store,
		log:      logger,
		codec:    c,
		side:     store.Side(),
		shift:    store.Shift(),
		overflow: *overflow,
		attach:   *attach,
	}

	start := time.Now()
	fmt.Printf("Soak %s: %d³ store, %d workers for %v (codec %s, seed %d)\n",
		runID, run.side, *workers, *duration, c, *seed)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			run.worker(seed, stop)
		}(*seed + int64(i))
	}

	ticker := time.NewTicker(*drain)
	deadline := time.After(*duration)
loop:
	for {
		select {
		case <-ticker.C:
			run.maintain()
		case <-deadline:
			break loop
		}
	}
	ticker.Stop()
	close(stop)
	wg.Wait()

	// One last drain and snapshot over the settled store
	run.maintain()

	elapsed := time.Since(start)
	store.LogStats()
	stats := store.GetStats()

	fmt.Printf("\n✓ Soak complete!\n")
	fmt.Printf("  Operations: %d\n", run.ops.Load())
	fmt.Printf("  Time: %v\n", elapsed.Round(time.Millisecond))
	if elapsed.Seconds() > 0 {
		fmt.Printf("  Speed: %.0f ops/second\n", float64(run.ops.Load())/elapsed.Seconds())
	}
	fmt.Printf("  Dirty drains: %d (%d replayed, %d full rescans)\n", run.drains, run.replayed, run.rescans)
	fmt.Printf("  Compressions: %d\n", stats.Compressions)
	fmt.Printf("  Snapshots: %d (%s: %d -> %d bytes)\n", run.snapshots, c, run.encBytes, run.compBytes)
	if tears := run.tears.Load(); tears > 0 {
		fmt.Printf("  TORN READS: %d\n", tears)
		os.Exit(1)
	}
}

// soak drives randomised traffic against one store. Workers take the read
// side of the mutex for every operation; maintenance takes the write side so
// drains, compaction and snapshots run against a quiesced store, the way a
// tick loop hands the world over between simulation and saving.
type soak struct {
	store *blazestore.Store[entity]
	log   *slog.Logger
	codec codec

	mu    sync.RWMutex
	side  int
	shift int

	overflow int
	attach   int

	ops   atomic.Int64
	tears atomic.Int64

	drains    int
	replayed  int
	rescans   int
	snapshots int
	encBytes  int
	compBytes int
}

func (s *soak) worker(seed int64, stop <-chan struct{}) {
	id := uuid.New()
	s.log.Debug("worker started", "worker", id, "seed", seed)
	rng := rand.New(rand.NewSource(seed))
	owner := id.String()
	for {
		select {
		case <-stop:
			return
		default:
		}
		s.mu.RLock()
		s.step(rng, owner)
		s.mu.RUnlock()
		s.ops.Add(1)
	}
}

// step performs one randomised operation: a validated read, a conditional
// rewrite of an observed state, or an unconditional write in compact or
// overflow form.
func (s *soak) step(rng *rand.Rand, owner string) {
	x, y, z := rng.Intn(s.side), rng.Intn(s.side), rng.Intn(s.side)
	id := uint16(rng.Intn(0x3fff) + 1)
	switch p := rng.Intn(100); {
	case p < 40:
		s.check(s.store.Block(x, y, z), x, y, z)
	case p < 50:
		old := s.store.Block(x, y, z)
		s.check(old, x, y, z)
		s.store.CompareAndSetBlock(x, y, z, old, blazestore.BlockState[entity]{ID: id, Data: ^id})
	case p < 100-s.overflow:
		s.store.SetBlock(x, y, z, blazestore.BlockState[entity]{ID: id})
	default:
		b := blazestore.BlockState[entity]{ID: id, Data: ^id}
		if rng.Intn(100) < s.attach {
			b.Attached = &entity{Owner: owner, Energy: int32(id)}
		}
		s.store.SetBlock(x, y, z, b)
	}
}

// check validates the cross-field invariant every writer maintains. A
// violation means a torn read escaped the store.
func (s *soak) check(b blazestore.BlockState[entity], x, y, z int) {
	if b.Data != 0 && b.Data != ^b.ID {
		s.tears.Add(1)
		s.log.Error("torn read", "x", x, "y", y, "z", z, "id", b.ID, "data", b.Data)
	}
	if b.Attached != nil && b.Attached.Energy != int32(b.ID) {
		s.tears.Add(1)
		s.log.Error("torn attachment", "x", x, "y", y, "z", z, "id", b.ID, "energy", b.Attached.Energy)
	}
}

// maintain quiesces the writers, drains the dirty list, compacts the
// auxiliary store when it is mostly slack and exports one snapshot frame.
func (s *soak) maintain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drains++

	// Replay the dirty list when it is complete; an overflowed list means
	// rescanning everything instead.
	if s.store.DirtyOverflow() {
		s.rescans++
		s.store.Range(func(x, y, z int, b blazestore.BlockState[entity]) bool {
			s.check(b, x, y, z)
			return true
		})
	} else {
		for i := 0; ; i++ {
			x, y, z, ok := s.store.DirtyBlock(i)
			if !ok {
				break
			}
			s.check(s.store.Block(x, y, z), x, y, z)
			s.replayed++
		}
	}
	s.store.ResetDirty()

	if s.store.NeedsCompression() {
		before := s.store.Size()
		s.store.Compress()
		s.log.Debug("compacted auxiliary store", "before", before, "after", s.store.Size())
	}

	s.snapshot()
}

// snapshot exports the whole grid as one encoded, compressed frame and
// records its size.
func (s *soak) snapshot() {
	ids := s.store.BlockIDs()
	var attachments []attachment
	s.store.Range(func(x, y, z int, b blazestore.BlockState[entity]) bool {
		if b.Attached != nil {
			attachments = append(attachments, attachment{
				Index:  int32(x<<(2*s.shift) | z<<s.shift | y),
				Owner:  b.Attached.Owner,
				Energy: b.Attached.Energy,
			})
		}
		return true
	})

	frame := encodeFrame(ids, attachments)
	comp := compressFrame(frame, s.codec)
	s.snapshots++
	s.encBytes += len(frame)
	s.compBytes += len(comp)
	s.log.Debug("snapshot exported",
		"cells", len(ids),
		"attachments", len(attachments),
		"encoded", len(frame),
		"compressed", len(comp),
	)
}
