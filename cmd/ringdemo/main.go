// Command ringdemo drives an MPSC ring, an SPSC ring and a Snowflake
// generator end to end so the library's throughput and back-pressure
// behavior can be observed outside of the test suite. It is a
// demonstration harness, not part of the library's public API.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/real-logic/agrona-sub008/internal/membuffer"
	"github.com/real-logic/agrona-sub008/internal/ringbuf"
	"github.com/real-logic/agrona-sub008/internal/snowflake"
)

// Config holds the demo's tunables.
type Config struct {
	RingCapacity int
	Producers    int
	NodeID       int64
	NodeBits     uint
	SeqBits      uint
	ReportEvery  time.Duration
}

// DefaultConfig returns reasonable defaults for a laptop-scale run.
func DefaultConfig() Config {
	return Config{
		RingCapacity: 1 << 16,
		Producers:    4,
		NodeID:       1,
		NodeBits:     10,
		SeqBits:      12,
		ReportEvery:  2 * time.Second,
	}
}

const idMsgType int32 = 1

func main() {
	capacity := flag.Int("capacity", DefaultConfig().RingCapacity, "MPSC ring data-area capacity in bytes (power of two)")
	producers := flag.Int("producers", DefaultConfig().Producers, "number of concurrent MPSC producer goroutines")
	nodeID := flag.Int64("node", DefaultConfig().NodeID, "Snowflake node id")
	report := flag.Duration("report", DefaultConfig().ReportEvery, "throughput report interval")
	flag.Parse()

	cfg := DefaultConfig()
	cfg.RingCapacity = *capacity
	cfg.Producers = *producers
	cfg.NodeID = *nodeID
	cfg.ReportEvery = *report

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("received shutdown signal")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("ringdemo: %v", err)
	}
	log.Println("ringdemo stopped")
}

func run(ctx context.Context, cfg Config) error {
	idRegion := membuffer.NewMemoryRegion(8)
	idGen := snowflake.NewGenerator(idRegion.View(), 0, cfg.NodeID, cfg.NodeBits, cfg.SeqBits, 0, nil)

	ringRegion := membuffer.NewMemoryRegion(cfg.RingCapacity + ringbuf.TrailerLength)
	ring := ringbuf.NewMPSC(ringRegion.View())

	var produced, consumed, rejected int64

	var producerWG sync.WaitGroup
	producerWG.Add(cfg.Producers)
	for p := 0; p < cfg.Producers; p++ {
		go func(producerID int) {
			defer producerWG.Done()
			payload := make([]byte, 8)
			for ctx.Err() == nil {
				id := idGen.NextID()
				binary.NativeEndian.PutUint64(payload, uint64(id))
				if ring.Write(idMsgType, payload, 0, len(payload)) {
					atomic.AddInt64(&produced, 1)
				} else {
					atomic.AddInt64(&rejected, 1)
				}
			}
		}(p)
	}

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		handler := func(msgType int32, buf *membuffer.AtomicBuffer, index, length int) error {
			if msgType != idMsgType || length != 8 {
				return nil
			}
			atomic.AddInt64(&consumed, 1)
			return nil
		}
		for {
			n, err := ring.Read(handler)
			if err != nil {
				log.Printf("ringdemo: consumer handler error: %v", err)
			}
			if n == 0 {
				if ctx.Err() != nil && ring.Size() == 0 {
					return
				}
				time.Sleep(time.Millisecond)
			}
		}
	}()

	ticker := time.NewTicker(cfg.ReportEvery)
	defer ticker.Stop()
	spscDemo()

reportLoop:
	for {
		select {
		case <-ticker.C:
			log.Printf("produced=%d consumed=%d rejected=%d ring_size=%d",
				atomic.LoadInt64(&produced), atomic.LoadInt64(&consumed),
				atomic.LoadInt64(&rejected), ring.Size())
		case <-ctx.Done():
			break reportLoop
		}
	}

	producerWG.Wait()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
		log.Println("ringdemo: consumer did not drain within shutdown timeout")
	}

	log.Printf("final: produced=%d consumed=%d rejected=%d", produced, consumed, rejected)
	return nil
}

// spscDemo is a small, self-contained illustration of the single-
// producer/single-consumer variant: one goroutine writes, one reads.
// Each 4-byte payload makes a 16-byte record, so the 64 records fill the
// 1024-byte data area exactly once and the last one ends at its end.
func spscDemo() {
	region := membuffer.NewMemoryRegion(1024 + ringbuf.TrailerLength)
	ring := ringbuf.NewSPSC(region.View())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		payload := make([]byte, 4)
		for i := int32(0); i < 64; i++ {
			binary.NativeEndian.PutUint32(payload, uint32(i))
			for !ring.Write(2, payload, 0, 4) {
				// back off until the consumer frees room
			}
		}
	}()

	read := 0
	for read < 64 {
		n, err := ring.Read(func(msgType int32, buf *membuffer.AtomicBuffer, index, length int) error {
			return nil
		})
		if err != nil {
			log.Printf("ringdemo: spsc handler error: %v", err)
		}
		read += n
	}
	wg.Wait()
	log.Printf("spsc demo: drained 64 records, max message length=%d", ring.MaxMsgLength())
}
