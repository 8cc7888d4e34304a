package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	ledger "github.com/i5heu/ouroboros-ledger"
	"github.com/i5heu/ouroboros-ledger/internal/logging"
	"github.com/i5heu/ouroboros-ledger/internal/mxesim"
	"github.com/i5heu/ouroboros-ledger/internal/workerpool"
	"github.com/i5heu/ouroboros-ledger/pkg/balance"
)

type transferResult struct {
	offset uint64
	err    error
}

func main() {
	pairs := flag.Int("pairs", 64, "number of disjoint sender/receiver pairs")
	rounds := flag.Int("rounds", 20, "transfer rounds per pair")
	workers := flag.Int("workers", 0, "worker goroutines (0 = 3x CPUs)")
	flag.Parse()

	ctx := context.Background()
	cluster, err := mxesim.New(mxesim.Config{Workers: *workers})
	if err != nil {
		log.Fatal(err)
	}
	defer cluster.Close()

	l, err := ledger.New(ledger.Config{InMemory: true, Logger: logging.Discard(), Cluster: cluster})
	if err != nil {
		log.Fatal(err)
	}
	if err := l.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer l.Close(ctx)

	owners := make([]balance.Owner, 2*(*pairs))
	for i := range owners {
		c, err := cluster.NewClient()
		if err != nil {
			log.Fatal(err)
		}
		copy(owners[i][:], fmt.Sprintf("bench-%08d", i))
		if err := l.Wrap(ctx, uint64(i), owners[i], 1_000_000, c.PublicKey(), balance.NewNonce(0)); err != nil {
			log.Fatal(err)
		}
	}
	cluster.Wait()

	wp := workerpool.NewWorkerPool(workerpool.Config{WorkerCount: *workers, GlobalBuffer: *pairs})
	defer wp.Stop()

	offset := uint64(len(owners))
	start := time.Now()
	failed := 0
	for r := 0; r < *rounds; r++ {
		room := workerpool.NewRoom[transferResult](wp, *pairs)
		for p := 0; p < *pairs; p++ {
			from, to := owners[2*p], owners[2*p+1]
			if r%2 == 1 {
				from, to = to, from
			}
			o := offset
			offset++
			err := room.NewTaskWaitForFreeSlot(func() transferResult {
				return transferResult{offset: o, err: l.Transfer(ctx, o, from, to, 1)}
			})
			if err != nil {
				log.Fatal(err)
			}
		}
		for _, res := range room.Collect() {
			if res.err != nil {
				failed++
				fmt.Println("transfer", res.offset, res.err)
			}
		}
		// every pair's accounts are busy until its callback settles
		cluster.Wait()
	}
	elapsed := time.Since(start)

	total := *pairs * *rounds
	fmt.Printf("%d transfers (%d failed) in %s, %.0f/s\n", total, failed, elapsed, float64(total)/elapsed.Seconds())
}
