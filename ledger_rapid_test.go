package ledger

import (
	"context"
	"testing"

	"pgregory.net/rapid"

	"github.com/i5heu/ouroboros-ledger/internal/logging"
	"github.com/i5heu/ouroboros-ledger/internal/mxesim"
	"github.com/i5heu/ouroboros-ledger/internal/testutil"
	"github.com/i5heu/ouroboros-ledger/pkg/balance"
)

func TestTransfersConserveSupply(t *testing.T) {
	testutil.RequireLong(t)

	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		cluster, err := mxesim.New(mxesim.Config{Workers: 2})
		if err != nil {
			rt.Fatal(err)
		}
		defer cluster.Close()
		l, err := New(Config{InMemory: true, Logger: logging.Discard(), Cluster: cluster})
		if err != nil {
			rt.Fatal(err)
		}
		if err := l.Start(ctx); err != nil {
			rt.Fatal(err)
		}
		defer l.Close(ctx)

		const accounts = 3
		clients := make([]*mxesim.Client, accounts)
		var supply uint64
		for i := range clients {
			if clients[i], err = cluster.NewClient(); err != nil {
				rt.Fatal(err)
			}
			amount := rapid.Uint64Range(1, 1000).Draw(rt, "wrap")
			supply += amount
			err := l.Wrap(ctx, uint64(i), testutil.Owner(byte(i+1)), amount, clients[i].PublicKey(), balance.NewNonce(0))
			if err != nil {
				rt.Fatal(err)
			}
		}
		cluster.Wait()

		steps := rapid.IntRange(1, 20).Draw(rt, "steps")
		for s := 0; s < steps; s++ {
			from := rapid.IntRange(0, accounts-1).Draw(rt, "from")
			to := (from + 1 + rapid.IntRange(0, accounts-2).Draw(rt, "to")) % accounts
			amount := rapid.Uint64Range(1, 1500).Draw(rt, "amount")
			err := l.Transfer(ctx, uint64(100+s), testutil.Owner(byte(from+1)), testutil.Owner(byte(to+1)), amount)
			if err != nil {
				rt.Fatal(err)
			}
			cluster.Wait()
		}

		var total uint64
		for i, c := range clients {
			b, ok, err := l.Balance(ctx, testutil.Owner(byte(i+1)))
			if err != nil || !ok {
				rt.Fatalf("balance %d: ok=%v err=%v", i, ok, err)
			}
			v, err := c.Decrypt(b)
			if err != nil {
				rt.Fatal(err)
			}
			total += v
		}
		if total != supply {
			rt.Fatalf("supply changed: %d != %d", total, supply)
		}
	})
}
