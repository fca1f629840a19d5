// Command spamengine is the process entrypoint: it wires together the
// wallet store, proxy list, client pool, nonce manager, submission
// pipeline, and worker scheduler described in DESIGN.md, the same
// flag.String/flag.Duration + log.Fatalf wiring style every geth-NN-*
// tutorial solution in the teacher repo uses, generalized into returned
// errors everywhere except this outermost main().
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethlog "github.com/ethereum/go-ethereum/log"

	"github.com/tempospam/engine/internal/clientpool"
	"github.com/tempospam/engine/internal/config"
	"github.com/tempospam/engine/internal/nonce"
	"github.com/tempospam/engine/internal/proxy"
	"github.com/tempospam/engine/internal/rpcclient"
	"github.com/tempospam/engine/internal/scheduler"
	"github.com/tempospam/engine/internal/store"
	"github.com/tempospam/engine/internal/submit"
	"github.com/tempospam/engine/internal/tasks"
	"github.com/tempospam/engine/internal/wallet"
)

func main() {
	log := gethlog.New("component", "main")

	rpcURL := flag.String("rpc", "", "RPC endpoint (required)")
	chainID := flag.Uint64("chain-id", 42431, "chain id used for signing")
	workers := flag.Int("workers", 4, "number of concurrent workers")
	walletDir := flag.String("wallets", ".", "directory containing wallet-json/ or pv.txt")
	proxyList := flag.String("proxies", "", "comma-separated proxy URLs (optional)")
	dbPath := flag.String("db", "spamengine.db", "sqlite path for the operational result journal")
	dialTimeout := flag.Duration("dial-timeout", 30*time.Second, "per-RPC HTTP timeout")
	mintTarget := flag.String("mint-target", "0x0000000000000000000000000000000000000000", "contract address the tempo-batch-mint example task calls")
	flag.Parse()

	if *rpcURL == "" {
		log.Crit("missing required -rpc flag")
	}

	password := os.Getenv("WALLET_PASSWORD")

	cfg := config.Default()
	cfg.RPCURL = *rpcURL
	cfg.ChainID = *chainID
	cfg.WorkerCount = *workers
	cfg.Tempo.ChainID = *chainID

	if err := run(context.Background(), log, cfg, *walletDir, password, *proxyList, *dbPath, *dialTimeout, *mintTarget); err != nil {
		log.Crit("spamengine exited", "err", err)
	}
}

func run(ctx context.Context, log gethlog.Logger, cfg config.Config, walletDir, password, proxyList, dbPath string, dialTimeout time.Duration, mintTarget string) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	walletStore, err := wallet.NewStore(walletDir)
	if err != nil {
		return fmt.Errorf("spamengine: open wallet store: %w", err)
	}
	defer walletStore.Close()
	if walletStore.Count() == 0 {
		return fmt.Errorf("spamengine: no wallets discovered under %s", walletDir)
	}
	log.Info("discovered wallets", "count", walletStore.Count())

	proxies, err := parseProxies(proxyList)
	if err != nil {
		return fmt.Errorf("spamengine: parse proxies: %w", err)
	}
	banlist := proxy.NewBanlist(cfg.Proxy.FailureThreshold, cfg.Proxy.BanDuration)

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("spamengine: open store: %w", err)
	}
	defer db.Close()

	seedClient, err := rpcclient.Dial(ctx, cfg.RPCURL, nil, dialTimeout)
	if err != nil {
		return fmt.Errorf("spamengine: dial rpc: %w", err)
	}
	defer seedClient.Close()
	nonceMgr := nonce.NewManager(seedClient, cfg.Nonce)

	resources := make([]clientpool.Resource, 0, walletStore.Count())
	for i := 0; i < walletStore.Count(); i++ {
		w, err := walletStore.Get(i, password)
		if err != nil {
			return fmt.Errorf("spamengine: load wallet %d: %w", i, err)
		}
		var p *proxy.Proxy
		if len(proxies) > 0 {
			candidate := proxies[i%len(proxies)]
			if !banlist.IsBanned(candidate.Key()) {
				p = candidate
			}
		}
		client, err := rpcclient.Dial(ctx, cfg.RPCURL, p, dialTimeout)
		if err != nil {
			return fmt.Errorf("spamengine: dial rpc for wallet %d: %w", i, err)
		}
		resources = append(resources, clientpool.Resource{Wallet: w, Client: client, Proxy: p})
	}

	pool := clientpool.New(resources, cfg.Lease.TTL, cfg.Lease.ReleaseCooldown)
	// A lease's release cooldown follows the wallet's current adaptive
	// cooldown rather than the pool's fixed default, per spec.md §4.7.
	pool.SetCooldownFunc(func(r clientpool.Resource) time.Duration {
		return nonceMgr.Cooldown(r.Wallet.Address)
	})

	pipeline := submit.NewPipeline(cfg.Retry, submit.NewCircuitBreaker("spamengine", submit.DefaultCircuitBreakerConfig()), nonceMgr, banlist)
	taskList := []scheduler.Task{
		&tasks.SelfTransfer{Pipeline: pipeline},
		&tasks.TempoBatchMint{Pipeline: pipeline, Target: common.HexToAddress(mintTarget), CallCount: 3},
	}

	sched := scheduler.New(pool, taskList, cfg, nonceMgr, db)
	log.Info("starting scheduler", "workers", cfg.WorkerCount, "tasks", len(taskList))
	return sched.Run(ctx)
}

func parseProxies(raw string) ([]*proxy.Proxy, error) {
	if raw == "" {
		return nil, nil
	}
	var out []*proxy.Proxy
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		p, err := proxy.Parse(part)
		if err != nil {
			return nil, fmt.Errorf("parse proxy %q: %w", part, err)
		}
		out = append(out, p)
	}
	return out, nil
}
