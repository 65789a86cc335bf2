package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"stonevault.gg/internal/auction"
	"stonevault.gg/internal/econ"
	"stonevault.gg/internal/persistence"
	"stonevault.gg/internal/persistence/indexdb"
	persistlog "stonevault.gg/internal/persistence/log"
	"stonevault.gg/internal/persistence/snapshot"
	"stonevault.gg/internal/sim/world"
	"stonevault.gg/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		configPath = flag.String("config", "./configs/economy.yaml", "economy config path")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tickRate   = flag.Int("tick_rate", 5, "simulation tick rate (hz)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite read-model index")
		saveGrace  = flag.Duration("save_grace", 10*time.Second, "shutdown grace for outstanding saves")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := econ.LoadConfig(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load economy config: %v", err)
		}
		logger.Printf("economy config not found (%s); using defaults", *configPath)
		cfg = econ.Defaults()
	}
	cat, err := cfg.Catalog()
	if err != nil {
		logger.Fatalf("currency catalog: %v", err)
	}

	econDir := filepath.Join(*dataDir, "economy")
	_ = os.MkdirAll(econDir, 0o755)

	ledger := econ.NewLedger(cat, cfg.HistoryCap)
	loadLedger(logger, econDir, ledger)

	// Observers: append-only audit stream + optional sqlite index.
	audit := persistlog.NewAuditLogger(econDir)
	var index *indexdb.SQLiteIndex
	if !*disableDB {
		index, err = indexdb.OpenSQLite(filepath.Join(econDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index db: %v", err)
		}
	}
	fanout := persistence.NewTxFanout(logger, audit, index)
	ledger.SetSink(fanout)

	market := auction.NewEngine(auction.Config{
		ListingFeePermille: cfg.Market.ListingFeePermille,
		DurationTicks:      cfg.Market.DurationTicks,
	}, ledger, nil)
	if index != nil {
		market.SetSink(index)
	}
	loadMarket(logger, econDir, market)

	w := world.New(world.Config{ID: *worldID, TickRateHz: *tickRate}, ledger, market, logger)
	market.SetCourier(w.Courier())

	saver := persistence.NewSaver(logger, 16)
	saveAll := func(tick uint64) {
		saver.Enqueue("economy", func() error {
			if err := snapshot.WriteDoc(econDir, snapshot.BalancesFile, ledger.ExportLedgerDoc()); err != nil {
				return err
			}
			if err := snapshot.WriteDoc(econDir, snapshot.TransactionsFile, ledger.ExportHistoryDoc()); err != nil {
				return err
			}
			return snapshot.WriteDoc(econDir, snapshot.MarketFile, market.Export(tick))
		})
	}
	w.SetAutosave(saveAll)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("world loop: %v", err)
		}
	}()

	wsServer := ws.NewServer(w, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/v1/ws", wsServer.Handler())
	registerAdminAPI(mux, w, index, logger)

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	srv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		logger.Printf("listening on %s (world %s, tick %dhz)", *addr, *worldID, *tickRate)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Printf("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	w.Stop()
	cancel()

	// Final snapshot, then drain the save queue within the grace
	// period.
	saveAll(w.Tick())
	if err := saver.Close(*saveGrace); err != nil {
		logger.Printf("saver close: %v", err)
	}
	if err := fanout.Close(); err != nil {
		logger.Printf("audit close: %v", err)
	}
	if index != nil {
		if err := index.Close(); err != nil {
			logger.Printf("index close: %v", err)
		}
	}
	logger.Printf("bye")
}

// loadLedger restores balances (upgrading the legacy single-number
// format) and histories. Corrupt files are preserved as backups and
// the store starts empty; startup never aborts on bad state.
func loadLedger(logger *log.Logger, dir string, ledger *econ.Ledger) {
	doc, err := snapshot.ReadLedgerDoc(dir, string(ledger.Catalog().Primary()))
	switch {
	case err == nil:
		ledger.ImportBalances(doc.Balances)
		logger.Printf("loaded balances for %d accounts", len(doc.Balances))
	case os.IsNotExist(err):
		logger.Printf("no balances snapshot; starting fresh")
	case snapshot.IsCorrupt(err):
		logger.Printf("balances snapshot unusable, starting empty: %v", err)
	default:
		logger.Fatalf("read balances: %v", err)
	}

	var hist snapshot.HistoryDocV1
	if err := snapshot.ReadDoc(dir, snapshot.TransactionsFile, &hist); err == nil {
		ledger.ImportHistoryDoc(hist)
	} else if !os.IsNotExist(err) {
		logger.Printf("transaction history unusable, starting empty: %v", err)
	}
}

func loadMarket(logger *log.Logger, dir string, market *auction.Engine) {
	var doc snapshot.MarketDocV1
	err := snapshot.ReadDoc(dir, snapshot.MarketFile, &doc)
	switch {
	case err == nil:
		market.Import(doc)
		logger.Printf("loaded %d active auctions, next id %d", len(doc.Auctions), doc.NextID)
	case os.IsNotExist(err):
		logger.Printf("no auction snapshot; starting fresh")
	default:
		logger.Printf("auction snapshot unusable, starting empty: %v", err)
	}
}
