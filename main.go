package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"veriframe-indexer/api"
	"veriframe-indexer/chain"
	"veriframe-indexer/config"
	"veriframe-indexer/database"
	"veriframe-indexer/indexer"
	"veriframe-indexer/indexer/abi"
	"veriframe-indexer/logger"
)

func main() {
	flag.Parse()
	_ = godotenv.Load()

	cfg, err := config.BuildConfig()
	if err != nil {
		fmt.Println("Config error: ", err)
		return
	}
	config.GlobalConfigCallback.Call(cfg)
	logger.Info("Running with configuration: chain: %s, database: %s", cfg.Chain.NodeURL, cfg.DB.Database)

	abi.InitRegistryAbi("indexer/abi/contracts/JobRegistry.json")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := database.ConnectAndInitialize(ctx, &cfg.DB)
	if err != nil {
		logger.Fatal("Database connect and initialize error: %s", err)
	}

	nodeURL, err := cfg.Chain.FullNodeURL()
	if err != nil {
		logger.Fatal("Invalid node URL in config: %s", err)
	}
	client, err := chain.DialRPCNode(nodeURL, chain.ChainType(cfg.Chain.ChainType))
	if err != nil {
		logger.Fatal("Could not connect to the chain node: %s", err)
	}

	cIndexer, err := indexer.CreateBlockIndexer(cfg, db, client)
	if err != nil {
		logger.Fatal("Indexer init error: %s", err)
	}

	if cfg.API.Enabled {
		go func() {
			if err := api.New(db, cfg.API.Address).Run(ctx); err != nil {
				logger.Error("API server error: %s", err)
			}
		}()
	}

	if cfg.HistoryDrop.IntervalSeconds > 0 {
		go database.DropHistory(ctx, db, cfg.HistoryDrop.IntervalSeconds,
			cfg.HistoryDrop.CheckIntervalSeconds, client)
	}

	if _, err := cIndexer.IndexHistory(ctx); err != nil {
		logger.Fatal("History run error: %s", err)
	}

	if err := cIndexer.IndexContinuous(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("Run error: %s", err)
	}

	logger.SyncFileLogger()
}
