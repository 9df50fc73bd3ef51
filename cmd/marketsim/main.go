package main

import (
	"context"
	"flag"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rohitkumar-gith/share-market-simulation/config"
	redis_wrapper "github.com/rohitkumar-gith/share-market-simulation/pkg/infra/redis"
	"github.com/rohitkumar-gith/share-market-simulation/pkg/logging"
	"github.com/rohitkumar-gith/share-market-simulation/pkg/market"
	"github.com/rohitkumar-gith/share-market-simulation/pkg/market/marketdata"
	"github.com/rohitkumar-gith/share-market-simulation/pkg/market/model"
	"github.com/rohitkumar-gith/share-market-simulation/pkg/market/repo"

	postgres_wrapper "github.com/rohitkumar-gith/share-market-simulation/pkg/infra/postgres"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config-file", "./config/config.yaml", "Specify config file path")
	flag.Parse()

	logger, err := logging.Init(logging.INFO)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() // nolint

	go func() {
		http.ListenAndServe("localhost:6060", nil) // nolint
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	cfg, err := config.Load(configFile)
	if err != nil {
		zap.S().Fatalw("load config failed", "err", err)
	}

	engineCfg := engineConfig(cfg)
	engine := market.NewEngine(engineCfg, instruments(cfg), nil)

	if cfg.MarketDB != nil {
		db := postgres_wrapper.InitPostgresWithBackoff(cfg.MarketDB)
		recorder := repo.NewRecorder(repo.NewRepo(db))
		recorder.Attach(engine)
		defer recorder.Stop()
	}

	if cfg.MarketCache != nil {
		rdb, err := redis_wrapper.InitRedis(cfg.MarketCache)
		if err != nil {
			zap.S().Fatalw("init redis failed", "err", err)
		}
		publisher := marketdata.NewPublisher(rdb, engine)
		go publisher.Run(ctx, engineCfg.PriceTickInterval)
	}

	engine.Start(ctx)
	zap.S().Infow("market simulation running", "service", cfg.ServiceName)

	<-sigs
	zap.S().Info("shutting down...")

	cancel()
	engine.Stop()

	zap.S().Info("exited cleanly")
}

func engineConfig(cfg *config.AppConfig) market.Config {
	out := market.DefaultConfig()
	if mc := cfg.Market; mc != nil {
		if mc.PriceTickInterval > 0 {
			out.PriceTickInterval = mc.PriceTickInterval
		}
		if mc.MatchTickInterval > 0 {
			out.MatchTickInterval = mc.MatchTickInterval
		}
		if mc.BotTickInterval > 0 {
			out.BotTickInterval = mc.BotTickInterval
		}
		if mc.PriceFloor > 0 {
			out.Pricing.Floor = decimal.NewFromFloat(mc.PriceFloor)
		}
		if mc.VWAPWindow > 0 {
			out.Pricing.Window = mc.VWAPWindow
		}
		if mc.Convergence > 0 {
			out.Pricing.Convergence = mc.Convergence
		}
		out.Pricing.Noise = mc.Noise
		out.Pricing.TickInterval = out.PriceTickInterval
	}
	if bc := cfg.Bots; bc != nil {
		if bc.Count > 0 {
			out.Bots.Count = bc.Count
		}
		if bc.InitialBalance > 0 {
			out.Bots.InitialCash = decimal.NewFromFloat(bc.InitialBalance)
		}
		if bc.MaxOrderQty > 0 {
			out.Bots.MaxOrderQty = bc.MaxOrderQty
		}
		if bc.SentimentWindow > 0 {
			out.Bots.SentimentWindow = bc.SentimentWindow
		}
	}
	return out
}

func instruments(cfg *config.AppConfig) []model.Instrument {
	out := make([]model.Instrument, 0, len(cfg.Instruments))
	for _, ic := range cfg.Instruments {
		out = append(out, model.Instrument{
			Symbol:          ic.Symbol,
			Name:            ic.Name,
			Price:           decimal.NewFromFloat(ic.Price),
			TotalShares:     ic.TotalShares,
			AvailableShares: ic.TotalShares,
		})
	}
	return out
}
