package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xucheng2024/hour-trade/config"
	"github.com/xucheng2024/hour-trade/pkg/engine"
	"github.com/xucheng2024/hour-trade/pkg/exchange"
	postgres_wrapper "github.com/xucheng2024/hour-trade/pkg/infra/postgres"
	redis_wrapper "github.com/xucheng2024/hour-trade/pkg/infra/redis"
	"github.com/xucheng2024/hour-trade/pkg/logging"
	"github.com/xucheng2024/hour-trade/pkg/store"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}

	configBytes, err := json.MarshalIndent(cfg, "", "   ")
	if err != nil {
		zap.S().Warnf("could not convert config to JSON: %v", err)
	} else {
		zap.S().Debugf("load config %s", string(configBytes))
	}

	log := logging.NewLogger(logging.INFO).With(zap.String("strategy_tag", cfg.Engine.StrategyTag))
	defer log.Sync() // nolint

	go func() {
		http.ListenAndServe("localhost:6060", nil) // nolint
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	engineCfg, err := cfg.Engine.ToEngine()
	if err != nil {
		log.Fatal(ctx, "bad engine config", zap.Error(err))
	}

	limits, err := engine.LoadLimits(engineCfg.LimitsFile, engineCfg.Blacklist)
	if err != nil {
		log.Fatal(ctx, "load limits", zap.Error(err))
	}

	db := postgres_wrapper.InitPostgresWithBackoff(cfg.OmsDB)
	repo := store.NewRepo(db)

	var intents engine.IntentStore
	if cfg.Redis != nil {
		redisClient, err := redis_wrapper.InitRedis(cfg.Redis)
		if err != nil {
			log.Fatal(ctx, "init redis", zap.Error(err))
		}
		intents = engine.NewRedisIntentStore(redisClient, engineCfg.StrategyTag)
	} else {
		log.Warn(ctx, "no redis configured, using in-process intent markers")
		intents = engine.NewMemoryIntentStore()
	}

	var events engine.EventPublisher = engine.NoopPublisher{}
	if cfg.Nats != nil {
		nc, err := nats.Connect(cfg.Nats.Addr)
		if err != nil {
			log.Warn(ctx, "nats connect failed, audit events disabled", zap.Error(err))
		} else {
			js, err := nc.JetStream()
			if err != nil {
				log.Warn(ctx, "jetstream init failed, audit events disabled", zap.Error(err))
			} else {
				_, _ = js.AddStream(&nats.StreamConfig{
					Name:     cfg.Nats.Stream,
					Subjects: []string{cfg.Nats.Stream + ".*"},
				})
				events = engine.NewNatsPublisher(js, cfg.Nats.Subject)
			}
		}
	}

	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)
	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				zap.S().Warnf("metrics server: %v", err)
			}
		}()
	}

	eng := engine.NewEngine(engineCfg, nil, repo, limits, intents, events, metrics, log)

	var gw exchange.Gateway
	if engineCfg.SimulationMode {
		log.Info(ctx, "simulation mode, no orders reach the exchange")
		gw = exchange.NewSimGateway(eng.Prices())
	} else {
		gw = exchange.NewOKXGateway(&exchange.OKXConfig{
			RestURL:       cfg.Exchange.RestURL,
			APIKey:        cfg.Exchange.APIKey,
			APISecret:     cfg.Exchange.APISecret,
			APIPassphrase: cfg.Exchange.APIPassphrase,
			DemoTrading:   cfg.Exchange.DemoTrading,
		})
	}
	eng.SetGateway(gw)

	insts := limits.Instruments()
	ticker := exchange.NewStream(exchange.StreamConfig{
		URL:         cfg.Exchange.PublicWsURL,
		Channel:     "tickers",
		Instruments: insts,
		OnReconnect: func() { zap.S().Infow("stream connected", "channel", "tickers") },
	})
	candle := exchange.NewStream(exchange.StreamConfig{
		URL:         cfg.Exchange.BusinessWsURL,
		Channel:     "candle1H",
		Instruments: insts,
		OnReconnect: func() { zap.S().Infow("stream connected", "channel", "candle1H") },
	})
	eng.AttachStreams(ticker, candle)

	go func() {
		if err := eng.Run(ctx); err != nil && err != context.Canceled {
			log.Error(ctx, "engine stopped", zap.Error(err))
		}
	}()
	log.Info(ctx, "engine started",
		zap.String("service", cfg.ServiceName),
		zap.String("strategy_tag", engineCfg.StrategyTag),
		zap.Int("instruments", len(insts)))

	<-sigs
	log.Info(ctx, "shutting down")
	cancel()
}
