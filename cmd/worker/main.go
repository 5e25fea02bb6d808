package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/xucheng2024/hour-trade/config"
	postgres_wrapper "github.com/xucheng2024/hour-trade/pkg/infra/postgres"
	"github.com/xucheng2024/hour-trade/pkg/store"
	"github.com/xucheng2024/hour-trade/pkg/worker"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	nc, err := nats.Connect(cfg.Nats.Addr)
	if err != nil {
		zap.S().Errorf("nats connect fail: %v", err)
		panic(err)
	}
	js, err := nc.JetStream()
	if err != nil {
		zap.S().Errorf("jetstream init fail: %v", err)
		panic(err)
	}

	_, _ = js.AddStream(&nats.StreamConfig{
		Name:     cfg.Nats.Stream,
		Subjects: []string{cfg.Nats.Stream + ".*"},
	})

	db, err := postgres_wrapper.InitPostgres(cfg.OmsDB)
	if err != nil {
		zap.S().Errorf("init db fail with err: %v", err)
		panic(err)
	}

	repo := store.NewRepo(db)
	w := worker.NewWorker(repo)
	go func() {
		if err := w.StartConsumer(ctx, js, cfg.Nats.Subject, cfg.Nats.Durable); err != nil && err != context.Canceled {
			zap.S().Errorf("consumer stopped: %v", err)
		}
	}()

	<-sigs
	cancel()
}
