package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/max-hertz-coder/RiverAI/internal/api"
	"github.com/max-hertz-coder/RiverAI/internal/broker"
	"github.com/max-hertz-coder/RiverAI/internal/config"
	"github.com/max-hertz-coder/RiverAI/internal/dispatch"
	"github.com/max-hertz-coder/RiverAI/internal/logger"
	"github.com/max-hertz-coder/RiverAI/internal/metrics"
	"github.com/max-hertz-coder/RiverAI/internal/resultrouter"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New("riverai-gateway")

	br, err := broker.Connect(cfg.BrokerURL, cfg.TaskQueue, cfg.ResultQueue)
	if err != nil {
		log.Fatal().Err(err).Msg("connect broker")
	}
	defer br.Close()

	pubCh, err := br.Channel()
	if err != nil {
		log.Fatal().Err(err).Msg("open publish channel")
	}
	dispatcher := dispatch.New(pubCh, log)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	var delivery resultrouter.Delivery
	if cfg.WebhookURL != "" {
		delivery = resultrouter.NewWebhookDelivery(cfg.WebhookURL, cfg.UploadTimeout)
	} else {
		log.Warn().Msg("no webhook configured, results are logged only")
		delivery = resultrouter.LogDelivery{Log: log}
	}

	resCh, err := br.Channel()
	if err != nil {
		log.Fatal().Err(err).Msg("open result channel")
	}
	deliveries, err := resCh.ConsumeResults("riverai-gateway")
	if err != nil {
		log.Fatal().Err(err).Msg("consume result queue")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go resultrouter.New(delivery, log, m).Run(ctx, deliveries)

	router := gin.Default()
	api.NewHandler(dispatcher, log, registry).RegisterRoutes(router)

	go func() {
		if err := router.Run(cfg.GatewayAddr); err != nil {
			log.Fatal().Err(err).Msg("http server stopped")
		}
	}()
	log.Info().Str("addr", cfg.GatewayAddr).Msg("gateway started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-br.NotifyClose():
		log.Fatal().Err(err).Msg("broker connection lost")
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutting down")
		cancel()
	}
}
