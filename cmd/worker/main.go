package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/max-hertz-coder/RiverAI/internal/broker"
	"github.com/max-hertz-coder/RiverAI/internal/chatcache"
	"github.com/max-hertz-coder/RiverAI/internal/config"
	"github.com/max-hertz-coder/RiverAI/internal/crypto"
	"github.com/max-hertz-coder/RiverAI/internal/llm"
	"github.com/max-hertz-coder/RiverAI/internal/logger"
	"github.com/max-hertz-coder/RiverAI/internal/metrics"
	"github.com/max-hertz-coder/RiverAI/internal/redis"
	"github.com/max-hertz-coder/RiverAI/internal/remotestore"
	"github.com/max-hertz-coder/RiverAI/internal/render"
	"github.com/max-hertz-coder/RiverAI/internal/storage"
	"github.com/max-hertz-coder/RiverAI/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New("riverai-worker")

	codec, err := crypto.NewCodec(cfg.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("encryption key")
	}

	db, err := storage.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	if err := storage.Migrate(db, cfg.DBDriver); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}
	store := storage.NewStore(db, cfg.DBDriver)

	rdb, err := redis.NewClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("connect redis")
	}
	defer rdb.Close()

	completer, err := llm.NewOpenAI(cfg.OpenAIKeys, cfg.OpenAIBaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("init completion client")
	}
	renderer, err := render.NewLaTeX(cfg.ArtifactDir, cfg.RenderTimeout, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init renderer")
	}
	uploader := remotestore.NewDiskClient(cfg.DiskAPIBaseURL, cfg.UploadTimeout)

	br, err := broker.Connect(cfg.BrokerURL, cfg.TaskQueue, cfg.ResultQueue)
	if err != nil {
		log.Fatal().Err(err).Msg("connect broker")
	}
	defer br.Close()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			log.Error().Err(err).Msg("metrics listener stopped")
		}
	}()

	app := &worker.App{
		Cfg:       cfg,
		Log:       log,
		Store:     store,
		Cache:     chatcache.New(rdb, cfg.ConversationTTL, log),
		Codec:     codec,
		Completer: completer,
		Renderer:  renderer,
		Uploader:  uploader,
		Coord:     rdb,
		Metrics:   m,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One channel per worker, each with prefetch 1: a slow handler stalls
	// only its own in-flight slot.
	for i := 0; i < cfg.WorkerCount; i++ {
		ch, err := br.Channel()
		if err != nil {
			log.Fatal().Err(err).Msg("open worker channel")
		}
		deliveries, err := ch.ConsumeTasks(fmt.Sprintf("riverai-worker-%d", i))
		if err != nil {
			log.Fatal().Err(err).Msg("consume task queue")
		}
		router := worker.NewRouter(app, ch)
		go router.Run(ctx, deliveries)
	}
	log.Info().Int("workers", cfg.WorkerCount).Str("queue", cfg.TaskQueue).Msg("worker started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-br.NotifyClose():
		// No reconnection: the supervisor restarts the process.
		log.Fatal().Err(err).Msg("broker connection lost")
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutting down")
		cancel()
	}
}
