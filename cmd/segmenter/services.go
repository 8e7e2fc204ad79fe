package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/transcript-segmenter/internal/api"
	"github.com/snarg/transcript-segmenter/internal/config"
	"github.com/snarg/transcript-segmenter/internal/database"
	"github.com/snarg/transcript-segmenter/internal/ingest"
	"github.com/snarg/transcript-segmenter/internal/mqttclient"
	"github.com/snarg/transcript-segmenter/internal/segment"
	"github.com/snarg/transcript-segmenter/internal/storage"
)

const retentionInterval = time.Hour

// services holds the long-running components shared by serve and watch.
// db, mqtt and watcher are nil when not configured.
type services struct {
	store   storage.Store
	db      *database.DB
	mqtt    *mqttclient.Client
	bus     *ingest.EventBus
	pool    *ingest.WorkerPool
	watcher *ingest.FileWatcher
	live    *ingest.Live
}

// startServices connects the configured sinks and sources and starts the
// worker pool. The caller must call stop.
func startServices(ctx context.Context, cfg *config.Config, seg *segment.Segmenter, log zerolog.Logger) (*services, error) {
	s := &services{}

	// Output storage
	store, err := storage.New(cfg.S3, cfg.OutputDir, log.With().Str("component", "storage").Logger())
	if err != nil {
		return nil, err
	}
	s.store = store
	log.Info().Str("type", store.Type()).Msg("output storage ready")

	// Database
	if cfg.DatabaseURL != "" {
		dbLog := log.With().Str("component", "database").Logger()
		db, err := database.Connect(ctx, dbOptions(cfg), dbLog)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		s.db = db
		if cfg.RunRetention > 0 {
			go db.RunRetention(ctx, cfg.RunRetention, retentionInterval)
		}
	}

	// MQTT
	if cfg.MQTTBrokerURL != "" {
		mqtt, err := mqttclient.Connect(mqttclient.Options{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			Topics:      cfg.MQTTTopics,
			ResultTopic: cfg.MQTTResultTopic,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			Log:         log.With().Str("component", "mqtt").Logger(),
		})
		if err != nil {
			s.stop()
			return nil, fmt.Errorf("connect mqtt broker: %w", err)
		}
		s.mqtt = mqtt
	}

	// Worker pool
	s.bus = ingest.NewEventBus(256)
	opts := ingest.WorkerPoolOptions{
		Segmenter: seg,
		Store:     s.store,
		Events:    s.bus,
		Scorer:    cfg.Model.Scorer,
		Seed:      cfg.Model.Seed,
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		Log:       log.With().Str("component", "worker").Logger(),
	}
	if s.db != nil {
		opts.Runs = s.db
	}
	if s.mqtt != nil {
		opts.Publisher = s.mqtt
	}
	s.pool = ingest.NewWorkerPool(opts)
	s.pool.Start()

	if s.mqtt != nil {
		s.mqtt.SetMessageHandler(ingest.MQTTHandler(s.pool, log.With().Str("component", "mqtt-ingest").Logger()))
	}

	// File watcher
	s.live = &ingest.Live{EventBus: s.bus}
	if cfg.WatchDir != "" {
		fw := ingest.NewFileWatcher(s.pool, s.store, cfg.WatchDir, cfg.WatchBackfill,
			log.With().Str("component", "watcher").Logger())
		if err := fw.Start(ctx); err != nil {
			s.stop()
			return nil, fmt.Errorf("start file watcher: %w", err)
		}
		s.watcher = fw
		s.live.Watcher = fw
	}

	return s, nil
}

// stop shuts components down in reverse dependency order.
func (s *services) stop() {
	if s.watcher != nil {
		s.watcher.Stop()
	}
	if s.mqtt != nil {
		s.mqtt.Close()
	}
	if s.pool != nil {
		s.pool.Stop()
	}
	if s.db != nil {
		s.db.Close()
	}
}

// apiOptions fills the server options from running services, leaving
// disabled components as untyped nils.
func (s *services) apiOptions(opts api.ServerOptions) api.ServerOptions {
	opts.Queue = s.pool
	opts.Live = s.live
	opts.Outputs = s.store
	opts.StoreType = s.store.Type()
	if s.db != nil {
		opts.Runs = s.db
	}
	if s.mqtt != nil {
		opts.MQTT = s.mqtt
	}
	return opts
}

func dbOptions(cfg *config.Config) database.Options {
	return database.Options{
		URL:            cfg.DatabaseURL,
		MaxConns:       cfg.DBMaxConns,
		MinConns:       cfg.DBMinConns,
		ConnectTimeout: cfg.DBConnTimeout,
	}
}
