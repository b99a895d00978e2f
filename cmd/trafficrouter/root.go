package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"traffic-router/internal/api"
	"traffic-router/internal/config"
	"traffic-router/internal/consumer"
	"traffic-router/internal/journal"
	"traffic-router/internal/metrics"
	"traffic-router/internal/router"
	"traffic-router/internal/sink"
	"traffic-router/internal/store"
	"traffic-router/internal/topic"
)

var (
	configPath   string
	kafkaBrokers string
	sinkKind     string
)

var rootCmd = &cobra.Command{
	Use:   "trafficrouter",
	Short: "Route traffic sensor topics to the backend API or MongoDB",
	Long: `Consumes the traffic sensor topics from Kafka and dispatches every record
to the sink its topic is routed to: an HTTP POST to the backend API
(forward) or an insert into a MongoDB collection (store).

Examples:
  # Forward everything to the backend API
  trafficrouter --config config.yaml

  # Store everything in MongoDB
  MONGO_URI=mongodb://localhost:27017 trafficrouter --sink store

  # Publish synthetic sensor data
  trafficrouter simulate --brokers localhost:9092`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		return runRouter(cfg)
	},
}

// Execute runs the command line. Any error ends the process with a non-zero
// status.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatalf("trafficrouter: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&kafkaBrokers, "brokers", "", "Kafka brokers (overrides config)")
	rootCmd.Flags().StringVar(&sinkKind, "sink", "", "default sink kind: forward or store (overrides config)")
	rootCmd.AddCommand(simulateCmd)
}

// loadConfig reads the configuration, applies the command line overrides and
// configures logging from the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if kafkaBrokers != "" {
		cfg.Kafka.Brokers = kafkaBrokers
	}
	if sinkKind != "" {
		cfg.Sink.Default = sinkKind
	}
	if err := setupLogging(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logrus.Info("interrupt received, shutting down gracefully...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func runRouter(cfg *config.Config) error {
	ctx, cancel := signalContext()
	defer cancel()

	reg, err := cfg.Registry()
	if err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(promReg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	opts := router.Options{Metrics: m}
	if cfg.Journal.Dir != "" {
		j, err := journal.Open(cfg.Journal.Dir)
		if err != nil {
			return fmt.Errorf("failed to open failure journal: %w", err)
		}
		defer func() {
			if err := j.Close(); err != nil {
				logrus.Warnf("failed to close failure journal: %v", err)
			}
		}()
		opts.Journal = j
	}

	sinks, closeSinks, err := buildSinks(ctx, cfg, reg, m)
	if err != nil {
		return err
	}
	defer closeSinks()

	kc, err := consumer.NewKafkaConsumer(cfg.Kafka)
	if err != nil {
		return err
	}
	loop := consumer.New(kc, reg.Names(), router.New(reg, sinks, opts), cfg.Kafka.PollTimeoutMS)
	loop.SetBrokersDownTimeout(cfg.Kafka.BrokersDownTimeout())

	if cfg.API.Addr != "" {
		srv := api.NewServer(cfg.API.Addr, loop.Running, promReg)
		go func() {
			if err := srv.Run(); err != nil {
				logrus.Errorf("operations endpoint stopped with error: %v", err)
			}
		}()
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	logrus.WithFields(logrus.Fields{
		"brokers": cfg.Kafka.Brokers,
		"group":   cfg.Kafka.GroupID,
		"sinks":   len(sinks),
	}).Info("Consumer started")

	runErr := loop.Run(ctx)

	if err := loop.Close(cfg.Kafka.CloseTimeout()); err != nil {
		logrus.Warnf("consumer close: %v", err)
	} else {
		logrus.Info("Consumer disconnected")
	}
	return runErr
}

// buildSinks creates one sink per kind the registry routes to. The returned
// func releases their connections.
func buildSinks(ctx context.Context, cfg *config.Config, reg *topic.Registry, m *metrics.Metrics) (map[topic.Kind]sink.Sink, func(), error) {
	sinks := make(map[topic.Kind]sink.Sink)
	closeFn := func() {}

	kinds := reg.Kinds()
	if kinds[topic.Forward] {
		sinks[topic.Forward] = sink.NewForward(cfg.Forward.BaseURL, cfg.Forward.Timeout())
		logrus.Infof("Forwarding sink ready | base_url=%s", cfg.Forward.BaseURL)
	}
	if kinds[topic.Store] {
		db, err := store.Connect(ctx, cfg.Mongo, cfg.Retry)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		sinks[topic.Store] = sink.NewStorage(db, store.NewProvisioner(m), cfg.Mongo.Timeout())
		closeFn = func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := db.Disconnect(dctx); err != nil {
				logrus.Warnf("mongo disconnect: %v", err)
				return
			}
			logrus.Info("MongoDB disconnected")
		}
	}
	return sinks, closeFn, nil
}
