package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"traffic-router/internal/config"
	"traffic-router/internal/simulator"
)

var (
	simInterval time.Duration
	simSensors  int
	simSeed     int64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Publish synthetic sensor records to every traffic topic",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.ValidateBroker(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		return runSimulator(cfg)
	},
}

func init() {
	simulateCmd.Flags().DurationVar(&simInterval, "interval", 0, "time between batches (overrides config)")
	simulateCmd.Flags().IntVar(&simSensors, "sensors", 0, "number of simulated sensors (overrides config)")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 0, "random seed (default: current time)")
}

func runSimulator(cfg *config.Config) error {
	ctx, cancel := signalContext()
	defer cancel()

	interval := cfg.Simulator.Interval()
	if simInterval > 0 {
		interval = simInterval
	}
	sensors := cfg.Simulator.Sensors
	if simSensors > 0 {
		sensors = simSensors
	}
	seed := simSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	p, err := simulator.NewKafkaProducer(cfg.Kafka)
	if err != nil {
		return err
	}
	defer p.Close()

	logrus.WithFields(logrus.Fields{
		"brokers":  cfg.Kafka.Brokers,
		"interval": interval,
		"sensors":  sensors,
	}).Info("Simulator started")

	return simulator.New(p, simulator.NewGenerator(sensors, seed), interval).Run(ctx)
}
