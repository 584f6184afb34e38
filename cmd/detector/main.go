package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"riskscope/internal/action"
	"riskscope/internal/api"
	"riskscope/internal/config"
	"riskscope/internal/decode"
	"riskscope/internal/detect"
	"riskscope/internal/ingest"
	"riskscope/internal/metrics"
	"riskscope/internal/model"
	"riskscope/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "detector",
		Short:        "DeFi attack detection pipeline",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the detector over a checkpoint transaction stream",
		RunE:  runDetector,
	}

	runCmd.Flags().String("target-package-id", "", "package ID whose transactions are analyzed")
	runCmd.Flags().String("alert-webhook-url", "", "HTTP endpoint for the alert sink")
	runCmd.Flags().String("alert-min-level", "high", "minimum level forwarded to the alert sink")
	runCmd.Flags().String("store-min-level", "low", "minimum level persisted")
	runCmd.Flags().String("index-min-level", "low", "minimum level indexed for search")
	runCmd.Flags().Int("sandwich-buffer-capacity", 100, "max sandwich patterns buffered")
	runCmd.Flags().Int64("sandwich-max-checkpoint-distance", 5, "sandwich eviction horizon in checkpoints")
	runCmd.Flags().Int("flash-loan-min-swap-count", 2, "minimum swaps before a flash loan is scored")
	runCmd.Flags().Uint64("price-impact-high-bps", 1000, "high price impact threshold")
	runCmd.Flags().Uint64("price-impact-critical-bps", 2000, "critical price impact threshold")
	runCmd.Flags().Uint64("oracle-min-deviation-bps", 1000, "minimum oracle deviation to score")
	runCmd.Flags().Duration("sink-timeout", 5*time.Second, "per-sink dispatch deadline")
	runCmd.Flags().Bool("strict-decode", false, "surface malformed payloads of recognized events")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN for the store sink")
	runCmd.Flags().String("es-url", "", "Elasticsearch URL for the index sink")
	runCmd.Flags().String("es-index", "risk-events", "Elasticsearch index name")
	runCmd.Flags().StringSlice("kafka-brokers", nil, "Kafka brokers for the firehose sink (comma-separated)")
	runCmd.Flags().String("kafka-topic", "risk-events", "Kafka topic for the firehose sink")
	runCmd.Flags().String("api-listen", "", "ops API listen address (empty disables)")
	runCmd.Flags().String("input", "-", "transaction stream JSONL path, - for stdin")
	runCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	runCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runDetector(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	counters := metrics.New()
	decoder := decode.NewDecoder(cfg.StrictDecode, logger, counters)

	pipeline := detect.NewPipeline(cfg.TargetPackageID, []detect.Analyzer{
		detect.NewFlashLoanAnalyzer(detect.FlashLoanConfig{
			MinSwapCount:      cfg.FlashLoanMinSwapCount,
			HighImpactBps:     cfg.PriceImpactHighBps,
			CriticalImpactBps: cfg.PriceImpactCriticalBps,
		}, logger),
		detect.NewPriceAnalyzer(detect.PriceConfig{
			HighImpactBps:     cfg.PriceImpactHighBps,
			CriticalImpactBps: cfg.PriceImpactCriticalBps,
		}, logger),
		detect.NewSandwichAnalyzer(detect.SandwichConfig{
			BufferCapacity:        cfg.SandwichBufferCapacity,
			MaxCheckpointDistance: cfg.SandwichMaxCheckpointDistance,
		}, logger),
		detect.NewOracleAnalyzer(detect.OracleConfig{
			MinDeviationBps: cfg.OracleMinDeviationBps,
		}, logger),
	}, logger, counters)

	manager := action.NewManager(cfg.SinkTimeout, logger, counters)
	manager.Register(action.NewLogSink(logger), model.LevelLow)

	if cfg.AlertWebhookURL != "" {
		manager.Register(action.NewAlertSink(cfg.AlertWebhookURL, nil), cfg.AlertMinLevel)
	}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		manager.Register(action.NewStoreSink(store), cfg.StoreMinLevel)
	}
	if cfg.ESURL != "" {
		indexSink, err := action.NewIndexSink(cfg.ESURL, cfg.ESIndex)
		if err != nil {
			return fmt.Errorf("connect elasticsearch: %w", err)
		}
		manager.Register(indexSink, cfg.IndexMinLevel)
	}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := action.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, nil)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer kafkaSink.Close()
		manager.Register(kafkaSink, model.LevelLow)
	}
	if cfg.APIListen != "" {
		hub := api.NewHub(logger)
		go hub.Run()
		server := api.NewServer(counters, hub, logger)
		manager.Register(hub, model.LevelLow)
		manager.Register(server, model.LevelLow)
		go func() {
			if err := server.Serve(ctx, cfg.APIListen); err != nil {
				logger.Warn("ops api stopped", zap.Error(err))
			}
		}()
	}

	input, closeInput, err := openInput(cfg.Input)
	if err != nil {
		return err
	}
	defer closeInput()

	checkpoint := ingest.NewCheckpointStore(cfg.Checkpoint, cfg.CheckpointEnabled)
	runner := ingest.NewRunner(decoder, pipeline, manager, checkpoint, logger)

	logger.Info("detector start",
		zap.String("target_package_id", cfg.TargetPackageID),
		zap.String("input", cfg.Input),
		zap.Bool("strict_decode", cfg.StrictDecode),
		zap.Bool("alert_sink", cfg.AlertWebhookURL != ""),
		zap.Bool("store_sink", cfg.PGDSN != ""),
		zap.Bool("index_sink", cfg.ESURL != ""),
		zap.Bool("kafka_sink", len(cfg.KafkaBrokers) > 0),
		zap.String("api_listen", cfg.APIListen),
	)

	return runner.Run(ctx, input)
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return file, func() { file.Close() }, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
