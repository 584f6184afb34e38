// Package config loads detector configuration from flags, env, or file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"riskscope/internal/model"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	TargetPackageID string

	AlertWebhookURL string
	AlertMinLevel   model.Level
	StoreMinLevel   model.Level
	IndexMinLevel   model.Level

	SandwichBufferCapacity        int
	SandwichMaxCheckpointDistance int64
	FlashLoanMinSwapCount         int
	PriceImpactHighBps            uint64
	PriceImpactCriticalBps        uint64
	OracleMinDeviationBps         uint64

	SinkTimeout  time.Duration
	StrictDecode bool

	PGDSN        string
	ESURL        string
	ESIndex      string
	KafkaBrokers []string
	KafkaTopic   string
	APIListen    string

	Input             string
	Checkpoint        string
	CheckpointEnabled bool
	LogLevel          string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DETECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("alert-min-level", "high")
	v.SetDefault("store-min-level", "low")
	v.SetDefault("index-min-level", "low")
	v.SetDefault("sandwich-buffer-capacity", 100)
	v.SetDefault("sandwich-max-checkpoint-distance", 5)
	v.SetDefault("flash-loan-min-swap-count", 2)
	v.SetDefault("price-impact-high-bps", uint64(1000))
	v.SetDefault("price-impact-critical-bps", uint64(2000))
	v.SetDefault("oracle-min-deviation-bps", uint64(1000))
	v.SetDefault("sink-timeout", 5*time.Second)
	v.SetDefault("strict-decode", false)
	v.SetDefault("es-index", "risk-events")
	v.SetDefault("kafka-topic", "risk-events")
	v.SetDefault("input", "-")
	v.SetDefault("checkpoint", "./data/checkpoint.json")
	v.SetDefault("checkpoint-enabled", true)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	alertMin, err := model.ParseLevel(v.GetString("alert-min-level"))
	if err != nil {
		return Config{}, fmt.Errorf("alert-min-level: %w", err)
	}
	storeMin, err := model.ParseLevel(v.GetString("store-min-level"))
	if err != nil {
		return Config{}, fmt.Errorf("store-min-level: %w", err)
	}
	indexMin, err := model.ParseLevel(v.GetString("index-min-level"))
	if err != nil {
		return Config{}, fmt.Errorf("index-min-level: %w", err)
	}

	cfg := Config{
		TargetPackageID: v.GetString("target-package-id"),

		AlertWebhookURL: v.GetString("alert-webhook-url"),
		AlertMinLevel:   alertMin,
		StoreMinLevel:   storeMin,
		IndexMinLevel:   indexMin,

		SandwichBufferCapacity:        v.GetInt("sandwich-buffer-capacity"),
		SandwichMaxCheckpointDistance: v.GetInt64("sandwich-max-checkpoint-distance"),
		FlashLoanMinSwapCount:         v.GetInt("flash-loan-min-swap-count"),
		PriceImpactHighBps:            v.GetUint64("price-impact-high-bps"),
		PriceImpactCriticalBps:        v.GetUint64("price-impact-critical-bps"),
		OracleMinDeviationBps:         v.GetUint64("oracle-min-deviation-bps"),

		SinkTimeout:  v.GetDuration("sink-timeout"),
		StrictDecode: v.GetBool("strict-decode"),

		PGDSN:        v.GetString("pg-dsn"),
		ESURL:        v.GetString("es-url"),
		ESIndex:      v.GetString("es-index"),
		KafkaBrokers: getStringSlice(v, "kafka-brokers"),
		KafkaTopic:   v.GetString("kafka-topic"),
		APIListen:    v.GetString("api-listen"),

		Input:             v.GetString("input"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		LogLevel:          v.GetString("log-level"),
	}

	if cfg.TargetPackageID == "" {
		return Config{}, fmt.Errorf("target-package-id is required")
	}

	return cfg, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
