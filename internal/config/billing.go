package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingConfig tunes the royalty automation run. Loaded from billing.yml and
// hot-reloaded, so HQ can adjust reminder windows without a redeploy.
type BillingConfig struct {
	// DueSoonWindowDays is how far ahead of the due date reminders fire.
	DueSoonWindowDays int `mapstructure:"dueSoonWindowDays"`
	// WeeklySummaryWeekday is the day the HQ overdue summary goes out
	// (time.Weekday numbering, 1 = Monday).
	WeeklySummaryWeekday int `mapstructure:"weeklySummaryWeekday"`
	// GenerateBatchSize caps invoices generated per automation run.
	GenerateBatchSize int `mapstructure:"generateBatchSize"`
	// AgingBuckets group overdue invoices in the weekly summary.
	AgingBuckets []AgingBucket `mapstructure:"agingBuckets"`
}

type AgingBucket struct {
	Label   string `mapstructure:"label"`
	MinDays int    `mapstructure:"minDays"`
	MaxDays *int   `mapstructure:"maxDays"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		DueSoonWindowDays:    7,
		WeeklySummaryWeekday: 1,
		GenerateBatchSize:    100,
		AgingBuckets: []AgingBucket{
			{Label: "0-30", MinDays: 0, MaxDays: intPtr(30)},
			{Label: "31-60", MinDays: 31, MaxDays: intPtr(60)},
			{Label: "60+", MinDays: 61, MaxDays: nil},
		},
	}
}

func intPtr(v int) *int { return &v }

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewBillingConfigHolder(log *zap.Logger) (*BillingConfigHolder, error) {
	log = log.Named("billing.config")
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/campforge/config")
	v.AddConfigPath("/etc/campforge")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CAMPFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultBillingConfig()
		v.SetDefault("billing.dueSoonWindowDays", defaults.DueSoonWindowDays)
		v.SetDefault("billing.weeklySummaryWeekday", defaults.WeeklySummaryWeekday)
		v.SetDefault("billing.generateBatchSize", defaults.GenerateBatchSize)
		v.SetDefault("billing.agingBuckets", defaults.AgingBuckets)
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	cfg = withBillingDefaults(cfg)
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Warn("reload failed", zap.Error(err))
			return
		}
		updated = withBillingDefaults(updated)
		if err := validateBillingConfig(updated); err != nil {
			log.Warn("invalid config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func withBillingDefaults(cfg BillingConfig) BillingConfig {
	defaults := DefaultBillingConfig()
	if cfg.DueSoonWindowDays <= 0 {
		cfg.DueSoonWindowDays = defaults.DueSoonWindowDays
	}
	if cfg.WeeklySummaryWeekday < 0 || cfg.WeeklySummaryWeekday > 6 {
		cfg.WeeklySummaryWeekday = defaults.WeeklySummaryWeekday
	}
	if cfg.GenerateBatchSize <= 0 {
		cfg.GenerateBatchSize = defaults.GenerateBatchSize
	}
	if len(cfg.AgingBuckets) == 0 {
		cfg.AgingBuckets = defaults.AgingBuckets
	}
	return cfg
}

func validateBillingConfig(cfg BillingConfig) error {
	if len(cfg.AgingBuckets) == 0 {
		return errors.New("billing.agingBuckets cannot be empty")
	}
	if cfg.DueSoonWindowDays <= 0 {
		return errors.New("billing.dueSoonWindowDays must be positive")
	}
	return nil
}
