package execution

import (
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
	logger "github.com/sirupsen/logrus"
)

type Config struct {
	MaxAttemptsPerSignal int     `envconfig:"MAX_ATTEMPTS_PER_SIGNAL" default:"2"`
	MinRetryIntervalSec  int     `envconfig:"MIN_RETRY_INTERVAL_SEC" default:"30"`
	SyncBatchLimit       int     `envconfig:"SYNC_BATCH_LIMIT" default:"100"`
	TrailingArmPct       float64 `envconfig:"TRAILING_ARM_PCT" default:"0.005"`
	TrailingGapPct       float64 `envconfig:"TRAILING_GAP_PCT" default:"0.003"`
	ExitScoreThreshold   float64 `envconfig:"EXIT_SCORE_THRESHOLD" default:"70"`
	MaxHoldMinutes       int     `envconfig:"MAX_HOLD_MINUTES" default:"15"`
}

var (
	config     *Config
	configOnce sync.Once
)

func GetConfig() *Config {
	configOnce.Do(func() {
		config = &Config{}
		if err := envconfig.Process("", config); err != nil {
			logger.WithError(err).Fatal("Failed to load execution config")
		}
	})

	return config
}

// RetryPolicy bounds how long and how often a pending entry order is retried
// before the attempt is abandoned.
type RetryPolicy struct {
	MaxAttemptsPerSignal int
	MinRetryInterval     time.Duration
	BatchLimit           int
}

// ExitPolicy holds the thresholds for the trailing-stop, opposite-signal and
// time-based exit scanners.
type ExitPolicy struct {
	TrailingArmPct     float64
	TrailingGapPct     float64
	ExitScoreThreshold float64
	MaxHoldMinutes     int
	BatchLimit         int
}

func (c *Config) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttemptsPerSignal: c.MaxAttemptsPerSignal,
		MinRetryInterval:     time.Duration(c.MinRetryIntervalSec) * time.Second,
		BatchLimit:           c.SyncBatchLimit,
	}
}

func (c *Config) ExitPolicy() ExitPolicy {
	return ExitPolicy{
		TrailingArmPct:     c.TrailingArmPct,
		TrailingGapPct:     c.TrailingGapPct,
		ExitScoreThreshold: c.ExitScoreThreshold,
		MaxHoldMinutes:     c.MaxHoldMinutes,
		BatchLimit:         c.SyncBatchLimit,
	}
}
