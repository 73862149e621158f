package risk

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	KillSwitch             bool    `envconfig:"RISK_KILL_SWITCH" default:"false"`
	MaxLossPerTrade        float64 `envconfig:"RISK_MAX_LOSS_PER_TRADE" default:"100000"`
	DailyLossLimit         float64 `envconfig:"RISK_DAILY_LOSS_LIMIT" default:"500000"`
	MaxExposurePerSymbol   float64 `envconfig:"RISK_MAX_EXPOSURE_PER_SYMBOL" default:"1000000"`
	MaxConcurrentPositions int     `envconfig:"RISK_MAX_CONCURRENT_POSITIONS" default:"3"`
	LossStreakCooldown     int     `envconfig:"RISK_LOSS_STREAK_COOLDOWN" default:"3"`
	CooldownMinutes        int     `envconfig:"RISK_COOLDOWN_MINUTES" default:"60"`
	AssumedStopLossPct     float64 `envconfig:"RISK_ASSUMED_STOP_LOSS_PCT" default:"0.1"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// Params converts the environment configuration into gate parameters.
func (c Config) Params() Params {
	return Params{
		KillSwitch:             c.KillSwitch,
		MaxLossPerTrade:        decimal.NewFromFloat(c.MaxLossPerTrade),
		DailyLossLimit:         decimal.NewFromFloat(c.DailyLossLimit),
		MaxExposurePerSymbol:   decimal.NewFromFloat(c.MaxExposurePerSymbol),
		MaxConcurrentPositions: c.MaxConcurrentPositions,
		LossStreakCooldown:     c.LossStreakCooldown,
		CooldownMinutes:        c.CooldownMinutes,
		AssumedStopLossPct:     decimal.NewFromFloat(c.AssumedStopLossPct),
	}
}
