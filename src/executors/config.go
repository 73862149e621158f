package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	LoopPeriod      time.Duration `envconfig:"LOOP_PERIOD" default:"30s"`
	DefaultOrderQty float64       `envconfig:"DEFAULT_ORDER_QTY" default:"1"`
	SignalLookback  time.Duration `envconfig:"SIGNAL_LOOKBACK" default:"30m"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
