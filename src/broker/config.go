package broker

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Broker string `envconfig:"BROKER" default:"paper"` // paper | kis

	KISMode         string `envconfig:"KIS_MODE" default:"paper"` // paper | live
	KISBaseURL      string `envconfig:"KIS_BASE_URL" default:""`
	KISWSBaseURL    string `envconfig:"KIS_WS_BASE_URL" default:""`
	KISAppKey       string `envconfig:"KIS_APP_KEY" default:""`
	KISAppSecret    string `envconfig:"KIS_APP_SECRET" default:""`
	KISAppKeyEnc    string `envconfig:"KIS_APP_KEY_ENC" default:""`
	KISAppSecretEnc string `envconfig:"KIS_APP_SECRET_ENC" default:""`
	KISAccountNo    string `envconfig:"KIS_ACCOUNT_NO" default:""`
	KISProductCode  string `envconfig:"KIS_PRODUCT_CODE" default:"01"`

	EnablePriceStream bool     `envconfig:"ENABLE_PRICE_STREAM" default:"false"`
	StreamTickers     []string `envconfig:"STREAM_TICKERS" default:""`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
