package broker

import (
	"context"
	"fmt"
	"strings"

	logger "github.com/sirupsen/logrus"

	"tradeexecutor/src/security"
)

// Build constructs the configured venue adapter. Variants are chosen once at
// startup; callers only ever see the Broker interface.
func Build() (Broker, error) {
	cfg := GetConfig()

	switch strings.ToLower(cfg.Broker) {
	case "", "paper":
		logger.Info("Using paper broker")
		return NewPaperBroker(), nil

	case "kis":
		appKey, appSecret, err := resolveKISCredentials(cfg)
		if err != nil {
			return nil, err
		}

		client := NewKISClient(appKey, appSecret, cfg.KISAccountNo, cfg.KISProductCode, cfg.KISMode, cfg.KISBaseURL)

		if cfg.EnablePriceStream {
			stream := NewPriceStream(cfg.KISWSBaseURL, appKey, cfg.StreamTickers)
			go stream.Run(context.Background())
			client = client.WithPriceStream(stream)
		}

		logger.WithFields(map[string]interface{}{
			"mode":     cfg.KISMode,
			"base_url": cfg.KISBaseURL,
		}).Info("Using KIS broker")

		return client, nil

	default:
		return nil, fmt.Errorf("broker %q not supported", cfg.Broker)
	}
}

// resolveKISCredentials prefers encrypted credentials and falls back to the
// plaintext variables for local development.
func resolveKISCredentials(cfg Config) (string, string, error) {
	if cfg.KISAppKeyEnc != "" || cfg.KISAppSecretEnc != "" {
		appKey, err := security.DecryptString(cfg.KISAppKeyEnc)
		if err != nil {
			return "", "", fmt.Errorf("decrypt KIS app key: %w", err)
		}
		appSecret, err := security.DecryptString(cfg.KISAppSecretEnc)
		if err != nil {
			return "", "", fmt.Errorf("decrypt KIS app secret: %w", err)
		}
		return appKey, appSecret, nil
	}

	if cfg.KISAppKey == "" || cfg.KISAppSecret == "" {
		return "", "", fmt.Errorf("no KIS credentials configured")
	}

	logger.Warn("Using plaintext KIS credentials from environment")
	return cfg.KISAppKey, cfg.KISAppSecret, nil
}
