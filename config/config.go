package config

import (
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	postgres_wrapper "github.com/rohitkumar-gith/share-market-simulation/pkg/infra/postgres"
	redis_wrapper "github.com/rohitkumar-gith/share-market-simulation/pkg/infra/redis"
)

type MarketConfig struct {
	PriceFloor        float64       `yaml:"price_floor"`
	PriceTickInterval time.Duration `yaml:"price_tick_interval"`
	MatchTickInterval time.Duration `yaml:"match_tick_interval"`
	BotTickInterval   time.Duration `yaml:"bot_tick_interval"`
	VWAPWindow        int           `yaml:"vwap_window"`
	Convergence       float64       `yaml:"convergence"`
	Noise             float64       `yaml:"noise"`
}

type BotsConfig struct {
	Count           int           `yaml:"count"`
	InitialBalance  float64       `yaml:"initial_balance"`
	MaxOrderQty     int64         `yaml:"max_order_qty"`
	SentimentWindow time.Duration `yaml:"sentiment_window"`
}

type InstrumentConfig struct {
	Symbol      string  `yaml:"symbol"`
	Name        string  `yaml:"name"`
	Price       float64 `yaml:"price"`
	TotalShares int64   `yaml:"total_shares"`
}

type AppConfig struct {
	ServiceName string                           `yaml:"service_name"`
	Market      *MarketConfig                    `yaml:"market"`
	Bots        *BotsConfig                      `yaml:"bots"`
	Instruments []InstrumentConfig               `yaml:"instruments"`
	MarketDB    *postgres_wrapper.PostgresConfig `yaml:"market_db"`
	MarketCache *redis_wrapper.RedisConfig       `yaml:"market_cache"`
}

// Load load config from file and environment variables.
func Load(filePath string) (*AppConfig, error) {
	if len(filePath) == 0 {
		filePath = os.Getenv("CONFIG_FILE")
	}

	fields := []interface{}{
		"func",
		"config.readFromFile",
		"filePath",
		filePath,
	}

	sugar := zap.S().With(fields...)

	sugar.Debug("Load config...")
	zap.S().Debugf("CONFIG_FILE=%v", filePath)

	configBytes, err := os.ReadFile(filePath)
	if err != nil {
		sugar.Error("Failed to load config file")
		return nil, err
	}
	configBytes = []byte(os.ExpandEnv(string(configBytes)))

	cfg := &AppConfig{}

	err = yaml.Unmarshal(configBytes, cfg)
	if err != nil {
		sugar.Error("Failed to parse config file")
		return nil, err
	}

	zap.S().Debugf("config: %+v", cfg)

	return cfg, nil
}
