package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/xonx4l/orderbook/domain"
	"github.com/xonx4l/orderbook/provider/binance"
)

const (
	envPrefix        = "ORDERBOOK_"
	maxSnapshotLimit = 5000
)

type Config struct {
	// Market in "base_quote" form, e.g. "btc_usdt".
	Symbol string `yaml:"symbol"`

	Binance struct {
		StreamEndpoint   string        `yaml:"stream_endpoint"`
		RESTEndpoint     string        `yaml:"rest_endpoint"`
		UpdateSpeed      string        `yaml:"update_speed"`
		HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	} `yaml:"binance"`

	Sync struct {
		SnapshotLimit   int           `yaml:"snapshot_limit"`
		SnapshotTimeout time.Duration `yaml:"snapshot_timeout"`
		RetryInterval   time.Duration `yaml:"retry_interval"`
		BufferHighWater int           `yaml:"buffer_high_water"`
	} `yaml:"sync"`

	Server struct {
		MetricsAddr string `yaml:"metrics_addr"`
		GRPCAddr    string `yaml:"grpc_addr"`
		MaxDepth    int    `yaml:"max_depth"`
	} `yaml:"server"`

	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`

	DebugMode bool `yaml:"debug_mode"`
}

func Default() Config {
	var c Config
	c.Symbol = "btc_usdt"

	c.Binance.StreamEndpoint = binance.DefaultStreamEndpoint
	c.Binance.RESTEndpoint = binance.DefaultRESTEndpoint
	c.Binance.HandshakeTimeout = 5 * time.Second

	mc := domain.DefaultMaintainerConfig()
	c.Sync.SnapshotLimit = mc.SnapshotLimit
	c.Sync.SnapshotTimeout = mc.SnapshotTimeout
	c.Sync.RetryInterval = mc.RetryInterval
	c.Sync.BufferHighWater = mc.BufferHighWater

	c.Server.MetricsAddr = ":8080"
	c.Server.GRPCAddr = ":50051"
	c.Server.MaxDepth = 1000

	c.Logging.Level = "info"
	return c
}

// Load reads .env from the working directory when present.
func Load() (Config, error) {
	return LoadFrom(".env")
}

// LoadFrom layers the configuration: defaults, then the YAML file named by
// ORDERBOOK_CONFIG, then ORDERBOOK_* variables. envFile only seeds variables
// that are not already set in the environment.
func LoadFrom(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	c := Default()

	if path := os.Getenv(envPrefix + "CONFIG"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := c.applyEnv(); err != nil {
		return Config{}, err
	}

	if c.DebugMode {
		c.Logging.Level = "debug"
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	str("SYMBOL", &c.Symbol)
	str("STREAM_ENDPOINT", &c.Binance.StreamEndpoint)
	str("REST_ENDPOINT", &c.Binance.RESTEndpoint)
	str("UPDATE_SPEED", &c.Binance.UpdateSpeed)
	duration("HANDSHAKE_TIMEOUT", &c.Binance.HandshakeTimeout)

	integer("SNAPSHOT_LIMIT", &c.Sync.SnapshotLimit)
	duration("SNAPSHOT_TIMEOUT", &c.Sync.SnapshotTimeout)
	duration("RETRY_INTERVAL", &c.Sync.RetryInterval)
	integer("BUFFER_HIGH_WATER", &c.Sync.BufferHighWater)

	str("METRICS_ADDR", &c.Server.MetricsAddr)
	str("GRPC_ADDR", &c.Server.GRPCAddr)
	integer("MAX_DEPTH", &c.Server.MaxDepth)

	str("LOG_LEVEL", &c.Logging.Level)
	boolean("LOG_PRETTY", &c.Logging.Pretty)
	boolean("DEBUG", &c.DebugMode)

	return errors.Join(errs...)
}

func (c *Config) Validate() error {
	var errs []error

	if _, err := domain.NewMarketSymbolFromString(c.Symbol); err != nil {
		errs = append(errs, fmt.Errorf("symbol: %w", err))
	}
	if err := checkURL(c.Binance.StreamEndpoint, "ws", "wss"); err != nil {
		errs = append(errs, fmt.Errorf("stream endpoint: %w", err))
	}
	if err := checkURL(c.Binance.RESTEndpoint, "http", "https"); err != nil {
		errs = append(errs, fmt.Errorf("rest endpoint: %w", err))
	}
	if c.Binance.HandshakeTimeout <= 0 {
		errs = append(errs, errors.New("handshake timeout must be positive"))
	}
	if c.Sync.SnapshotLimit <= 0 || c.Sync.SnapshotLimit > maxSnapshotLimit {
		errs = append(errs, fmt.Errorf("snapshot limit must be in [1, %d]", maxSnapshotLimit))
	}
	if c.Sync.SnapshotTimeout <= 0 {
		errs = append(errs, errors.New("snapshot timeout must be positive"))
	}
	if c.Sync.RetryInterval <= 0 {
		errs = append(errs, errors.New("retry interval must be positive"))
	}
	if c.Sync.BufferHighWater < 0 {
		errs = append(errs, errors.New("buffer high water must not be negative"))
	}
	if c.Server.MaxDepth <= 0 || c.Server.MaxDepth > maxSnapshotLimit {
		errs = append(errs, fmt.Errorf("max depth must be in [1, %d]", maxSnapshotLimit))
	}

	return errors.Join(errs...)
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%q: expected %v url", raw, schemes)
}

func (c *Config) MarketSymbol() (*domain.MarketSymbol, error) {
	return domain.NewMarketSymbolFromString(c.Symbol)
}

func (c *Config) MaintainerConfig() domain.MaintainerConfig {
	return domain.MaintainerConfig{
		SnapshotLimit:   c.Sync.SnapshotLimit,
		SnapshotTimeout: c.Sync.SnapshotTimeout,
		RetryInterval:   c.Sync.RetryInterval,
		BufferHighWater: c.Sync.BufferHighWater,
	}
}

func (c *Config) StreamClientConfig() binance.StreamClientConfig {
	sc := binance.DefaultStreamClientConfig()
	sc.Endpoint = c.Binance.StreamEndpoint
	sc.HandshakeTimeout = c.Binance.HandshakeTimeout
	return sc
}
