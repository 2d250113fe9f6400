// Package config loads cartctl settings from a YAML file with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/text/currency"
	"gopkg.in/yaml.v3"
)

const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Cart    CartConfig    `yaml:"cart"`
	API     APIConfig     `yaml:"api"`
	Images  ImagesConfig  `yaml:"images"`
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig selects where the cart slot lives.
type StorageConfig struct {
	Backend     string `yaml:"backend"` // memory, file, postgres, redis
	Origin      string `yaml:"origin"`
	Dir         string `yaml:"dir"`
	PostgresDSN string `yaml:"postgres_dsn"`
	RedisURL    string `yaml:"redis_url"`
}

type CartConfig struct {
	Key      string `yaml:"key"`
	Currency string `yaml:"currency"`
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type ImagesConfig struct {
	BaseURL string `yaml:"base_url"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func Default() Config {
	return Config{
		Storage: StorageConfig{
			Backend: BackendFile,
			Origin:  "electronic",
			Dir:     defaultDir(),
		},
		Cart: CartConfig{
			Key:      "electronic_cart",
			Currency: "RUB",
		},
		API: APIConfig{
			BaseURL: "http://localhost:8082",
			Timeout: 10 * time.Second,
		},
		Images: ImagesConfig{
			BaseURL: "https://electronic.s3.regru.cloud/products",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults and applies CART_* environment
// overrides. An empty path means defaults plus environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("os.ReadFile: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("yaml.Unmarshal: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, fmt.Errorf("cfg.applyEnv: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"CART_STORAGE_BACKEND": &c.Storage.Backend,
		"CART_STORAGE_ORIGIN":  &c.Storage.Origin,
		"CART_STORAGE_DIR":     &c.Storage.Dir,
		"CART_POSTGRES_DSN":    &c.Storage.PostgresDSN,
		"CART_REDIS_URL":       &c.Storage.RedisURL,
		"CART_KEY":             &c.Cart.Key,
		"CART_CURRENCY":        &c.Cart.Currency,
		"CART_API_URL":         &c.API.BaseURL,
		"CART_IMAGES_URL":      &c.Images.BaseURL,
		"CART_LOG_LEVEL":       &c.Logging.Level,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("CART_API_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CART_API_TIMEOUT[%s] is not a duration: %w", v, err)
		}
		c.API.Timeout = d
	}

	if v, ok := lookup("CART_LOG_DEVELOPMENT"); ok && v != "" {
		c.Logging.Development = v == "true" || v == "1"
	}

	return nil
}

func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage.dir is empty")
		}
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is empty")
		}
	case BackendRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("storage.redis_url is empty")
		}
	default:
		return fmt.Errorf("storage.backend[%s] is not supported", c.Storage.Backend)
	}

	if c.Storage.Origin == "" {
		return fmt.Errorf("storage.origin is empty")
	}
	if c.Cart.Key == "" {
		return fmt.Errorf("cart.key is empty")
	}
	if _, err := c.CurrencyUnit(); err != nil {
		return err
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}

	return nil
}

func (c Config) CurrencyUnit() (currency.Unit, error) {
	unit, err := currency.ParseISO(strings.ToUpper(c.Cart.Currency))
	if err != nil {
		return currency.Unit{}, fmt.Errorf("cart.currency[%s] is not valid: %w", c.Cart.Currency, err)
	}
	return unit, nil
}

func defaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".cartctl"
	}
	return dir + string(os.PathSeparator) + "cartctl"
}
