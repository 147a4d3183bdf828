package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from file with environment variable overrides.
// If configFile is empty, only defaults and environment overrides apply.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with sane defaults for local/dev use
// (in-memory store, local-only event bus, no remote cache).
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Type:      "memory",
			KeyPrefix: "balancer",
			Etcd: EtcdConfig{
				Timeout: 5 * time.Second,
			},
		},
		Cache: CacheConfig{
			LocalTTL: 30 * time.Second,
			Redis: RedisConfig{
				Timeout: 3 * time.Second,
			},
		},
		EventBus: EventBusConfig{
			Type:      "local",
			KeyPrefix: "balancer/events",
		},
		Balancer: BalancerConfig{
			DefaultWheelSize:   1000,
			DefaultHashOn:      "none",
			DefaultLiteralPort: 80,
			HealthCheck: HealthCheckConfig{
				Active: ActiveHealthCheckConfig{
					Enabled:            false,
					Type:               "http",
					Path:               "/",
					Interval:           10 * time.Second,
					Timeout:            2 * time.Second,
					HealthyThreshold:   2,
					UnhealthyThreshold: 3,
				},
				Passive: PassiveHealthCheckConfig{
					Enabled:             true,
					ConsecutiveFailures: 3,
					FailureStatusCodes:  []int{500, 502, 503, 504},
				},
			},
		},
		DNS: DNSConfig{
			CacheTTL: 30 * time.Second,
			Timeout:  2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "balancercore",
			Subsystem: "upstream",
		},
		Tracing: TracingConfig{
			Enabled: false,
		},
	}
}

func loadFromFile(cfg *Config, filename string) error {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return fmt.Errorf("config file does not exist: %s", filename)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return nil
}

func loadFromEnv(cfg *Config) error {
	if storeType := os.Getenv("BALANCER_STORE_TYPE"); storeType != "" {
		cfg.Store.Type = storeType
	}
	if endpoints := os.Getenv("BALANCER_ETCD_ENDPOINTS"); endpoints != "" {
		cfg.Store.Etcd.Endpoints = strings.Split(endpoints, ",")
	}
	if username := os.Getenv("BALANCER_ETCD_USERNAME"); username != "" {
		cfg.Store.Etcd.Username = username
	}
	if password := os.Getenv("BALANCER_ETCD_PASSWORD"); password != "" {
		cfg.Store.Etcd.Password = password
	}
	if addr := os.Getenv("BALANCER_REDIS_ADDRESS"); addr != "" {
		cfg.Cache.Redis.Address = addr
		cfg.Cache.UseRemote = true
	}
	if busType := os.Getenv("BALANCER_EVENTBUS_TYPE"); busType != "" {
		cfg.EventBus.Type = busType
	}
	if logLevel := os.Getenv("BALANCER_LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	return nil
}

func validate(cfg *Config) error {
	switch cfg.Store.Type {
	case "etcd":
		if len(cfg.Store.Etcd.Endpoints) == 0 {
			return fmt.Errorf("etcd endpoints cannot be empty when store type is etcd")
		}
	case "memory":
		// no external dependency to validate
	default:
		return fmt.Errorf("invalid store type: %s", cfg.Store.Type)
	}

	switch cfg.EventBus.Type {
	case "etcd", "local":
	default:
		return fmt.Errorf("invalid event bus type: %s", cfg.EventBus.Type)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}

	if cfg.Balancer.DefaultWheelSize <= 0 {
		return fmt.Errorf("balancer default wheel size must be positive")
	}

	return nil
}
