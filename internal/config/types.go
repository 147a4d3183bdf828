package config

import "time"

// Config is the top-level configuration for the balancer core: where the
// DAO, cache, event bus and health checker get their settings from.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Cache     CacheConfig     `yaml:"cache"`
	EventBus  EventBusConfig  `yaml:"event_bus"`
	Balancer  BalancerConfig  `yaml:"balancer"`
	DNS       DNSConfig       `yaml:"dns"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// StoreConfig selects and configures the DAO backing (etcd, or memory for
// local/dev use).
type StoreConfig struct {
	Type      string     `yaml:"type"` // "etcd" | "memory"
	KeyPrefix string     `yaml:"key_prefix"`
	Etcd      EtcdConfig `yaml:"etcd"`
}

// EtcdConfig represents etcd connection settings, shared by the store and
// the event bus (both watch the same cluster).
type EtcdConfig struct {
	Endpoints []string      `yaml:"endpoints"`
	Timeout   time.Duration `yaml:"timeout"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
}

// CacheConfig configures the local+remote tiered cache.
type CacheConfig struct {
	LocalTTL  time.Duration `yaml:"local_ttl"`
	Redis     RedisConfig   `yaml:"redis"`
	UseRemote bool          `yaml:"use_remote"`
}

// RedisConfig represents Redis connection settings for the cache's remote tier.
type RedisConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Timeout  time.Duration `yaml:"timeout"`
}

// EventBusConfig selects the cross-worker event bus implementation.
type EventBusConfig struct {
	Type      string `yaml:"type"` // "etcd" | "local"
	KeyPrefix string `yaml:"key_prefix"`
}

// BalancerConfig carries defaults applied when an upstream doesn't specify
// its own values.
type BalancerConfig struct {
	DefaultWheelSize int               `yaml:"default_wheel_size"`
	DefaultHashOn    string            `yaml:"default_hash_on"`
	HealthCheck      HealthCheckConfig `yaml:"health_check"`
	DefaultLiteralPort int             `yaml:"default_literal_port"`
}

// HealthCheckConfig is the default active+passive health-check configuration
// applied to upstreams that don't override it.
type HealthCheckConfig struct {
	Active  ActiveHealthCheckConfig  `yaml:"active"`
	Passive PassiveHealthCheckConfig `yaml:"passive"`
}

// ActiveHealthCheckConfig represents active probe settings.
type ActiveHealthCheckConfig struct {
	Enabled            bool          `yaml:"enabled"`
	Type               string        `yaml:"type"` // "http" | "tcp"
	Path               string        `yaml:"path"`
	Interval           time.Duration `yaml:"interval"`
	Timeout            time.Duration `yaml:"timeout"`
	HealthyThreshold   int           `yaml:"healthy_threshold"`
	UnhealthyThreshold int           `yaml:"unhealthy_threshold"`
}

// PassiveHealthCheckConfig represents passive-signal settings.
type PassiveHealthCheckConfig struct {
	Enabled             bool  `yaml:"enabled"`
	ConsecutiveFailures int   `yaml:"consecutive_failures"`
	FailureStatusCodes  []int `yaml:"failure_status_codes"`
}

// DNSConfig configures the fallback DNS client used for plain-DNS resolution
// and by the ring balancer internally.
type DNSConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
	Timeout  time.Duration `yaml:"timeout"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Namespace  string           `yaml:"namespace"`
	Subsystem  string           `yaml:"subsystem"`
}

// TracingConfig represents tracing configuration.
type TracingConfig struct {
	Enabled bool         `yaml:"enabled"`
	Jaeger  JaegerConfig `yaml:"jaeger"`
}

// JaegerConfig represents Jaeger exporter configuration.
type JaegerConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}
