package config

import "time"

type Config struct {
	App            AppConfig            `mapstructure:"app"`
	HTTP           HTTPConfig           `mapstructure:"http"`
	GRPC           GRPCConfig           `mapstructure:"grpc"`
	OCPP           OCPPConfig           `mapstructure:"ocpp"`
	CSMS           CSMSConfig           `mapstructure:"csms"`
	Simulator      SimulatorConfig      `mapstructure:"simulator"`
	Fleet          FleetConfig          `mapstructure:"fleet"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Queue          QueueConfig          `mapstructure:"queue"`
	Auth           AuthConfig           `mapstructure:"auth"`
	Vault          VaultConfig          `mapstructure:"vault"`
	Alerts         AlertsConfig         `mapstructure:"alerts"`
	Security       SecurityConfig       `mapstructure:"security"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Metrics        MetricsConfig        `mapstructure:"metrics"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
	CORS           CORSConfig           `mapstructure:"cors"`
	RateLimiting   RateLimitingConfig   `mapstructure:"rate_limiting"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// HTTPConfig is the simulator's control-plane listener.
type HTTPConfig struct {
	Port           int           `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

type GRPCConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// OCPPConfig is the central system's WebSocket listener.
type OCPPConfig struct {
	Port              int           `mapstructure:"port"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	CallTimeout       time.Duration `mapstructure:"call_timeout"`
	ReplaceExisting   bool          `mapstructure:"replace_existing"`
	BlockedTags       []string      `mapstructure:"blocked_tags"`
}

// CSMSConfig is the central system's admin REST surface.
type CSMSConfig struct {
	HTTPPort     int           `mapstructure:"http_port"`
	AuthCacheTTL time.Duration `mapstructure:"auth_cache_ttl"`
}

// SimulatorConfig tells the fleet binary where its central system lives.
type SimulatorConfig struct {
	CSMSURL        string        `mapstructure:"csms_url"`
	CSMSAdminURL   string        `mapstructure:"csms_admin_url"`
	CSMSAdminToken string        `mapstructure:"csms_admin_token"`
	Stations       int           `mapstructure:"stations"`
	Profile        string        `mapstructure:"profile"`
	Voltage        float64       `mapstructure:"voltage"`
	CallTimeout    time.Duration `mapstructure:"call_timeout"`
}

type FleetConfig struct {
	InitialPrice   float64       `mapstructure:"initial_price"`
	ScenarioPath   string        `mapstructure:"scenario_path"`
	FeedInterval   time.Duration `mapstructure:"feed_interval"`
	HistoryEnabled bool          `mapstructure:"history_enabled"`
}

type DatabaseConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

type QueueConfig struct {
	Provider string `mapstructure:"provider"`
	URL      string `mapstructure:"url"`
}

// AuthConfig guards mutating control-plane routes when enabled. API keys
// are stored as bcrypt hashes; a valid key buys a short-lived HS256 token.
type AuthConfig struct {
	Enabled   bool           `mapstructure:"enabled"`
	JWTSecret string         `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration  `mapstructure:"token_ttl"`
	Issuer    string         `mapstructure:"issuer"`
	APIKeys   []APIKeyConfig `mapstructure:"api_keys"`
}

type APIKeyConfig struct {
	Name string `mapstructure:"name"`
	Hash string `mapstructure:"hash"`
}

type VaultConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
	Token   string `mapstructure:"token"`
}

type AlertsConfig struct {
	Provider    string   `mapstructure:"provider"`
	SendGridKey string   `mapstructure:"sendgrid_key"`
	SMTPAddr    string   `mapstructure:"smtp_addr"`
	From        string   `mapstructure:"from"`
	To          []string `mapstructure:"to"`
}

// SecurityConfig tunes the CSMS security monitor.
type SecurityConfig struct {
	RingSize  int    `mapstructure:"ring_size"`
	RulesPath string `mapstructure:"rules_path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type CORSConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
	ExposeHeaders  []string `mapstructure:"expose_headers"`
	MaxAge         int      `mapstructure:"max_age"`
	Credentials    bool     `mapstructure:"credentials"`
}

type RateLimitingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold float64       `mapstructure:"failure_threshold"`
}
