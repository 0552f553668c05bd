package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Engines  []EngineConfig
	Timer    TimerConfig
	Metrics  MetricsConfig
	Auth     AuthConfig
	LogLevel string
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RateLimitRPS int
}

// EngineConfig describes one engine hosted by the daemon.
// A MaxDuration of zero means the engine runs until quiescent.
type EngineConfig struct {
	Name        string
	MaxDuration time.Duration
}

type TimerConfig struct {
	// Granularity bounds how long the timer service sleeps when no
	// timer is running.
	Granularity time.Duration
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	APIKeys   []string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/statefultask")

	// Set defaults
	setDefaults()

	// Environment variable binding
	viper.SetEnvPrefix("STATEFULTASK")
	viper.AutomaticEnv()

	// Read config file (optional)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if len(cfg.Engines) == 0 {
		cfg.Engines = defaultEngines()
	}

	return &cfg, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readtimeout", 30*time.Second)
	viper.SetDefault("server.writetimeout", 30*time.Second)
	viper.SetDefault("server.idletimeout", 120*time.Second)
	viper.SetDefault("server.ratelimitrps", 1000)

	// Timer defaults
	viper.SetDefault("timer.granularity", 100*time.Millisecond)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	// Auth defaults
	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.jwtsecret", "")
	viper.SetDefault("auth.apikeys", []string{})

	// Logging defaults
	viper.SetDefault("loglevel", "info")
}

// defaultEngines is the engine set used when the config file names none:
// one unbudgeted engine for long computations and one frame-rate engine
// for tasks that sleep on timers.
func defaultEngines() []EngineConfig {
	return []EngineConfig{
		{Name: "main", MaxDuration: 0},
		{Name: "frame", MaxDuration: 10 * time.Millisecond},
	}
}
