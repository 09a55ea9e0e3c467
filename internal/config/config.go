package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration struct
type Config struct {
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Connection ConnectionConfig `mapstructure:"connection"`
	Session    SessionConfig    `mapstructure:"session"`
	Liveness   LivenessConfig   `mapstructure:"liveness"`
	API        APIConfig        `mapstructure:"api"`
}

// MonitorConfig names the root peer and how its endpoints are reached
type MonitorConfig struct {
	Root      string          `mapstructure:"root"`
	Secure    bool            `mapstructure:"secure"`
	Endpoints EndpointsConfig `mapstructure:"endpoints"`
}

// EndpointsConfig holds the per-peer channel paths
type EndpointsConfig struct {
	Status            string `mapstructure:"status"`
	Render            string `mapstructure:"render"`
	InteractionLogin  string `mapstructure:"interactionLogin"`
	InteractionStream string `mapstructure:"interactionStream"`
}

// ConnectionConfig holds dial and queue settings
type ConnectionConfig struct {
	DialTimeout   time.Duration `mapstructure:"dialTimeout"`
	RetryAttempts uint          `mapstructure:"retryAttempts"`
	RetryDelay    time.Duration `mapstructure:"retryDelay"`
	RenderQueue   int           `mapstructure:"renderQueue"`
}

// SessionConfig holds login and heartbeat settings
type SessionConfig struct {
	Heartbeat    time.Duration `mapstructure:"heartbeat"`
	StorePath    string        `mapstructure:"storePath"`
	LoginTimeout time.Duration `mapstructure:"loginTimeout"`
}

// LivenessConfig holds the entity eviction window
type LivenessConfig struct {
	Window time.Duration `mapstructure:"window"`
}

// APIConfig holds listen addresses; an empty address disables that server
type APIConfig struct {
	REST string `mapstructure:"rest"`
	GRPC string `mapstructure:"grpc"`
}

// Load reads configuration from file and environment
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("monitor.root", "localhost:8000")
	v.SetDefault("monitor.secure", false)
	v.SetDefault("monitor.endpoints.status", "/status")
	v.SetDefault("monitor.endpoints.render", "/render")
	v.SetDefault("monitor.endpoints.interactionLogin", "/interactions/login")
	v.SetDefault("monitor.endpoints.interactionStream", "/interactions/stream")
	v.SetDefault("connection.dialTimeout", 5*time.Second)
	v.SetDefault("connection.retryAttempts", 1)
	v.SetDefault("connection.retryDelay", time.Second)
	v.SetDefault("connection.renderQueue", 256)
	v.SetDefault("session.heartbeat", 5*time.Second)
	v.SetDefault("session.storePath", "./data/session")
	v.SetDefault("session.loginTimeout", 5*time.Second)
	v.SetDefault("liveness.window", 3*time.Second)
	v.SetDefault("api.rest", "127.0.0.1:8090")
	v.SetDefault("api.grpc", "127.0.0.1:8091")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/configs")
		v.AddConfigPath(".")
	}

	// EFFLUX_MONITOR_ROOT overrides monitor.root, and so on.
	v.SetEnvPrefix("efflux")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
