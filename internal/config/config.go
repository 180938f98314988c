// Path: internal/config/config.go
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Buffer   BufferConfig
	Realtime RealtimeConfig
}

// ServerConfig holds the HTTP/WebSocket server settings.
type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// DatabaseConfig holds the database connection settings.
type DatabaseConfig struct {
	URI               string `mapstructure:"uri"`
	Name              string `mapstructure:"name"`
	DeviceCollection  string `mapstructure:"device_collection"`
	AccessCollection  string `mapstructure:"access_collection"`
	SessionCollection string `mapstructure:"session_collection"`
}

// BufferConfig holds settings for the telemetry batching buffer.
type BufferConfig struct {
	BatchSize            int    `mapstructure:"batch_size"`
	FlushIntervalSeconds int    `mapstructure:"flush_interval_seconds"`
	HistoryLimit         int    `mapstructure:"history_limit"`
	MirrorPath           string `mapstructure:"mirror_path"`
}

// FlushInterval returns the periodic flush interval as a duration.
func (c BufferConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSeconds) * time.Second
}

// RealtimeConfig holds settings for the WebSocket channels.
type RealtimeConfig struct {
	MessagesPerSecond int `mapstructure:"messages_per_second"`
	BurstLimit        int `mapstructure:"burst_limit"`
	ReadBufferSize    int `mapstructure:"read_buffer_size"`
	WriteBufferSize   int `mapstructure:"write_buffer_size"`
}

// Load loads the configuration from file and environment variables.
func Load() (*Config, error) {
	// Set default values
	viper.SetDefault("SERVER.PORT", "8080")
	viper.SetDefault("DATABASE.NAME", "esp-hub")
	viper.SetDefault("DATABASE.DEVICE_COLLECTION", "devices")
	viper.SetDefault("DATABASE.ACCESS_COLLECTION", "device_access")
	viper.SetDefault("DATABASE.SESSION_COLLECTION", "sessions")
	viper.SetDefault("BUFFER.BATCH_SIZE", 50)
	viper.SetDefault("BUFFER.FLUSH_INTERVAL_SECONDS", 300)
	viper.SetDefault("BUFFER.HISTORY_LIMIT", 10)
	viper.SetDefault("BUFFER.MIRROR_PATH", "sensor_data_buffer.json")
	viper.SetDefault("REALTIME.MESSAGES_PER_SECOND", 20)
	viper.SetDefault("REALTIME.BURST_LIMIT", 40)
	viper.SetDefault("REALTIME.READ_BUFFER_SIZE", 4096)
	viper.SetDefault("REALTIME.WRITE_BUFFER_SIZE", 4096)

	// Load from config file
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err // Only return error if it's not a "file not found" error
		}
	}

	// Load from environment variables
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
