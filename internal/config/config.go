// Package config loads application configuration from a YAML file and
// environment variables via viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cinephage/cinephage/internal/logger"
	"github.com/cinephage/cinephage/internal/monitor"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Log        logger.Config    `mapstructure:"log"`
	Search     SearchConfig     `mapstructure:"search"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Download   DownloadConfig   `mapstructure:"download"`
	Metadata   MetadataConfig   `mapstructure:"metadata"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// SearchConfig tunes the search orchestrator.
type SearchConfig struct {
	MaxConcurrentIndexers int           `mapstructure:"max_concurrent_indexers"`
	CacheTTL              time.Duration `mapstructure:"cache_ttl"`
	EmptyCacheTTL         time.Duration `mapstructure:"empty_cache_ttl"`
	IndexerRateLimit      int           `mapstructure:"indexer_rate_limit"`
	IndexerRateBurst      int           `mapstructure:"indexer_rate_burst"`
	HostRateLimit         int           `mapstructure:"host_rate_limit"`
	HostRateBurst         int           `mapstructure:"host_rate_burst"`
}

// MonitoringConfig holds the scheduled task intervals.
type MonitoringConfig struct {
	MissingInterval      time.Duration `mapstructure:"missing_interval"`
	UpgradeInterval      time.Duration `mapstructure:"upgrade_interval"`
	CutoffUnmetInterval  time.Duration `mapstructure:"cutoff_unmet_interval"`
	NewEpisodeInterval   time.Duration `mapstructure:"new_episode_interval"`
	PendingInterval      time.Duration `mapstructure:"pending_interval"`
	TaskHistoryRetention time.Duration `mapstructure:"task_history_retention"`
}

// TaskConfig converts the section into the scheduler's config type.
func (c MonitoringConfig) TaskConfig() monitor.Config {
	return monitor.Config{
		MissingInterval:      c.MissingInterval,
		UpgradeInterval:      c.UpgradeInterval,
		CutoffUnmetInterval:  c.CutoffUnmetInterval,
		NewEpisodeInterval:   c.NewEpisodeInterval,
		PendingInterval:      c.PendingInterval,
		TaskHistoryRetention: c.TaskHistoryRetention,
	}
}

// ClientConfig holds download client connection settings.
type ClientConfig struct {
	Type     string `mapstructure:"type"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	UseSSL   bool   `mapstructure:"use_ssl"`
	Category string `mapstructure:"category"`
}

// DownloadConfig holds download client and import settings.
type DownloadConfig struct {
	Client       ClientConfig  `mapstructure:"client"`
	MoviePath    string        `mapstructure:"movie_path"`
	TVPath       string        `mapstructure:"tv_path"`
	UseHardlinks bool          `mapstructure:"use_hardlinks"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// MetadataConfig holds the TMDB client settings.
type MetadataConfig struct {
	TMDBAPIKey  string `mapstructure:"tmdb_api_key"`
	TMDBBaseURL string `mapstructure:"tmdb_base_url"`
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.cinephage")
	}

	v.SetEnvPrefix("CINEPHAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8484)

	v.SetDefault("database.path", "./data/cinephage.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.path", "./data/logs")

	v.SetDefault("search.max_concurrent_indexers", 8)
	v.SetDefault("search.cache_ttl", 5*time.Minute)
	v.SetDefault("search.empty_cache_ttl", time.Minute)
	v.SetDefault("search.indexer_rate_limit", 60)
	v.SetDefault("search.indexer_rate_burst", 10)
	v.SetDefault("search.host_rate_limit", 30)
	v.SetDefault("search.host_rate_burst", 5)

	v.SetDefault("monitoring.missing_interval", 24*time.Hour)
	v.SetDefault("monitoring.upgrade_interval", 168*time.Hour)
	v.SetDefault("monitoring.cutoff_unmet_interval", 24*time.Hour)
	v.SetDefault("monitoring.new_episode_interval", time.Hour)
	v.SetDefault("monitoring.pending_interval", 5*time.Minute)
	v.SetDefault("monitoring.task_history_retention", 30*24*time.Hour)

	v.SetDefault("download.client.type", "qbittorrent")
	v.SetDefault("download.client.host", "localhost")
	v.SetDefault("download.client.port", 8080)
	v.SetDefault("download.client.category", "cinephage")
	v.SetDefault("download.movie_path", "./data/movies")
	v.SetDefault("download.tv_path", "./data/tv")
	v.SetDefault("download.use_hardlinks", true)
	v.SetDefault("download.poll_interval", 10*time.Second)

	v.SetDefault("metadata.tmdb_base_url", "https://api.themoviedb.org/3")
}
