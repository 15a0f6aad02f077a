package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "YTDL"

// Config is the full runtime configuration of the broker.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	Innertube InnertubeConfig `mapstructure:"innertube"`
	Resolver  ResolverConfig  `mapstructure:"resolver"`
	Metadata  MetadataConfig  `mapstructure:"metadata"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigin   string        `mapstructure:"allowed_origin"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ExtractorConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Binary  string        `mapstructure:"binary"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type InnertubeConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Endpoint string        `mapstructure:"endpoint"`
	APIKey   string        `mapstructure:"api_key"`
	Profiles []string      `mapstructure:"profiles"`
	Timeout  time.Duration `mapstructure:"timeout"`
	// Fingerprint selects the TLS ClientHello presented to the player API.
	// Empty uses the standard library handshake.
	Fingerprint string `mapstructure:"fingerprint"`
}

type ResolverConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Mirrors []string `mapstructure:"mirrors"`
	// BaseURL routes every call through a single intermediary instead of the
	// mirror list.
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type MetadataConfig struct {
	OEmbedEndpoint string        `mapstructure:"oembed_endpoint"`
	Library        bool          `mapstructure:"library"`
	PageScrape     bool          `mapstructure:"page_scrape"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type PipelineConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type LedgerConfig struct {
	Enabled bool           `mapstructure:"enabled"`
	Path    string         `mapstructure:"path"`
	Costs   map[string]int `mapstructure:"costs"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 2*time.Minute)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.allowed_origin", "*")
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_burst", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("extractor.enabled", true)
	v.SetDefault("extractor.binary", "")
	v.SetDefault("extractor.timeout", 25*time.Second)

	v.SetDefault("innertube.enabled", true)
	v.SetDefault("innertube.endpoint", "https://www.youtube.com/youtubei/v1/player")
	v.SetDefault("innertube.api_key", "")
	v.SetDefault("innertube.profiles", []string{"ios", "android", "tv_embed", "mweb"})
	v.SetDefault("innertube.timeout", 4*time.Second)
	v.SetDefault("innertube.fingerprint", "")

	// Resolver instances are operator supplied, e.g.
	// YTDL_RESOLVER_MIRRORS="https://a.example/api/json,https://b.example/".
	v.SetDefault("resolver.enabled", false)
	v.SetDefault("resolver.mirrors", []string{})
	v.SetDefault("resolver.base_url", "")
	v.SetDefault("resolver.api_key", "")
	v.SetDefault("resolver.user_agent", "ytdl-broker/1.0")
	v.SetDefault("resolver.timeout", 6*time.Second)

	v.SetDefault("metadata.oembed_endpoint", "https://www.youtube.com/oembed")
	v.SetDefault("metadata.library", true)
	v.SetDefault("metadata.page_scrape", true)
	v.SetDefault("metadata.timeout", 5*time.Second)

	v.SetDefault("pipeline.timeout", 60*time.Second)

	v.SetDefault("ledger.enabled", false)
	v.SetDefault("ledger.path", "ytdl-broker.db")
	v.SetDefault("ledger.costs", map[string]int{
		"360p":  1,
		"720p":  2,
		"1080p": 3,
		"2160p": 4,
		"audio": 1,
	})
}

// Load reads .env (when present), the optional YAML config file and
// YTDL_-prefixed environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// yt-dlp deployments conventionally export YTDLP_BIN.
	_ = v.BindEnv("extractor.binary", envPrefix+"_EXTRACTOR_BINARY", "YTDLP_BIN")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ytdl-broker")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/ytdl-broker")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if !c.Extractor.Enabled && !c.Innertube.Enabled && !c.Resolver.Enabled {
		return errors.New("config: at least one resolution strategy must be enabled")
	}
	if c.Resolver.Enabled && c.Resolver.BaseURL == "" && len(c.Resolver.Mirrors) == 0 {
		return errors.New("config: resolver enabled without mirrors or base_url")
	}
	if c.Innertube.Enabled && len(c.Innertube.Profiles) == 0 {
		return errors.New("config: innertube enabled without profiles")
	}
	if c.Pipeline.Timeout <= 0 {
		return errors.New("config: pipeline.timeout must be positive")
	}
	if c.Ledger.Enabled && c.Ledger.Path == "" {
		return errors.New("config: ledger enabled without path")
	}
	return nil
}
