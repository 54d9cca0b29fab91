package config

import (
	"errors"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"ncstreamer/internal/model"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Streaming StreamingConfig `mapstructure:"streaming"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Workers      int           `mapstructure:"workers"`
	QueueSize    int           `mapstructure:"queue_size"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	FrameRate    float64       `mapstructure:"frame_rate"`
	FrameBurst   int           `mapstructure:"frame_burst"`
}

type AuthConfig struct {
	Enable bool   `mapstructure:"enable"`
	Token  string `mapstructure:"token"`
}

type LogConfig struct {
	Path  string `mapstructure:"path"`
	Debug bool   `mapstructure:"debug"`
}

type StorageConfig struct {
	Path     string `mapstructure:"path"`
	InMemory bool   `mapstructure:"in_memory"`
}

type StreamingConfig struct {
	VideoQuality   string `mapstructure:"video_quality"`
	DesignatedUser string `mapstructure:"designated_user"`
}

type ProviderConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

type MetricsConfig struct {
	Enable bool `mapstructure:"enable"`
}

// Addr is the remote server listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Quality returns the configured default video quality.
func (c *Config) Quality() model.VideoQuality {
	q, err := model.ParseVideoQuality(c.Streaming.VideoQuality)
	if err != nil {
		return model.Presets["medium"]
	}
	return q
}

func defaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 9002)
	v.SetDefault("server.workers", runtime.NumCPU())
	v.SetDefault("server.queue_size", 256)
	v.SetDefault("server.read_limit", 64<<10)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.frame_rate", 0.0)
	v.SetDefault("server.frame_burst", 20)
	v.SetDefault("auth.enable", false)
	v.SetDefault("auth.token", "")
	v.SetDefault("log.path", "remote_server.log")
	v.SetDefault("log.debug", false)
	v.SetDefault("storage.path", "ncstreamer.db")
	v.SetDefault("storage.in_memory", false)
	v.SetDefault("streaming.video_quality", "medium")
	v.SetDefault("streaming.designated_user", "")
	v.SetDefault("provider.url", "http://127.0.0.1:8080")
	v.SetDefault("provider.token", "")
	v.SetDefault("metrics.enable", true)
}

// Flags returns the command line flag set understood by Load.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("ncstreamer", pflag.ContinueOnError)
	fs.String("config", "", "config file (yaml, json or toml)")
	fs.String("host", "127.0.0.1", "remote control listen host")
	fs.Int("remote-port", 9002, "remote control listen port")
	fs.Int("workers", runtime.NumCPU(), "worker goroutines servicing remote requests")
	fs.String("log-path", "remote_server.log", "remote server log file")
	fs.Bool("debug", false, "enable debug logs")
	fs.String("storage-path", "ncstreamer.db", "settings database path")
	fs.Bool("in-memory-local-storage", false, "keep settings in memory only")
	fs.String("video-quality", "medium", "default video quality: high, medium, low or WxH@fps/bitrate")
	fs.String("designated-user", "", "provider user to log in as")
	fs.String("provider-url", "http://127.0.0.1:8080", "streaming service provider API base URL")
	fs.String("auth-token", "", "token controllers must present; enables auth when set")
	return fs
}

var flagKeys = map[string]string{
	"host":                    "server.host",
	"remote-port":             "server.port",
	"workers":                 "server.workers",
	"log-path":                "log.path",
	"debug":                   "log.debug",
	"storage-path":            "storage.path",
	"in-memory-local-storage": "storage.in_memory",
	"video-quality":           "streaming.video_quality",
	"designated-user":         "streaming.designated_user",
	"provider-url":            "provider.url",
	"auth-token":              "auth.token",
}

// Load resolves configuration from defaults, an optional config file, the
// NCSTREAMER_ environment and args, in increasing priority.
func Load(args []string) (*Config, error) {
	fs := Flags()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	defaults(v)
	v.SetEnvPrefix("NCSTREAMER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Auth.Token != "" {
		cfg.Auth.Enable = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.Workers < 1 {
		errs = append(errs, errors.New("server.workers must be at least 1"))
	}
	if c.Server.QueueSize < 1 {
		errs = append(errs, errors.New("server.queue_size must be at least 1"))
	}
	if c.Server.FrameRate < 0 {
		errs = append(errs, errors.New("server.frame_rate must not be negative"))
	}
	if _, err := model.ParseVideoQuality(c.Streaming.VideoQuality); err != nil {
		errs = append(errs, err)
	}
	if c.Auth.Enable && c.Auth.Token == "" {
		errs = append(errs, errors.New("auth.enable requires auth.token"))
	}
	return errors.Join(errs...)
}
