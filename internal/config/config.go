package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. AUCTION_MAX_BUYERS
const EnvPrefix = "AUCTION"

// ServerConfig stores the auction server settings.
// Values come from flags, AUCTION_* environment variables or a config file.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	HTTPAddr        string        `mapstructure:"http_addr"`
	Codec           string        `mapstructure:"codec"`
	MaxBuyers       int           `mapstructure:"max_buyers"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	OutboxSize      int           `mapstructure:"outbox_size"`
	LogLevel        string        `mapstructure:"log_level"`
}

// ListenAddr is the TCP address participants connect to
func (c ServerConfig) ListenAddr() string {
	return net.JoinHostPort("", strconv.Itoa(c.Port))
}

// ClientConfig stores the interactive client settings
type ClientConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Codec    string        `mapstructure:"codec"`
	Timeout  time.Duration `mapstructure:"dial_timeout"`
	LogLevel string        `mapstructure:"log_level"`
}

// Addr is the server address the client dials
func (c ClientConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// LoadServer parses `auctioneer <port> [flags]`
func LoadServer(args []string) (cfg ServerConfig, err error) {
	fs := pflag.NewFlagSet("auctioneer", pflag.ContinueOnError)
	fs.Int("port", 0, "TCP port participants connect to (also accepted as the first argument)")
	fs.String("http-addr", ":8080", "status API listen address, empty disables it")
	fs.String("codec", "json", "wire codec: json or cbor")
	fs.Int("max-buyers", 0, "maximum number of buyers, 0 means unlimited")
	fs.Duration("shutdown-timeout", 5*time.Second, "how long to wait for sessions to flush after the auction resolves")
	fs.Int("outbox-size", 64, "messages buffered per participant")
	fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.String("config", "", "optional config file (yaml, json, toml or env)")
	if err = fs.Parse(args); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}

	v, err := newViper(fs)
	if err != nil {
		return cfg, err
	}

	switch fs.NArg() {
	case 0:
	case 1:
		port, convErr := strconv.Atoi(fs.Arg(0))
		if convErr != nil {
			return cfg, fmt.Errorf("config: port %q is not a number", fs.Arg(0))
		}
		v.Set("port", port)
	default:
		return cfg, fmt.Errorf("config: unexpected arguments %v", fs.Args()[1:])
	}

	if err = v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	err = validateServer(cfg)
	return
}

// LoadClient parses `auction-client <host> <port> [flags]`
func LoadClient(args []string) (cfg ClientConfig, err error) {
	fs := pflag.NewFlagSet("auction-client", pflag.ContinueOnError)
	fs.String("codec", "json", "wire codec: json or cbor, must match the server")
	fs.Duration("dial-timeout", 5*time.Second, "connection timeout")
	fs.String("log-level", "warn", "log level: debug, info, warn, error")
	if err = fs.Parse(args); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if fs.NArg() != 2 {
		return cfg, fmt.Errorf("config: usage: auction-client <host> <port>")
	}

	v, err := newViper(fs)
	if err != nil {
		return cfg, err
	}
	port, convErr := strconv.Atoi(fs.Arg(1))
	if convErr != nil {
		return cfg, fmt.Errorf("config: port %q is not a number", fs.Arg(1))
	}
	v.Set("host", fs.Arg(0))
	v.Set("port", port)

	if err = v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	err = validateClient(cfg)
	return
}

// newViper binds every flag under its snake_case key so flags, environment
// and config file resolve the same setting
func newViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
	if bindErr != nil {
		return nil, fmt.Errorf("config: %w", bindErr)
	}

	if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
		v.SetConfigFile(f.Value.String())
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", f.Value.String(), err)
		}
	}
	return v, nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("config: port must be between 1 and 65535, got %d", cfg.Port)
	}
	if err := validateCodec(cfg.Codec); err != nil {
		return err
	}
	if cfg.MaxBuyers < 0 {
		return fmt.Errorf("config: max_buyers must not be negative")
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("config: shutdown_timeout must be positive")
	}
	if cfg.OutboxSize <= 0 {
		return fmt.Errorf("config: outbox_size must be positive")
	}
	return validateLogLevel(cfg.LogLevel)
}

func validateClient(cfg ClientConfig) error {
	if cfg.Host == "" {
		return fmt.Errorf("config: host is required")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("config: port must be between 1 and 65535, got %d", cfg.Port)
	}
	if err := validateCodec(cfg.Codec); err != nil {
		return err
	}
	return validateLogLevel(cfg.LogLevel)
}

func validateCodec(codec string) error {
	switch strings.ToLower(codec) {
	case "json", "cbor":
		return nil
	default:
		return fmt.Errorf("config: unknown codec %q", codec)
	}
}

func validateLogLevel(level string) error {
	if _, err := logrus.ParseLevel(level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
