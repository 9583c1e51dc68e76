// Package config loads emailcheck settings from defaults, an optional YAML
// file, EMAILCHECK_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/alexisbouchez/emailcheck.go"
	"github.com/alexisbouchez/emailcheck.go/checker"
	"github.com/alexisbouchez/emailcheck.go/mxresolve"
	"github.com/alexisbouchez/emailcheck.go/probe"
)

// EnvPrefix prefixes every environment variable, e.g. EMAILCHECK_SENDER.
const EnvPrefix = "EMAILCHECK"

// Config holds every tunable setting.
type Config struct {
	Sender         string        `mapstructure:"sender"`
	HeloName       string        `mapstructure:"helo_name"`
	SMTPPort       int           `mapstructure:"smtp_port"`
	ReplyTimeout   time.Duration `mapstructure:"reply_timeout"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	DNSTimeout     time.Duration `mapstructure:"dns_timeout"`
	DNSServer      string        `mapstructure:"dns_server"`
	ReadBuffer     int           `mapstructure:"read_buffer"`
	Workers        int           `mapstructure:"workers"`
	Backlog        int           `mapstructure:"backlog"`
	DomainRate     float64       `mapstructure:"domain_rate"`
	DomainBurst    int           `mapstructure:"domain_burst"`
	ProxyURL       string        `mapstructure:"proxy_url"`
	LogLevel       string        `mapstructure:"log_level"`
	LogFormat      string        `mapstructure:"log_format"`
	MetricsAddr    string        `mapstructure:"metrics_addr"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("sender", probe.DefaultSender)
	v.SetDefault("helo_name", "")
	v.SetDefault("smtp_port", probe.DefaultPort)
	v.SetDefault("reply_timeout", probe.DefaultReplyTimeout)
	v.SetDefault("connect_timeout", probe.DefaultConnectTimeout)
	v.SetDefault("dns_timeout", mxresolve.DefaultTimeout)
	v.SetDefault("dns_server", "")
	v.SetDefault("read_buffer", probe.DefaultReadBuffer)
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("backlog", checker.DefaultBacklog)
	v.SetDefault("domain_rate", 0.0)
	v.SetDefault("domain_burst", 1)
	v.SetDefault("proxy_url", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("metrics_addr", "")
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	Init(v)
	return v
}

// Init registers defaults and environment binding on v.
func Init(v *viper.Viper) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
}

// ReadFile reads path, or $HOME/.emailcheck.yaml when path is empty. A
// missing default file is not an error.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		home, _ := os.UserHomeDir()
		v.AddConfigPath(home)
		v.SetConfigType("yaml")
		v.SetConfigName(".emailcheck")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	return nil
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if _, err := emailcheck.ParseAddress(c.Sender); err != nil {
		return fmt.Errorf("config: sender: %w", err)
	}
	if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
		return fmt.Errorf("config: smtp_port %d out of range", c.SMTPPort)
	}
	for name, d := range map[string]time.Duration{
		"reply_timeout":   c.ReplyTimeout,
		"connect_timeout": c.ConnectTimeout,
		"dns_timeout":     c.DNSTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive", name)
		}
	}
	if c.ReadBuffer <= 0 {
		return fmt.Errorf("config: read_buffer must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("config: workers must be positive")
	}
	if c.Backlog < 0 {
		return fmt.Errorf("config: backlog must not be negative")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: log_level: %w", err)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("config: log_format %q: want console or json", c.LogFormat)
	}
	return nil
}

// ProbeOptions returns the session options described by c.
func (c Config) ProbeOptions() ([]probe.Option, error) {
	opts := []probe.Option{
		probe.WithPort(c.SMTPPort),
		probe.WithSender(c.Sender),
		probe.WithHeloName(c.HeloName),
		probe.WithReplyTimeout(c.ReplyTimeout),
		probe.WithConnectTimeout(c.ConnectTimeout),
		probe.WithReadBuffer(c.ReadBuffer),
	}
	if c.ProxyURL != "" {
		d, err := probe.NewProxyDialer(c.ProxyURL, nil)
		if err != nil {
			return nil, err
		}
		opts = append(opts, probe.WithDialer(d))
	}
	return opts, nil
}

// Resolver returns the MX resolver described by c.
func (c Config) Resolver(logger zerolog.Logger) mxresolve.Resolver {
	return mxresolve.New(c.DNSServer, mxresolve.WithTimeout(c.DNSTimeout), mxresolve.WithLogger(logger))
}

// NewChecker starts a checker configured by c.
func (c Config) NewChecker(logger zerolog.Logger) (*checker.Checker, error) {
	probeOpts, err := c.ProbeOptions()
	if err != nil {
		return nil, err
	}
	return checker.New(c.Resolver(logger),
		checker.WithWorkers(c.Workers),
		checker.WithBacklog(c.Backlog),
		checker.WithDomainRate(c.DomainRate, c.DomainBurst),
		checker.WithProbeOptions(probeOpts...),
		checker.WithLogger(logger),
	), nil
}
