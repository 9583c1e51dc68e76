package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/alexisbouchez/emailcheck.go/internal/config"
	"github.com/alexisbouchez/emailcheck.go/internal/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "emailcheck",
	Short: "emailcheck tells whether a mailbox exists without sending mail",
	Long: `emailcheck validates an address, resolves the MX records of its domain and
asks the most preferred exchanger about the recipient with HELO, MAIL FROM
and RCPT TO. No message is ever sent.

Only NOT_EXIST, NO_MX_RECORDS and INVALID are reliable reasons to skip an
address; EXIST can still bounce and ERROR says nothing about the mailbox.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.emailcheck.yaml)")
	flags.String("sender", "", "envelope sender used in MAIL FROM")
	flags.String("helo-name", "", "HELO identity (default: taken from the server greeting)")
	flags.Int("smtp-port", 0, "SMTP port of the exchangers")
	flags.Duration("reply-timeout", 0, "wait for each server reply")
	flags.Duration("connect-timeout", 0, "TCP connect timeout")
	flags.Duration("dns-timeout", 0, "MX lookup timeout")
	flags.String("dns-server", "", "query this DNS server instead of the system resolver")
	flags.Int("workers", 0, "concurrent probes")
	flags.Int("backlog", 0, "checks that may wait for a worker")
	flags.Float64("domain-rate", 0, "sessions per second per recipient domain (0 disables)")
	flags.Int("domain-burst", 0, "burst for --domain-rate")
	flags.String("proxy-url", "", "dial exchangers through this proxy (e.g. socks5://127.0.0.1:1080)")
	flags.String("log-level", "", "trace, debug, info, warn or error")
	flags.String("log-format", "", "console or json")

	for _, name := range []string{
		"sender", "helo-name", "smtp-port", "reply-timeout", "connect-timeout",
		"dns-timeout", "dns-server", "workers", "backlog", "domain-rate",
		"domain-burst", "proxy-url", "log-level", "log-format",
	} {
		bindFlag(rootCmd, name)
	}
}

// bindFlag binds a flag to the config key of the same name with
// underscores. Unset flags fall through to the file, env and defaults.
func bindFlag(cmd *cobra.Command, name string) {
	f := cmd.Flags().Lookup(name)
	if f == nil {
		f = cmd.PersistentFlags().Lookup(name)
	}
	viper.BindPFlag(configKey(name), f)
}

func configKey(flag string) string {
	return strings.ReplaceAll(flag, "-", "_")
}

func initConfig() {
	config.Init(viper.GetViper())
	if err := config.ReadFile(viper.GetViper(), cfgFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig returns the validated configuration and a logger writing to
// the command's error stream.
func loadConfig(cmd *cobra.Command) (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	return cfg, logger, nil
}
