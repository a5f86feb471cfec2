package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/mithrel/asst/internal/util"
)

const appName = "asst"

type ConfigOption struct {
	Key     string
	Default any
	Comment string
}

// GetConfigOptions returns the configuration keys, their defaults and their meanings.
func GetConfigOptions() []ConfigOption {
	return []ConfigOption{
		{Key: "output", Default: "plain", Comment: "Output mode for command results: plain|json|pretty"},

		{Key: "server.url", Default: "http://0.0.0.0:5000", Comment: "ASST server address; a path selects the namespace"},
		{Key: "server.path", Default: "/socket.io/", Comment: "Socket.IO endpoint path on the server"},
		{Key: "server.namespace", Default: "/", Comment: "Socket.IO namespace to join"},

		{Key: "transport.reconnect", Default: true, Comment: "Reconnect automatically after a dropped connection"},
		{Key: "transport.reconnect_attempts", Default: 0, Comment: "Give up after this many failed attempts (0 = never)"},
		{Key: "transport.reconnect_delay", Default: "1s", Comment: "First reconnection delay (Go duration or milliseconds)"},
		{Key: "transport.reconnect_delay_max", Default: "5s", Comment: "Upper bound for the reconnection delay"},
		{Key: "transport.randomization", Default: 0.5, Comment: "Jitter factor applied to reconnection delays (0-1)"},
		{Key: "transport.dial_timeout", Default: "20s", Comment: "WebSocket handshake timeout"},
		{Key: "transport.emit_rate", Default: 0.0, Comment: "Outgoing packets per second (0 = unlimited)"},
		{Key: "transport.emit_burst", Default: 1, Comment: "Packets allowed in a burst when emit_rate is set"},

		{Key: "client.event", Default: "message", Comment: "Event name carrying requests"},
		{Key: "client.log_event", Default: "server_log", Comment: "Event name the server pushes log lines on"},
		{Key: "client.request_timeout", Default: "0s", Comment: "Give up waiting for a reply after this long (0 = wait forever)"},

		{Key: "log.level", Default: "info", Comment: "Log level: debug|info|warn|error"},
		{Key: "log.format", Default: "text", Comment: "Log format: text|json|logfmt"},

		{Key: "ssh.ip", Default: "", Comment: "Address the server should SSH into"},
		{Key: "ssh.hostname", Default: "", Comment: "Optional host name reported alongside ssh.ip"},
		{Key: "ssh.user", Default: "", Comment: "SSH user"},
		{Key: "ssh.password", Default: "", Comment: "SSH password (prefer ASST_SSH_PASSWORD or a prompt)"},
		{Key: "ssh.port", Default: 0, Comment: "SSH port (0 = server default)"},
		{Key: "ssh.keyring", Default: false, Comment: "Look up and save ssh.password in the OS keyring"},
	}
}

func applyDefaults(v *viper.Viper) {
	for _, o := range GetConfigOptions() {
		v.SetDefault(o.Key, o.Default)
	}
}

// Load resolves configuration with precedence: defaults < file < .env < env.
// Flags bound by the caller take precedence over all of them.
func Load(ctx context.Context, v *viper.Viper) error {
	if v.ConfigFileUsed() == "" {
		v.SetConfigName("config")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			v.AddConfigPath(filepath.Join(xdg, appName))
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", appName))
		}
		v.AddConfigPath(".")
	}

	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	v.SetEnvPrefix(appName)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return nil
}

// DefaultConfigPath resolves the standard config.toml location.
func DefaultConfigPath() string {
	xdg := os.Getenv("XDG_CONFIG_HOME")
	if xdg == "" {
		home, _ := os.UserHomeDir()
		xdg = filepath.Join(home, ".config")
	}
	return filepath.Join(xdg, appName, "config.toml")
}

// Duration reads key as a Go duration or a bare number of milliseconds.
func Duration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := util.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
