package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/mithrel/asst/internal/logs"
)

var durationKeys = []string{
	"transport.reconnect_delay",
	"transport.reconnect_delay_max",
	"transport.dial_timeout",
	"client.request_timeout",
}

// CheckConfigValidity reports every problem in v at once.
func CheckConfigValidity(v *viper.Viper) error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if raw := strings.TrimSpace(v.GetString("server.url")); raw == "" {
		add("server.url is required")
	} else if u, err := url.Parse(raw); err != nil {
		add("server.url is invalid: %v", err)
	} else {
		if !slices.Contains([]string{"http", "https", "ws", "wss"}, u.Scheme) {
			add("server.url scheme must be http, https, ws or wss")
		}
		if u.Host == "" {
			add("server.url has no host")
		}
	}
	if p := v.GetString("server.path"); p != "" && !strings.HasPrefix(p, "/") {
		add("server.path must start with /")
	}
	for _, key := range []string{"client.event", "client.log_event"} {
		if strings.TrimSpace(v.GetString(key)) == "" {
			add("%s is required", key)
		}
	}

	for _, key := range durationKeys {
		if _, err := Duration(v, key); err != nil {
			add("%v", err)
		}
	}
	if lo, err := Duration(v, "transport.reconnect_delay"); err == nil {
		if hi, err := Duration(v, "transport.reconnect_delay_max"); err == nil && hi < lo {
			add("transport.reconnect_delay_max must not be below transport.reconnect_delay")
		}
	}
	if f := v.GetFloat64("transport.randomization"); f < 0 || f > 1 {
		add("transport.randomization must be between 0 and 1")
	}
	if v.GetInt("transport.reconnect_attempts") < 0 {
		add("transport.reconnect_attempts must not be negative")
	}
	if v.GetFloat64("transport.emit_rate") < 0 {
		add("transport.emit_rate must not be negative")
	}
	if v.GetFloat64("transport.emit_rate") > 0 && v.GetInt("transport.emit_burst") < 1 {
		add("transport.emit_burst must be at least 1")
	}

	if _, err := logs.ParseLevel(v.GetString("log.level")); err != nil {
		add("log.level: %v", err)
	}
	if f := strings.ToLower(v.GetString("log.format")); !slices.Contains([]string{"", "text", "json", "logfmt"}, f) {
		add("log.format must be text, json or logfmt")
	}
	if o := strings.ToLower(v.GetString("output")); !slices.Contains([]string{"", "plain", "json", "pretty"}, o) {
		add("output must be plain, json or pretty")
	}
	if p := v.GetInt("ssh.port"); p < 0 || p > 65535 {
		add("ssh.port must be between 0 and 65535")
	}
	return errors.Join(errs...)
}
