package wire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/mithrel/asst/internal/asst"
	"github.com/mithrel/asst/internal/config"
	"github.com/mithrel/asst/internal/keys"
	"github.com/mithrel/asst/internal/logs"
	"github.com/mithrel/asst/internal/socketio"
	"github.com/mithrel/asst/pkg/api"
)

// App aggregates the configured services for injection into commands.
type App struct {
	Cfg    *viper.Viper
	Log    *log.Logger
	Client *asst.Client
	// Secrets is nil unless ssh.keyring is enabled.
	Secrets keys.SecretStore

	requestTimeout time.Duration
}

// BuildApp validates v and wires a logger writing to logOut and an unconnected client.
func BuildApp(ctx context.Context, v *viper.Viper, logOut io.Writer) (*App, error) {
	if err := config.CheckConfigValidity(v); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger, err := logs.New(logOut, logs.Options{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	})
	if err != nil {
		return nil, err
	}
	sockOpts, err := SocketOptions(v)
	if err != nil {
		return nil, err
	}
	sockOpts.Logger = logger.WithPrefix("transport")

	client, err := asst.New(asst.Options{
		URL:      v.GetString("server.url"),
		Socket:   sockOpts,
		Event:    v.GetString("client.event"),
		LogEvent: v.GetString("client.log_event"),
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	timeout, err := config.Duration(v, "client.request_timeout")
	if err != nil {
		return nil, err
	}
	app := &App{Cfg: v, Log: logger, Client: client, requestTimeout: timeout}
	if v.GetBool("ssh.keyring") {
		if keys.KeyringAvailable() {
			app.Secrets = &keys.KeyringStore{Service: keys.DefaultKeyringService}
		} else {
			logger.Warn("ssh.keyring is set but no system keyring answered; passwords will not be stored")
		}
	}
	return app, nil
}

// SocketOptions maps the server.* and transport.* keys onto transport options.
func SocketOptions(v *viper.Viper) (socketio.Options, error) {
	opts := socketio.DefaultOptions()
	opts.Path = v.GetString("server.path")
	opts.Namespace = v.GetString("server.namespace")
	opts.Reconnection = v.GetBool("transport.reconnect")
	opts.ReconnectionAttempts = v.GetInt("transport.reconnect_attempts")
	opts.RandomizationFactor = v.GetFloat64("transport.randomization")
	opts.EmitRate = rate.Limit(v.GetFloat64("transport.emit_rate"))
	opts.EmitBurst = v.GetInt("transport.emit_burst")

	for key, dst := range map[string]*time.Duration{
		"transport.reconnect_delay":     &opts.ReconnectionDelay,
		"transport.reconnect_delay_max": &opts.ReconnectionDelayMax,
		"transport.dial_timeout":        &opts.DialTimeout,
	} {
		d, err := config.Duration(v, key)
		if err != nil {
			return opts, err
		}
		*dst = d
	}
	return opts, nil
}

// SSHParams reads the ssh.* keys.
func SSHParams(v *viper.Viper) api.SSHParams {
	return api.SSHParams{
		IP:       v.GetString("ssh.ip"),
		Hostname: v.GetString("ssh.hostname"),
		User:     v.GetString("ssh.user"),
		Password: v.GetString("ssh.password"),
		Port:     v.GetInt("ssh.port"),
	}
}

var ErrNoSecretStore = errors.New("ssh.keyring is disabled; enable it to save passwords")

// FillPassword completes p with a stored password when p has none.
func (a *App) FillPassword(p api.SSHParams) (api.SSHParams, error) {
	if p.Password != "" || a.Secrets == nil || p.IP == "" || p.User == "" {
		return p, nil
	}
	pw, err := a.Secrets.Get(keys.SSHAccount(p.User, p.IP, p.Port))
	if errors.Is(err, keys.ErrNotFound) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("read ssh password: %w", err)
	}
	p.Password = pw
	return p, nil
}

// SavePassword stores p's password for later sessions.
func (a *App) SavePassword(p api.SSHParams) error {
	if a.Secrets == nil {
		return ErrNoSecretStore
	}
	if err := a.Secrets.Put(keys.SSHAccount(p.User, p.IP, p.Port), p.Password); err != nil {
		return fmt.Errorf("save ssh password: %w", err)
	}
	return nil
}

// ForgetPassword drops a stored password, typically after the server rejected it.
func (a *App) ForgetPassword(p api.SSHParams) error {
	if a.Secrets == nil {
		return nil
	}
	if err := a.Secrets.Delete(keys.SSHAccount(p.User, p.IP, p.Port)); err != nil {
		return fmt.Errorf("forget ssh password: %w", err)
	}
	a.Log.Info("removed stored ssh password", "user", p.User, "ip", p.IP)
	return nil
}

// RequestContext bounds ctx by client.request_timeout when one is configured.
func (a *App) RequestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.requestTimeout)
}

func (a *App) Close() error {
	return a.Client.Close()
}
