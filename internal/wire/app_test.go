package wire

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/mithrel/asst/internal/config"
	"github.com/mithrel/asst/internal/keys"
	"github.com/mithrel/asst/pkg/api"
)

func loaded(t *testing.T) *viper.Viper {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	v := viper.New()
	require.NoError(t, config.Load(context.Background(), v))
	return v
}

func TestSocketOptions(t *testing.T) {
	v := loaded(t)
	v.Set("transport.reconnect_delay", "250")
	v.Set("transport.reconnect_delay_max", "2s")
	v.Set("transport.emit_rate", 10.0)
	v.Set("transport.emit_burst", 3)
	v.Set("server.namespace", "/jobs")

	opts, err := SocketOptions(v)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, opts.ReconnectionDelay)
	assert.Equal(t, 2*time.Second, opts.ReconnectionDelayMax)
	assert.Equal(t, 20*time.Second, opts.DialTimeout)
	assert.Equal(t, rate.Limit(10), opts.EmitRate)
	assert.Equal(t, 3, opts.EmitBurst)
	assert.Equal(t, "/jobs", opts.Namespace)
	assert.True(t, opts.Reconnection)
}

func TestBuildAppRejectsInvalidConfig(t *testing.T) {
	v := loaded(t)
	v.Set("server.url", "gopher://x")
	_, err := BuildApp(context.Background(), v, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.url scheme")
}

func TestBuildAppRequestContext(t *testing.T) {
	v := loaded(t)
	app, err := BuildApp(context.Background(), v, &bytes.Buffer{})
	require.NoError(t, err)
	defer app.Close()

	ctx, cancel := app.RequestContext(context.Background())
	_, ok := ctx.Deadline()
	assert.False(t, ok)
	cancel()

	app.requestTimeout = time.Second
	ctx, cancel = app.RequestContext(context.Background())
	defer cancel()
	_, ok = ctx.Deadline()
	assert.True(t, ok)
}

func TestSSHParams(t *testing.T) {
	v := loaded(t)
	v.Set("ssh.ip", "10.0.0.1")
	v.Set("ssh.user", "root")
	v.Set("ssh.password", "pw")
	v.Set("ssh.port", 2222)
	p := SSHParams(v)
	assert.True(t, p.Ready())
	assert.Equal(t, 2222, p.Port)
}

func TestPasswordStore(t *testing.T) {
	v := loaded(t)
	app, err := BuildApp(context.Background(), v, &bytes.Buffer{})
	require.NoError(t, err)
	defer app.Close()

	p := api.SSHParams{IP: "server1", User: "user", Password: "password"}
	assert.ErrorIs(t, app.SavePassword(p), ErrNoSecretStore)

	app.Secrets = &keys.MemoryStore{}
	require.NoError(t, app.SavePassword(p))

	got, err := app.FillPassword(api.SSHParams{IP: "server1", User: "user"})
	require.NoError(t, err)
	assert.Equal(t, "password", got.Password)

	got, err = app.FillPassword(api.SSHParams{IP: "server2", User: "user"})
	require.NoError(t, err)
	assert.Empty(t, got.Password)

	require.NoError(t, app.ForgetPassword(p))
	got, err = app.FillPassword(api.SSHParams{IP: "server1", User: "user"})
	require.NoError(t, err)
	assert.Empty(t, got.Password)
}
