package cli

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/mithrel/asst/internal/asst"
	"github.com/mithrel/asst/internal/present"
	"github.com/mithrel/asst/internal/wire"
	"github.com/mithrel/asst/pkg/api"
)

var errSSHParams = errors.New("ssh ip, user and password are required (flags, ssh.* config or ASST_SSH_* env)")

func newSSHInitCmd() *cobra.Command {
	var flags api.SSHParams
	var save bool
	cmd := &cobra.Command{
		Use:   "ssh-init",
		Short: "Hand the server the SSH parameters for this session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := getApp(cmd)
			p := mergeSSHParams(wire.SSHParams(app.Cfg), flags)
			typed := p.Password != ""
			p, err := app.FillPassword(p)
			if err != nil {
				return err
			}
			stored := !typed && p.Password != ""
			if p.Password == "" {
				pw, prompted, err := passwordPrompt(cmd.ErrOrStderr(), "SSH password: ")
				if err != nil {
					return err
				}
				if prompted {
					p.Password = pw
				}
			}
			if !p.Ready() {
				return errSSHParams
			}
			return withSession(cmd, func(ctx context.Context, app *wire.App) error {
				if err := app.Client.SSHInit(ctx, p); err != nil {
					if stored && errors.Is(err, asst.ErrRejected) {
						return errors.Join(err, app.ForgetPassword(p))
					}
					return err
				}
				if save {
					if err := app.SavePassword(p); err != nil {
						return err
					}
				}
				_, err := cmd.OutOrStdout().Write([]byte("ok\n"))
				return err
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.IP, "ip", "", "address the server should SSH into")
	f.StringVar(&flags.Hostname, "hostname", "", "host name reported alongside --ip")
	f.StringVar(&flags.User, "user", "", "SSH user")
	f.StringVar(&flags.Password, "password", "", "SSH password (prompted when omitted on a terminal)")
	f.IntVar(&flags.Port, "port", 0, "SSH port (0 = server default)")
	f.BoolVar(&save, "save-password", false, "store the password in the OS keyring after a successful init")
	return cmd
}

func mergeSSHParams(base, override api.SSHParams) api.SSHParams {
	if override.IP != "" {
		base.IP = override.IP
	}
	if override.Hostname != "" {
		base.Hostname = override.Hostname
	}
	if override.User != "" {
		base.User = override.User
	}
	if override.Password != "" {
		base.Password = override.Password
	}
	if override.Port != 0 {
		base.Port = override.Port
	}
	return base
}

func newExecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec <func> [params...]",
		Short: "Run a server module function over SSH",
		Long: "Runs SSH init from the ssh.* configuration first, since the server keeps SSH " +
			"parameters per session, then calls the module function. Each param is sent as " +
			"JSON when it parses as JSON and as a string otherwise.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, app *wire.App) error {
				p, err := app.FillPassword(wire.SSHParams(app.Cfg))
				if err != nil {
					return err
				}
				if p.Ready() {
					if err := app.Client.SSHInit(ctx, p); err != nil {
						return err
					}
				} else {
					app.Log.Warn("ssh.* not configured; relying on parameters the server already holds")
				}
				fn := args[0]
				res, err := app.Client.Exec(ctx, fn, parseParams(args[1:])...)
				if err != nil {
					return err
				}
				return present.RenderExec(cmd.OutOrStdout(), fn, res, outputOptions(app))
			})
		},
	}
	return cmd
}

func parseParams(args []string) []any {
	out := make([]any, 0, len(args))
	for _, a := range args {
		if json.Valid([]byte(a)) {
			out = append(out, json.RawMessage(a))
			continue
		}
		out = append(out, a)
	}
	return out
}
