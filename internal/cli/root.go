package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mithrel/asst/internal/config"
	"github.com/mithrel/asst/internal/present"
	"github.com/mithrel/asst/internal/wire"
)

type ctxKey string

const appKey ctxKey = "app"

// offline marks commands that run without building a client session.
const offline = "asst/offline"

// Execute builds the root command and runs it until completion or interrupt.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd constructs the Cobra root command and wires dependencies.
func NewRootCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:           "asst-cli",
		Short:         "Client for the Automation Support Service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if isOffline(cmd) {
				return nil
			}
			v := viper.New()
			if cfgPath != "" {
				v.SetConfigFile(cfgPath)
			}
			if err := config.Load(cmd.Context(), v); err != nil {
				return err
			}
			flags := cmd.Root().PersistentFlags()
			for key, flag := range map[string]string{
				"server.url": "server",
				"log.level":  "log-level",
				"output":     "output",
			} {
				if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
					return err
				}
			}
			app, err := wire.BuildApp(cmd.Context(), v, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, app))
			return nil
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "path to config file (toml|yaml|json)")
	pf.String("server", "", "server URL (overrides server.url)")
	pf.String("log-level", "", "log level: debug|info|warn|error")
	pf.StringP("output", "o", "", "output mode: plain|json|pretty")
	pf.Bool("dump-log", false, "print the server log collected during the session on exit")

	cmd.AddCommand(newDemoCmd())
	cmd.AddCommand(newCommandsCmd())
	cmd.AddCommand(newSSHInitCmd())
	cmd.AddCommand(newExecCmd())
	cmd.AddCommand(newSendCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newCompletionCmd())

	cmd.Run = func(cmd *cobra.Command, args []string) { _ = cmd.Help() }

	return cmd
}

func isOffline(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if _, ok := c.Annotations[offline]; ok {
			return true
		}
	}
	return false
}

func getApp(cmd *cobra.Command) *wire.App {
	v := cmd.Context().Value(appKey)
	if v == nil {
		fmt.Fprintln(os.Stderr, "internal error: app not initialized")
		os.Exit(1)
	}
	return v.(*wire.App)
}

func outputOptions(app *wire.App) present.Options {
	mode, _ := present.ParseMode(app.Cfg.GetString("output"))
	return present.Options{Mode: mode, Headers: true}
}

// withSession connects the client, runs fn under the configured request timeout and
// closes the session, dumping the server log first when --dump-log is set.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, app *wire.App) error) (err error) {
	app := getApp(cmd)
	if err := app.Client.Connect(); err != nil {
		return err
	}
	defer func() {
		if dump, _ := cmd.Flags().GetBool("dump-log"); dump {
			entries := app.Client.ServerLog().Entries()
			derr := withPager(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), func(w io.Writer) error {
				return present.RenderServerLog(w, entries, outputOptions(app))
			})
			if err == nil {
				err = derr
			}
		}
		_ = app.Close()
	}()
	ctx, cancel := app.RequestContext(cmd.Context())
	defer cancel()
	return fn(ctx, app)
}
