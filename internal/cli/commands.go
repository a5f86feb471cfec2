package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/mithrel/asst/internal/present"
	"github.com/mithrel/asst/internal/wire"
)

func newCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List the module functions the server can run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, app *wire.App) error {
				names, err := app.Client.CommandList(ctx)
				if err != nil {
					return err
				}
				return withPager(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), func(w io.Writer) error {
					return present.RenderCommands(w, names, outputOptions(app))
				})
			})
		},
	}
}
