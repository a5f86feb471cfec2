package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mithrel/asst/internal/asst"
	"github.com/mithrel/asst/internal/present"
	"github.com/mithrel/asst/internal/wire"
)

func newDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Fire the three demonstration requests and print answers as they arrive",
		Long: "Sends the command list request, an SSH init with sample credentials and a " +
			"show_hostname call back-to-back. Answers may arrive in any order; the command " +
			"waits for all of them, for client.request_timeout, for an interrupt or until the " +
			"connection is lost for good.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, app *wire.App) error {
				reqs := asst.DemoRequests()
				opts := outputOptions(app)
				var renderErr error
				n, err := app.Client.RunDemo(ctx, reqs, func(a asst.Answer) {
					if a.Err != nil || renderErr != nil {
						return
					}
					renderErr = present.RenderReply(cmd.OutOrStdout(), a.Response.Raw, opts)
				})
				if renderErr != nil {
					return renderErr
				}
				if err != nil {
					return fmt.Errorf("%d of %d requests answered: %w", n, len(reqs), err)
				}
				return nil
			})
		},
	}
}
