package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mithrel/asst/internal/editor"
	"github.com/mithrel/asst/internal/present"
	"github.com/mithrel/asst/internal/wire"
	"github.com/mithrel/asst/pkg/api"
)

func newSendCmd() *cobra.Command {
	var edit bool
	cmd := &cobra.Command{
		Use:   "send [json]",
		Short: "Send a raw request and print the raw reply",
		Example: `  asst-cli send '{"type":"system","job":"get_server_command_list"}'
  asst-cli send '{"type":"module","job":"ssh","func":"show_uptime","params":[]}'
  asst-cli send --edit`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw json.RawMessage
			if len(args) == 1 {
				raw = json.RawMessage(args[0])
			}
			if edit {
				edited, err := editRequest(raw)
				if err != nil {
					return err
				}
				raw = edited
			}
			if len(raw) == 0 {
				return errors.New("a JSON request argument or --edit is required")
			}
			if !json.Valid(raw) {
				return fmt.Errorf("request is not valid JSON: %s", raw)
			}
			return withSession(cmd, func(ctx context.Context, app *wire.App) error {
				resp, err := app.Client.Send(ctx, raw)
				if err != nil {
					return err
				}
				return present.RenderReply(cmd.OutOrStdout(), resp.Raw, outputOptions(app))
			})
		},
	}
	cmd.Flags().BoolVarP(&edit, "edit", "e", false, "compose the request in $EDITOR")
	return cmd
}

func editRequest(initial json.RawMessage) (json.RawMessage, error) {
	path, err := editor.PathFor(api.NewTraceID())
	if err != nil {
		return nil, err
	}
	final, _, err := editor.OpenAt(path, []byte(editor.ComposeRequest(initial)))
	if err != nil {
		return nil, err
	}
	return editor.ParseEditedRequest(string(final))
}
