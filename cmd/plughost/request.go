package main

import (
	"github.com/spf13/cobra"

	"github.com/dshills/plughost/internal/plugin"
)

func newRequestCommand(root *rootOptions) *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "request <command> [args...]",
		Short: "Send a manager command over the event bus",
		Long: `Request publishes one of the manager's bus commands (get:names,
has:plugin, invoke:sync, remove, ...) under the configured event prefix and
prints the handler's result. Arguments are decoded as JSON when they parse.

Examples:
  plughost request -c plughost.toml get:names enabled
  plughost request -c plughost.toml get:pairs
  plughost request -c plughost.toml invoke:sync null add 1 2`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, err := openHost(ctx, cmd, root)
			if err != nil {
				return err
			}
			defer h.close(ctx)

			results, err := h.bus.Request(ctx, h.manager.CommandTopic(args[0]), parseArgs(args[1:])...)
			if err != nil {
				return err
			}

			var res any
			switch len(results) {
			case 0:
			case 1:
				res = results[0]
			default:
				res = results
			}
			if f, ok := res.(*plugin.Future); ok {
				if res, err = f.Await(ctx); err != nil {
					return err
				}
			}
			return writeResult(cmd.OutOrStdout(), res, query)
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "gjson path selecting part of the result")
	return cmd
}
