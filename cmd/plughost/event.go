package main

import (
	"github.com/spf13/cobra"

	"github.com/dshills/plughost/internal/plugin"
)

type eventOptions struct {
	targets []string
	copy    []string
	pass    []string
	query   string
}

func newEventCommand(root *rootOptions) *cobra.Command {
	opts := &eventOptions{}

	cmd := &cobra.Command{
		Use:   "event <method>",
		Short: "Dispatch an event envelope and print the resulting payload",
		Long: `Event builds a payload from --set and --pass assignments and dispatches it
to the targeted plugins in order. --set properties are copied into a fresh
payload; --pass properties are shared with the plugins, which may change
them. The printed payload carries both.

Examples:
  plughost event -c plughost.toml test --set count=0
  plughost event -c plughost.toml render --pass 'doc.lines=["a","b"]' --query doc`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvent(cmd, root, opts, args[0])
		},
	}

	cmd.Flags().StringSliceVarP(&opts.targets, "target", "t", nil, "Plugins to call, in order (default all)")
	cmd.Flags().StringArrayVar(&opts.copy, "set", nil, "Copied payload property as path=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.pass, "pass", nil, "Pass-through payload property as path=value (repeatable)")
	cmd.Flags().StringVarP(&opts.query, "query", "q", "", "gjson path selecting part of the payload")

	return cmd
}

func runEvent(cmd *cobra.Command, root *rootOptions, opts *eventOptions, method string) error {
	copyProps, err := buildPayload(opts.copy)
	if err != nil {
		return err
	}
	passProps, err := buildPayload(opts.pass)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	h, err := openHost(ctx, cmd, root)
	if err != nil {
		return err
	}
	defer h.close(ctx)

	req := plugin.EventRequest{
		Method:        method,
		CopyProps:     copyProps,
		PassthruProps: passProps,
	}
	if cmd.Flags().Changed("target") {
		req.Target = opts.targets
	}

	payload, err := h.manager.InvokeSyncEvent(ctx, req)
	if err != nil {
		return err
	}
	return writeResult(cmd.OutOrStdout(), payload, opts.query)
}
