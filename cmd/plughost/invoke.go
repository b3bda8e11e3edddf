package main

import (
	"github.com/spf13/cobra"
)

type invokeOptions struct {
	targets []string
	async   bool
	query   string
}

func newInvokeCommand(root *rootOptions) *cobra.Command {
	opts := &invokeOptions{}

	cmd := &cobra.Command{
		Use:   "invoke <method> [args...]",
		Short: "Call a method on every plugin that has it",
		Long: `Invoke calls method on the targeted plugins in registration order and
prints the collected results as JSON. Arguments are decoded as JSON when
they parse and passed as strings otherwise.

Examples:
  plughost invoke -c plughost.toml add 1 2
  plughost invoke -c plughost.toml --target greeter greet '"world"'
  plughost invoke -c plughost.toml --async fetch '{"id": 3}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvoke(cmd, root, opts, args[0], parseArgs(args[1:]))
		},
	}

	cmd.Flags().StringSliceVarP(&opts.targets, "target", "t", nil, "Plugins to call, in order (default all)")
	cmd.Flags().BoolVar(&opts.async, "async", false, "Use the asynchronous protocol and await the result")
	cmd.Flags().StringVarP(&opts.query, "query", "q", "", "gjson path selecting part of the result")

	return cmd
}

func runInvoke(cmd *cobra.Command, root *rootOptions, opts *invokeOptions, method string, args []any) error {
	ctx := cmd.Context()
	h, err := openHost(ctx, cmd, root)
	if err != nil {
		return err
	}
	defer h.close(ctx)

	var target []string
	if cmd.Flags().Changed("target") {
		target = opts.targets
	}

	var res any
	if opts.async {
		res, err = h.manager.InvokeAsync(ctx, target, method, args...).Await(ctx)
	} else {
		res, err = h.manager.InvokeSync(ctx, target, method, args...)
	}
	if err != nil {
		return err
	}
	return writeResult(cmd.OutOrStdout(), res, opts.query)
}
