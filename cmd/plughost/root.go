package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/plughost/internal/config"
	"github.com/dshills/plughost/internal/event"
	"github.com/dshills/plughost/internal/event/topic"
	"github.com/dshills/plughost/internal/plugin"
	"github.com/dshills/plughost/internal/plugin/lua"
)

// rootOptions holds the persistent flags.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCommand(version, commit, date string) *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "plughost",
		Short: "Load plugins and dispatch calls to them",
		Long: `plughost registers the plugins listed in a configuration file and
dispatches method calls and events to them.

Plugins are Lua modules. Targets starting with ./, ../, ~/ or / (or ending
in .lua) are paths; other targets are looked up in the configured plugin
search paths.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file (.toml, .yaml)")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(
		newInvokeCommand(opts),
		newEventCommand(opts),
		newRequestCommand(opts),
		newListCommand(opts),
		newSchemaCommand(),
		newWatchCommand(opts),
	)

	return rootCmd
}

// newLogger builds the slog handler selected by the log flags.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}

	hopts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, hopts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	}
	return nil, fmt.Errorf("invalid --log-format %q", format)
}

// host is a configured manager with its bus.
type host struct {
	file    *config.File
	manager *plugin.Manager
	bus     *event.LocalBus
	logger  *slog.Logger
}

// openHost loads the configuration, wires the Lua loader and event bus and
// registers the configured plugins.
func openHost(ctx context.Context, cmd *cobra.Command, opts *rootOptions) (*host, error) {
	logger, err := newLogger(cmd.ErrOrStderr(), opts.logLevel, opts.logFormat)
	if err != nil {
		return nil, err
	}

	file := config.Default()
	if opts.configPath != "" {
		if file, err = config.Load(opts.configPath); err != nil {
			return nil, err
		}
	}

	scripts := lua.NewLoader(lua.WithPaths(file.PluginPaths...), lua.WithLogger(logger))
	manager := plugin.NewManager(
		plugin.WithConfig(file.Manager),
		plugin.WithLoader(plugin.RoutingLoader{Modules: scripts, Paths: scripts}),
		plugin.WithLogger(logger),
	)

	bus := event.NewBus(event.WithErrorHandler(func(t topic.Topic, err error) {
		logger.Warn("event handler failed", "topic", t.String(), "error", err)
	}))
	if err := manager.SetEventbus(ctx, bus, ""); err != nil {
		return nil, err
	}

	h := &host{file: file, manager: manager, bus: bus, logger: logger}
	if err := file.Apply(ctx, manager); err != nil {
		h.close(ctx)
		return nil, err
	}
	return h, nil
}

// close removes every plugin, releasing their Lua states.
func (h *host) close(ctx context.Context) {
	h.manager.RemoveAll(ctx)
}
