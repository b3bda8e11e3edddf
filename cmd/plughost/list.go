package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/dshills/plughost/internal/plugin"
)

type listOptions struct {
	enabled  bool
	disabled bool
}

func newListCommand(root *rootOptions) *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered plugins and their methods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := plugin.FilterAll
			switch {
			case opts.enabled && opts.disabled:
				return fmt.Errorf("--enabled and --disabled are mutually exclusive")
			case opts.enabled:
				filter = plugin.FilterEnabled
			case opts.disabled:
				filter = plugin.FilterDisabled
			}

			ctx := cmd.Context()
			h, err := openHost(ctx, cmd, root)
			if err != nil {
				return err
			}
			defer h.close(ctx)

			return renderList(cmd.OutOrStdout(), h.manager, filter)
		},
	}

	cmd.Flags().BoolVar(&opts.enabled, "enabled", false, "Only enabled plugins")
	cmd.Flags().BoolVar(&opts.disabled, "disabled", false, "Only disabled plugins")

	return cmd
}

type listRow struct {
	name, state, kind, target, methods string
	enabled                            bool
}

// renderList prints one row per plugin. Colors are dropped when w is not
// a terminal.
func renderList(w io.Writer, m *plugin.Manager, filter plugin.EnabledFilter) error {
	r := lipgloss.NewRenderer(w)
	header := r.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	on := r.NewStyle().Foreground(lipgloss.Color("46"))
	off := r.NewStyle().Foreground(lipgloss.Color("240"))
	dim := r.NewStyle().Foreground(lipgloss.Color("245"))

	names := m.ListPluginNames(filter)
	if len(names) == 0 {
		_, err := fmt.Fprintln(w, dim.Render("no plugins"))
		return err
	}

	rows := make([]listRow, 0, len(names))
	for _, name := range names {
		e, ok := m.Get(name)
		if !ok {
			continue
		}
		row := listRow{
			name:    name,
			state:   "disabled",
			kind:    e.Type().String(),
			target:  e.Target(),
			methods: strings.Join(m.ListMethodNames(plugin.FilterAll, name), ", "),
			enabled: e.Enabled(),
		}
		if row.enabled {
			row.state = "enabled"
		}
		rows = append(rows, row)
	}

	cols := []string{"NAME", "STATE", "TYPE", "TARGET", "METHODS"}
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = len(c)
	}
	for _, row := range rows {
		for i, v := range []string{row.name, row.state, row.kind, row.target} {
			widths[i] = max(widths[i], len(v))
		}
	}

	cell := func(i int) lipgloss.Style {
		return r.NewStyle().Width(widths[i] + 2)
	}

	var lines []string
	var head []string
	for i, c := range cols {
		if i == len(cols)-1 {
			head = append(head, header.Render(c))
			continue
		}
		head = append(head, cell(i).Inherit(header).Render(c))
	}
	lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, head...))

	for _, row := range rows {
		state := off
		if row.enabled {
			state = on
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top,
			cell(0).Render(row.name),
			cell(1).Inherit(state).Render(row.state),
			cell(2).Render(row.kind),
			cell(3).Render(row.target),
			dim.Render(row.methods),
		))
	}

	_, err := fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left, lines...))
	return err
}
