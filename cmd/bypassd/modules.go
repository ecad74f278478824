package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/phoenix-bypass/internal/bypass"
	"github.com/tjfontaine/phoenix-bypass/internal/registration"
)

func newModulesCmd() *cobra.Command {
	var full, asJSON bool
	cmd := &cobra.Command{
		Use:   "modules [category]",
		Short: "List the bundled bypass modules",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category := ""
			if len(args) == 1 {
				category = args[0]
			}
			r := registration.NewRegistry(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
			listing := r.ListFull(category)
			if len(listing) == 0 {
				return fmt.Errorf("unknown category %q", category)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if full {
					return enc.Encode(listing)
				}
				return enc.Encode(r.List(category))
			}
			return printModules(out, r, listing, full)
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "include option schemas")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printModules(w io.Writer, r *bypass.Registry, listing map[string][]bypass.Descriptor, full bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, cat := range r.Categories() {
		for _, d := range listing[cat] {
			fmt.Fprintf(tw, "%s\t%s\n", d.Ref(), d.Description)
			if !full {
				continue
			}
			for _, o := range d.Schema.Options {
				flags := string(o.Type)
				if o.Required {
					flags += ", required"
				}
				if len(o.Choices) > 0 {
					flags += ", one of " + strings.Join(o.Choices, "|")
				}
				fmt.Fprintf(tw, "  --%s\t%s (%s)\n", o.Name, o.Description, flags)
			}
		}
	}
	return tw.Flush()
}
