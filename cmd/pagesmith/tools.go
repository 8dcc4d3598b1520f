package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pagesmith/pagesmith/internal/tool"
	"github.com/pagesmith/pagesmith/pkg/app"
)

func toolsCmd(flags *globalFlags) *cobra.Command {
	var (
		query  string
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools exposed to clients",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), flags, func(rt *app.Runtime) error {
				descs := rt.Tools.Catalog()
				if query != "" {
					found, err := rt.Tools.Search(query, limit)
					if err != nil {
						return err
					}
					descs = found
				}
				return printCatalog(cmd.OutOrStdout(), descs, asJSON)
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Search the catalog instead of listing it")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum search results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print descriptors as JSON")
	return cmd
}

func printCatalog(w io.Writer, descs []tool.Descriptor, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(descs)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tEFFECT\tDESCRIPTION")
	for _, d := range descs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Name, d.SideEffect, d.Description)
	}
	return tw.Flush()
}

func readCmd(flags *globalFlags) *cobra.Command {
	var (
		maxDepth int
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "read <page-id>",
		Short: "Print the text of a page and its nested blocks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withRuntime(ctx, flags, func(rt *app.Runtime) error {
				raw, err := json.Marshal(map[string]any{"page_id": args[0], "max_depth": maxDepth})
				if err != nil {
					return err
				}
				out, err := rt.Tools.Invoke(ctx, "get_page_text", raw)
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(out)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), out.Content)
				return err
			})
		},
	}
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "Nesting levels to expand, 0 for the configured default")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full tool output as JSON")
	return cmd
}
