package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/upb/ticketing-shell/guard"
	"gopkg.in/yaml.v3"
)

func newRoutesCmd() *cobra.Command {
	var (
		file   string
		format string
	)
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Validate and print the route table",
		Long: `Load the route table, validate it and print every route with its policy.

Examples:
  # Print the embedded table
  ticketing-shell routes

  # Check a custom table and print it as JSON
  ticketing-shell routes --file deploy/routes.yaml --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := guard.LoadTable(file)
			if err != nil {
				return err
			}
			return printTable(cmd.OutOrStdout(), table, format)
		},
	}
	cmd.Flags().StringVar(&file, "file", os.Getenv("ROUTES_FILE"), "route table file (empty uses the embedded table)")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json or yaml")
	return cmd
}

func printTable(w io.Writer, table *guard.Table, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(table)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(table)
	case "text":
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tNAME\tENTRY\tAUTH\tROLES\tFALLBACK")
	for _, r := range table.Routes {
		roles := make([]string, 0, len(r.AllowedRoles))
		for _, role := range r.AllowedRoles {
			roles = append(roles, role.String())
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%s\t%s\n",
			r.Path, r.Name, r.EntryPoint, r.RequireAuth, dash(strings.Join(roles, ",")), dash(r.FallbackPath))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nlogin: %s  fallback: %s\n", table.LoginPath, table.Fallback)
	for _, path := range table.Misconfigurations() {
		fmt.Fprintf(w, "warning: %s excludes guests through allowed roles only\n", path)
	}
	return nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
