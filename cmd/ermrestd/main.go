// Command ermrestd runs the ERM-aware REST gateway: serve starts the HTTP
// API, migrate applies schema migrations, version prints build info.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "ermrestd",
	Short: "ermrestd - an ERM-aware relational REST gateway",
	Long: `ermrestd exposes a PostgreSQL catalog's schema as a relational REST API:
entity, attribute, attributegroup, and aggregate reads and writes are
translated directly from URL path syntax into parameterized SQL.

Get started:
  ermrestd serve      Start the API server
  ermrestd migrate     Apply pending schema migrations
  ermrestd --help      Show available commands`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("ermrestd %s\n", Version)
			fmt.Printf("Commit: %s\n", Commit)
			fmt.Printf("Build Date: %s\n", BuildDate)
			return nil
		},
	}
}
