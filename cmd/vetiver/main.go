package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vetiver-inc/vetiver/internal/interfaces/cli/configcmd"
	"github.com/vetiver-inc/vetiver/internal/interfaces/cli/migrate"
	"github.com/vetiver-inc/vetiver/internal/interfaces/cli/reset"
	"github.com/vetiver-inc/vetiver/internal/interfaces/cli/server"
	"github.com/vetiver-inc/vetiver/internal/interfaces/cli/usercmd"
	"github.com/vetiver-inc/vetiver/internal/shared/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vetiver",
		Short: "Vetiver - proxy fleet control plane",
		Long:  `Vetiver supervises a fleet of proxy node engines: connection management, usage accounting through a write-behind ledger, and quota enforcement.`,
	}

	rootCmd.AddCommand(
		server.NewCommand(),
		migrate.NewCommand(),
		reset.NewCommand(),
		usercmd.NewCommand(),
		configcmd.NewCommand(),
		newVersionCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("vetiver %s (commit %s, built %s)\n", version.Current, version.Commit, version.Date)
		},
	}
}
