package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ticketing-shell",
		Short: "Session, route guard and sign-in backend for the ticketing front end",
		Long: `ticketing-shell serves the application shell of the ticketing site.

It merges the primary (email/password) and federated (hosted UI / phone)
identity providers into one session, resolves the session role, guards the
pages of the route table and sends freshly signed-in users to their role home.

Configuration is read from the environment and an optional .env file.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd(),
		newRoutesCmd(),
		newPruneCmd(),
		newHealthcheckCmd(),
	)
	return root
}
