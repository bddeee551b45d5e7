// Command finvisor runs the financial aid appeal assistant: the API server,
// the terminal walkthrough, ledger tools and an MCP server.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	democmder "github.com/finvisor/finvisor/cmd/finvisor/demo"
	ledgercmder "github.com/finvisor/finvisor/cmd/finvisor/ledger"
	mcpcmder "github.com/finvisor/finvisor/cmd/finvisor/mcp"
	mergecmder "github.com/finvisor/finvisor/cmd/finvisor/merge"
	pushcmder "github.com/finvisor/finvisor/cmd/finvisor/push"
	servecmder "github.com/finvisor/finvisor/cmd/finvisor/serve"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "finvisor",
		Short: "Financial aid appeal assistant",
		Long: `finvisor helps students appeal a financial aid award.

It serves the API behind the eight-step appeal wizard, plays the
walkthrough in a terminal, and keeps every conversation and step in a
content-addressed case ledger that can be merged and pushed between
machines.`,
		Version:      version,
		SilenceUsage: true,
	}

	root.AddCommand(
		servecmder.NewServeCmd(),
		democmder.NewDemoCmd(),
		ledgercmder.NewLedgerCmd(),
		mergecmder.NewMergeCmd(),
		pushcmder.NewPushCmd(),
		mcpcmder.NewMCPCmd(version),
	)
	return root
}
