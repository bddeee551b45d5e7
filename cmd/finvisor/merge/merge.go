// Package mergecmder implements `finvisor merge`.
package mergecmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/finvisor/finvisor/cmd/finvisor/sqlitepath"
	"github.com/finvisor/finvisor/pkg/ledger"
	"github.com/finvisor/finvisor/pkg/merkle"
)

const mergeLongDesc string = `Merge one or more case ledgers into a target.

Every node is addressed by the hash of its event and parent, so merging
is a plain union: nodes the target already holds are skipped, and two
advisors who recorded the same conversation end up with one copy.

Nodes whose content no longer matches their hash are rejected, and so are
nodes whose parent is in neither database. By default they are counted and
skipped; --strict aborts the merge on a hash mismatch instead.

Examples:
  finvisor merge laptop.db phone.db
  finvisor merge --strict --sqlite /tmp/merged.db ~/alice/ledger.db ~/bob/ledger.db`

const mergeShortDesc string = "Merge ledger databases"

type mergeCommander struct {
	sqlitePath string
	strict     bool
}

func NewMergeCmd() *cobra.Command {
	cmder := &mergeCommander{}

	cmd := &cobra.Command{
		Use:   "merge [sources...]",
		Short: mergeShortDesc,
		Long:  mergeLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args)
		},
	}

	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to target ledger database")
	cmd.Flags().BoolVar(&cmder.strict, "strict", false, "Abort on the first node that fails verification")

	return cmd
}

func (c *mergeCommander) run(ctx context.Context, cmd *cobra.Command, sources []string) error {
	targetPath, err := sqlitepath.ResolveSQLitePath(c.sqlitePath)
	if err != nil {
		return fmt.Errorf("could not resolve target database: %w", err)
	}

	target, err := merkle.NewSQLiteStorer(targetPath)
	if err != nil {
		return fmt.Errorf("could not open target database %s: %w", targetPath, err)
	}
	defer target.Close()

	recorder := ledger.NewRecorder(target, zap.NewNop())
	out := cmd.OutOrStdout()

	var total ledger.IngestResult
	for _, srcPath := range sources {
		res, err := c.mergeFrom(ctx, recorder, srcPath)
		if err != nil {
			return err
		}

		total.New += res.New
		total.Duplicate += res.Duplicate
		total.Errors += res.Errors

		fmt.Fprintf(out, "  %s: %d new, %d already existed", srcPath, res.New, res.Duplicate)
		if res.Errors > 0 {
			fmt.Fprintf(out, ", %d rejected", res.Errors)
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintf(out, "Merged %d new nodes from %d sources (%d already existed) into %s\n",
		total.New, len(sources), total.Duplicate, targetPath)
	if total.Errors > 0 {
		fmt.Fprintf(out, "Rejected %d nodes that failed verification or had no parent\n", total.Errors)
	}

	return nil
}

// mergeFrom ingests every node of the database at srcPath. Nodes are listed
// in insertion order, so parents land before their children.
func (c *mergeCommander) mergeFrom(ctx context.Context, target *ledger.Recorder, srcPath string) (ledger.IngestResult, error) {
	source, err := merkle.NewSQLiteStorer(srcPath)
	if err != nil {
		return ledger.IngestResult{}, fmt.Errorf("could not open source database %s: %w", srcPath, err)
	}
	defer source.Close()

	nodes, err := source.List(ctx)
	if err != nil {
		return ledger.IngestResult{}, fmt.Errorf("could not list nodes from %s: %w", srcPath, err)
	}

	if c.strict {
		for _, n := range nodes {
			if !n.Verify() {
				return ledger.IngestResult{}, fmt.Errorf("node %s in %s does not match its hash", n.Hash, srcPath)
			}
		}
	}

	res, err := target.Ingest(ctx, nodes)
	if err != nil {
		return res, fmt.Errorf("could not merge %s: %w", srcPath, err)
	}
	return res, nil
}
