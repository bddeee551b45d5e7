// Package ledgercmder implements `finvisor ledger`, a read-only view of the
// local case ledger.
package ledgercmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/finvisor/finvisor/cmd/finvisor/sqlitepath"
	"github.com/finvisor/finvisor/pkg/ledger"
	"github.com/finvisor/finvisor/pkg/merkle"
)

const ledgerLongDesc string = `Inspect the local case ledger.

Every chat turn, wizard step and portal submission is a node in a
content-addressed ledger. These commands read it without changing it.

Examples:
  finvisor ledger stats
  finvisor ledger history
  finvisor ledger history 3f2a... --json`

const ledgerShortDesc string = "Inspect the case ledger"

// lineWidth bounds one rendered history line.
const lineWidth = 100

var (
	hashStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	kindStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	headStyle = lipgloss.NewStyle().Bold(true)
)

type ledgerCommander struct {
	sqlitePath string
	asJSON     bool
}

func NewLedgerCmd() *cobra.Command {
	cmder := &ledgerCommander{}

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: ledgerShortDesc,
		Long:  ledgerLongDesc,
	}

	cmd.PersistentFlags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to ledger database")
	cmd.PersistentFlags().BoolVar(&cmder.asJSON, "json", false, "Print JSON instead of text")

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Count nodes, roots and leaves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.withRecorder(cmd.Context(), func(r *ledger.Recorder) error {
				return cmder.stats(cmd.Context(), cmd.OutOrStdout(), r)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "history [hash]",
		Short: "Print the history ending at hash, or every history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.withRecorder(cmd.Context(), func(r *ledger.Recorder) error {
				return cmder.history(cmd.Context(), cmd.OutOrStdout(), r, args)
			})
		},
	})

	return cmd
}

func (c *ledgerCommander) withRecorder(_ context.Context, fn func(*ledger.Recorder) error) error {
	dbPath, err := sqlitepath.ResolveSQLitePath(c.sqlitePath)
	if err != nil {
		return fmt.Errorf("could not resolve ledger database: %w", err)
	}

	storer, err := merkle.NewSQLiteStorer(dbPath)
	if err != nil {
		return fmt.Errorf("could not open ledger database %s: %w", dbPath, err)
	}
	defer storer.Close()

	return fn(ledger.NewRecorder(storer, zap.NewNop()))
}

func (c *ledgerCommander) stats(ctx context.Context, w io.Writer, r *ledger.Recorder) error {
	stats, err := r.Stats(ctx)
	if err != nil {
		return err
	}
	if c.asJSON {
		return writeJSON(w, stats)
	}

	fmt.Fprintf(w, "nodes:  %d\nroots:  %d\nleaves: %d\n", stats.TotalNodes, stats.RootCount, stats.LeafCount)
	return nil
}

func (c *ledgerCommander) history(ctx context.Context, w io.Writer, r *ledger.Recorder, args []string) error {
	var histories []ledger.History
	if len(args) == 1 {
		h, err := r.History(ctx, args[0])
		if merkle.IsNotFound(err) {
			return fmt.Errorf("no node with hash %s", args[0])
		}
		if err != nil {
			return err
		}
		histories = []ledger.History{*h}
	} else {
		all, err := r.Histories(ctx)
		if err != nil {
			return err
		}
		histories = all
	}

	if c.asJSON {
		return writeJSON(w, histories)
	}

	for i, h := range histories {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, headStyle.Render(fmt.Sprintf("%s (%d events)", short(h.HeadHash), h.Depth)))
		for _, e := range h.Entries {
			fmt.Fprintln(w, renderEntry(e))
		}
	}
	return nil
}

// renderEntry formats one event on a single line, truncated to lineWidth
// cells.
func renderEntry(e ledger.Entry) string {
	who := e.Kind
	if e.Role != "" {
		who += "/" + e.Role
	}
	text := strings.ReplaceAll(e.Text, "\n", " ")

	line := fmt.Sprintf("  %s %s %s", hashStyle.Render(short(e.Hash)), kindStyle.Render(who), text)
	return ansi.Truncate(line, lineWidth, "…")
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
