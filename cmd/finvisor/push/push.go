// Package pushcmder implements `finvisor push`.
package pushcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/finvisor/finvisor/cmd/finvisor/sqlitepath"
	"github.com/finvisor/finvisor/pkg/ledger"
	"github.com/finvisor/finvisor/pkg/merkle"
)

const pushLongDesc string = `Push the local case ledger to a remote finvisor server.

Reads nodes from the local SQLite ledger and POSTs them in batches to the
server's /ledger/nodes endpoint. The server verifies every hash and skips
nodes it already holds, so pushing twice is harmless.

With --case only the nodes recorded for that case are sent, together with
every ancestor they hang from, so the remote history stays complete.

A server configured with a ledger token needs it in --token, which defaults
to $FINVISOR_LEDGER_TOKEN.

Examples:
  finvisor push https://finvisor.example.com
  finvisor push --case 3f2a9c http://localhost:8080
  finvisor push --sqlite ~/.finvisor/ledger.db http://localhost:8080`

const pushShortDesc string = "Push ledger nodes to a remote finvisor server"

const tokenEnvVar = "FINVISOR_LEDGER_TOKEN"

type pushCommander struct {
	sqlitePath string
	batchSize  int
	caseID     string
	token      string
}

// ledgerClient talks to a remote server's ledger endpoints.
type ledgerClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewPushCmd() *cobra.Command {
	cmder := &pushCommander{}

	cmd := &cobra.Command{
		Use:   "push <server-url>",
		Short: pushShortDesc,
		Long:  pushLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args[0])
		},
	}

	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to local ledger database")
	cmd.Flags().IntVar(&cmder.batchSize, "batch-size", 500, "Nodes per HTTP request")
	cmd.Flags().StringVar(&cmder.caseID, "case", "", "Only push the history of this case")
	cmd.Flags().StringVar(&cmder.token, "token", os.Getenv(tokenEnvVar), "Bearer token for the remote ledger")

	return cmd
}

func (c *pushCommander) run(ctx context.Context, cmd *cobra.Command, serverURL string) error {
	if c.batchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.batchSize)
	}

	dbPath, err := sqlitepath.ResolveSQLitePath(c.sqlitePath)
	if err != nil {
		return fmt.Errorf("could not resolve local database: %w", err)
	}

	storer, err := merkle.NewSQLiteStorer(dbPath)
	if err != nil {
		return fmt.Errorf("could not open local database %s: %w", dbPath, err)
	}
	defer storer.Close()

	nodes, err := c.selectNodes(ctx, storer)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(nodes) == 0 {
		fmt.Fprintln(out, "No local nodes to push.")
		return nil
	}

	client := &ledgerClient{baseURL: strings.TrimRight(serverURL, "/"), token: c.token, http: http.DefaultClient}
	fmt.Fprintf(out, "Pushing %d nodes from %s to %s\n", len(nodes), dbPath, client.baseURL)

	var total ledger.IngestResult
	for start := 0; start < len(nodes); start += c.batchSize {
		end := min(start+c.batchSize, len(nodes))

		res, err := client.ingest(ctx, nodes[start:end])
		if err != nil {
			return fmt.Errorf("push failed on batch %d-%d: %w", start, end-1, err)
		}

		total.New += res.New
		total.Duplicate += res.Duplicate
		total.Errors += res.Errors
	}

	fmt.Fprintf(out, "Pushed %d new nodes (%d already existed, %d errors)\n",
		total.New, total.Duplicate, total.Errors)

	return nil
}

// selectNodes lists the local ledger in insertion order. A case filter keeps
// the case's own events plus their ancestry, parents still ahead of children.
func (c *pushCommander) selectNodes(ctx context.Context, storer merkle.Storer) ([]*merkle.Node, error) {
	nodes, err := storer.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list local nodes: %w", err)
	}
	if c.caseID == "" {
		return nodes, nil
	}

	keep := make(map[string]struct{})
	for _, n := range nodes {
		ev, ok := merkle.EventOf(n)
		if !ok || ev.Case != c.caseID {
			continue
		}
		if _, seen := keep[n.Hash]; seen {
			continue
		}

		path, err := storer.Ancestry(ctx, n.Hash)
		if err != nil {
			return nil, fmt.Errorf("could not walk ancestry of %s: %w", n.Hash, err)
		}
		for _, p := range path {
			keep[p.Hash] = struct{}{}
		}
	}

	selected := make([]*merkle.Node, 0, len(keep))
	for _, n := range nodes {
		if _, ok := keep[n.Hash]; ok {
			selected = append(selected, n)
		}
	}
	return selected, nil
}

func (l *ledgerClient) ingest(ctx context.Context, nodes []*merkle.Node) (*ledger.IngestResult, error) {
	body, err := json.Marshal(nodes)
	if err != nil {
		return nil, fmt.Errorf("could not marshal nodes: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/ledger/nodes", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("could not build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if l.token != "" {
		req.Header.Set("Authorization", "Bearer "+l.token)
	}

	resp, err := l.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var res ledger.IngestResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("could not decode response: %w", err)
	}
	return &res, nil
}
