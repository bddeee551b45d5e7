// Package mcpcmder implements `finvisor mcp`, which exposes finvisor's
// research and walkthrough data to MCP clients over stdio.
package mcpcmder

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/finvisor/finvisor/api"
	"github.com/finvisor/finvisor/pkg/config"
	"github.com/finvisor/finvisor/pkg/research"
	"github.com/finvisor/finvisor/pkg/strategy"
	"github.com/finvisor/finvisor/pkg/wizard"
)

const mcpLongDesc string = `Serve finvisor tools over the Model Context Protocol on stdio.

Tools:
  research       answer a financial aid question with cited sources (needs Perplexity)
  school_tier    rank a school's selectivity and suggest research queries
  wizard_script  return the scripted events of one walkthrough step

Logs go to stderr; stdout carries the protocol.

Example MCP client entry:
  {"command": "finvisor", "args": ["mcp", "--config", "finvisor.toml"]}`

const mcpShortDesc string = "Serve tools over MCP (stdio)"

type mcpCommander struct {
	configPath string
	debug      bool
}

func NewMCPCmd(version string) *cobra.Command {
	cmder := &mcpCommander{}

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: mcpShortDesc,
		Long:  mcpLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), version)
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to a TOML config file")
	cmd.Flags().BoolVar(&cmder.debug, "debug", false, "Log to stderr")

	return cmd
}

func (c *mcpCommander) run(ctx context.Context, version string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	log := zap.NewNop()
	if c.debug {
		if log, err = zap.NewDevelopment(); err != nil {
			return err
		}
	}
	defer log.Sync()

	svc, err := api.Build(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("could not build services: %w", err)
	}
	defer svc.Ledger.Storer().Close()

	server := NewServer(version, svc.Research, svc.Scripts)
	return server.Run(ctx, &mcp.StdioTransport{})
}

type ResearchInput struct {
	Query string `json:"query" jsonschema:"the question to research"`
	Focus string `json:"focus,omitempty" jsonschema:"academic (default) limits sources to edu, gov and org sites; news searches everywhere"`
}

type TierInput struct {
	School string `json:"school" jsonschema:"school name, e.g. Stanford University"`
}

type TierOutput struct {
	School  string   `json:"school"`
	Tier    int      `json:"tier" jsonschema:"1 is the most selective, 4 the least"`
	Queries []string `json:"queries" jsonschema:"suggested research queries for an appeal"`
}

type ScriptInput struct {
	Step int `json:"step" jsonschema:"walkthrough step, 0 to 7"`
}

type ScriptOutput struct {
	Step   int            `json:"step"`
	Label  string         `json:"label"`
	Events []wizard.Event `json:"events"`
}

// NewServer registers the finvisor tools on a new MCP server.
func NewServer(version string, rs *research.Service, scripts *wizard.Scripts) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "finvisor", Version: version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "research",
		Description: "Research a financial aid question and return an answer with citations",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in ResearchInput) (*mcp.CallToolResult, research.Answer, error) {
		ans, err := rs.Query(ctx, in.Query, in.Focus)
		if err != nil {
			return nil, research.Answer{}, err
		}
		return nil, *ans, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "school_tier",
		Description: "Rank a school's selectivity tier and list default appeal research queries",
	}, func(_ context.Context, _ *mcp.CallToolRequest, in TierInput) (*mcp.CallToolResult, TierOutput, error) {
		if in.School == "" {
			return nil, TierOutput{}, fmt.Errorf("school is required")
		}
		return nil, TierOutput{
			School:  in.School,
			Tier:    strategy.SchoolTier(in.School),
			Queries: research.DefaultQueries(in.School),
		}, nil
	})

	player := wizard.NewPlayer(scripts, wizard.NoSleep)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "wizard_script",
		Description: "Return every scripted event of one walkthrough step, in order",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in ScriptInput) (*mcp.CallToolResult, ScriptOutput, error) {
		out := ScriptOutput{Step: in.Step, Label: scripts.Label(in.Step)}
		err := player.Play(ctx, in.Step, func(ev wizard.Event) error {
			out.Events = append(out.Events, ev)
			return nil
		})
		if err != nil {
			return nil, ScriptOutput{}, err
		}
		return nil, out, nil
	})

	return server
}
