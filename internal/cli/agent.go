package cli

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/hearthdev/hearth/internal/agent"
)

func agentCommand() *cli.Command {
	return &cli.Command{
		Name:   "agent",
		Usage:  "Run the PTY agent subprocess (internal)",
		Hidden: true,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return agent.Run(ctx, os.Stdin, os.Stdout)
		},
	}
}
