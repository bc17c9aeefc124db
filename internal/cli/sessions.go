package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/hearthdev/hearth/internal/appdirs"
	"github.com/hearthdev/hearth/internal/client"
)

var errDaemonNotRunning = errors.New("daemon is not running")

func sessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "List sessions held by the daemon",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "emit machine-readable output",
			},
		},
		Action: runSessions,
	}
}

func runSessions(ctx context.Context, cmd *cli.Command) error {
	socketPath, err := appdirs.SocketPath()
	if err != nil {
		return err
	}
	tokenPath, err := appdirs.TokenPath()
	if err != nil {
		return err
	}
	spawnLockPath, err := appdirs.SpawnLockPath()
	if err != nil {
		return err
	}

	// Listing must not start a daemon that is not already running.
	m := client.NewManager(client.Config{
		SocketPath:    socketPath,
		TokenPath:     tokenPath,
		SpawnLockPath: spawnLockPath,
		SpawnDaemon:   func() error { return errDaemonNotRunning },
	})
	defer m.Close()

	listCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	sessions, err := m.ListSessions(listCtx)
	if err != nil {
		if errors.Is(err, errDaemonNotRunning) {
			fmt.Fprintln(cmd.Root().ErrWriter, "Daemon is not running.")
			return nil
		}
		return err
	}

	if cmd.Bool("json") {
		enc := json.NewEncoder(cmd.Root().Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(sessions)
	}

	if len(sessions) == 0 {
		fmt.Fprintln(cmd.Root().ErrWriter, "No sessions.")
		return nil
	}
	tw := tabwriter.NewWriter(cmd.Root().Writer, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tWORKSPACE\tPID\tSTATE\tCREATED\tCWD")
	for _, s := range sessions {
		pid := "-"
		if s.PID != nil {
			pid = fmt.Sprintf("%d", *s.PID)
		}
		state := "exited"
		if s.IsAlive {
			state = "alive"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.SessionID, s.WorkspaceID, pid, state,
			s.CreatedAt.Local().Format(time.DateTime), s.Cwd)
	}
	return tw.Flush()
}
