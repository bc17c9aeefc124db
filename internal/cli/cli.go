// Package cli assembles the hearth command tree.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/hearthdev/hearth/internal/appdirs"
	"github.com/hearthdev/hearth/internal/config"
	"github.com/hearthdev/hearth/internal/identity"
	"github.com/hearthdev/hearth/internal/logging"
)

// Run starts the CLI and returns the process exit code.
func Run(args []string, version string) int {
	mode := modeFromArgs(args)
	logCfg := loadLogConfig()
	if mode != "cli" && logCfg.Sink == nil {
		// Daemon and agent own no terminal; their logs go to the
		// rotated file unless the config says otherwise.
		sink := string(logging.SinkFile)
		logCfg.Sink = &sink
	}
	closeLogger, err := logging.Init(logCfg, logging.Options{
		App:     identity.AppSlug,
		Version: version,
		Mode:    mode,
	})
	if err != nil {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
		slog.Error("init logging failed, using stderr fallback", slog.Any("error", err))
	} else if closeLogger != nil {
		defer func() { _ = closeLogger() }()
	}

	root := rootCommand(version)
	if err := root.Run(context.Background(), args); err != nil {
		if exitErr, ok := err.(cli.ExitCoder); ok {
			return exitErr.ExitCode()
		}
		fmt.Fprintf(os.Stderr, "hearth: %v\n", err)
		return 1
	}
	return 0
}

func rootCommand(version string) *cli.Command {
	return &cli.Command{
		Name:    identity.CLIName,
		Usage:   "Persistent terminal sessions",
		Version: version,
		Commands: []*cli.Command{
			daemonCommand(version),
			agentCommand(),
			sessionsCommand(),
			versionCommand(version),
		},
	}
}

// modeFromArgs classifies the invocation for log record tagging before
// flag parsing has happened.
func modeFromArgs(args []string) string {
	if len(args) == 0 {
		return "cli"
	}
	for _, arg := range args[1:] {
		switch arg {
		case "daemon":
			return "daemon"
		case "agent":
			return "agent"
		}
		if len(arg) > 0 && arg[0] != '-' {
			return "cli"
		}
	}
	return "cli"
}

// loadLogConfig reads only the logging section of the daemon config.
// Errors fall back to defaults; commands re-load and report properly.
func loadLogConfig() logging.Config {
	path, err := appdirs.ConfigPath()
	if err != nil {
		return logging.Config{}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return logging.Config{}
	}
	return cfg.Logging
}

func versionCommand(version string) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print the hearth version",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			_, err := fmt.Fprintf(cmd.Root().Writer, "hearth %s\n", version)
			return err
		},
	}
}
