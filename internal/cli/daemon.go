package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/hearthdev/hearth/internal/appdirs"
	"github.com/hearthdev/hearth/internal/client"
	"github.com/hearthdev/hearth/internal/config"
	"github.com/hearthdev/hearth/internal/history"
	"github.com/hearthdev/hearth/internal/host"
	"github.com/hearthdev/hearth/internal/server"
)

const stopTimeout = 15 * time.Second

func daemonCommand(version string) *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "Run the session daemon in the foreground",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to the daemon config file",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runDaemon(ctx, cmd, version)
		},
		Commands: []*cli.Command{
			{
				Name:   "stop",
				Usage:  "Stop the running daemon",
				Action: runDaemonStop,
			},
		},
	}
}

func runDaemon(ctx context.Context, cmd *cli.Command, version string) error {
	cfgPath := cmd.String("config")
	if cfgPath == "" {
		path, err := appdirs.ConfigPath()
		if err != nil {
			return err
		}
		cfgPath = path
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	socketPath, err := appdirs.SocketPath()
	if err != nil {
		return err
	}
	tokenPath, err := appdirs.TokenPath()
	if err != nil {
		return err
	}
	pidPath, err := appdirs.PidPath()
	if err != nil {
		return err
	}
	historyDir, err := appdirs.HistoryDir()
	if err != nil {
		return err
	}

	link, err := host.StartAgent()
	if err != nil {
		return fmt.Errorf("start agent: %w", err)
	}
	h := host.New(link, host.Config{
		HistoryDir:      historyDir,
		ScrollbackLines: cfg.ScrollbackLines,
		KillGrace:       cfg.KillGrace,
		ExitRetention:   cfg.ExitRetention,
		History: history.WriterConfig{
			MaxBytes:     cfg.HistoryMaxBytes,
			BacklogBytes: cfg.HistoryBacklogBytes,
			DrainWait:    cfg.HistoryDrainWait,
		},
	})
	srv := server.New(h, server.Config{
		SocketPath: socketPath,
		TokenPath:  tokenPath,
		PidPath:    pidPath,
	})
	if err := srv.Start(); err != nil {
		h.Close()
		return err
	}
	slog.Info("daemon listening",
		slog.String("socket", socketPath),
		slog.String("version", version),
		slog.Int("pid", os.Getpid()))

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		slog.Info("daemon stopping")
		srv.Stop()
	}()

	srv.Wait()
	h.Close()
	slog.Info("daemon stopped")
	return nil
}

func runDaemonStop(ctx context.Context, cmd *cli.Command) error {
	socketPath, err := appdirs.SocketPath()
	if err != nil {
		return err
	}
	pidPath, err := appdirs.PidPath()
	if err != nil {
		return err
	}
	stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()
	if err := client.StopDaemon(stopCtx, socketPath, pidPath); err != nil {
		return fmt.Errorf("stop daemon: %w", err)
	}
	fmt.Fprintln(cmd.Root().ErrWriter, "Daemon stopped.")
	return nil
}
