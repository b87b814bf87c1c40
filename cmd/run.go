package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/smazurov/streamproc/internal/ffmpeg"
	"github.com/smazurov/streamproc/internal/logging"
	"github.com/smazurov/streamproc/internal/procs"
	"github.com/spf13/cobra"
)

// CreateRunCmd creates the run command.
func CreateRunCmd(settings *Settings) *cobra.Command {
	var name string
	var ffmpegLog bool

	cmd := &cobra.Command{
		Use:   "run [flags] -- command [args...]",
		Short: "Run one command under the supervisor",
		Long: `Starts the command with the terminal as stdin and stdout, logs every line it writes ` +
			`to stderr, forwards SIGINT and SIGTERM, and exits with the child's status ` +
			`(128+signal when the child was killed).`,
		Args: cobra.MinimumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			if name == "" {
				name = filepath.Base(args[0])
			}
			logging.Initialize(logging.Config{Level: "info", Format: settings.LogFormat})
			logger := logging.GetLogger("run").With("name", name)

			exits := make(chan procs.ExitStatus, 1)
			sup := NewSupervisor(settings.MaxArgs, nil, func(rec procs.Record, status procs.ExitStatus) {
				if rec.Name == name {
					exits <- status
				}
			})
			defer sup.Close()

			pid, pipes, err := sup.StartControlled(name, args, procs.ControlledIO{
				Stdin:  os.Stdin,
				Stdout: os.Stdout,
			})
			if err != nil {
				logger.Error("Failed to start command", "error", err)
				os.Exit(1)
			}

			var parser procs.LineParser
			if ffmpegLog {
				parser = ffmpeg.ParseLogLevel
			}
			var output sync.WaitGroup
			output.Add(1)
			go func() {
				defer output.Done()
				defer pipes.Close()
				procs.LogOutput(pipes.Stderr, "stderr", logging.GetLogger("output").With("name", name), parser)
			}()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var status procs.ExitStatus
			select {
			case status = <-exits:
			case <-ctx.Done():
				logger.Info("Signal received, stopping child", "pid", pid)
				sup.Stop(name)
				status = <-exits
			}
			output.Wait()

			logger.Info("Command finished", "pid", pid, "status", status.String())
			os.Exit(ExitCode(status))
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Logical process name (default: executable base name)")
	cmd.Flags().BoolVar(&ffmpegLog, "ffmpeg-log", false, "Parse ffmpeg level tags in stderr")

	return cmd
}
