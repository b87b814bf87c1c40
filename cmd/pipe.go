package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/smazurov/streamproc/internal/logging"
	"github.com/smazurov/streamproc/internal/procs"
	"github.com/spf13/cobra"
)

// CreatePipeCmd creates the pipe command.
func CreatePipeCmd(settings *Settings) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   `pipe "command" ["command"...]`,
		Short: "Run commands chained stdout to stdin",
		Long: `Each argument is a whitespace-separated command line; quoting inside it is not ` +
			`interpreted. A single command inherits the terminal. In a pipeline the first stage ` +
			`reads the null device, the last stage writes stdout to the null device, and only the ` +
			`last stage's stderr reaches the terminal. Exits with the status of the last stage.`,
		Args: cobra.MinimumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			logging.Initialize(logging.Config{Level: "info", Format: settings.LogFormat})
			logger := logging.GetLogger("pipe").With("name", name)

			type exit struct {
				stage  int
				status procs.ExitStatus
			}
			exits := make(chan exit, len(args))
			sup := NewSupervisor(settings.MaxArgs, nil, func(rec procs.Record, status procs.ExitStatus) {
				if rec.Name == name {
					exits <- exit{stage: rec.Stage, status: status}
				}
			})
			defer sup.Close()

			if _, err := startGroup(sup, name, args); err != nil {
				logger.Error("Failed to start", "commands", describe(args), "error", err)
				os.Exit(1)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			last := procs.ExitStatus{}
			for remaining := len(args); remaining > 0; {
				select {
				case e := <-exits:
					remaining--
					if e.stage == len(args)-1 {
						last = e.status
					}
				case <-ctx.Done():
					logger.Info("Signal received, stopping pipeline")
					sup.Stop(name)
					ctx = context.Background()
				}
			}

			logger.Info("Pipeline finished", "status", last.String())
			os.Exit(ExitCode(last))
		},
	}

	cmd.Flags().StringVar(&name, "name", "pipe", "Logical process name")

	return cmd
}

// startGroup picks the launch shape matching the number of commands.
func startGroup(sup *procs.Supervisor, name string, commands []string) (int, error) {
	switch len(commands) {
	case 1:
		return sup.StartSingle(name, commands[0])
	case 2:
		return sup.StartPipeline2(name, commands[0], commands[1])
	case 3:
		return sup.StartPipeline3(name, commands[0], commands[1], commands[2])
	default:
		return sup.StartPipeline(name, commands...)
	}
}

// describe renders a command list for log output.
func describe(commands []string) string {
	if len(commands) == 1 {
		return commands[0]
	}
	return fmt.Sprintf("%d-stage pipeline", len(commands))
}
