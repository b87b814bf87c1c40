package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/streamproc/cmd"
	"github.com/smazurov/streamproc/internal/api"
	"github.com/smazurov/streamproc/internal/config"
	"github.com/smazurov/streamproc/internal/events"
	"github.com/smazurov/streamproc/internal/helpers"
	"github.com/smazurov/streamproc/internal/helpers/store"
	"github.com/smazurov/streamproc/internal/logging"
	"github.com/smazurov/streamproc/internal/metrics"
	"github.com/smazurov/streamproc/internal/metrics/collectors"
	"github.com/smazurov/streamproc/internal/metrics/exporters"
	"github.com/smazurov/streamproc/internal/systemd"
	"github.com/smazurov/streamproc/internal/version"
	"github.com/spf13/cobra"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port       string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	CORSOrigin string `help:"Allowed CORS origin" default:"*" toml:"server.cors_origin" env:"SERVER_CORS_ORIGIN"`

	// Supervisor settings
	MaxArgs     int    `help:"Maximum tokens per command" default:"20" toml:"supervisor.max_args" env:"SUPERVISOR_MAX_ARGS"`
	StopTimeout string `help:"How long shutdown waits for children to exit" default:"10s" toml:"supervisor.stop_timeout" env:"SUPERVISOR_STOP_TIMEOUT"`

	// Resource sampling settings
	StatsInterval string `help:"Interval between process resource samples (0 disables)" default:"5s" toml:"stats.interval" env:"STATS_INTERVAL"`

	// Helpers settings
	HelpersFile  string `help:"Helper definitions file" default:"helpers.toml" toml:"helpers.config_file" env:"HELPERS_CONFIG_FILE"`
	HelpersWatch bool   `help:"Reconcile helpers when the file changes" default:"true" toml:"helpers.watch" env:"HELPERS_WATCH"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// systemd settings
	SystemdUnits     string `help:"Comma-separated companion units the API may control" default:"" toml:"systemd.units" env:"SYSTEMD_UNITS"`
	SystemdSystemBus bool   `help:"Control units on the system bus instead of the user bus" default:"false" toml:"systemd.system_bus" env:"SYSTEMD_SYSTEM_BUS"`

	// Logging settings; per-module levels live in the [logging.modules] table
	LoggingLevel  string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
}

func main() {
	var cli humacli.CLI
	settings := &cmd.Settings{}

	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			logging.GetLogger("main").Warn("Failed to load config", "error", loadErr)
		}

		loggingConfig := config.LoadLoggingConfig(opts.Config)
		loggingConfig.Level = opts.LoggingLevel
		loggingConfig.Format = opts.LoggingFormat
		logging.Initialize(loggingConfig)

		settings.MaxArgs = opts.MaxArgs
		settings.LogFormat = opts.LoggingFormat

		logger := logging.GetLogger("main")

		stopTimeout, err := time.ParseDuration(opts.StopTimeout)
		if err != nil {
			logger.Warn("Invalid stop timeout, using default", "value", opts.StopTimeout, "error", err)
			stopTimeout = 10 * time.Second
		}

		eventBus := events.New()
		supervisor := cmd.NewSupervisor(opts.MaxArgs, eventBus, nil)

		helperService := helpers.NewService(&helpers.ServiceOptions{
			Store:      store.NewTOML(opts.HelpersFile),
			Controller: supervisor,
			EventBus:   eventBus,
			MaxArgs:    opts.MaxArgs,
		})

		apiOpts := &api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			CORSOrigin:        opts.CORSOrigin,
			Processes:         supervisor,
			Helpers:           helperService,
			EventBus:          eventBus,
			PrometheusHandler: metrics.Handler(),
		}

		var unitManager *systemd.Manager
		if units := splitList(opts.SystemdUnits); len(units) > 0 {
			unitManager, err = systemd.NewManager(context.Background(), opts.SystemdSystemBus, units)
			if err != nil {
				logger.Warn("systemd unavailable, unit control disabled", "error", err)
			} else {
				apiOpts.SystemdManager = unitManager
			}
		}

		server := api.NewServer(apiOpts)

		var collector *collectors.ProcessCollector
		var statsExporter *exporters.SSEExporter
		if statsInterval, parseErr := time.ParseDuration(opts.StatsInterval); parseErr != nil {
			logger.Warn("Invalid stats interval, resource sampling disabled", "value", opts.StatsInterval, "error", parseErr)
		} else if statsInterval > 0 {
			collector, err = collectors.NewProcessCollector(supervisor, "", statsInterval)
			if err != nil {
				logger.Warn("procfs unavailable, resource sampling disabled", "error", err)
			} else {
				statsExporter = exporters.NewSSEExporter(eventBus, collector, statsInterval)
			}
		}

		helpersWatcher := config.NewConfigWatcher(opts.HelpersFile, store.Read, logging.GetLogger("config"))
		helpersWatcher.OnReload(helperService.Reconcile)

		configWatcher := config.NewConfigWatcher(opts.Config, config.ReadLoggingConfig, logging.GetLogger("config"))
		configWatcher.OnReload(func(cfg logging.Config) {
			logger.Info("Logging configuration reloaded", "level", cfg.Level)
			logging.Initialize(cfg)
		})

		hooks.OnStart(func() {
			logger.Info("Starting streamproc", "version", version.String())

			if startErr := helperService.StartAll(); startErr != nil {
				logger.Warn("Some helpers failed to start", "error", startErr)
			}

			if opts.HelpersWatch {
				if startErr := helpersWatcher.Start(); startErr != nil {
					logger.Warn("Failed to watch helpers file, hot-reload disabled", "error", startErr)
				}
			}
			if startErr := configWatcher.Start(); startErr != nil {
				logger.Warn("Failed to watch config file, logging reload disabled", "error", startErr)
			}

			if collector != nil {
				collector.Start(context.Background())
				statsExporter.Start(context.Background())
			}

			if sent, notifyErr := systemd.NotifyReady(); notifyErr != nil {
				logger.Warn("Failed to notify systemd", "error", notifyErr)
			} else if sent {
				logger.Debug("Notified systemd of readiness")
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			_, _ = systemd.NotifyStopping()

			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			_ = helpersWatcher.Stop()
			_ = configWatcher.Stop()
			if collector != nil {
				statsExporter.Stop()
				collector.Stop()
			}

			// Helpers first so their exits are not treated as failures.
			helperService.StopAll()
			supervisor.StopAll()

			ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			if !cmd.WaitIdle(ctx, supervisor) {
				logger.Warn("Children still running after stop timeout", "count", supervisor.Count())
			}
			supervisor.Close()

			if unitManager != nil {
				unitManager.Close()
			}
		})
	})

	cli.Root().Version = version.String()
	cli.Root().AddCommand(cmd.CreateRunCmd(settings))
	cli.Root().AddCommand(cmd.CreatePipeCmd(settings))
	cli.Root().AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(c *cobra.Command, _ []string) {
			c.Println(version.String())
		},
	})

	cli.Run()
}

// splitList splits a comma-separated option into trimmed non-empty items.
func splitList(s string) []string {
	var items []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
