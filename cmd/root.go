package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tejusbharadwaj/univers/internal/api"
	"github.com/tejusbharadwaj/univers/internal/config"
	"github.com/tejusbharadwaj/univers/internal/export"
	"github.com/tejusbharadwaj/univers/internal/metrics"
	"github.com/tejusbharadwaj/univers/internal/retry"
)

const defaultConfigFile = "config.yaml"

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// app is the state shared by subcommands, built once flags are parsed.
type app struct {
	cfg      *config.Config
	store    *config.Store
	custom   string
	logger   *logrus.Logger
	metrics  *metrics.Metrics
	registry *prometheus.Registry
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	a := &app{}

	root := &cobra.Command{
		Use:   "univers",
		Short: "Export historical Poseidon telemetry to CSV",
		Long: `univers exports historical device telemetry from Poseidon (EnOS) projects.

Pick a configured project, one or more device models, a time range and a
sampling interval; univers fetches the data in chunks and writes a CSV file.
"univers serve" offers the same export as an HTTP download.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(v, cmd.Flags().Changed("config"))
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", defaultConfigFile, "config file")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("log-format", "", "log format (json, text)")
	pf.Bool("no-color", false, "disable colored output")
	pf.String("access-key", "", "access key of a custom project")
	pf.String("secret-key", "", "secret key of a custom project")
	pf.String("api-gateway", "", "API gateway URL of a custom project")
	pf.String("org-id", "", "organization id of a custom project")
	pf.String("project-name", "custom", "name of the custom project")

	for _, name := range []string{
		"config", "log-level", "log-format", "no-color",
		"access-key", "secret-key", "api-gateway", "org-id", "project-name",
	} {
		v.BindPFlag(name, pf.Lookup(name))
	}
	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root.AddCommand(
		newProjectsCmd(a),
		newModelsCmd(a),
		newExportCmd(a),
		newServeCmd(a),
	)
	return root
}

func (a *app) init(v *viper.Viper, explicitConfig bool) error {
	if v.GetBool("no-color") {
		color.NoColor = true
	}

	cfg, err := config.Load(v.GetString("config"))
	switch {
	case err == nil:
	case !explicitConfig && errors.Is(err, fs.ErrNotExist):
		cfg = config.Default()
	default:
		return err
	}

	if level := v.GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if format := v.GetString("log-format"); format != "" {
		cfg.Logging.Format = format
	}

	if key := v.GetString("access-key"); key != "" {
		custom := config.ProjectConfig{
			Name:       v.GetString("project-name"),
			AccessKey:  key,
			SecretKey:  v.GetString("secret-key"),
			APIGateway: v.GetString("api-gateway"),
			OrgID:      v.GetString("org-id"),
		}
		if err := custom.Validate(); err != nil {
			return err
		}
		cfg.Projects = append(cfg.Projects, custom)
		a.custom = custom.Name
	}

	store, err := config.NewStore(cfg.Projects)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	m, err := metrics.New(registry)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.store = store
	a.logger = logger
	a.metrics = m
	a.registry = registry
	return nil
}

func newLogger(cfg config.LoggingConfig) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(lvl)

	switch cfg.Format {
	case "", "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("invalid log format: %s", cfg.Format)
	}
	return logger, nil
}

// projectName resolves --project, falling back to the custom project or the
// only configured one.
func (a *app) projectName(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if a.custom != "" {
		return a.custom, nil
	}
	if names := a.store.Names(); len(names) == 1 {
		return names[0], nil
	}
	return "", errors.New("--project is required when several projects are configured (see 'univers projects')")
}

// sources builds Poseidon clients from the API configuration.
func (a *app) sources() export.SourceFactory {
	return func(project config.ProjectConfig) (export.Source, error) {
		client, err := api.NewClient(project, api.Options{
			Timeout:        a.cfg.API.Timeout,
			RateLimit:      a.cfg.API.RateLimit,
			RateLimitBurst: a.cfg.API.RateLimitBurst,
			Logger:         a.logger,
			Metrics:        a.metrics,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func (a *app) exportOptions() export.Options {
	ec := a.cfg.Export
	policy := retry.DefaultConfig()
	if ec.MaxAttempts > 0 {
		policy.MaxAttempts = ec.MaxAttempts
	}
	if ec.InitialBackoff > 0 {
		policy.InitialBackoff = ec.InitialBackoff
	}
	if ec.MaxBackoff > 0 {
		policy.MaxBackoff = ec.MaxBackoff
	}

	return export.Options{
		MaxPointsPerCall: ec.MaxPointsPerCall,
		MaxChunkSpan:     ec.MaxChunkSpan,
		MaxRange:         ec.MaxRange,
		Concurrency:      ec.Concurrency,
		Retry:            policy,
		Logger:           a.logger,
		Metrics:          a.metrics,
	}
}

// exporter builds an Exporter for the named project.
func (a *app) exporter(name string) (config.ProjectConfig, *export.Exporter, error) {
	project, err := a.store.Project(name)
	if err != nil {
		return config.ProjectConfig{}, nil, err
	}
	source, err := a.sources()(project)
	if err != nil {
		return config.ProjectConfig{}, nil, err
	}
	return project, export.NewExporter(source, a.exportOptions()), nil
}
