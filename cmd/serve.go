package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tejusbharadwaj/univers/internal/scheduler"
	"github.com/tejusbharadwaj/univers/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve CSV exports over HTTP and run scheduled exports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := a.cfg.Server
			if cmd.Flags().Changed("host") {
				cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}

			loc, err := a.cfg.Export.Location()
			if err != nil {
				return err
			}

			health := server.NewHealthChecker()
			srv := server.New(cfg, server.Options{
				Store:    a.store,
				Sources:  a.sources(),
				Export:   a.exportOptions(),
				Location: loc,
				Logger:   a.logger,
				Metrics:  a.metrics,
				Gatherer: a.registry,
				Health:   health,
			})

			sched := scheduler.NewScheduler(ctx, scheduler.Options{
				Store:     a.store,
				Sources:   a.sources(),
				Export:    a.exportOptions(),
				OutputDir: a.cfg.Export.OutputDir,
				Logger:    a.logger,
			})
			for _, job := range a.cfg.Schedules {
				if err := sched.Add(job); err != nil {
					return err
				}
				a.logger.WithFields(logrus.Fields{
					"schedule": job.Name,
					"cron":     job.Cron,
					"project":  job.Project,
				}).Info("Scheduled export registered")
			}
			sched.Start()
			health.SetServingStatus("scheduler", server.Serving)
			defer func() {
				health.SetServingStatus("scheduler", server.NotServing)
				<-sched.Stop().Done()
			}()

			a.logger.WithFields(logrus.Fields{
				"addr":      srv.Addr(),
				"projects":  len(a.store.Names()),
				"schedules": len(a.cfg.Schedules),
			}).Info("Starting server")

			if err := srv.ListenAndServe(ctx); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (default from config)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from config)")
	return cmd
}
