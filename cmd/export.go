package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tejusbharadwaj/univers/internal/csvexport"
	"github.com/tejusbharadwaj/univers/internal/export"
)

type exportFlags struct {
	project     string
	models      []string
	all         bool
	start       string
	end         string
	interval    int
	out         string
	gzip        bool
	zstd        bool
	concurrency int
	dryRun      bool
}

func newExportCmd(a *app) *cobra.Command {
	f := &exportFlags{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export historical data of one or more models to CSV",
		Long: `Export historical data of the selected models to a CSV file.

Times are RFC 3339, or YYYY-MM-DD[THH:MM] in the configured export timezone.
The range is half-open: --end itself is not included.`,
		Example: `  univers export -p Concorde -m Inverter --start 2024-01-01 --end 2024-01-02 --interval 15
  univers export -p Concorde --all --start 2024-01-01T06:00 --end 2024-01-01T18:00 --interval 1 --gzip`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, a, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.project, "project", "p", "", "project name")
	fl.StringSliceVarP(&f.models, "model", "m", nil, "model id (repeatable)")
	fl.BoolVar(&f.all, "all", false, "export every model of the project")
	fl.StringVar(&f.start, "start", "", "start of the range (inclusive)")
	fl.StringVar(&f.end, "end", "", "end of the range (exclusive)")
	fl.IntVarP(&f.interval, "interval", "i", 15, fmt.Sprintf("sampling interval in minutes %v", export.SupportedIntervals))
	fl.StringVarP(&f.out, "out", "o", "", "output file (default <output_dir>/<project>/<project>_<start>_<end>.csv)")
	fl.BoolVar(&f.gzip, "gzip", false, "gzip the output")
	fl.BoolVar(&f.zstd, "zstd", false, "zstd-compress the output")
	fl.IntVar(&f.concurrency, "concurrency", 0, "parallel fetches (default from config)")
	fl.BoolVar(&f.dryRun, "dry-run", false, "print the chunk plan without fetching")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	cmd.MarkFlagsMutuallyExclusive("model", "all")
	cmd.MarkFlagsMutuallyExclusive("gzip", "zstd")

	return cmd
}

func runExport(cmd *cobra.Command, a *app, f *exportFlags) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if len(f.models) == 0 && !f.all {
		return errors.New("select models with --model or use --all")
	}

	loc, err := a.cfg.Export.Location()
	if err != nil {
		return err
	}
	start, err := export.ParseTime(f.start, loc)
	if err != nil {
		return fmt.Errorf("--start: %w", err)
	}
	end, err := export.ParseTime(f.end, loc)
	if err != nil {
		return fmt.Errorf("--end: %w", err)
	}

	name, err := a.projectName(f.project)
	if err != nil {
		return err
	}
	if f.concurrency > 0 {
		a.cfg.Export.Concurrency = f.concurrency
	}
	project, exp, err := a.exporter(name)
	if err != nil {
		return err
	}
	if err := exp.ValidateRange(start, end, f.interval); err != nil {
		return err
	}

	selected, err := exp.ResolveModels(ctx, f.models)
	if err != nil {
		return err
	}
	req := export.Request{Models: selected, Start: start, End: end, IntervalMinutes: f.interval}

	if f.dryRun {
		plans, err := exp.Plan(req)
		if err != nil {
			return err
		}
		printPlan(out, plans)
		return nil
	}

	fmt.Fprintf(out, "Exporting %s model(s) of %s from %s to %s every %d min\n",
		bold(len(selected)), bold(project.Name),
		start.Format(time.RFC3339), end.Format(time.RFC3339), f.interval)

	sink := newProgressBarSink(cmd.ErrOrStderr())
	result, err := exp.Export(ctx, req, sink)
	sink.Finish()
	if err != nil {
		return err
	}

	compression := csvexport.None
	switch {
	case f.gzip:
		compression = csvexport.Gzip
	case f.zstd:
		compression = csvexport.Zstd
	}
	path := f.out
	if path == "" {
		path = filepath.Join(a.cfg.Export.OutputDir, csvexport.FileName(project.Name, start, end, compression))
	}
	if err := csvexport.WriteFile(path, result, csvexport.Options{Compression: compression}); err != nil {
		return err
	}

	printSummary(out, result, path)
	if len(result.FailedModels()) == len(result.Models) {
		return fmt.Errorf("every model failed: %w", result.Models[0].Err)
	}
	return nil
}

func printPlan(out io.Writer, plans []export.ModelPlan) {
	total := 0
	for _, p := range plans {
		total += len(p.Chunks)
		fmt.Fprintf(out, "%s  %d series, %d chunk(s) of up to %s\n",
			bold(p.Model.ID), p.Model.SeriesCount(), len(p.Chunks), p.Span)
		for _, c := range p.Chunks {
			fmt.Fprintf(out, "  #%d  %s  ->  %s\n", c.Index,
				c.Start.UTC().Format(time.RFC3339), c.End.UTC().Format(time.RFC3339))
		}
	}
	fmt.Fprintf(out, "%s API calls planned (before retries)\n", bold(total))
}

func printSummary(out io.Writer, result *export.Result, path string) {
	for _, m := range result.Models {
		if m.Err != nil {
			fmt.Fprintf(out, "  %s %s: %v\n", red("✗"), m.Model.ID, m.Err)
			continue
		}
		fmt.Fprintf(out, "  %s %s: %d rows\n", green("✓"), m.Model.ID, m.Rows)
	}

	if failed := result.FailedModels(); len(failed) > 0 {
		fmt.Fprintf(out, "%s %d rows written to %s; failed models: %s\n",
			yellow("Partial export:"), len(result.Rows), path, strings.Join(failed, ", "))
		return
	}
	fmt.Fprintf(out, "%s %d rows written to %s\n", green("Done:"), len(result.Rows), path)
}
