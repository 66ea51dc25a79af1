// Package univers exports historical device telemetry from Poseidon (EnOS)
// projects to CSV.
//
// # Architecture
//
// The service is structured into several key packages:
//   - config: YAML/env configuration and the project credential store
//   - api: signed client for the Poseidon gateway (model listing, raw history)
//   - export: request validation, chunk planning and the retrying fetch pipeline
//   - csvexport: deterministic CSV serialization, optionally gzip or zstd
//   - server: HTTP surface for project, model and export endpoints
//   - scheduler: cron-driven exports of a trailing window to disk
//   - metrics, retry, ferrors, models: shared infrastructure
//
// Key Features
//
//   - Chunked fetching:
//     Each model's range is split so that no call asks the gateway for more
//     points than it will return; chunks are retried with exponential
//     backoff on transient failures.
//
//   - Partial success:
//     A model whose chunks keep failing is reported and left out while the
//     remaining models still export. Authentication failures abort the run.
//
//   - Deterministic output:
//     Rows are ordered by time and asset regardless of how many chunks were
//     fetched concurrently.
//
// Example Usage
//
//	exp := export.NewExporter(client, export.DefaultOptions())
//	result, err := exp.Export(ctx, export.Request{
//	    Models:          selected,
//	    Start:           start,
//	    End:             end,
//	    IntervalMinutes: 15,
//	}, progress)
//	err = csvexport.WriteFile("out.csv", result, csvexport.Options{})
//
// For more information about specific packages, see their respective
// documentation.
package univers
