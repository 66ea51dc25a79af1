// Package export turns an export request into an ordered set of rows.
//
// Each requested model's range is split into chunks sized to the vendor's
// per-call point limit. Chunks are fetched through a Source, sequentially by
// default or by a bounded worker pool, and reassembled in (model, chunk)
// order so the result does not depend on scheduling. Transient failures are
// retried per chunk; a model whose chunk still fails is recorded as failed
// while the remaining models continue. Authentication failures abort.
package export

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/univers/internal/ferrors"
	"github.com/tejusbharadwaj/univers/internal/metrics"
	"github.com/tejusbharadwaj/univers/internal/models"
	"github.com/tejusbharadwaj/univers/internal/retry"
)

// Request selects what to export. Models keep the order given.
type Request struct {
	Models          []models.ModelDescriptor
	Start           time.Time
	End             time.Time
	IntervalMinutes int
}

// ModelError records why a model contributed no rows.
type ModelError struct {
	ModelID string
	Chunk   Chunk
	Err     error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model %s, chunk %d [%s, %s): %v",
		e.ModelID, e.Chunk.Index,
		e.Chunk.Start.UTC().Format(time.RFC3339), e.Chunk.End.UTC().Format(time.RFC3339),
		e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// ModelOutcome summarizes one requested model.
type ModelOutcome struct {
	Model  models.ModelDescriptor
	Rows   int
	Chunks int
	// Err is a *ModelError when the model failed.
	Err error
}

// Result is the outcome of an export. Rows are grouped by model in request
// order, chronological within a model, ties broken by asset id.
type Result struct {
	ID     string
	Start  time.Time
	End    time.Time
	Rows   []models.DataRow
	Models []ModelOutcome
}

// Partial reports whether any model failed.
func (r *Result) Partial() bool {
	return len(r.FailedModels()) > 0
}

// FailedModels lists the ids of failed models in request order.
func (r *Result) FailedModels() []string {
	var ids []string
	for _, m := range r.Models {
		if m.Err != nil {
			ids = append(ids, m.Model.ID)
		}
	}
	return ids
}

// Options tunes an Exporter. Zero values pick defaults.
type Options struct {
	MaxPointsPerCall int
	MaxChunkSpan     time.Duration
	MaxRange         time.Duration
	Concurrency      int
	Retry            retry.Config
	Logger           *logrus.Logger
	Metrics          *metrics.Metrics
}

func DefaultOptions() Options {
	return Options{
		MaxPointsPerCall: DefaultMaxPointsPerCall,
		MaxChunkSpan:     DefaultMaxChunkSpan,
		MaxRange:         DefaultMaxRange,
		Concurrency:      1,
		Retry:            retry.DefaultConfig(),
	}
}

type Exporter struct {
	source    Source
	opts      Options
	validator *RequestValidator
	logger    *logrus.Logger
}

func NewExporter(source Source, opts Options) *Exporter {
	def := DefaultOptions()
	if opts.MaxPointsPerCall <= 0 {
		opts.MaxPointsPerCall = def.MaxPointsPerCall
	}
	if opts.MaxChunkSpan <= 0 {
		opts.MaxChunkSpan = def.MaxChunkSpan
	}
	if opts.MaxRange <= 0 {
		opts.MaxRange = def.MaxRange
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry = def.Retry
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	return &Exporter{
		source:    source,
		opts:      opts,
		validator: NewRequestValidator(opts.MaxRange),
		logger:    opts.Logger,
	}
}

// ListModels enumerates the source's models. An empty enumeration is
// ferrors.ErrNoModelsFound.
func (e *Exporter) ListModels(ctx context.Context) ([]models.ModelDescriptor, error) {
	list, err := e.source.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ferrors.ErrNoModelsFound
	}
	return list, nil
}

// ValidateRange rejects a bad range or interval without touching the source.
func (e *Exporter) ValidateRange(start, end time.Time, intervalMinutes int) error {
	return e.validator.ValidateRange(start, end, intervalMinutes)
}

// ResolveModels selects models by id, in the order given. No ids selects
// every model.
func (e *Exporter) ResolveModels(ctx context.Context, ids []string) ([]models.ModelDescriptor, error) {
	list, err := e.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return list, nil
	}

	byID := make(map[string]models.ModelDescriptor, len(list))
	for _, m := range list {
		byID[m.ID] = m
	}

	selected := make([]models.ModelDescriptor, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		m, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: unknown model: %s", ferrors.ErrInvalidRequest, id)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate model: %s", ferrors.ErrInvalidRequest, id)
		}
		seen[id] = true
		selected = append(selected, m)
	}
	return selected, nil
}

// ModelPlan is the chunk schedule of one model.
type ModelPlan struct {
	Model  models.ModelDescriptor
	Span   time.Duration
	Chunks []Chunk
}

// Plan validates the request and computes every model's chunks without
// calling the source.
func (e *Exporter) Plan(req Request) ([]ModelPlan, error) {
	if err := e.validator.Validate(req); err != nil {
		return nil, err
	}

	plans := make([]ModelPlan, len(req.Models))
	for i, m := range req.Models {
		span := ChunkSpan(m, req.IntervalMinutes, e.opts.MaxPointsPerCall, e.opts.MaxChunkSpan)
		plans[i] = ModelPlan{
			Model:  m,
			Span:   span,
			Chunks: PlanChunks(req.Start, req.End, span),
		}
	}
	return plans, nil
}

type job struct {
	model int
	chunk Chunk
}

type updateKind int

const (
	attemptDone updateKind = iota
	chunkDone
)

// update is sent by a worker to the coordinator: one per attempt, then one
// when the chunk is settled.
type update struct {
	kind    updateKind
	job     job
	attempt int
	rows    []models.DataRow
	err     error
}

// Export runs the request. A nil sink discards progress.
//
// The returned error is non-nil only when no result is produced: an invalid
// request, an authentication failure or cancellation. Per-model failures are
// reported through Result.Models and Result.Partial.
func (e *Exporter) Export(ctx context.Context, req Request, sink ProgressSink) (*Result, error) {
	plans, err := e.Plan(req)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		sink = discardSink{}
	}

	exportID := uuid.NewString()
	log := e.logger.WithFields(logrus.Fields{
		"export_id": exportID,
		"models":    len(plans),
		"start":     req.Start.UTC().Format(time.RFC3339),
		"end":       req.End.UTC().Format(time.RFC3339),
		"interval":  req.IntervalMinutes,
	})

	var jobs []job
	for mi, p := range plans {
		for _, c := range p.Chunks {
			jobs = append(jobs, job{model: mi, chunk: c})
		}
	}
	log.WithField("chunks", len(jobs)).Info("Starting export")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobCh := make(chan job)
	updates := make(chan update)

	var wg sync.WaitGroup
	for i := 0; i < e.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.worker(runCtx, req, plans, jobCh, updates)
		}()
	}
	stop := func() {
		cancel()
		close(jobCh)
		wg.Wait()
	}

	var (
		rows            = make([][][]models.DataRow, len(plans))
		settled         = make([]int, len(plans))
		fetched         = make([]int, len(plans))
		failed          = make([]error, len(plans))
		modelsCompleted int
		chunksCompleted int
		next, inFlight  int
	)
	for i, p := range plans {
		rows[i] = make([][]models.DataRow, len(p.Chunks))
	}

	emit := func(mi, attempt int, err error) {
		sink.OnProgress(Progress{
			ModelID:              plans[mi].Model.ID,
			ModelsCompleted:      modelsCompleted,
			TotalModels:          len(plans),
			ModelChunksCompleted: settled[mi],
			ModelTotalChunks:     len(plans[mi].Chunks),
			ChunksCompleted:      chunksCompleted,
			TotalChunks:          len(jobs),
			Attempt:              attempt,
			Err:                  err,
		})
	}

	canceled := func() (*Result, error) {
		stop()
		e.opts.Metrics.ExportFinished("canceled", 0)
		log.Warn("Export canceled")
		return nil, fmt.Errorf("%w: %v", ferrors.ErrCanceled, ctx.Err())
	}

	for next < len(jobs) || inFlight > 0 {
		if ctx.Err() != nil {
			return canceled()
		}

		// chunks of an abandoned model are not fetched
		for next < len(jobs) && failed[jobs[next].model] != nil {
			next++
		}

		var sendCh chan<- job
		var pending job
		if next < len(jobs) && inFlight < e.opts.Concurrency {
			sendCh = jobCh
			pending = jobs[next]
		}
		if sendCh == nil && inFlight == 0 {
			break
		}

		select {
		case <-ctx.Done():
			return canceled()

		case sendCh <- pending:
			next++
			inFlight++

		case u := <-updates:
			mi := u.job.model
			switch u.kind {
			case attemptDone:
				if u.err == nil && failed[mi] == nil {
					settled[mi]++
					chunksCompleted++
					if settled[mi] == len(plans[mi].Chunks) {
						modelsCompleted++
					}
				}
				emit(mi, u.attempt, u.err)

			case chunkDone:
				inFlight--
				if u.err == nil {
					if failed[mi] == nil {
						rows[mi][u.job.chunk.Index] = u.rows
						fetched[mi]++
					}
					continue
				}

				if ctx.Err() != nil {
					return canceled()
				}
				modelErr := &ModelError{ModelID: plans[mi].Model.ID, Chunk: u.job.chunk, Err: u.err}
				if errors.Is(u.err, ferrors.ErrAuthentication) {
					stop()
					e.opts.Metrics.ExportFinished("failed", 0)
					log.WithError(u.err).Error("Export aborted: authentication failed")
					return nil, modelErr
				}
				if failed[mi] != nil {
					continue
				}

				failed[mi] = modelErr
				chunksCompleted += len(plans[mi].Chunks) - settled[mi]
				settled[mi] = len(plans[mi].Chunks)
				modelsCompleted++
				log.WithFields(logrus.Fields{
					"model": plans[mi].Model.ID,
					"chunk": u.job.chunk.Index,
				}).WithError(u.err).Warn("Model failed, continuing with remaining models")
				emit(mi, 0, modelErr)
			}
		}
	}
	stop()

	result := &Result{
		ID:     exportID,
		Start:  req.Start,
		End:    req.End,
		Models: make([]ModelOutcome, len(plans)),
	}
	for mi, p := range plans {
		outcome := ModelOutcome{Model: p.Model, Chunks: fetched[mi]}
		if failed[mi] != nil {
			outcome.Err = failed[mi]
		} else {
			for _, chunkRows := range rows[mi] {
				result.Rows = append(result.Rows, chunkRows...)
				outcome.Rows += len(chunkRows)
			}
		}
		result.Models[mi] = outcome
	}

	status := "success"
	if result.Partial() {
		status = "partial"
	}
	e.opts.Metrics.ExportFinished(status, len(result.Rows))
	log.WithFields(logrus.Fields{
		"rows":   len(result.Rows),
		"failed": result.FailedModels(),
	}).Info("Export finished")

	return result, nil
}

// worker fetches chunks until jobCh is closed. Sends give up once ctx is
// done so the coordinator can stop without draining.
func (e *Exporter) worker(ctx context.Context, req Request, plans []ModelPlan, jobCh <-chan job, updates chan<- update) {
	send := func(u update) bool {
		select {
		case updates <- u:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for j := range jobCh {
		model := plans[j.model].Model
		var chunkRows []models.DataRow
		attempt := 0

		err := retry.DoWithRetryable(ctx, e.opts.Retry, isTransient, func(ctx context.Context) error {
			attempt++
			fetched, err := e.source.FetchPoints(ctx, model, j.chunk.Start, j.chunk.End, req.IntervalMinutes)
			e.opts.Metrics.ChunkAttempt(attemptOutcome(err))
			if err == nil {
				chunkRows = fetched
			}
			if !send(update{kind: attemptDone, job: j, attempt: attempt, err: err}) {
				return ctx.Err()
			}
			return err
		})

		if err == nil {
			sortRows(chunkRows)
		}
		if !send(update{kind: chunkDone, job: j, rows: chunkRows, err: err}) {
			return
		}
	}
}

func isTransient(err error) bool {
	return errors.Is(err, ferrors.ErrTransientFetch)
}

func attemptOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ferrors.ErrAuthentication):
		return "auth_error"
	case isTransient(err):
		return "transient_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

func sortRows(rows []models.DataRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Timestamp.Equal(rows[j].Timestamp) {
			return rows[i].Timestamp.Before(rows[j].Timestamp)
		}
		return rows[i].AssetID < rows[j].AssetID
	})
}
