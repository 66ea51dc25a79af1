package export

// Progress is emitted after every fetch attempt and when a model is abandoned.
type Progress struct {
	ModelID         string
	ModelsCompleted int
	TotalModels     int
	// ModelChunksCompleted and ModelTotalChunks count the chunks of ModelID.
	ModelChunksCompleted int
	ModelTotalChunks     int
	// ChunksCompleted counts settled chunks across the export: fetched, or
	// skipped because their model was abandoned.
	ChunksCompleted int
	TotalChunks     int
	// Attempt is the 1-based attempt of the chunk just tried, 0 for an
	// abandonment event.
	Attempt int
	Err     error
}

// Fraction is the share of settled chunks in [0, 1].
func (p Progress) Fraction() float64 {
	if p.TotalChunks == 0 {
		return 1
	}
	return float64(p.ChunksCompleted) / float64(p.TotalChunks)
}

// ProgressSink receives progress events. Calls come from a single goroutine.
type ProgressSink interface {
	OnProgress(Progress)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(Progress)

func (f ProgressFunc) OnProgress(p Progress) { f(p) }

type discardSink struct{}

func (discardSink) OnProgress(Progress) {}
