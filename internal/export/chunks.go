package export

import (
	"time"

	"github.com/tejusbharadwaj/univers/internal/models"
)

// DefaultMaxChunkSpan splits long ranges into daily requests.
const DefaultMaxChunkSpan = 24 * time.Hour

// DefaultMaxPointsPerCall stays below the 6000-item raw page, leaving room
// for the sample the vendor returns at a chunk's end time.
const DefaultMaxPointsPerCall = 5000

// Chunk is one half-open sub-range [Start, End) fetched in a single call.
type Chunk struct {
	Index int
	Start time.Time
	End   time.Time
}

// ChunkSpan sizes a chunk so one call stays under maxPoints samples for the
// model. The span is a whole number of intervals, at least one, and at most
// maxSpan (rounded down to the interval) when maxSpan is positive.
func ChunkSpan(model models.ModelDescriptor, intervalMinutes, maxPoints int, maxSpan time.Duration) time.Duration {
	step := time.Duration(intervalMinutes) * time.Minute
	if step <= 0 {
		return maxSpan
	}

	perSeries := 1
	if maxPoints > 0 {
		perSeries = maxPoints / model.SeriesCount()
	}
	if perSeries < 1 {
		perSeries = 1
	}

	span := step * time.Duration(perSeries)
	if maxSpan > 0 && span > maxSpan {
		span = maxSpan
	}
	// keep chunk starts on the slot grid of the range start
	span = span / step * step
	if span < step {
		span = step
	}
	return span
}

// PlanChunks partitions [start, end) into consecutive chronological chunks of
// at most span. A non-positive span yields a single chunk.
func PlanChunks(start, end time.Time, span time.Duration) []Chunk {
	if !start.Before(end) {
		return nil
	}
	if span <= 0 {
		return []Chunk{{Index: 0, Start: start, End: end}}
	}

	var chunks []Chunk
	for from := start; from.Before(end); from = from.Add(span) {
		to := from.Add(span)
		if to.After(end) {
			to = end
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Start: from, End: to})
	}
	return chunks
}
